// Package mcp loads MCP server configuration and maintains the
// connections the :mcp surface lists. Tool execution transport lives
// outside this repository; this package covers discovery.
package mcp

import (
	"fmt"
	"os"

	"github.com/Mootikins/crucible/pkg/utils/json"
)

// Config holds the top-level MCP configuration. Compatible with the
// Claude Desktop / VS Code mcp.json format:
//
//	{
//	  "mcpServers": {
//	    "server-name": {
//	      "transport": "stdio",
//	      "command": "npx",
//	      "args": ["-y", "@anthropic/mcp-filesystem-server", "/tmp"]
//	    }
//	  }
//	}
type Config struct {
	// MCPServers maps server name → server configuration. Uses the
	// "mcpServers" key for Claude Desktop compatibility.
	MCPServers map[string]*ServerConfig `json:"mcpServers"`
}

// ServerConfig defines one MCP server. Two transports are supported:
// "stdio" (subprocess) and "sse" (HTTP SSE).
type ServerConfig struct {
	// Transport is "stdio" or "sse"; default "stdio".
	Transport string `json:"transport,omitempty"`

	// Command is the executable to launch (stdio only).
	Command string `json:"command,omitempty"`

	// Args are the command-line arguments (stdio only).
	Args []string `json:"args,omitempty"`

	// Env is the subprocess environment, "KEY=VALUE" form (stdio only).
	Env []string `json:"env,omitempty"`

	// URL is the SSE endpoint (sse only).
	URL string `json:"url,omitempty"`

	// ToolFilter optionally restricts which tools are exposed.
	ToolFilter []string `json:"toolFilter,omitempty"`
}

// NewConfig returns an empty configuration.
func NewConfig() *Config {
	return &Config{MCPServers: map[string]*ServerConfig{}}
}

// LoadConfig loads mcp.json. A missing file yields an empty config, not
// an error.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewConfig(), nil
		}
		return nil, fmt.Errorf("failed to read MCP config file %q: %w", path, err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse MCP config file %q: %w", path, err)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = map[string]*ServerConfig{}
	}
	for _, srv := range cfg.MCPServers {
		if srv.Transport == "" {
			srv.Transport = "stdio"
		}
	}
	return cfg, nil
}
