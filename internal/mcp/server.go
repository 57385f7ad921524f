package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Mootikins/crucible/pkg/logger"
)

// ServerStatus represents the connection state of an MCP server.
type ServerStatus int

const (
	StatusDisconnected ServerStatus = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s ServerStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusConnecting:
		return "Connecting"
	case StatusConnected:
		return "Connected"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Server is one configured MCP server connection.
type Server struct {
	name   string
	config *ServerConfig

	mu     sync.RWMutex
	client client.MCPClient
	tools  []string
	status ServerStatus
	err    error
}

// NewServer creates a server handle in the disconnected state.
func NewServer(name string, cfg *ServerConfig) *Server {
	return &Server{
		name:   name,
		config: cfg,
		status: StatusDisconnected,
	}
}

// Name returns the configured server name.
func (s *Server) Name() string {
	return s.name
}

// Status returns the current connection status.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Tools returns the discovered tool names (empty if not connected).
func (s *Server) Tools() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.tools))
	copy(out, s.tools)
	return out
}

// Connect performs the MCP handshake and discovers the server's tools.
func (s *Server) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = StatusConnecting
	s.err = nil

	cli, err := s.createClient()
	if err != nil {
		s.status = StatusError
		s.err = err
		return fmt.Errorf("[MCP] server %q: failed to create client: %w", s.name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "crucible",
		Version: "0.1.0",
	}
	if _, err := cli.Initialize(ctx, initReq); err != nil {
		s.status = StatusError
		s.err = err
		return fmt.Errorf("[MCP] server %q: failed to initialize: %w", s.name, err)
	}

	listed, err := cli.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		s.status = StatusError
		s.err = err
		return fmt.Errorf("[MCP] server %q: failed to list tools: %w", s.name, err)
	}

	var names []string
	for _, t := range listed.Tools {
		if len(s.config.ToolFilter) > 0 && !contains(s.config.ToolFilter, t.Name) {
			continue
		}
		names = append(names, t.Name)
	}

	s.client = cli
	s.tools = names
	s.status = StatusConnected
	return nil
}

// Close shuts the connection down and resets state.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		if err := s.client.Close(); err != nil {
			logger.Warn("[MCP] server %q: failed to close client: %v", s.name, err)
		}
		s.client = nil
	}
	s.tools = nil
	s.status = StatusDisconnected
	s.err = nil
}

// createClient creates a transport-specific MCP client. Must be called
// with s.mu held.
func (s *Server) createClient() (client.MCPClient, error) {
	switch s.config.Transport {
	case "stdio":
		return client.NewStdioMCPClient(s.config.Command, s.config.Env, s.config.Args...)
	case "sse":
		return client.NewSSEMCPClient(s.config.URL)
	default:
		return nil, fmt.Errorf("unknown transport: %s", s.config.Transport)
	}
}

func contains(list []string, v string) bool {
	for _, it := range list {
		if it == v {
			return true
		}
	}
	return false
}
