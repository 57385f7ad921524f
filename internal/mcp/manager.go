package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/Mootikins/crucible/pkg/logger"
)

// Manager owns the configured MCP server connections.
type Manager struct {
	mu      sync.RWMutex
	servers map[string]*Server
	order   []string
}

// NewManager builds the manager from configuration. The listing order
// is fixed here from a walk of the config map; it is not the order in
// which servers appear in mcp.json.
func NewManager(cfg *Config) *Manager {
	m := &Manager{
		servers: make(map[string]*Server, len(cfg.MCPServers)),
		order:   make([]string, 0, len(cfg.MCPServers)),
	}
	for name, srvCfg := range cfg.MCPServers {
		m.servers[name] = NewServer(name, srvCfg)
		m.order = append(m.order, name)
	}
	return m
}

// Initialize connects all servers concurrently. Individual failures are
// logged and do not block the rest; only total failure errors.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.servers) == 0 {
		logger.Info("[MCP] no MCP servers configured, skipping initialization")
		return nil
	}

	var wg sync.WaitGroup
	var errMu sync.Mutex
	var errs []error
	for _, srv := range m.servers {
		wg.Add(1)
		go func(s *Server) {
			defer wg.Done()
			if err := s.Connect(ctx); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
				logger.Warn("[MCP] server %q failed to connect: %v", s.Name(), err)
			}
		}(srv)
	}
	wg.Wait()

	connected := 0
	for _, srv := range m.servers {
		if srv.Status() == StatusConnected {
			connected++
		}
	}
	logger.Info("[MCP] initialization complete: %d/%d servers connected", connected, len(m.servers))

	if len(errs) > 0 && connected == 0 {
		return fmt.Errorf("[MCP] all servers failed to connect (%d errors)", len(errs))
	}
	return nil
}

// ServerNames returns configured server names in the manager's listing
// order.
func (m *Manager) ServerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Describe renders "name (status, N tools)" lines for the :mcp command.
func (m *Manager) Describe() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for _, name := range m.order {
		srv := m.servers[name]
		out = append(out, fmt.Sprintf("%s (%s, %d tools)", name, srv.Status(), len(srv.Tools())))
	}
	return out
}

// Close shuts all connections down.
func (m *Manager) Close() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, srv := range m.servers {
		srv.Close()
	}
}
