// Package crucible assembles the process: stores, event bus, ingestor,
// MCP manager, and the chat TUI, from the merged configuration.
package crucible

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/Mootikins/crucible/internal/crucible/config"
	"github.com/Mootikins/crucible/internal/llm"
	"github.com/Mootikins/crucible/internal/mcp"
	"github.com/Mootikins/crucible/internal/session/bus"
	"github.com/Mootikins/crucible/internal/vault/embedding"
	"github.com/Mootikins/crucible/internal/vault/ingest"
	"github.com/Mootikins/crucible/internal/vault/merkle"
	"github.com/Mootikins/crucible/internal/vault/store"
	"github.com/Mootikins/crucible/internal/vault/watcher"
	"github.com/Mootikins/crucible/pkg/logger"
)

// App owns the process-wide collaborators.
type App struct {
	cfg *config.Config

	store    *store.Store
	merkle   *merkle.Store
	bus      *bus.Bus
	ingestor *ingest.Ingestor
	watcher  *watcher.Watcher
	mcpMgr   *mcp.Manager
	embedder embedding.Provider

	// chat turn state; the streamer is nil until a chat model is
	// injected via WithChatModel.
	streamer *llm.Streamer
	turnMu   sync.Mutex
	turn     *llm.AbortController
	history  []*schema.Message

	sessionID string
}

// AppOption injects optional collaborators into NewApp.
type AppOption func(*App)

// WithChatModel wires the chat model driving assistant turns. Anything
// satisfying eino's BaseChatModel plugs in; without one the session
// runs vault- and shell-only.
func WithChatModel(m model.BaseChatModel) AppOption {
	return func(a *App) {
		if m != nil {
			a.streamer = llm.NewStreamer(m)
		}
	}
}

// NewApp opens the stores and wires the pipeline.
func NewApp(cfg *config.Config, appOpts ...AppOption) (*App, error) {
	if err := logger.InitLog(cfg.Log.File); err != nil {
		return nil, err
	}
	logger.SetDebug(cfg.Log.Debug)

	st, err := store.Open(cfg.Vault.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	ms, err := merkle.OpenStore(cfg.Vault.MerklePath)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open merkle store: %w", err)
	}

	embedder, err := embedding.NewProvider(embedding.Config{
		Provider: cfg.Embedding.Provider,
		APIKey:   cfg.Embedding.APIKey,
		BaseURL:  cfg.Embedding.BaseURL,
		Model:    cfg.Embedding.Model,
	})
	if err != nil {
		st.Close()
		ms.Close()
		return nil, err
	}

	eventBus := bus.New(bus.Options{})
	ingestor := ingest.New(st,
		ingest.WithMerkleStore(ms),
		ingest.WithEventSink(eventBus),
	)

	mcpCfg, err := mcp.LoadConfig(cfg.MCP.ConfigPath)
	if err != nil {
		logger.Warn("[App] %v", err)
		mcpCfg = mcp.NewConfig()
	}

	app := &App{
		cfg:       cfg,
		store:     st,
		merkle:    ms,
		bus:       eventBus,
		ingestor:  ingestor,
		mcpMgr:    mcp.NewManager(mcpCfg),
		embedder:  embedder,
		sessionID: uuid.NewString(),
	}
	app.watcher = watcher.New(cfg.Vault.Dir, ingestor,
		watcher.WithEmbedding(embedder),
		watcher.WithEventSink(eventBus),
		watcher.WithWorkers(cfg.Vault.Workers),
	)
	for _, opt := range appOpts {
		opt(app)
	}
	return app, nil
}

// Close releases everything. Safe after partial shutdown.
func (a *App) Close() {
	a.mcpMgr.Close()
	if err := a.merkle.Close(); err != nil {
		logger.Warn("[App] close merkle store: %v", err)
	}
	if err := a.store.Close(); err != nil {
		logger.Warn("[App] close store: %v", err)
	}
	logger.FlushLog()
}

// RunIngest performs a one-shot ingest of the whole vault.
func (a *App) RunIngest(ctx context.Context) error {
	go a.bus.Run(ctx)
	return a.watcher.IngestAll(ctx)
}

// RunWatch ingests the vault then watches it until cancelled.
func (a *App) RunWatch(ctx context.Context) error {
	go a.bus.Run(ctx)
	if err := a.watcher.IngestAll(ctx); err != nil {
		return err
	}
	return a.watcher.Run(ctx)
}
