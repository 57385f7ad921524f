// Package watcher drives ingestion from filesystem changes: a
// recursive fsnotify watch over the vault feeds a bounded worker pool,
// debounced per path so editor save bursts collapse into one ingest.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/Mootikins/crucible/internal/session/event"
	"github.com/Mootikins/crucible/internal/vault/embedding"
	"github.com/Mootikins/crucible/internal/vault/ingest"
	"github.com/Mootikins/crucible/internal/vault/parser"
	"github.com/Mootikins/crucible/pkg/logger"
)

const (
	// debounceWindow collapses rapid write bursts on one path.
	debounceWindow = 250 * time.Millisecond
	// defaultWorkers bounds concurrent ingestion runs.
	defaultWorkers = 4
)

// Watcher owns the vault watch loop.
type Watcher struct {
	vaultDir string
	ingestor *ingest.Ingestor
	provider embedding.Provider
	sink     ingest.EventSink
	workers  int

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// Option configures the watcher.
type Option func(*Watcher)

// WithEmbedding enables the enrichment seam on watched ingests.
func WithEmbedding(p embedding.Provider) Option {
	return func(w *Watcher) { w.provider = p }
}

// WithEventSink publishes file events to the session bus.
func WithEventSink(sink ingest.EventSink) Option {
	return func(w *Watcher) { w.sink = sink }
}

// WithWorkers overrides the worker pool size.
func WithWorkers(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.workers = n
		}
	}
}

// New creates a watcher over the vault directory.
func New(vaultDir string, ing *ingest.Ingestor, opts ...Option) *Watcher {
	w := &Watcher{
		vaultDir: vaultDir,
		ingestor: ing,
		workers:  defaultWorkers,
		pending:  map[string]*time.Timer{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Watcher) publish(e event.Event) {
	if w.sink != nil {
		w.sink.Publish(e)
	}
}

// IngestAll walks the vault once and ingests every markdown file.
// Used for the initial sync before watching.
func (w *Watcher) IngestAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)

	err := filepath.WalkDir(w.vaultDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != w.vaultDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !parser.IsMarkdown(path) {
			return nil
		}
		p := path
		g.Go(func() error {
			w.ingestPath(ctx, p)
			return nil
		})
		return nil
	})
	if err != nil {
		return err
	}
	return g.Wait()
}

// Run watches the vault until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := w.addRecursive(fsw, w.vaultDir); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers + 1)

	for {
		select {
		case <-ctx.Done():
			return g.Wait()

		case ev, ok := <-fsw.Events:
			if !ok {
				return g.Wait()
			}
			w.handleEvent(ctx, g, fsw, ev)

		case err, ok := <-fsw.Errors:
			if !ok {
				return g.Wait()
			}
			logger.Warn("[Watcher] %v", err)
		}
	}
}

func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

func (w *Watcher) handleEvent(ctx context.Context, g *errgroup.Group, fsw *fsnotify.Watcher, ev fsnotify.Event) {
	// New directories join the watch.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(fsw, ev.Name); err != nil {
				logger.Warn("[Watcher] failed to watch %q: %v", ev.Name, err)
			}
			return
		}
	}

	if !parser.IsMarkdown(ev.Name) {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		w.publish(event.FileDeleted{Path: ev.Name})
		rel := w.relPath(ev.Name)
		g.Go(func() error {
			if err := w.ingestor.Remove(ctx, rel); err != nil {
				logger.Warn("[Watcher] remove %q: %v", rel, err)
			}
			return nil
		})

	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		if ev.Op.Has(fsnotify.Create) {
			w.publish(event.FileCreated{Path: ev.Name})
		} else {
			w.publish(event.FileModified{Path: ev.Name})
		}
		w.debounce(ev.Name, func() {
			g.Go(func() error {
				w.ingestPath(ctx, ev.Name)
				return nil
			})
		})
	}
}

// debounce schedules fn after the window, resetting the timer on each
// new event for the same path.
func (w *Watcher) debounce(path string, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(debounceWindow, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		fn()
	})
}

func (w *Watcher) relPath(path string) string {
	rel, err := filepath.Rel(w.vaultDir, path)
	if err != nil {
		return path
	}
	return rel
}

// ingestPath parses and ingests one file; failures are logged, never
// fatal to the watch loop.
func (w *Watcher) ingestPath(ctx context.Context, path string) {
	n, err := parser.ParseFile(path)
	if err != nil {
		logger.Warn("[Watcher] parse %q: %v", path, err)
		return
	}
	rel := w.relPath(path)
	// IngestEnriched tolerates a nil provider: structural enrichment
	// always runs, embeddings only when configured.
	if _, err := w.ingestor.IngestEnriched(ctx, n, rel, w.provider); err != nil {
		logger.Warn("[Watcher] ingest %q: %v", rel, err)
	}
}
