package llm

import (
	"context"
	"sync"
	"time"

	"github.com/Mootikins/crucible/pkg/logger"
)

// AbortController manages stream cancellation and timeout.
//
// It wraps context cancellation so the controller side can abort a
// provider stream cooperatively:
// - explicit Abort() for user cancellation (Esc / Ctrl-C)
// - optional timeout for runaway turns
// - thread-safe abort state tracking
type AbortController struct {
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	down   bool
	turnID string
}

// NewAbortController creates a controller over the parent context. A
// timeout > 0 also cancels automatically.
func NewAbortController(parent context.Context, turnID string, timeout time.Duration) *AbortController {
	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	return &AbortController{
		ctx:    ctx,
		cancel: cancel,
		turnID: turnID,
	}
}

// Context returns the controlled context. Use it for all downstream
// provider operations.
func (ac *AbortController) Context() context.Context {
	return ac.ctx
}

// Abort cancels the turn. Safe to call multiple times.
func (ac *AbortController) Abort() {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if ac.down {
		return
	}
	ac.down = true
	ac.cancel()
	logger.Info("[AbortController] abort turn %s", ac.turnID)
}

// IsAborted reports whether the turn was cancelled.
func (ac *AbortController) IsAborted() bool {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if ac.down {
		return true
	}
	select {
	case <-ac.ctx.Done():
		return true
	default:
		return false
	}
}
