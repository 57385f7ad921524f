package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gobwas/glob"
	"github.com/google/uuid"

	"github.com/Mootikins/crucible/internal/session/event"
)

// Handler consumes one delivered event. The context carries the bus's
// cancellation token; long-running handlers must poll it. A returned
// error counts toward the subscription's degradation threshold.
type Handler func(ctx context.Context, e event.Event) error

// subscription is one registered {pattern, callback} pair.
type subscription struct {
	id      string
	pattern glob.Glob
	raw     string
	handler Handler

	// errStreak counts consecutive failures; at the bus's degrade
	// threshold the subscription is suspended.
	errStreak atomic.Int32
	suspended atomic.Bool
}

func (s *subscription) matches(e event.Event) bool {
	return s.pattern.Match(e.EventType()) || s.pattern.Match(e.Identifier())
}

// subscriptionSet is an immutable snapshot of registered subscriptions.
// Dispatch reads one snapshot per event; registration swaps in a new
// snapshot (RCU), so dispatch never takes a lock.
type subscriptionSet struct {
	ordered []*subscription
}

func (set *subscriptionSet) clone() *subscriptionSet {
	next := &subscriptionSet{ordered: make([]*subscription, len(set.ordered))}
	copy(next.ordered, set.ordered)
	return next
}

// Handle is the capability returned by Subscribe; closing it disposes
// of the subscription.
type Handle struct {
	once  sync.Once
	close func()
}

// Close unregisters the subscription. Safe to call more than once.
func (h *Handle) Close() {
	h.once.Do(h.close)
}

func newSubscription(pattern string, handler Handler) (*subscription, error) {
	compiled, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid subscription pattern %q: %w", pattern, err)
	}
	return &subscription{
		id:      uuid.NewString(),
		pattern: compiled,
		raw:     pattern,
		handler: handler,
	}, nil
}
