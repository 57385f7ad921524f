// Package bus delivers session events to glob-matched subscribers with
// priority classes, bounded backpressure, and synchronous pre-event
// interception.
//
// One bus serves one logical session: dispatch is single-threaded, so
// delivery is FIFO within a priority class, while producers may post
// from any goroutine.
package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mootikins/crucible/internal/session/event"
	"github.com/Mootikins/crucible/pkg/logger"
)

const numPriorities = 4

// Defaults chosen to keep a chat session responsive without starving
// background storage events.
const (
	DefaultCapacity         = 1024
	DefaultFairnessLow      = 1
	DefaultFairnessHigh     = 4
	DefaultDegradeThreshold = 5
	DefaultPreEventBudget   = 2 * time.Second
)

// PreAction is a pre-event handler's verdict.
type PreAction int

const (
	// PreAllow lets the gated action proceed unchanged.
	PreAllow PreAction = iota
	// PreModify replaces the event before downstream handlers see it.
	PreModify
	// PreCancel aborts the gated action. First cancel wins.
	PreCancel
)

// PreDecision carries the verdict plus the replacement event for
// PreModify and an optional reason for PreCancel.
type PreDecision struct {
	Action      PreAction
	Replacement event.Event
	Reason      string
}

// Allow is the zero-decision convenience.
func Allow() PreDecision { return PreDecision{Action: PreAllow} }

// Modify replaces the event.
func Modify(e event.Event) PreDecision {
	return PreDecision{Action: PreModify, Replacement: e}
}

// Cancel aborts the gated action.
func Cancel(reason string) PreDecision {
	return PreDecision{Action: PreCancel, Reason: reason}
}

// PreHandler intercepts a pre-event synchronously.
type PreHandler func(ctx context.Context, e event.Event) PreDecision

type preSubscription struct {
	sub     *subscription
	handler PreHandler
}

// Options configures a Bus.
type Options struct {
	// Capacity bounds the inbound queue across all priorities.
	Capacity int
	// FairnessLow:FairnessHigh is the low:high dequeue interleave bound.
	FairnessLow  int
	FairnessHigh int
	// DegradeThreshold suspends a subscription after this many
	// consecutive handler failures.
	DegradeThreshold int
	// PreEventBudget bounds each pre-event handler; exceeding it is
	// allow-with-warning, never cancel.
	PreEventBudget time.Duration
}

func (o Options) withDefaults() Options {
	if o.Capacity <= 0 {
		o.Capacity = DefaultCapacity
	}
	if o.FairnessLow <= 0 {
		o.FairnessLow = DefaultFairnessLow
	}
	if o.FairnessHigh <= 0 {
		o.FairnessHigh = DefaultFairnessHigh
	}
	if o.DegradeThreshold <= 0 {
		o.DegradeThreshold = DefaultDegradeThreshold
	}
	if o.PreEventBudget <= 0 {
		o.PreEventBudget = DefaultPreEventBudget
	}
	return o
}

// Bus is the per-session event bus.
type Bus struct {
	opts Options

	mu       sync.Mutex
	queues   [numPriorities][]item
	queued   int
	notify   chan struct{}
	closed   bool
	overflow bool

	// highRun/lowRun count consecutive dequeues on each side of the
	// fairness interleave: after FairnessHigh high picks, up to
	// FairnessLow lower-priority events are served.
	highRun int
	lowRun  int

	// subs holds the current *subscriptionSet; registration swaps a new
	// snapshot in, dispatch loads it lock-free.
	subs   atomic.Value
	preMu  sync.Mutex
	pre    []*preSubscription
	regMu  sync.Mutex

	// seq ordering guard for TextDelta per session.
	lastSeq map[string]uint64
	heldSeq map[string][]item
}

// item wraps a queued event. For TextDelta, firstSeq..Seq is the range
// of producer sequence numbers the (possibly coalesced) delta covers.
type item struct {
	e        event.Event
	firstSeq uint64
}

// New creates a bus. Call Run to start dispatch.
func New(opts Options) *Bus {
	b := &Bus{
		opts:    opts.withDefaults(),
		notify:  make(chan struct{}, 1),
		lastSeq: map[string]uint64{},
		heldSeq: map[string][]item{},
	}
	b.subs.Store(&subscriptionSet{})
	return b
}

// Subscribe registers a handler for events whose type or identifier
// matches the glob pattern. The returned Handle unregisters on Close.
func (b *Bus) Subscribe(pattern string, handler Handler) (*Handle, error) {
	sub, err := newSubscription(pattern, handler)
	if err != nil {
		return nil, err
	}

	b.regMu.Lock()
	cur := b.subs.Load().(*subscriptionSet)
	next := cur.clone()
	next.ordered = append(next.ordered, sub)
	b.subs.Store(next)
	b.regMu.Unlock()

	return &Handle{close: func() { b.unsubscribe(sub.id) }}, nil
}

func (b *Bus) unsubscribe(id string) {
	b.regMu.Lock()
	defer b.regMu.Unlock()
	cur := b.subs.Load().(*subscriptionSet)
	next := &subscriptionSet{}
	for _, s := range cur.ordered {
		if s.id != id {
			next.ordered = append(next.ordered, s)
		}
	}
	b.subs.Store(next)
}

// SubscribePre registers a pre-event interceptor. Interceptors run in
// registration order.
func (b *Bus) SubscribePre(pattern string, handler PreHandler) (*Handle, error) {
	sub, err := newSubscription(pattern, nil)
	if err != nil {
		return nil, err
	}
	ps := &preSubscription{sub: sub, handler: handler}

	b.preMu.Lock()
	b.pre = append(b.pre, ps)
	b.preMu.Unlock()

	return &Handle{close: func() {
		b.preMu.Lock()
		defer b.preMu.Unlock()
		for i, p := range b.pre {
			if p.sub.id == sub.id {
				b.pre = append(b.pre[:i], b.pre[i+1:]...)
				break
			}
		}
	}}, nil
}

// Publish enqueues an event for asynchronous dispatch. Safe from any
// goroutine. When the queue is saturated, streaming deltas coalesce and
// the lowest-priority pending event is dropped for anything else.
func (b *Bus) Publish(e event.Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	p := int(e.Priority())
	if p < 0 || p >= numPriorities {
		p = int(event.PriorityNormal)
	}

	if b.queued >= b.opts.Capacity {
		if delta, ok := e.(event.TextDelta); ok && b.coalesceDelta(p, delta) {
			b.mu.Unlock()
			b.wake()
			return
		}
		b.dropLowest()
	}

	it := item{e: e}
	if delta, ok := e.(event.TextDelta); ok {
		it.firstSeq = delta.Seq
	}
	b.queues[p] = append(b.queues[p], it)
	b.queued++
	b.mu.Unlock()
	b.wake()
}

// coalesceDelta merges the delta into the newest pending TextDelta of
// the same session, preserving byte order. Returns false when there is
// nothing to merge into.
func (b *Bus) coalesceDelta(p int, delta event.TextDelta) bool {
	q := b.queues[p]
	for i := len(q) - 1; i >= 0; i-- {
		if prev, ok := q[i].e.(event.TextDelta); ok && prev.SessionID == delta.SessionID {
			prev.Delta += delta.Delta
			prev.Seq = delta.Seq
			q[i].e = prev
			return true
		}
	}
	return false
}

// dropLowest discards the oldest event of the lowest-priority non-empty
// queue and flags the overflow for a diagnostic event.
func (b *Bus) dropLowest() {
	for p := 0; p < numPriorities; p++ {
		if len(b.queues[p]) > 0 {
			dropped := b.queues[p][0]
			b.queues[p] = b.queues[p][1:]
			b.queued--
			if !b.overflow {
				b.overflow = true
				logger.Warn("[Bus] queue overflow, dropped %s", dropped.e.EventType())
			}
			return
		}
	}
}

func (b *Bus) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Run dispatches events until ctx is cancelled. One goroutine per
// session; delivery order is FIFO within a priority class with the
// configured high/low interleave across classes.
func (b *Bus) Run(ctx context.Context) {
	for {
		it, ok := b.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				b.mu.Lock()
				b.closed = true
				b.mu.Unlock()
				return
			case <-b.notify:
				continue
			}
		}
		b.deliver(ctx, it)
	}
}

// Drain synchronously dispatches everything currently queued. Intended
// for tests and for shutdown flushing.
func (b *Bus) Drain(ctx context.Context) {
	for {
		it, ok := b.dequeue()
		if !ok {
			return
		}
		b.deliver(ctx, it)
	}
}

// dequeue picks the next event: highest priority first, except that
// after FairnessHigh consecutive higher-priority dequeues up to
// FairnessLow lower-priority events are served (when any are waiting).
func (b *Bus) dequeue() (item, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.queued == 0 {
		if b.overflow {
			b.overflow = false
			return item{e: event.Custom{Name: "queue_overflow"}}, true
		}
		return item{}, false
	}

	highest := -1
	for p := numPriorities - 1; p >= 0; p-- {
		if len(b.queues[p]) > 0 {
			highest = p
			break
		}
	}

	pick := highest
	if b.highRun >= b.opts.FairnessHigh {
		for p := 0; p < highest; p++ {
			if len(b.queues[p]) > 0 {
				pick = p
				break
			}
		}
	}
	if pick == highest {
		b.highRun++
		b.lowRun = 0
	} else {
		b.lowRun++
		if b.lowRun >= b.opts.FairnessLow {
			b.highRun = 0
			b.lowRun = 0
		}
	}

	it := b.queues[pick][0]
	b.queues[pick] = b.queues[pick][1:]
	b.queued--
	return it, true
}

// deliver routes one event through the seq guard and out to matching
// subscribers.
func (b *Bus) deliver(ctx context.Context, it item) {
	if _, ok := it.e.(event.TextDelta); ok {
		for _, ready := range b.orderDeltas(it) {
			b.fanout(ctx, ready)
		}
		return
	}
	b.fanout(ctx, it.e)
}

// orderDeltas enforces Seq order per session: an out-of-order delta is
// held until the gap fills, then released in order. A growing hold
// buffer (producer restarted its counter) is flushed as-is.
func (b *Bus) orderDeltas(it item) []event.Event {
	delta := it.e.(event.TextDelta)
	last := b.lastSeq[delta.SessionID]

	if it.firstSeq != 0 && last != 0 && it.firstSeq > last+1 && len(b.heldSeq[delta.SessionID]) < 64 {
		b.heldSeq[delta.SessionID] = append(b.heldSeq[delta.SessionID], it)
		return nil
	}

	out := []event.Event{delta}
	b.lastSeq[delta.SessionID] = delta.Seq

	held := b.heldSeq[delta.SessionID]
	for {
		advanced := false
		for i, h := range held {
			if h.firstSeq == b.lastSeq[delta.SessionID]+1 {
				hd := h.e.(event.TextDelta)
				out = append(out, hd)
				b.lastSeq[delta.SessionID] = hd.Seq
				held = append(held[:i], held[i+1:]...)
				advanced = true
				break
			}
		}
		if !advanced {
			break
		}
	}
	if len(held) >= 64 {
		// Give up on the gap rather than hold deltas forever.
		for _, h := range held {
			hd := h.e.(event.TextDelta)
			out = append(out, hd)
			b.lastSeq[delta.SessionID] = hd.Seq
		}
		held = nil
	}
	b.heldSeq[delta.SessionID] = held
	return out
}

func (b *Bus) fanout(ctx context.Context, e event.Event) {
	set := b.subs.Load().(*subscriptionSet)
	for _, sub := range set.ordered {
		if sub.suspended.Load() || !sub.matches(e) {
			continue
		}
		b.invoke(ctx, sub, e)
	}
}

// invoke runs one handler, recovering panics and tracking the
// degradation streak.
func (b *Bus) invoke(ctx context.Context, sub *subscription, e event.Event) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		err = sub.handler(ctx, e)
	}()

	if err == nil {
		sub.errStreak.Store(0)
		return
	}
	logger.Warn("[Bus] handler %q failed on %s: %v", sub.raw, e.EventType(), err)
	if int(sub.errStreak.Add(1)) >= b.opts.DegradeThreshold {
		sub.suspended.Store(true)
		logger.Error("[Bus] subscription %q degraded after %d consecutive errors, suspended",
			sub.raw, b.opts.DegradeThreshold)
	}
}

// DispatchPre runs the pre-event interception chain synchronously.
// It returns the (possibly replaced) event and whether the gated action
// may proceed. The first cancelling handler wins and later handlers are
// skipped. A handler exceeding the budget counts as allow-with-warning.
func (b *Bus) DispatchPre(ctx context.Context, e event.Event) (event.Event, bool) {
	if !e.IsPreEvent() {
		return e, true
	}

	b.preMu.Lock()
	chain := make([]*preSubscription, len(b.pre))
	copy(chain, b.pre)
	b.preMu.Unlock()

	current := e
	for _, ps := range chain {
		if !ps.sub.matches(current) {
			continue
		}
		decision, timedOut := b.runPre(ctx, ps.handler, current)
		if timedOut {
			logger.Warn("[Bus] pre-event handler %q exceeded %s budget on %s, allowing",
				ps.sub.raw, b.opts.PreEventBudget, current.EventType())
			continue
		}
		switch decision.Action {
		case PreModify:
			if decision.Replacement != nil {
				current = decision.Replacement
			}
		case PreCancel:
			logger.Info("[Bus] pre-event %s cancelled by %q: %s",
				current.EventType(), ps.sub.raw, decision.Reason)
			return current, false
		}
	}
	return current, true
}

// runPre executes one interceptor under the time budget.
func (b *Bus) runPre(ctx context.Context, handler PreHandler, e event.Event) (PreDecision, bool) {
	budget, cancel := context.WithTimeout(ctx, b.opts.PreEventBudget)
	defer cancel()

	done := make(chan PreDecision, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Warn("[Bus] pre-event handler panic: %v", r)
				done <- Allow()
			}
		}()
		done <- handler(budget, e)
	}()

	select {
	case d := <-done:
		return d, false
	case <-budget.Done():
		return Allow(), true
	}
}
