package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mootikins/crucible/internal/session/event"
)

// collect subscribes a recording handler matching everything.
func collect(t *testing.T, b *Bus) *[]event.Event {
	t.Helper()
	var mu sync.Mutex
	events := &[]event.Event{}
	_, err := b.Subscribe("*", func(_ context.Context, e event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		*events = append(*events, e)
		return nil
	})
	require.NoError(t, err)
	return events
}

func TestFIFOWithinPriorityClass(t *testing.T) {
	b := New(Options{})
	got := collect(t, b)

	for i := 0; i < 5; i++ {
		b.Publish(event.NoteIngested{EntityID: fmt.Sprintf("note:%d", i), Path: fmt.Sprintf("%d.md", i)})
	}
	b.Drain(context.Background())

	require.Len(t, *got, 5)
	for i, e := range *got {
		assert.Equal(t, fmt.Sprintf("%d.md", i), e.(event.NoteIngested).Path)
	}
}

func TestHigherPriorityDrainsFirst(t *testing.T) {
	b := New(Options{})
	got := collect(t, b)

	b.Publish(event.SessionSaved{SessionID: "s", Path: "low"})        // Low
	b.Publish(event.UserMessage{SessionID: "s", Content: "high"})     // High
	b.Publish(event.NoteIngested{EntityID: "n", Path: "normal.md"})   // Normal
	b.Drain(context.Background())

	require.Len(t, *got, 3)
	assert.Equal(t, "user_message", (*got)[0].EventType())
	assert.Equal(t, "note_ingested", (*got)[1].EventType())
	assert.Equal(t, "session_saved", (*got)[2].EventType())
}

func TestFairnessBoundPreventsStarvation(t *testing.T) {
	b := New(Options{FairnessLow: 1, FairnessHigh: 4})
	got := collect(t, b)

	b.Publish(event.SessionSaved{SessionID: "s", Path: "starved"})
	for i := 0; i < 12; i++ {
		b.Publish(event.UserMessage{SessionID: "s", Content: fmt.Sprintf("h%d", i)})
	}
	b.Drain(context.Background())

	// The low-priority event must land within the first FairnessHigh+1
	// deliveries rather than after all twelve high-priority ones.
	pos := -1
	for i, e := range *got {
		if e.EventType() == "session_saved" {
			pos = i
			break
		}
	}
	require.NotEqual(t, -1, pos)
	assert.LessOrEqual(t, pos, 4)
}

func TestGlobSubscription(t *testing.T) {
	b := New(Options{})
	var toolEvents []event.Event
	_, err := b.Subscribe("tool_call_*", func(_ context.Context, e event.Event) error {
		toolEvents = append(toolEvents, e)
		return nil
	})
	require.NoError(t, err)

	var readEvents []event.Event
	_, err = b.Subscribe("Read", func(_ context.Context, e event.Event) error {
		readEvents = append(readEvents, e)
		return nil
	})
	require.NoError(t, err)

	b.Publish(event.ToolCallStarted{Name: "Read"})
	b.Publish(event.ToolCallStarted{Name: "Write"})
	b.Publish(event.NoteIngested{Path: "x.md"})
	b.Drain(context.Background())

	assert.Len(t, toolEvents, 2)
	// Identifier matching: only the Read call.
	require.Len(t, readEvents, 1)
	assert.Equal(t, "Read", readEvents[0].(event.ToolCallStarted).Name)
}

func TestHandleCloseUnsubscribes(t *testing.T) {
	b := New(Options{})
	var count int
	h, err := b.Subscribe("*", func(_ context.Context, e event.Event) error {
		count++
		return nil
	})
	require.NoError(t, err)

	b.Publish(event.FileCreated{Path: "a.md"})
	b.Drain(context.Background())
	h.Close()
	b.Publish(event.FileCreated{Path: "b.md"})
	b.Drain(context.Background())

	assert.Equal(t, 1, count)
}

func TestSeqOrderEnforced(t *testing.T) {
	b := New(Options{})
	got := collect(t, b)

	// Published out of order; must be delivered in seq order.
	b.Publish(event.TextDelta{SessionID: "s", Seq: 1, Delta: "a"})
	b.Drain(context.Background())
	b.Publish(event.TextDelta{SessionID: "s", Seq: 3, Delta: "c"})
	b.Publish(event.TextDelta{SessionID: "s", Seq: 2, Delta: "b"})
	b.Drain(context.Background())

	require.Len(t, *got, 3)
	var text string
	for _, e := range *got {
		text += e.(event.TextDelta).Delta
	}
	assert.Equal(t, "abc", text)
}

func TestOverflowDropsLowestAndReports(t *testing.T) {
	b := New(Options{Capacity: 3})
	got := collect(t, b)

	b.Publish(event.SessionSaved{SessionID: "s", Path: "low1"})
	b.Publish(event.UserMessage{SessionID: "s", Content: "h1"})
	b.Publish(event.UserMessage{SessionID: "s", Content: "h2"})
	// Queue full: this drops the pending low-priority event.
	b.Publish(event.UserMessage{SessionID: "s", Content: "h3"})
	b.Drain(context.Background())

	var types []string
	for _, e := range *got {
		types = append(types, e.EventType())
	}
	assert.NotContains(t, types, "session_saved")
	assert.Contains(t, types, "custom")

	for _, e := range *got {
		if c, ok := e.(event.Custom); ok {
			assert.Equal(t, "queue_overflow", c.Name)
		}
	}
}

func TestSaturatedDeltasCoalesce(t *testing.T) {
	b := New(Options{Capacity: 2})
	got := collect(t, b)

	b.Publish(event.TextDelta{SessionID: "s", Seq: 1, Delta: "He"})
	b.Publish(event.TextDelta{SessionID: "s", Seq: 2, Delta: "ll"})
	// Saturated: coalesces into the newest pending delta, no drop.
	b.Publish(event.TextDelta{SessionID: "s", Seq: 3, Delta: "o"})
	b.Drain(context.Background())

	var text string
	for _, e := range *got {
		if d, ok := e.(event.TextDelta); ok {
			text += d.Delta
		}
	}
	assert.Equal(t, "Hello", text)
}

func TestPreEventCancelWins(t *testing.T) {
	b := New(Options{})

	var order []string
	_, err := b.SubscribePre("pre_tool_call", func(_ context.Context, e event.Event) PreDecision {
		order = append(order, "first")
		return Cancel("nope")
	})
	require.NoError(t, err)
	_, err = b.SubscribePre("pre_tool_call", func(_ context.Context, e event.Event) PreDecision {
		order = append(order, "second")
		return Allow()
	})
	require.NoError(t, err)

	_, allowed := b.DispatchPre(context.Background(), event.PreToolCall{Name: "Bash"})
	assert.False(t, allowed)
	// First cancel wins; the second handler is skipped.
	assert.Equal(t, []string{"first"}, order)
}

func TestPreEventModify(t *testing.T) {
	b := New(Options{})
	_, err := b.SubscribePre("pre_llm_call", func(_ context.Context, e event.Event) PreDecision {
		pre := e.(event.PreLlmCall)
		pre.Model = "redirected"
		return Modify(pre)
	})
	require.NoError(t, err)

	out, allowed := b.DispatchPre(context.Background(), event.PreLlmCall{SessionID: "s", Model: "orig"})
	require.True(t, allowed)
	assert.Equal(t, "redirected", out.(event.PreLlmCall).Model)
}

func TestNonPreEventPassesThrough(t *testing.T) {
	b := New(Options{})
	out, allowed := b.DispatchPre(context.Background(), event.UserMessage{Content: "x"})
	assert.True(t, allowed)
	assert.Equal(t, "user_message", out.EventType())
}

func TestHandlerErrorDegradesSubscription(t *testing.T) {
	b := New(Options{DegradeThreshold: 3})
	calls := 0
	_, err := b.Subscribe("*", func(_ context.Context, e event.Event) error {
		calls++
		return errors.New("always fails")
	})
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		b.Publish(event.FileCreated{Path: fmt.Sprintf("%d.md", i)})
	}
	b.Drain(context.Background())

	// Suspended after the third consecutive failure.
	assert.Equal(t, 3, calls)
}

func TestHandlerPanicDoesNotPropagate(t *testing.T) {
	b := New(Options{})
	got := collect(t, b)
	_, err := b.Subscribe("*", func(_ context.Context, e event.Event) error {
		panic("boom")
	})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		b.Publish(event.FileCreated{Path: "a.md"})
		b.Drain(context.Background())
	})
	// The well-behaved subscriber still got the event.
	assert.Len(t, *got, 1)
}
