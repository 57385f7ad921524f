package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mootikins/crucible/internal/crucible/errno"
)

// fakeModel streams a fixed chunk sequence through a schema.Pipe.
type fakeModel struct {
	chunks    []*schema.Message
	streamErr error
}

func (f *fakeModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage("", nil), nil
}

func (f *fakeModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	sr, sw := schema.Pipe[*schema.Message](len(f.chunks))
	go func() {
		defer sw.Close()
		for _, c := range f.chunks {
			if closed := sw.Send(c, nil); closed {
				return
			}
		}
	}()
	return sr, nil
}

func collectEvents(t *testing.T, s *Streamer, ac *AbortController) ([]StreamEvent, error) {
	t.Helper()
	var events []StreamEvent
	err := s.Stream(context.Background(), ac, []*schema.Message{UserMessage("hi")}, func(ev StreamEvent) {
		events = append(events, ev)
	})
	return events, err
}

func TestStreamEmitsOrderedEvents(t *testing.T) {
	m := &fakeModel{chunks: []*schema.Message{
		schema.AssistantMessage("Hi ", nil),
		schema.AssistantMessage("there", nil),
		{
			Role: schema.Assistant,
			ToolCalls: []schema.ToolCall{
				{ID: "t1", Function: schema.FunctionCall{Name: "Read", Arguments: `{"path":"f.md"}`}},
			},
		},
	}}

	events, err := collectEvents(t, NewStreamer(m), nil)
	require.NoError(t, err)
	require.Len(t, events, 4)

	assert.Equal(t, EventTextDelta, events[0].Kind)
	assert.Equal(t, "Hi ", events[0].Delta)
	assert.Equal(t, EventTextDelta, events[1].Kind)
	assert.Equal(t, "there", events[1].Delta)

	assert.Equal(t, EventToolCall, events[2].Kind)
	assert.Equal(t, "t1", events[2].ToolID)
	assert.Equal(t, "Read", events[2].ToolName)

	assert.Equal(t, EventStreamComplete, events[3].Kind)

	// Seq is strictly increasing across the turn.
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq)
	}
}

func TestStreamThinkingDelta(t *testing.T) {
	m := &fakeModel{chunks: []*schema.Message{
		{Role: schema.Assistant, ReasoningContent: "pondering"},
		schema.AssistantMessage("answer", nil),
	}}

	events, err := collectEvents(t, NewStreamer(m), nil)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventThinkingDelta, events[0].Kind)
	assert.Equal(t, "pondering", events[0].Delta)
	assert.Equal(t, EventTextDelta, events[1].Kind)
}

func TestStreamAborted(t *testing.T) {
	m := &fakeModel{chunks: []*schema.Message{
		schema.AssistantMessage("never delivered", nil),
	}}

	ac := NewAbortController(context.Background(), "turn-1", 0)
	ac.Abort()
	require.True(t, ac.IsAborted())

	events, err := collectEvents(t, NewStreamer(m), ac)
	assert.True(t, errors.Is(err, errno.ErrAborted))
	for _, ev := range events {
		assert.NotEqual(t, EventStreamComplete, ev.Kind)
	}
}

func TestStreamProviderError(t *testing.T) {
	m := &fakeModel{streamErr: errors.New("provider down")}

	events, err := collectEvents(t, NewStreamer(m), nil)
	require.Error(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventStreamError, events[0].Kind)
	assert.Contains(t, events[0].Err, "provider down")
}

func TestAbortControllerIdempotent(t *testing.T) {
	ac := NewAbortController(context.Background(), "turn-2", 0)
	assert.False(t, ac.IsAborted())
	ac.Abort()
	ac.Abort()
	assert.True(t, ac.IsAborted())

	select {
	case <-ac.Context().Done():
	default:
		t.Fatal("context not cancelled after abort")
	}
}
