// Package llm is the boundary to the language-model provider: it
// adapts an eino chat-model stream into the flat event sequence the
// chat controller consumes, with cooperative cancellation. Concrete
// provider adapters live outside this repository; anything satisfying
// eino's BaseChatModel plugs in.
package llm

import (
	"context"
	"errors"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/Mootikins/crucible/internal/crucible/errno"
	"github.com/Mootikins/crucible/pkg/logger"
)

// EventKind discriminates stream events.
type EventKind int

const (
	EventTextDelta EventKind = iota
	EventThinkingDelta
	EventToolCall
	EventToolResultDelta
	EventToolResultComplete
	EventStreamComplete
	EventStreamError
)

// StreamEvent is one element of a provider turn. Seq increases
// monotonically within the turn so downstream ordering can be enforced.
type StreamEvent struct {
	Kind EventKind
	Seq  uint64

	Delta string

	ToolID   string
	ToolName string
	ToolArgs string

	Err string
}

// EmitFunc receives stream events in order. It runs on the streaming
// goroutine and must not block for long.
type EmitFunc func(StreamEvent)

// Streamer drives one provider turn at a time.
type Streamer struct {
	model model.BaseChatModel
}

// NewStreamer wraps a chat model.
func NewStreamer(m model.BaseChatModel) *Streamer {
	return &Streamer{model: m}
}

// Stream runs one turn: messages in, ordered events out. The abort
// controller cancels cooperatively — the provider read loop observes
// the context and stops between chunks. A cancelled turn returns
// errno.ErrAborted after emitting what arrived.
func (s *Streamer) Stream(ctx context.Context, ac *AbortController, messages []*schema.Message, emit EmitFunc) error {
	if ac == nil {
		ac = NewAbortController(ctx, "", 0)
	}

	reader, err := s.model.Stream(ac.Context(), messages)
	if err != nil {
		emit(StreamEvent{Kind: EventStreamError, Err: err.Error()})
		return err
	}
	defer reader.Close()

	var seq uint64
	next := func() uint64 {
		seq++
		return seq
	}

	for {
		if ac.IsAborted() {
			return errno.ErrAborted
		}

		msg, err := reader.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				emit(StreamEvent{Kind: EventStreamComplete, Seq: next()})
				return nil
			}
			if errors.Is(err, context.Canceled) || ac.IsAborted() {
				return errno.ErrAborted
			}
			logger.Warn("[Streamer] provider stream failed: %v", err)
			emit(StreamEvent{Kind: EventStreamError, Seq: next(), Err: err.Error()})
			return err
		}
		if msg == nil {
			continue
		}

		if msg.ReasoningContent != "" {
			emit(StreamEvent{Kind: EventThinkingDelta, Seq: next(), Delta: msg.ReasoningContent})
		}
		if msg.Content != "" {
			emit(StreamEvent{Kind: EventTextDelta, Seq: next(), Delta: msg.Content})
		}
		for _, tc := range msg.ToolCalls {
			emit(StreamEvent{
				Kind:     EventToolCall,
				Seq:      next(),
				ToolID:   tc.ID,
				ToolName: tc.Function.Name,
				ToolArgs: tc.Function.Arguments,
			})
		}
	}
}

// UserMessage builds a user turn message.
func UserMessage(content string) *schema.Message {
	return schema.UserMessage(content)
}

// AssistantMessage builds an assistant history message.
func AssistantMessage(content string) *schema.Message {
	return schema.AssistantMessage(content, nil)
}

// SystemMessage builds a system prompt message.
func SystemMessage(content string) *schema.Message {
	return schema.SystemMessage(content)
}
