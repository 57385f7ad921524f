// Package interaction defines the structured request/response protocol
// between agent/tool code and the UI: questions, question batches, and
// permission prompts, correlated by request id across the event bus.
package interaction

import (
	"github.com/google/uuid"
)

// Kind discriminates request variants.
type Kind string

const (
	KindAsk        Kind = "ask"
	KindAskBatch   Kind = "ask_batch"
	KindPermission Kind = "permission"
)

// Request is an interaction the UI must resolve. Exactly one of Ask,
// Batch, Permission is set, per Kind.
type Request struct {
	ID         string      `json:"request_id"`
	Kind       Kind        `json:"kind"`
	Ask        *Ask        `json:"ask,omitempty"`
	Batch      *AskBatch   `json:"batch,omitempty"`
	Permission *Permission `json:"permission,omitempty"`
}

// Ask is a single question with optional choices.
type Ask struct {
	Prompt      string   `json:"prompt"`
	Choices     []string `json:"choices,omitempty"`
	MultiSelect bool     `json:"multi_select,omitempty"`
	// AllowOther adds a free-text escape hatch to the choices.
	AllowOther bool `json:"allow_other,omitempty"`
}

// AskBatch is an ordered list of questions answered in one modal.
type AskBatch struct {
	Title     string `json:"title,omitempty"`
	Questions []Ask  `json:"questions"`
}

// ActionKind discriminates permission actions.
type ActionKind string

const (
	ActionBash  ActionKind = "bash"
	ActionRead  ActionKind = "read"
	ActionWrite ActionKind = "write"
	ActionTool  ActionKind = "tool"
)

// Action describes what the agent wants to do. Tokens holds the parsed
// command words for bash; Segments holds path segments for read/write.
type Action struct {
	Kind     ActionKind `json:"kind"`
	Tokens   []string   `json:"tokens,omitempty"`
	Segments []string   `json:"segments,omitempty"`
	Tool     string     `json:"tool,omitempty"`
	Args     string     `json:"args,omitempty"`
}

// Permission asks the user to allow or deny an action.
type Permission struct {
	Action Action `json:"action"`
	// Detail is the human-readable one-liner shown in the modal.
	Detail string `json:"detail,omitempty"`
}

// NewAsk builds an Ask request with a fresh id.
func NewAsk(ask Ask) Request {
	return Request{ID: uuid.NewString(), Kind: KindAsk, Ask: &ask}
}

// NewAskBatch builds a batch request with a fresh id.
func NewAskBatch(batch AskBatch) Request {
	return Request{ID: uuid.NewString(), Kind: KindAskBatch, Batch: &batch}
}

// NewPermission builds a permission request with a fresh id.
func NewPermission(p Permission) Request {
	return Request{ID: uuid.NewString(), Kind: KindPermission, Permission: &p}
}

// ResponseKind discriminates response variants.
type ResponseKind string

const (
	ResponseAnswer       ResponseKind = "answer"
	ResponseBatchAnswers ResponseKind = "batch_answers"
	ResponseDecision     ResponseKind = "decision"
	ResponseCompletion   ResponseKind = "completion"
	ResponseCancelled    ResponseKind = "cancelled"
)

// Response resolves a request. The RequestID matches the originating
// request; Esc on an Ask and deny on a Permission both surface as their
// own variants rather than errors.
type Response struct {
	RequestID string       `json:"request_id"`
	Kind      ResponseKind `json:"kind"`

	// Answer fields (single Ask).
	Selected  []string `json:"selected,omitempty"`
	OtherText string   `json:"other_text,omitempty"`

	// Batch fields: per-question answers in question order.
	Answers [][]string `json:"answers,omitempty"`
	Others  []string   `json:"others,omitempty"`

	// Decision fields (Permission).
	Allowed bool `json:"allowed,omitempty"`
	// Pattern is the future-extensible allow-pattern surface.
	Pattern string `json:"pattern,omitempty"`

	// Completion field (free-form).
	Text string `json:"text,omitempty"`
}

// Answer resolves an Ask with the selected choices.
func Answer(requestID string, selected []string, other string) Response {
	return Response{RequestID: requestID, Kind: ResponseAnswer, Selected: selected, OtherText: other}
}

// BatchAnswers resolves an AskBatch.
func BatchAnswers(requestID string, answers [][]string, others []string) Response {
	return Response{RequestID: requestID, Kind: ResponseBatchAnswers, Answers: answers, Others: others}
}

// Decision resolves a Permission.
func Decision(requestID string, allowed bool) Response {
	return Response{RequestID: requestID, Kind: ResponseDecision, Allowed: allowed}
}

// Completion resolves a free-form request with text.
func Completion(requestID, text string) Response {
	return Response{RequestID: requestID, Kind: ResponseCompletion, Text: text}
}

// Cancelled resolves any request as dismissed. For a Permission this
// means deny.
func Cancelled(requestID string) Response {
	return Response{RequestID: requestID, Kind: ResponseCancelled}
}

// BatchState tracks progress through an AskBatch modal: the question
// cursor, accumulated answers, and free-text entries per question.
type BatchState struct {
	Batch      *AskBatch
	Current    int
	Answers    [][]string
	OtherTexts []string
}

// NewBatchState initializes batch navigation state.
func NewBatchState(batch *AskBatch) *BatchState {
	return &BatchState{
		Batch:      batch,
		Answers:    make([][]string, len(batch.Questions)),
		OtherTexts: make([]string, len(batch.Questions)),
	}
}

// Question returns the question under the cursor.
func (s *BatchState) Question() *Ask {
	if s.Current < 0 || s.Current >= len(s.Batch.Questions) {
		return nil
	}
	return &s.Batch.Questions[s.Current]
}

// Next advances the cursor; returns false when already on the last
// question (completion point).
func (s *BatchState) Next() bool {
	if s.Current+1 >= len(s.Batch.Questions) {
		return false
	}
	s.Current++
	return true
}

// Prev moves the cursor back; wraps to the last question from the first.
func (s *BatchState) Prev() {
	if s.Current == 0 {
		s.Current = len(s.Batch.Questions) - 1
		return
	}
	s.Current--
}
