package event

import (
	"fmt"
	"reflect"

	"github.com/Mootikins/crucible/pkg/utils/json"
)

// decoders maps the externally-tagged type string to a constructor that
// the payload is decoded into. Registration is closed: unknown tags are
// an error, matching the closed union.
var decoders = map[string]func() Event{}

func register[E Event](zero E) {
	decoders[zero.EventType()] = func() Event { return zero }
}

func init() {
	register(UserMessage{})
	register(ParticipantJoined{})
	register(ParticipantLeft{})
	register(AgentMessage{})
	register(AgentThinking{})
	register(AgentError{})
	register(PreToolCall{})
	register(PreParse{})
	register(PreLlmCall{})
	register(InteractionRequested{})
	register(InteractionCompleted{})
	register(ToolCallStarted{})
	register(ToolCallCompleted{})
	register(ToolCallFailed{})
	register(SessionStarted{})
	register(SessionEnded{})
	register(SessionSaved{})
	register(SubagentSpawned{})
	register(SubagentCompleted{})
	register(SubagentFailed{})
	register(StreamStarted{})
	register(TextDelta{})
	register(ThinkingDelta{})
	register(StreamCompleted{})
	register(StreamCancelled{})
	register(FileCreated{})
	register(FileModified{})
	register(FileDeleted{})
	register(NoteIngested{})
	register(NoteUpdated{})
	register(EntityDeleted{})
	register(StorageWrite{})
	register(StorageDelete{})
	register(StorageError{})
	register(EmbeddingRequested{})
	register(EmbeddingStored{})
	register(EmbeddingFailed{})
	register(MCPServerConnected{})
	register(MCPServerDisconnected{})
	register(MCPToolDiscovered{})
	register(Custom{})
}

// Marshal encodes an event in externally-tagged form:
// {"type": "<event_type>", ...fields}.
func Marshal(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %q: %w", e.EventType(), err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("failed to re-decode event %q: %w", e.EventType(), err)
	}
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["type"] = e.EventType()
	return json.Marshal(fields)
}

// Unmarshal decodes an externally-tagged event.
func Unmarshal(data []byte) (Event, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("failed to read event tag: %w", err)
	}
	ctor, ok := decoders[tag.Type]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", tag.Type)
	}
	zero := ctor()
	// Decode into a pointer to a fresh copy so the registry zero values
	// stay untouched.
	out := newOf(zero)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("failed to decode %q event: %w", tag.Type, err)
	}
	return deref(out), nil
}

func newOf(e Event) interface{} {
	return reflect.New(reflect.TypeOf(e)).Interface()
}

func deref(p interface{}) Event {
	return reflect.ValueOf(p).Elem().Interface().(Event)
}
