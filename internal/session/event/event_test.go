package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mootikins/crucible/pkg/utils/json"
)

func allEvents() []Event {
	return []Event{
		UserMessage{SessionID: "s1", MessageID: "m1", Content: "hello"},
		ParticipantJoined{SessionID: "s1", Participant: "ana"},
		ParticipantLeft{SessionID: "s1", Participant: "ana"},
		AgentMessage{SessionID: "s1", MessageID: "m2", Content: "hi", Model: "opaque"},
		AgentThinking{SessionID: "s1", Content: "hmm"},
		AgentError{SessionID: "s1", Message: "boom"},
		PreToolCall{SessionID: "s1", CallID: "c1", Name: "Read", Arguments: `{"path":"f.md"}`},
		PreParse{Path: "notes/a.md"},
		PreLlmCall{SessionID: "s1", Model: "opaque"},
		InteractionRequested{SessionID: "s1", RequestID: "r1"},
		InteractionCompleted{SessionID: "s1", RequestID: "r1"},
		ToolCallStarted{SessionID: "s1", CallID: "c1", Name: "Read"},
		ToolCallCompleted{SessionID: "s1", CallID: "c1", Name: "Read", Result: "ok"},
		ToolCallFailed{SessionID: "s1", CallID: "c1", Name: "Read", Error: "no"},
		SessionStarted{SessionID: "s1"},
		SessionEnded{SessionID: "s1"},
		SessionSaved{SessionID: "s1", Path: "/tmp/x"},
		SubagentSpawned{SessionID: "s1", SubagentID: "a1", Prompt: "go"},
		SubagentCompleted{SessionID: "s1", SubagentID: "a1"},
		SubagentFailed{SessionID: "s1", SubagentID: "a1", Error: "no"},
		StreamStarted{SessionID: "s1", MessageID: "m3"},
		TextDelta{SessionID: "s1", Seq: 1, Delta: "Hi "},
		ThinkingDelta{SessionID: "s1", Seq: 2, Delta: "..."},
		StreamCompleted{SessionID: "s1", MessageID: "m3"},
		StreamCancelled{SessionID: "s1", MessageID: "m3"},
		FileCreated{Path: "a.md"},
		FileModified{Path: "a.md"},
		FileDeleted{Path: "a.md"},
		NoteIngested{EntityID: "note:a.md", Path: "a.md"},
		NoteUpdated{EntityID: "note:a.md", Path: "a.md", ChangedSections: []int{1}},
		EntityDeleted{EntityID: "note:a.md"},
		StorageWrite{EntityID: "note:a.md", Kind: "blocks"},
		StorageDelete{EntityID: "note:a.md"},
		StorageError{Op: "upsert", Error: "disk full"},
		EmbeddingRequested{EntityID: "note:a.md", BlockID: "blocks:a.md:p0"},
		EmbeddingStored{EntityID: "note:a.md", BlockID: "blocks:a.md:p0", Model: "m", Dimensions: 8},
		EmbeddingFailed{EntityID: "note:a.md", BlockID: "blocks:a.md:p0", Error: "timeout"},
		MCPServerConnected{Server: "fs"},
		MCPServerDisconnected{Server: "fs"},
		MCPToolDiscovered{Server: "fs", Tool: "read_file"},
		Custom{Name: "queue_overflow"},
	}
}

func TestEventTypeStableSnakeCase(t *testing.T) {
	seen := map[string]bool{}
	for _, e := range allEvents() {
		typ := e.EventType()
		assert.Regexp(t, `^[a-z][a-z0-9_]*$`, typ)
		assert.False(t, seen[typ], "duplicate event type %q", typ)
		seen[typ] = true
	}
}

func TestRoundTrip(t *testing.T) {
	for _, e := range allEvents() {
		data, err := Marshal(e)
		require.NoError(t, err, "marshal %s", e.EventType())

		var tagged map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &tagged))
		assert.Equal(t, e.EventType(), tagged["type"])

		decoded, err := Unmarshal(data)
		require.NoError(t, err, "unmarshal %s", e.EventType())
		assert.Equal(t, e, decoded, "round trip %s", e.EventType())
	}
}

func TestUnmarshalUnknownType(t *testing.T) {
	_, err := Unmarshal([]byte(`{"type":"definitely_not_a_thing"}`))
	assert.Error(t, err)
}

func TestPreEventPartition(t *testing.T) {
	preCount := 0
	for _, e := range allEvents() {
		if e.IsPreEvent() {
			preCount++
			assert.Equal(t, PriorityCritical, e.Priority())
		}
	}
	assert.Equal(t, 3, preCount)
}

func TestPrimaryCategoryExclusive(t *testing.T) {
	primaries := []func(Event) bool{
		IsUserEvent, IsAgentEvent, IsInteractionEvent, IsToolEvent,
		IsLifecycleEvent, IsSubagentEvent, IsStreamingEvent, IsFileEvent,
		IsNoteEvent, IsEmbeddingEvent, IsMCPEvent, IsCustomEvent,
	}
	plainStorage := func(e Event) bool {
		return IsStorageEvent(e) && !IsEmbeddingEvent(e)
	}
	primaries = append(primaries, plainStorage, Event.IsPreEvent)

	for _, e := range allEvents() {
		matched := 0
		for _, pred := range primaries {
			if pred(e) {
				matched++
			}
		}
		assert.Equal(t, 1, matched, "event %s must have exactly one primary category", e.EventType())
	}
}

func TestEmbeddingIsAlsoStorage(t *testing.T) {
	e := EmbeddingStored{BlockID: "b"}
	assert.True(t, IsEmbeddingEvent(e))
	assert.True(t, IsStorageEvent(e))
	assert.False(t, IsNoteEvent(e))
}

func TestEstimateTokens(t *testing.T) {
	long := UserMessage{Content: string(make([]byte, 4000))}
	short := UserMessage{Content: "hi"}
	assert.Greater(t, long.EstimateTokens(), 900)
	assert.Less(t, short.EstimateTokens(), 20)
}
