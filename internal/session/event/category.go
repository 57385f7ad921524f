package event

// Category predicates partition events for dispatch short-circuits.
// Every variant has exactly one primary category; a few carry secondary
// memberships (embedding events are also storage events).

// IsUserEvent reports user/participant events.
func IsUserEvent(e Event) bool {
	switch e.(type) {
	case UserMessage, ParticipantJoined, ParticipantLeft:
		return true
	}
	return false
}

// IsAgentEvent reports agent output events.
func IsAgentEvent(e Event) bool {
	switch e.(type) {
	case AgentMessage, AgentThinking, AgentError:
		return true
	}
	return false
}

// IsInteractionEvent reports interaction request/response events.
func IsInteractionEvent(e Event) bool {
	switch e.(type) {
	case InteractionRequested, InteractionCompleted:
		return true
	}
	return false
}

// IsToolEvent reports tool lifecycle events. PreToolCall is not
// included: pre-events form their own category.
func IsToolEvent(e Event) bool {
	switch e.(type) {
	case ToolCallStarted, ToolCallCompleted, ToolCallFailed:
		return true
	}
	return false
}

// IsLifecycleEvent reports session lifecycle events.
func IsLifecycleEvent(e Event) bool {
	switch e.(type) {
	case SessionStarted, SessionEnded, SessionSaved:
		return true
	}
	return false
}

// IsSubagentEvent reports subagent events.
func IsSubagentEvent(e Event) bool {
	switch e.(type) {
	case SubagentSpawned, SubagentCompleted, SubagentFailed:
		return true
	}
	return false
}

// IsStreamingEvent reports streaming turn events.
func IsStreamingEvent(e Event) bool {
	switch e.(type) {
	case StreamStarted, TextDelta, ThinkingDelta, StreamCompleted, StreamCancelled:
		return true
	}
	return false
}

// IsFileEvent reports vault file events.
func IsFileEvent(e Event) bool {
	switch e.(type) {
	case FileCreated, FileModified, FileDeleted:
		return true
	}
	return false
}

// IsNoteEvent reports note ingestion events.
func IsNoteEvent(e Event) bool {
	switch e.(type) {
	case NoteIngested, NoteUpdated, EntityDeleted:
		return true
	}
	return false
}

// IsStorageEvent reports store write/delete/error events. Embedding
// events count: they land in the store too.
func IsStorageEvent(e Event) bool {
	switch e.(type) {
	case StorageWrite, StorageDelete, StorageError:
		return true
	}
	return IsEmbeddingEvent(e)
}

// IsEmbeddingEvent reports embedding pipeline events.
func IsEmbeddingEvent(e Event) bool {
	switch e.(type) {
	case EmbeddingRequested, EmbeddingStored, EmbeddingFailed:
		return true
	}
	return false
}

// IsMCPEvent reports MCP server events.
func IsMCPEvent(e Event) bool {
	switch e.(type) {
	case MCPServerConnected, MCPServerDisconnected, MCPToolDiscovered:
		return true
	}
	return false
}

// IsCustomEvent reports plugin/diagnostic events.
func IsCustomEvent(e Event) bool {
	_, ok := e.(Custom)
	return ok
}
