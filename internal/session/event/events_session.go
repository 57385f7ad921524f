package event

// session prefixes an id into the "session:<id>" routing key.
func session(id string) string {
	return "session:" + id
}

// --- user / participant events ---

// UserMessage is one completed user input line.
type UserMessage struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

func (e UserMessage) EventType() string   { return "user_message" }
func (e UserMessage) Identifier() string  { return session(e.SessionID) }
func (e UserMessage) Priority() Priority  { return PriorityHigh }
func (e UserMessage) EstimateTokens() int { return estimateStrings(e.Content) }
func (e UserMessage) IsPreEvent() bool    { return false }

// ParticipantJoined records a participant entering the session.
type ParticipantJoined struct {
	SessionID   string `json:"session_id"`
	Participant string `json:"participant"`
}

func (e ParticipantJoined) EventType() string   { return "participant_joined" }
func (e ParticipantJoined) Identifier() string  { return session(e.SessionID) }
func (e ParticipantJoined) Priority() Priority  { return PriorityNormal }
func (e ParticipantJoined) EstimateTokens() int { return estimateStrings(e.Participant) }
func (e ParticipantJoined) IsPreEvent() bool    { return false }

// ParticipantLeft records a participant leaving the session.
type ParticipantLeft struct {
	SessionID   string `json:"session_id"`
	Participant string `json:"participant"`
}

func (e ParticipantLeft) EventType() string   { return "participant_left" }
func (e ParticipantLeft) Identifier() string  { return session(e.SessionID) }
func (e ParticipantLeft) Priority() Priority  { return PriorityNormal }
func (e ParticipantLeft) EstimateTokens() int { return estimateStrings(e.Participant) }
func (e ParticipantLeft) IsPreEvent() bool    { return false }

// --- agent events ---

// AgentMessage is a completed assistant message.
type AgentMessage struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
	Model     string `json:"model,omitempty"`
}

func (e AgentMessage) EventType() string   { return "agent_message" }
func (e AgentMessage) Identifier() string  { return session(e.SessionID) }
func (e AgentMessage) Priority() Priority  { return PriorityNormal }
func (e AgentMessage) EstimateTokens() int { return estimateStrings(e.Content, e.Model) }
func (e AgentMessage) IsPreEvent() bool    { return false }

// AgentThinking is a completed assistant reasoning segment.
type AgentThinking struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

func (e AgentThinking) EventType() string   { return "agent_thinking" }
func (e AgentThinking) Identifier() string  { return session(e.SessionID) }
func (e AgentThinking) Priority() Priority  { return PriorityLow }
func (e AgentThinking) EstimateTokens() int { return estimateStrings(e.Content) }
func (e AgentThinking) IsPreEvent() bool    { return false }

// AgentError reports a provider failure during an agent turn.
type AgentError struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (e AgentError) EventType() string   { return "agent_error" }
func (e AgentError) Identifier() string  { return session(e.SessionID) }
func (e AgentError) Priority() Priority  { return PriorityHigh }
func (e AgentError) EstimateTokens() int { return estimateStrings(e.Message) }
func (e AgentError) IsPreEvent() bool    { return false }

// --- interaction events ---

// InteractionRequested asks the UI to open a modal for the request.
type InteractionRequested struct {
	SessionID string      `json:"session_id"`
	RequestID string      `json:"request_id"`
	Request   interface{} `json:"request"`
}

func (e InteractionRequested) EventType() string   { return "interaction_requested" }
func (e InteractionRequested) Identifier() string  { return e.RequestID }
func (e InteractionRequested) Priority() Priority  { return PriorityCritical }
func (e InteractionRequested) EstimateTokens() int { return estimateStrings(e.RequestID) }
func (e InteractionRequested) IsPreEvent() bool    { return false }

// InteractionCompleted closes the loop for a request.
type InteractionCompleted struct {
	SessionID string      `json:"session_id"`
	RequestID string      `json:"request_id"`
	Response  interface{} `json:"response"`
}

func (e InteractionCompleted) EventType() string   { return "interaction_completed" }
func (e InteractionCompleted) Identifier() string  { return e.RequestID }
func (e InteractionCompleted) Priority() Priority  { return PriorityCritical }
func (e InteractionCompleted) EstimateTokens() int { return estimateStrings(e.RequestID) }
func (e InteractionCompleted) IsPreEvent() bool    { return false }

// --- tool events ---

// ToolCallStarted records a tool invocation beginning.
type ToolCallStarted struct {
	SessionID string `json:"session_id"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

func (e ToolCallStarted) EventType() string   { return "tool_call_started" }
func (e ToolCallStarted) Identifier() string  { return e.Name }
func (e ToolCallStarted) Priority() Priority  { return PriorityNormal }
func (e ToolCallStarted) EstimateTokens() int { return estimateStrings(e.Name, e.Arguments) }
func (e ToolCallStarted) IsPreEvent() bool    { return false }

// ToolCallCompleted records a tool invocation finishing successfully.
type ToolCallCompleted struct {
	SessionID string `json:"session_id"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Result    string `json:"result,omitempty"`
}

func (e ToolCallCompleted) EventType() string   { return "tool_call_completed" }
func (e ToolCallCompleted) Identifier() string  { return e.Name }
func (e ToolCallCompleted) Priority() Priority  { return PriorityNormal }
func (e ToolCallCompleted) EstimateTokens() int { return estimateStrings(e.Name, e.Result) }
func (e ToolCallCompleted) IsPreEvent() bool    { return false }

// ToolCallFailed records a tool invocation erroring.
type ToolCallFailed struct {
	SessionID string `json:"session_id"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Error     string `json:"error"`
}

func (e ToolCallFailed) EventType() string   { return "tool_call_failed" }
func (e ToolCallFailed) Identifier() string  { return e.Name }
func (e ToolCallFailed) Priority() Priority  { return PriorityHigh }
func (e ToolCallFailed) EstimateTokens() int { return estimateStrings(e.Name, e.Error) }
func (e ToolCallFailed) IsPreEvent() bool    { return false }

// --- session lifecycle events ---

// SessionStarted marks a new session.
type SessionStarted struct {
	SessionID string `json:"session_id"`
	Model     string `json:"model,omitempty"`
}

func (e SessionStarted) EventType() string   { return "session_started" }
func (e SessionStarted) Identifier() string  { return session(e.SessionID) }
func (e SessionStarted) Priority() Priority  { return PriorityHigh }
func (e SessionStarted) EstimateTokens() int { return estimateStrings(e.Model) }
func (e SessionStarted) IsPreEvent() bool    { return false }

// SessionEnded marks a session closing.
type SessionEnded struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

func (e SessionEnded) EventType() string   { return "session_ended" }
func (e SessionEnded) Identifier() string  { return session(e.SessionID) }
func (e SessionEnded) Priority() Priority  { return PriorityHigh }
func (e SessionEnded) EstimateTokens() int { return estimateStrings(e.Reason) }
func (e SessionEnded) IsPreEvent() bool    { return false }

// SessionSaved marks session history being persisted.
type SessionSaved struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
}

func (e SessionSaved) EventType() string   { return "session_saved" }
func (e SessionSaved) Identifier() string  { return session(e.SessionID) }
func (e SessionSaved) Priority() Priority  { return PriorityLow }
func (e SessionSaved) EstimateTokens() int { return estimateStrings(e.Path) }
func (e SessionSaved) IsPreEvent() bool    { return false }

// --- subagent events ---

// SubagentSpawned records a subagent starting on a prompt.
type SubagentSpawned struct {
	SessionID  string `json:"session_id"`
	SubagentID string `json:"subagent_id"`
	Prompt     string `json:"prompt"`
}

func (e SubagentSpawned) EventType() string   { return "subagent_spawned" }
func (e SubagentSpawned) Identifier() string  { return e.SubagentID }
func (e SubagentSpawned) Priority() Priority  { return PriorityNormal }
func (e SubagentSpawned) EstimateTokens() int { return estimateStrings(e.Prompt) }
func (e SubagentSpawned) IsPreEvent() bool    { return false }

// SubagentCompleted records a subagent finishing with a result.
type SubagentCompleted struct {
	SessionID  string `json:"session_id"`
	SubagentID string `json:"subagent_id"`
	Result     string `json:"result,omitempty"`
}

func (e SubagentCompleted) EventType() string   { return "subagent_completed" }
func (e SubagentCompleted) Identifier() string  { return e.SubagentID }
func (e SubagentCompleted) Priority() Priority  { return PriorityNormal }
func (e SubagentCompleted) EstimateTokens() int { return estimateStrings(e.Result) }
func (e SubagentCompleted) IsPreEvent() bool    { return false }

// SubagentFailed records a subagent erroring out.
type SubagentFailed struct {
	SessionID  string `json:"session_id"`
	SubagentID string `json:"subagent_id"`
	Error      string `json:"error"`
}

func (e SubagentFailed) EventType() string   { return "subagent_failed" }
func (e SubagentFailed) Identifier() string  { return e.SubagentID }
func (e SubagentFailed) Priority() Priority  { return PriorityHigh }
func (e SubagentFailed) EstimateTokens() int { return estimateStrings(e.Error) }
func (e SubagentFailed) IsPreEvent() bool    { return false }

// --- custom ---

// Custom is the open extension point: bus diagnostics
// (name "queue_overflow", "diagnostics") and plugin-defined events.
type Custom struct {
	SessionID string                 `json:"session_id,omitempty"`
	Name      string                 `json:"name"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

func (e Custom) EventType() string   { return "custom" }
func (e Custom) Identifier() string  { return e.Name }
func (e Custom) Priority() Priority  { return PriorityLow }
func (e Custom) EstimateTokens() int { return estimateStrings(e.Name) + 4*len(e.Data) }
func (e Custom) IsPreEvent() bool    { return false }
