package chat

import (
	"github.com/Mootikins/crucible/internal/session/interaction"
)

// ChatAppMsg is the domain message set driving the controller. Raw
// terminal input arrives as tea.KeyMsg/tea.WindowSizeMsg; everything
// else — provider streaming, tool output, shell lines, interaction
// requests — arrives as one of these, so Update stays a pure state
// transition.
type ChatAppMsg interface{ chatAppMsg() }

// StreamStartMsg opens an assistant streaming turn.
type StreamStartMsg struct {
	MessageID string
}

// TextDeltaMsg is one streamed text chunk.
type TextDeltaMsg struct {
	Seq   uint64
	Delta string
}

// ThinkingDeltaMsg is one streamed reasoning chunk.
type ThinkingDeltaMsg struct {
	Seq   uint64
	Delta string
}

// ToolCallMsg records the provider opening a tool call mid-stream.
type ToolCallMsg struct {
	ID   string
	Name string
	Args string
}

// ToolResultDeltaMsg appends tool output.
type ToolResultDeltaMsg struct {
	Name  string
	Delta string
}

// ToolResultCompleteMsg finalizes a tool call.
type ToolResultCompleteMsg struct {
	Name string
}

// ToolResultErrorMsg finalizes a tool call with a failure.
type ToolResultErrorMsg struct {
	Name string
	Err  string
}

// SubagentStartMsg records a subagent spawning mid-stream.
type SubagentStartMsg struct {
	ID     string
	Prompt string
}

// StreamCompleteMsg closes the streaming turn normally.
type StreamCompleteMsg struct{}

// StreamCancelledMsg closes the streaming turn after a cancel.
type StreamCancelledMsg struct {
	Reason string
}

// StreamErrorMsg closes the streaming turn after a provider failure.
type StreamErrorMsg struct {
	Err string
}

// InteractionRequestMsg asks the controller to open a modal.
type InteractionRequestMsg struct {
	Request interaction.Request
}

// ShellLinesMsg delivers buffered shell output lines from the poller.
type ShellLinesMsg struct {
	ExecID string
	Lines  []string
}

// ShellExitMsg reports the shell process finishing.
type ShellExitMsg struct {
	ExecID   string
	ExitCode int
}

// ShellTickMsg drives shell output polling.
type ShellTickMsg struct{}

// ModelsLoadedMsg delivers the lazily fetched model list for
// autocomplete.
type ModelsLoadedMsg struct {
	Models []string
}

// ErrorToastMsg shows a one-line error above the input.
type ErrorToastMsg struct {
	Message string
}

// SendUserMessageMsg carries a completed user input line outward. The
// session layer picks it up and starts the provider turn; modeling it
// as a message keeps Update pure.
type SendUserMessageMsg struct {
	Content string
}

// CloseInteractionMsg reports the modal resolving; the session layer
// lifts it into an InteractionCompleted event.
type CloseInteractionMsg struct {
	Response interaction.Response
}

func (StreamStartMsg) chatAppMsg() {}
func (TextDeltaMsg) chatAppMsg() {}
func (ThinkingDeltaMsg) chatAppMsg() {}
func (ToolCallMsg) chatAppMsg() {}
func (ToolResultDeltaMsg) chatAppMsg() {}
func (ToolResultCompleteMsg) chatAppMsg() {}
func (ToolResultErrorMsg) chatAppMsg() {}
func (SubagentStartMsg) chatAppMsg() {}
func (StreamCompleteMsg) chatAppMsg() {}
func (StreamCancelledMsg) chatAppMsg() {}
func (StreamErrorMsg) chatAppMsg() {}
func (InteractionRequestMsg) chatAppMsg() {}
func (ShellLinesMsg) chatAppMsg() {}
func (ShellExitMsg) chatAppMsg() {}
func (ShellTickMsg) chatAppMsg() {}
func (ModelsLoadedMsg) chatAppMsg() {}
func (ErrorToastMsg) chatAppMsg() {}
func (SendUserMessageMsg) chatAppMsg() {}
func (CloseInteractionMsg) chatAppMsg() {}
