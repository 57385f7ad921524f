package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/Mootikins/crucible/internal/session/interaction"
	"github.com/Mootikins/crucible/pkg/logger"
)

// ctrlCQuitWindow is the double-tap window for Ctrl-C quit.
const ctrlCQuitWindow = 300 * time.Millisecond

// UIState is the controller's modal state, in key-routing priority
// order (a modal always wins the keymap).
type UIState int

const (
	StateIdle UIState = iota
	StatePopup
	StateStreaming
	StateShellModal
	StateInteractionModal
)

// InputMode is derived from the first character of the input line and
// selects the prompt character and background tint.
type InputMode int

const (
	ModeNormal InputMode = iota
	ModeCommand
	ModeShell
)

// AgentMode is the session's permission posture, switched by slash
// commands.
type AgentMode string

const (
	AgentModeNormal AgentMode = "normal"
	AgentModePlan   AgentMode = "plan"
	AgentModeAuto   AgentMode = "auto"
)

// Config wires the controller to its collaborators. All callbacks are
// invoked from returned commands, never inside Update itself.
type Config struct {
	SessionID  string
	SessionDir string
	Model      string
	ShellPath  string

	CacheCapacity  int
	SpillThreshold int

	// CancelStream cooperatively aborts the provider stream.
	CancelStream func()
	// OnGraduate receives ids flushed out of the live viewport.
	OnGraduate func(ids []string)
	// FetchModels lazily lists available models for autocomplete.
	FetchModels func() []string
	// ListMCPServers lists configured MCP servers for :mcp.
	ListMCPServers func() []string
	// ListFiles lists vault file names for @ completion.
	ListFiles func() []string
	// ListNotes lists note titles for [[ completion.
	ListNotes func() []string
	// OnUserMessage starts the provider turn for a submitted message.
	OnUserMessage func(content string)
	// OnInteractionClosed lifts a modal response into the session's
	// InteractionCompleted event.
	OnInteractionClosed func(resp interaction.Response)
}

// App is the chat controller: a pure message-driven state machine whose
// rendering is a projection of this struct.
type App struct {
	cfg   Config
	cache *Cache

	input  textinput.Model
	width  int
	height int

	status  string
	errLine string

	// streaming bookkeeping
	streamMsgID string

	// deferred holds messages typed while streaming; drained FIFO on
	// stream completion.
	deferred []string

	// modal state; at most one visible, permissions queue behind it.
	modal     *interactionModal
	permQueue []interaction.Request

	popup *popupState
	shell *shellState

	agentMode AgentMode
	options   *optionSet

	models       []string
	modelsLoaded bool

	lastCtrlC time.Time
	quitting  bool
}

// New creates the controller.
func New(cfg Config) *App {
	if cfg.ShellPath == "" {
		cfg.ShellPath = defaultShell()
	}
	input := textinput.New()
	input.Prompt = ""
	input.Placeholder = "Type a message, : for commands, ! for shell"
	input.Focus()

	cache := NewCache(cfg.CacheCapacity)
	if cfg.SpillThreshold > 0 {
		cache.SetSpillThreshold(cfg.SpillThreshold)
	}
	return &App{
		cfg:       cfg,
		cache:     cache,
		input:     input,
		status:    "Ready",
		agentMode: AgentModeNormal,
		options:   defaultOptions(),
	}
}

// Cache exposes the viewport cache to the session layer.
func (a *App) Cache() *Cache { return a.cache }

// State reports the current UI state for key routing.
func (a *App) State() UIState {
	switch {
	case a.modal != nil:
		return StateInteractionModal
	case a.shell != nil:
		return StateShellModal
	case a.popup != nil:
		return StatePopup
	case a.cache.IsStreaming():
		return StateStreaming
	default:
		return StateIdle
	}
}

// Mode derives the input mode from the first input character.
func (a *App) Mode() InputMode {
	v := a.input.Value()
	switch {
	case strings.HasPrefix(v, ":"):
		return ModeCommand
	case strings.HasPrefix(v, "!"):
		return ModeShell
	default:
		return ModeNormal
	}
}

// Status returns the status line text.
func (a *App) Status() string { return a.status }

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model: a pure transition over raw input and
// domain messages. Effects only ever leave as commands.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)

	case ChatAppMsg:
		return a.handleChatMsg(msg)
	}
	return a, nil
}

// handleKey routes a key press by modal priority.
func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// A fresh keypress clears the error line.
	if a.errLine != "" && msg.String() != "ctrl+c" {
		a.errLine = ""
	}

	switch a.State() {
	case StateInteractionModal:
		return a.handleModalKey(msg)
	case StateShellModal:
		return a.handleShellKey(msg)
	case StatePopup:
		return a.handlePopupKey(msg)
	}

	switch msg.String() {
	case "ctrl+c":
		return a.handleCtrlC()

	case "esc":
		if a.cache.IsStreaming() {
			return a, a.cancelStreamCmd("user pressed esc")
		}
		return a, nil

	case "enter":
		return a.handleEnter(false)

	case "ctrl+enter", "ctrl+j":
		// Force-send: cancel the in-flight turn, then submit.
		if a.cache.IsStreaming() {
			return a.handleEnter(true)
		}
		return a.handleEnter(false)

	default:
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		refresh := a.refreshPopup()
		return a, tea.Batch(cmd, refresh)
	}
}

// handleCtrlC implements the layered Ctrl-C behavior: cancel stream,
// clear input, double-tap quit.
func (a *App) handleCtrlC() (tea.Model, tea.Cmd) {
	if a.cache.IsStreaming() {
		return a, a.cancelStreamCmd("user pressed ctrl+c")
	}
	if a.input.Value() != "" {
		a.input.SetValue("")
		a.popup = nil
		a.lastCtrlC = time.Time{}
		return a, nil
	}
	now := time.Now()
	if !a.lastCtrlC.IsZero() && now.Sub(a.lastCtrlC) <= ctrlCQuitWindow {
		a.quitting = true
		return a, tea.Quit
	}
	a.lastCtrlC = now
	a.status = "Press Ctrl-C again to quit"
	return a, nil
}

// handleEnter submits the input line. During streaming the message is
// deferred unless force is set, which cancels the turn first.
func (a *App) handleEnter(force bool) (tea.Model, tea.Cmd) {
	content := strings.TrimSpace(a.input.Value())
	if content == "" {
		return a, nil
	}

	if a.cache.IsStreaming() && !force {
		a.deferred = append(a.deferred, content)
		a.input.SetValue("")
		a.status = fmt.Sprintf("Queued (%d pending)", len(a.deferred))
		return a, nil
	}

	var cmds []tea.Cmd
	if a.cache.IsStreaming() && force {
		cmds = append(cmds, a.cancelStreamCmd("force send"))
	}

	a.input.SetValue("")
	a.popup = nil

	switch {
	case strings.HasPrefix(content, "/"):
		return a.handleSlashCommand(content)
	case strings.HasPrefix(content, ":"):
		return a.handleReplCommand(strings.TrimPrefix(content, ":"))
	case strings.HasPrefix(content, "!"):
		return a.openShell(strings.TrimSpace(strings.TrimPrefix(content, "!")))
	default:
		cmds = append(cmds, a.submitUserMessage(content))
		return a, tea.Batch(cmds...)
	}
}

// submitUserMessage pushes the message into the cache and emits it
// outward as a command.
func (a *App) submitUserMessage(content string) tea.Cmd {
	a.cache.PushMessage(CachedMessage{
		ID:      uuid.NewString(),
		Role:    "user",
		Content: content,
	})
	a.status = "Thinking..."
	return func() tea.Msg {
		return SendUserMessageMsg{Content: content}
	}
}

// cancelStreamCmd finalizes what arrived and signals the producer.
func (a *App) cancelStreamCmd(reason string) tea.Cmd {
	cancel := a.cfg.CancelStream
	return func() tea.Msg {
		if cancel != nil {
			cancel()
		}
		return StreamCancelledMsg{Reason: reason}
	}
}

// handleSlashCommand runs the / command set.
func (a *App) handleSlashCommand(content string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(content)
	switch fields[0] {
	case "/quit", "/exit", "/q":
		a.quitting = true
		return a, tea.Quit
	case "/help":
		a.status = "commands: /mode /normal /plan /auto /help /quit — :help for REPL"
		return a, nil
	case "/mode":
		a.status = fmt.Sprintf("mode: %s", a.agentMode)
		return a, nil
	case "/normal", "/default":
		a.agentMode = AgentModeNormal
		a.status = "mode: normal"
		return a, nil
	case "/plan":
		a.agentMode = AgentModePlan
		a.status = "mode: plan"
		return a, nil
	case "/auto":
		a.agentMode = AgentModeAuto
		a.status = "mode: auto"
		return a, nil
	default:
		a.errLine = fmt.Sprintf("unknown command %s", fields[0])
		return a, nil
	}
}

// handleChatMsg applies one domain message.
func (a *App) handleChatMsg(msg ChatAppMsg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StreamStartMsg:
		if err := a.cache.StartStreaming(); err != nil {
			logger.Warn("[Chat] %v", err)
			return a, nil
		}
		a.streamMsgID = msg.MessageID
		if a.streamMsgID == "" {
			a.streamMsgID = uuid.NewString()
		}
		a.status = "Streaming..."
		return a, nil

	case TextDeltaMsg:
		a.ensureStreaming()
		a.cache.AppendStreaming(msg.Delta)
		return a, nil

	case ThinkingDeltaMsg:
		a.ensureStreaming()
		a.cache.AppendStreamingThinking(msg.Delta)
		return a, nil

	case ToolCallMsg:
		a.cache.PushStreamingToolCall(msg.ID, msg.Name, msg.Args)
		return a, nil

	case ToolResultDeltaMsg:
		a.cache.AppendToolOutput(msg.Name, msg.Delta)
		if a.cache.ToolShouldSpill(msg.Name) {
			return a, a.spillToolCmd(msg.Name)
		}
		return a, nil

	case ToolResultCompleteMsg:
		a.cache.CompleteTool(msg.Name)
		return a, nil

	case ToolResultErrorMsg:
		a.cache.SetToolError(msg.Name, msg.Err)
		return a, nil

	case SubagentStartMsg:
		a.cache.PushStreamingSubagent(msg.ID, msg.Prompt)
		return a, nil

	case StreamCompleteMsg:
		return a.finishStream(false, "")

	case StreamCancelledMsg:
		return a.finishStream(true, msg.Reason)

	case StreamErrorMsg:
		a.errLine = msg.Err
		return a.finishStream(true, msg.Err)

	case InteractionRequestMsg:
		return a.openInteraction(msg.Request)

	case ShellLinesMsg, ShellExitMsg, ShellTickMsg:
		return a.handleShellMsg(msg)

	case ModelsLoadedMsg:
		a.models = msg.Models
		a.modelsLoaded = true
		return a, a.refreshPopup()

	case ErrorToastMsg:
		a.errLine = msg.Message
		return a, nil

	case SendUserMessageMsg:
		if send := a.cfg.OnUserMessage; send != nil {
			content := msg.Content
			return a, func() tea.Msg {
				send(content)
				return nil
			}
		}
		return a, nil

	case CloseInteractionMsg:
		if closed := a.cfg.OnInteractionClosed; closed != nil {
			resp := msg.Response
			return a, func() tea.Msg {
				closed(resp)
				return nil
			}
		}
		return a, nil
	}
	return a, nil
}

// ensureStreaming opens a turn implicitly when the first delta arrives
// before an explicit StreamStartMsg.
func (a *App) ensureStreaming() {
	if a.cache.IsStreaming() {
		return
	}
	if err := a.cache.StartStreaming(); err == nil {
		a.streamMsgID = uuid.NewString()
		a.status = "Streaming..."
	}
}

// finishStream closes the streaming turn, graduates what completed, and
// drains the deferred queue.
func (a *App) finishStream(cancelled bool, reason string) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if a.cache.IsStreaming() {
		if cancelled && a.cache.StreamingText() == "" {
			// Nothing arrived; drop the turn entirely.
			a.cache.CancelStreaming()
		} else {
			msgID := a.streamMsgID
			if msgID == "" {
				msgID = uuid.NewString()
			}
			ids, err := a.cache.CompleteStreaming(msgID, "assistant")
			if err == nil && len(ids) > 0 {
				a.cache.MarkGraduated(ids)
				if grad := a.cfg.OnGraduate; grad != nil {
					graduated := ids
					cmds = append(cmds, func() tea.Msg {
						grad(graduated)
						return nil
					})
				}
			}
		}
	}
	a.streamMsgID = ""

	if cancelled && reason != "" {
		a.status = "Cancelled"
	} else {
		a.status = "Ready"
	}

	if len(a.deferred) > 0 {
		next := a.deferred[0]
		a.deferred = a.deferred[1:]
		cmds = append(cmds, a.submitUserMessage(next))
	}
	return a, tea.Batch(cmds...)
}

func defaultShell() string {
	return "sh"
}
