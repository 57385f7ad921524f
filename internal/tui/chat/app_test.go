package chat

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mootikins/crucible/internal/session/interaction"
)

func newTestApp() *App {
	return New(Config{SessionID: "test", Model: "test-model"})
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func pressEnter(a *App) tea.Cmd {
	_, cmd := a.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return cmd
}

// runCmd executes a command tree and feeds resulting chat messages back
// into the app, mimicking the runtime loop.
func runCmd(a *App, cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	msg := cmd()
	switch msg := msg.(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			runCmd(a, c)
		}
	case ChatAppMsg:
		_, next := a.Update(msg)
		runCmd(a, next)
	}
}

func TestStreamingRoundTripScenario(t *testing.T) {
	a := newTestApp()

	a.input.SetValue("Hello")
	pressEnter(a)

	a.Update(TextDeltaMsg{Seq: 1, Delta: "Hi "})
	a.Update(TextDeltaMsg{Seq: 2, Delta: "there"})
	assert.True(t, a.Cache().IsStreaming())

	a.Update(StreamCompleteMsg{})

	items := a.Cache().Items()
	require.Len(t, items, 2)
	assert.Equal(t, "user", items[0].Message.Role)
	assert.Equal(t, "Hello", items[0].Message.Content)
	assert.Equal(t, "assistant", items[1].Message.Role)
	assert.Equal(t, "Hi there", items[1].Message.Content)
	assert.False(t, a.Cache().IsStreaming())
	assert.Equal(t, "Ready", a.Status())
}

func TestToolCallLifecycleScenario(t *testing.T) {
	a := newTestApp()

	a.Update(ToolCallMsg{ID: "t1", Name: "Read", Args: `{"path":"f.md"}`})
	a.Update(ToolResultDeltaMsg{Name: "Read", Delta: "line1\n"})
	a.Update(ToolResultDeltaMsg{Name: "Read", Delta: "line2\n"})
	a.Update(ToolResultCompleteMsg{Name: "Read"})

	items := a.Cache().Items()
	require.Len(t, items, 1)
	tc := items[0].Tool
	assert.Equal(t, "line1\nline2", strings.TrimRight(tc.Output.String(), "\n"))
	assert.True(t, tc.Complete)
}

func permissionRequest(detail string) interaction.Request {
	return interaction.NewPermission(interaction.Permission{
		Action: interaction.Action{Kind: interaction.ActionBash, Tokens: []string{"ls"}},
		Detail: detail,
	})
}

func resolveModal(t *testing.T, a *App, key tea.KeyMsg) interaction.Response {
	t.Helper()
	_, cmd := a.Update(key)
	require.NotNil(t, cmd)
	msg := cmd()
	closeMsg, ok := msg.(CloseInteractionMsg)
	require.True(t, ok, "expected CloseInteractionMsg, got %T", msg)
	return closeMsg.Response
}

func TestPermissionQueueScenario(t *testing.T) {
	a := newTestApp()

	reqA := permissionRequest("run ls")
	reqB := permissionRequest("read file")
	reqC := permissionRequest("write file")

	a.Update(InteractionRequestMsg{Request: reqA})
	a.Update(InteractionRequestMsg{Request: reqB})
	a.Update(InteractionRequestMsg{Request: reqC})

	require.Equal(t, StateInteractionModal, a.State())
	assert.Equal(t, "[1/3]", a.permissionHeader())
	assert.Equal(t, reqA.ID, a.modal.request.ID)

	// y: A allowed, B promoted with [1/2].
	resp := resolveModal(t, a, keyRune('y'))
	assert.Equal(t, reqA.ID, resp.RequestID)
	assert.True(t, resp.Allowed)
	assert.Equal(t, reqB.ID, a.modal.request.ID)
	assert.Equal(t, "[1/2]", a.permissionHeader())

	// n: B denied.
	resp = resolveModal(t, a, keyRune('n'))
	assert.Equal(t, reqB.ID, resp.RequestID)
	assert.False(t, resp.Allowed)

	// esc: C denied.
	resp = resolveModal(t, a, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, reqC.ID, resp.RequestID)
	assert.False(t, resp.Allowed)

	assert.Nil(t, a.modal)
	assert.Empty(t, a.permQueue)
}

func TestDeferredQueueDuringStreaming(t *testing.T) {
	a := newTestApp()
	a.Update(StreamStartMsg{MessageID: "m1"})
	a.Update(TextDeltaMsg{Seq: 1, Delta: "working..."})

	a.input.SetValue("follow-up question")
	pressEnter(a)

	require.Len(t, a.deferred, 1)
	assert.Contains(t, a.Status(), "Queued")
	assert.Empty(t, a.input.Value())

	// Completion drains the head of the deferred queue as the next
	// user message.
	a.Update(StreamCompleteMsg{})
	assert.Empty(t, a.deferred)

	var lastUser string
	for _, it := range a.Cache().Items() {
		if it.Kind == ItemMessage && it.Message.Role == "user" {
			lastUser = it.Message.Content
		}
	}
	assert.Equal(t, "follow-up question", lastUser)
}

func TestEscCancelsStreaming(t *testing.T) {
	cancelled := false
	a := New(Config{SessionID: "test", CancelStream: func() { cancelled = true }})

	a.Update(StreamStartMsg{MessageID: "m1"})
	a.Update(TextDeltaMsg{Seq: 1, Delta: "partial"})

	_, cmd := a.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	msg := cmd()
	assert.True(t, cancelled)

	_, ok := msg.(StreamCancelledMsg)
	require.True(t, ok)
	a.Update(msg.(StreamCancelledMsg))
	assert.False(t, a.Cache().IsStreaming())
	// The partial text was finalized into a message.
	items := a.Cache().Items()
	require.NotEmpty(t, items)
	assert.Equal(t, "partial", items[len(items)-1].Message.Content)
}

func TestCtrlCClearsInputThenQuits(t *testing.T) {
	a := newTestApp()

	a.input.SetValue("typed something")
	a.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Empty(t, a.input.Value())
	assert.False(t, a.quitting)

	// Double tap on empty input quits.
	a.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	_, cmd := a.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, a.quitting)
	require.NotNil(t, cmd)
}

func TestInputModeDetection(t *testing.T) {
	a := newTestApp()
	assert.Equal(t, ModeNormal, a.Mode())

	a.input.SetValue(":model")
	assert.Equal(t, ModeCommand, a.Mode())

	a.input.SetValue("!ls -la")
	assert.Equal(t, ModeShell, a.Mode())
}

func TestSlashCommandsSwitchMode(t *testing.T) {
	a := newTestApp()

	a.input.SetValue("/plan")
	pressEnter(a)
	assert.Equal(t, AgentModePlan, a.agentMode)

	a.input.SetValue("/auto")
	pressEnter(a)
	assert.Equal(t, AgentModeAuto, a.agentMode)

	a.input.SetValue("/normal")
	pressEnter(a)
	assert.Equal(t, AgentModeNormal, a.agentMode)

	a.input.SetValue("/nonsense")
	pressEnter(a)
	assert.NotEmpty(t, a.errLine)
}

func TestSetCommand(t *testing.T) {
	a := newTestApp()

	a.input.SetValue(":set thinking on")
	pressEnter(a)
	v, ok := a.options.Get("thinking")
	require.True(t, ok)
	assert.True(t, v)

	a.input.SetValue(":set thinking=toggle")
	pressEnter(a)
	v, _ = a.options.Get("thinking")
	assert.False(t, v)

	a.input.SetValue(":set thinking pop")
	pressEnter(a)
	v, _ = a.options.Get("thinking")
	assert.True(t, v)

	a.input.SetValue(":set bogus on")
	pressEnter(a)
	assert.NotEmpty(t, a.errLine)
}

func TestUnknownReplCommandShowsError(t *testing.T) {
	a := newTestApp()
	a.input.SetValue(":frobnicate")
	pressEnter(a)
	assert.Contains(t, a.errLine, "frobnicate")

	// The next keypress clears the error line.
	a.Update(keyRune('x'))
	assert.Empty(t, a.errLine)
}

func TestSlashPopupTrigger(t *testing.T) {
	a := newTestApp()
	_, _ = a.Update(keyRune('/'))
	require.NotNil(t, a.popup)
	assert.Equal(t, StatePopup, a.State())
	assert.Contains(t, a.popup.items, "/plan")
}

func TestNotePopupTrigger(t *testing.T) {
	a := New(Config{
		SessionID: "test",
		ListNotes: func() []string { return []string{"Project Plan", "Reading List"} },
	})
	a.input.SetValue("see [[pro")
	a.refreshPopup()
	require.NotNil(t, a.popup)
	assert.Equal(t, []string{"Project Plan"}, a.popup.items)

	a.acceptCompletion()
	assert.Equal(t, "see [[Project Plan]]", a.input.Value())
}

func TestAskModalSelection(t *testing.T) {
	a := newTestApp()
	req := interaction.NewAsk(interaction.Ask{
		Prompt:  "Pick one",
		Choices: []string{"alpha", "beta", "gamma"},
	})
	a.Update(InteractionRequestMsg{Request: req})
	require.Equal(t, StateInteractionModal, a.State())

	// Down twice, then wrap past the end back to the top.
	a.Update(tea.KeyMsg{Type: tea.KeyDown})
	a.Update(tea.KeyMsg{Type: tea.KeyDown})
	a.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 0, a.modal.cursor)

	a.Update(tea.KeyMsg{Type: tea.KeyDown})
	resp := resolveModal(t, a, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, interaction.ResponseAnswer, resp.Kind)
	assert.Equal(t, []string{"beta"}, resp.Selected)
}

func TestAskBatchNavigation(t *testing.T) {
	a := newTestApp()
	req := interaction.NewAskBatch(interaction.AskBatch{
		Questions: []interaction.Ask{
			{Prompt: "Q1", Choices: []string{"a", "b"}},
			{Prompt: "Q2", Choices: []string{"c", "d"}},
		},
	})
	a.Update(InteractionRequestMsg{Request: req})

	// Answer Q1 with "a": advances to Q2.
	a.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, a.modal)
	assert.Equal(t, 1, a.modal.batch.Current)

	// Enter on the last question completes the batch.
	a.Update(tea.KeyMsg{Type: tea.KeyDown})
	resp := resolveModal(t, a, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, interaction.ResponseBatchAnswers, resp.Kind)
	require.Len(t, resp.Answers, 2)
	assert.Equal(t, []string{"a"}, resp.Answers[0])
	assert.Equal(t, []string{"d"}, resp.Answers[1])
}

func TestStreamCompletionFlowsToGraduation(t *testing.T) {
	graduated := [][]string{}
	a := New(Config{
		SessionID:  "test",
		OnGraduate: func(ids []string) { graduated = append(graduated, ids) },
	})

	a.Update(StreamStartMsg{MessageID: "m9"})
	a.Update(TextDeltaMsg{Seq: 1, Delta: "answer"})
	_, cmd := a.Update(StreamCompleteMsg{})
	runCmd(a, cmd)

	require.Len(t, graduated, 1)
	assert.Contains(t, graduated[0], "m9")
}
