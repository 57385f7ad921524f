package chat

import (
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Mootikins/crucible/internal/session/interaction"
)

// interactionModal is the state of the open Ask/AskBatch/Permission
// prompt.
type interactionModal struct {
	request interaction.Request

	// Ask state: cursor over choices, multi-select set, and the
	// free-text submode for "other".
	cursor    int
	selected  map[int]bool
	textMode  bool
	textInput textinput.Model

	// Batch navigation.
	batch *interaction.BatchState
}

// openInteraction shows the request, or queues it when a modal is
// already visible.
func (a *App) openInteraction(req interaction.Request) (tea.Model, tea.Cmd) {
	if a.modal != nil || a.shell != nil {
		a.permQueue = append(a.permQueue, req)
		return a, nil
	}
	a.modal = newInteractionModal(req)
	return a, nil
}

func newInteractionModal(req interaction.Request) *interactionModal {
	m := &interactionModal{
		request:  req,
		selected: map[int]bool{},
	}
	if req.Kind == interaction.KindAskBatch && req.Batch != nil {
		m.batch = interaction.NewBatchState(req.Batch)
	}
	m.textInput = textinput.New()
	m.textInput.Prompt = "> "
	return m
}

// activeAsk returns the question currently shown: the single Ask or the
// batch's cursor question.
func (m *interactionModal) activeAsk() *interaction.Ask {
	switch m.request.Kind {
	case interaction.KindAsk:
		return m.request.Ask
	case interaction.KindAskBatch:
		return m.batch.Question()
	}
	return nil
}

// choiceCount includes the "other" escape hatch when allowed.
func (m *interactionModal) choiceCount() int {
	ask := m.activeAsk()
	if ask == nil {
		return 0
	}
	n := len(ask.Choices)
	if ask.AllowOther {
		n++
	}
	return n
}

// permissionHeader renders "[k/N]" when more requests are waiting.
func (a *App) permissionHeader() string {
	total := 1 + len(a.permQueue)
	if total <= 1 {
		return ""
	}
	return fmt.Sprintf("[1/%d]", total)
}

// handleModalKey routes keys while an interaction modal is open.
func (a *App) handleModalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m := a.modal

	if m.textMode {
		switch msg.String() {
		case "enter":
			text := m.textInput.Value()
			m.textMode = false
			return a.resolveAsk(nil, text)
		case "esc":
			m.textMode = false
			return a, nil
		default:
			var cmd tea.Cmd
			m.textInput, cmd = m.textInput.Update(msg)
			return a, cmd
		}
	}

	switch m.request.Kind {
	case interaction.KindPermission:
		return a.handlePermissionKey(msg)
	default:
		return a.handleAskKey(msg)
	}
}

// handlePermissionKey resolves allow/deny prompts: y/Enter allows,
// n/Esc denies.
func (a *App) handlePermissionKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		return a.closeModal(interaction.Decision(a.modal.request.ID, true))
	case "n", "N", "esc", "ctrl+c":
		return a.closeModal(interaction.Decision(a.modal.request.ID, false))
	}
	return a, nil
}

// handleAskKey navigates choices: up/down wrap, space toggles in
// multi-select, Enter resolves, Tab navigates batch questions.
func (a *App) handleAskKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m := a.modal
	ask := m.activeAsk()
	if ask == nil {
		return a.closeModal(interaction.Cancelled(m.request.ID))
	}
	count := m.choiceCount()

	switch msg.String() {
	case "up", "k":
		if count > 0 {
			m.cursor = (m.cursor - 1 + count) % count
		}
		return a, nil

	case "down", "j":
		if count > 0 {
			m.cursor = (m.cursor + 1) % count
		}
		return a, nil

	case " ":
		if ask.MultiSelect && m.cursor < len(ask.Choices) {
			m.selected[m.cursor] = !m.selected[m.cursor]
		}
		return a, nil

	case "tab":
		if m.batch != nil {
			a.stashBatchAnswer()
			if !m.batch.Next() {
				m.batch.Current = 0
			}
			m.cursor = 0
			m.selected = map[int]bool{}
		}
		return a, nil

	case "shift+tab":
		if m.batch != nil {
			a.stashBatchAnswer()
			m.batch.Prev()
			m.cursor = 0
			m.selected = map[int]bool{}
		}
		return a, nil

	case "enter":
		if ask.AllowOther && m.cursor == len(ask.Choices) {
			// "Other" selected: drop into the free-text submode.
			m.textMode = true
			m.textInput.SetValue("")
			m.textInput.Focus()
			return a, nil
		}
		selected := m.currentSelection(ask)
		return a.resolveAsk(selected, "")

	case "esc", "ctrl+c":
		return a.closeModal(interaction.Cancelled(m.request.ID))
	}
	return a, nil
}

// currentSelection computes the answered choices: the multi-select set,
// or the cursor choice.
func (m *interactionModal) currentSelection(ask *interaction.Ask) []string {
	if ask.MultiSelect {
		var out []string
		for i, choice := range ask.Choices {
			if m.selected[i] {
				out = append(out, choice)
			}
		}
		return out
	}
	if m.cursor < len(ask.Choices) {
		return []string{ask.Choices[m.cursor]}
	}
	return nil
}

func (m *interactionModal) currentSelectionOf() []string {
	ask := m.activeAsk()
	if ask == nil {
		return nil
	}
	return m.currentSelection(ask)
}

// stashBatchAnswer records the visible question's state before
// navigating away.
func (a *App) stashBatchAnswer() {
	m := a.modal
	if m.batch == nil {
		return
	}
	m.batch.Answers[m.batch.Current] = m.currentSelectionOf()
	m.batch.OtherTexts[m.batch.Current] = m.textInput.Value()
}

// resolveAsk answers the visible question. For a batch, Enter on the
// last question completes with the aggregated answers; otherwise the
// cursor advances.
func (a *App) resolveAsk(selected []string, other string) (tea.Model, tea.Cmd) {
	m := a.modal

	if m.batch == nil {
		return a.closeModal(interaction.Answer(m.request.ID, selected, other))
	}

	m.batch.Answers[m.batch.Current] = selected
	m.batch.OtherTexts[m.batch.Current] = other
	if m.batch.Next() {
		m.cursor = 0
		m.selected = map[int]bool{}
		return a, nil
	}
	return a.closeModal(interaction.BatchAnswers(m.request.ID, m.batch.Answers, m.batch.OtherTexts))
}

// closeModal emits the response as a CloseInteraction command and
// promotes the next queued request.
func (a *App) closeModal(resp interaction.Response) (tea.Model, tea.Cmd) {
	a.modal = nil

	if len(a.permQueue) > 0 {
		next := a.permQueue[0]
		a.permQueue = a.permQueue[1:]
		a.modal = newInteractionModal(next)
	}

	return a, func() tea.Msg {
		return CloseInteractionMsg{Response: resp}
	}
}
