package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mitchellh/go-wordwrap"
	"github.com/muesli/termenv"

	"github.com/Mootikins/crucible/internal/session/interaction"
)

var (
	styleUser      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	styleAssistant = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	styleThinking  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	styleTool      = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleStatus    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleError     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	stylePromptCmd = lipgloss.NewStyle().Foreground(lipgloss.Color("178")).Bold(true)
	stylePromptSh  = lipgloss.NewStyle().Foreground(lipgloss.Color("114")).Bold(true)
	stylePrompt    = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
	styleModal     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	styleSelected  = lipgloss.NewStyle().Reverse(true)
	stylePopup     = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
)

// View implements tea.Model: a pure projection of controller state.
func (a *App) View() string {
	if a.quitting {
		return "Goodbye!\n"
	}

	width := a.width
	if width <= 0 {
		width = 80
	}

	var sb strings.Builder

	switch a.State() {
	case StateShellModal:
		sb.WriteString(a.viewShell(width))
	case StateInteractionModal:
		sb.WriteString(a.viewTranscript(width))
		sb.WriteString("\n")
		sb.WriteString(a.viewInteraction(width))
	default:
		sb.WriteString(a.viewTranscript(width))
	}

	sb.WriteString("\n")
	if a.errLine != "" {
		sb.WriteString(styleError.Render(a.errLine))
		sb.WriteString("\n")
	}
	sb.WriteString(styleStatus.Render(a.status))
	sb.WriteString("\n")
	sb.WriteString(a.viewInput())
	if a.popup != nil {
		sb.WriteString("\n")
		sb.WriteString(a.viewPopup())
	}
	return sb.String()
}

// viewTranscript renders the cache items plus the live streaming turn.
func (a *App) viewTranscript(width int) string {
	var sb strings.Builder

	for _, it := range a.cache.Items() {
		switch it.Kind {
		case ItemMessage:
			m := it.Message
			if m.Role == "user" {
				sb.WriteString(styleUser.Render("you"))
				sb.WriteString("\n")
				sb.WriteString(wordwrap.WrapString(m.Content, uint(width-2)))
			} else {
				sb.WriteString(styleAssistant.Render("crucible"))
				sb.WriteString("\n")
				if thinking, _ := a.options.Get("thinking"); thinking && m.Thinking != "" {
					sb.WriteString(styleThinking.Render(wordwrap.WrapString(m.Thinking, uint(width-2))))
					sb.WriteString("\n")
				}
				sb.WriteString(a.renderBody(m.Content, width))
			}
			sb.WriteString("\n\n")

		case ItemToolCall:
			tc := it.Tool
			marker := "…"
			if tc.Complete {
				marker = "✓"
			}
			if tc.Err != "" {
				marker = "✗"
			}
			sb.WriteString(styleTool.Render(fmt.Sprintf("%s %s", marker, tc.Name)))
			sb.WriteString("\n")
			if tc.OutputPath != "" {
				sb.WriteString(styleStatus.Render("output: " + tc.OutputPath))
				sb.WriteString("\n")
			}

		case ItemShellExecution:
			sh := it.Shell
			sb.WriteString(styleTool.Render(fmt.Sprintf("$ %s [%s]", sh.Command, sh.Status)))
			sb.WriteString("\n")

		case ItemSubagent:
			sa := it.Subagent
			sb.WriteString(styleTool.Render("agent: " + sa.Prompt))
			sb.WriteString("\n")
		}
	}

	if a.cache.IsStreaming() {
		sb.WriteString(styleAssistant.Render("crucible"))
		sb.WriteString("\n")
		if thinking, _ := a.options.Get("thinking"); thinking {
			if t := a.cache.StreamingThinking(); t != "" {
				sb.WriteString(styleThinking.Render(wordwrap.WrapString(t, uint(width-2))))
				sb.WriteString("\n")
			}
		}
		sb.WriteString(wordwrap.WrapString(a.cache.StreamingText(), uint(width-2)))
	}
	return sb.String()
}

// renderBody renders assistant markdown through glamour when enabled.
func (a *App) renderBody(content string, width int) string {
	if md, _ := a.options.Get("markdown"); !md {
		return wordwrap.WrapString(content, uint(width-2))
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithColorProfile(termenv.ANSI256),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

// viewInput renders the prompt with the mode-specific character.
func (a *App) viewInput() string {
	var prompt string
	switch a.Mode() {
	case ModeCommand:
		prompt = stylePromptCmd.Render(": ")
	case ModeShell:
		prompt = stylePromptSh.Render("! ")
	default:
		prompt = stylePrompt.Render("> ")
	}
	return prompt + a.input.View()
}

// viewPopup renders the autocomplete list.
func (a *App) viewPopup() string {
	p := a.popup
	var sb strings.Builder
	max := len(p.items)
	if max > 8 {
		max = 8
	}
	for i := 0; i < max; i++ {
		line := p.items[i]
		if i == p.cursor {
			line = styleSelected.Render(line)
		}
		sb.WriteString(line)
		if i < max-1 {
			sb.WriteString("\n")
		}
	}
	return stylePopup.Render(sb.String())
}

// viewShell renders the shell modal scroll view.
func (a *App) viewShell(width int) string {
	sh := a.shell
	var sb strings.Builder
	sb.WriteString(styleTool.Render("$ " + sh.exec.Command))
	sb.WriteString("\n")

	visible := 20
	lines := sh.exec.Lines
	end := sh.scroll
	if end > len(lines) {
		end = len(lines)
	}
	start := end - visible
	if start < 0 {
		start = 0
	}
	for _, line := range lines[start:end] {
		if len(line) > width-2 {
			line = line[:width-2]
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	footer := fmt.Sprintf("[%s] q: close  ctrl+c: cancel  e: edit  i: insert  t: truncate", sh.exec.Status)
	if sh.exec.Status == ShellDone {
		footer = fmt.Sprintf("[exit %d] %s", sh.exec.ExitCode, footer)
	}
	sb.WriteString(styleStatus.Render(footer))
	return sb.String()
}

// viewInteraction renders the Ask/Permission modal.
func (a *App) viewInteraction(width int) string {
	m := a.modal
	var sb strings.Builder

	switch m.request.Kind {
	case interaction.KindPermission:
		p := m.request.Permission
		header := "Permission"
		if h := a.permissionHeader(); h != "" {
			header = "Permission " + h
		}
		sb.WriteString(styleUser.Render(header))
		sb.WriteString("\n")
		sb.WriteString(p.Detail)
		sb.WriteString("\n")
		sb.WriteString(styleStatus.Render("y: allow  n/esc: deny"))

	default:
		ask := m.activeAsk()
		if ask == nil {
			break
		}
		title := ask.Prompt
		if m.batch != nil {
			title = fmt.Sprintf("%s (%d/%d)", ask.Prompt, m.batch.Current+1, len(m.batch.Batch.Questions))
		}
		sb.WriteString(styleUser.Render(title))
		sb.WriteString("\n")

		if m.textMode {
			sb.WriteString(m.textInput.View())
		} else {
			for i, choice := range ask.Choices {
				cursor := "  "
				if i == m.cursor {
					cursor = "> "
				}
				check := ""
				if ask.MultiSelect {
					if m.selected[i] {
						check = "[x] "
					} else {
						check = "[ ] "
					}
				}
				line := cursor + check + choice
				if i == m.cursor {
					line = styleSelected.Render(line)
				}
				sb.WriteString(line)
				sb.WriteString("\n")
			}
			if ask.AllowOther {
				line := "  Other..."
				if m.cursor == len(ask.Choices) {
					line = styleSelected.Render("> Other...")
				}
				sb.WriteString(line)
				sb.WriteString("\n")
			}
			hint := "enter: select  esc: cancel"
			if ask.MultiSelect {
				hint = "space: toggle  " + hint
			}
			if m.batch != nil {
				hint = "tab: next question  " + hint
			}
			sb.WriteString(styleStatus.Render(hint))
		}
	}
	return styleModal.Width(width - 4).Render(sb.String())
}
