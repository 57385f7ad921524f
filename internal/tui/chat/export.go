package chat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// exportCmd writes the session transcript as markdown to path.
func (a *App) exportCmd(path string) tea.Cmd {
	content := renderExport(a.cfg.SessionID, a.cfg.Model, a.cache.Items())
	return func() tea.Msg {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return ErrorToastMsg{Message: "export failed: " + err.Error()}
			}
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return ErrorToastMsg{Message: "export failed: " + err.Error()}
		}
		return ErrorToastMsg{Message: "exported to " + path}
	}
}

// renderExport produces the markdown transcript: one section per
// message, tool call, shell execution, or subagent, in cache order.
func renderExport(sessionID, model string, items []*Item) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Session %s\n\n", sessionID)
	fmt.Fprintf(&sb, "- Model: %s\n", model)
	fmt.Fprintf(&sb, "- Exported: %s\n\n", time.Now().Format(time.RFC3339))

	for _, it := range items {
		switch it.Kind {
		case ItemMessage:
			m := it.Message
			fmt.Fprintf(&sb, "## %s\n\n", titleCase(m.Role))
			if m.Thinking != "" {
				fmt.Fprintf(&sb, "> %s\n\n", strings.ReplaceAll(m.Thinking, "\n", "\n> "))
			}
			sb.WriteString(m.Content)
			sb.WriteString("\n\n")

		case ItemToolCall:
			tc := it.Tool
			fmt.Fprintf(&sb, "## Tool: %s\n\n", tc.Name)
			if tc.Args != "" {
				fmt.Fprintf(&sb, "```json\n%s\n```\n\n", tc.Args)
			}
			if tc.OutputPath != "" {
				fmt.Fprintf(&sb, "Output spilled to `%s`\n\n", tc.OutputPath)
			} else if tc.Output.Len() > 0 {
				fmt.Fprintf(&sb, "```\n%s\n```\n\n", tc.Output.String())
			}
			if tc.Err != "" {
				fmt.Fprintf(&sb, "Error: %s\n\n", tc.Err)
			}

		case ItemShellExecution:
			sh := it.Shell
			fmt.Fprintf(&sb, "## Shell: `%s`\n\n", sh.Command)
			fmt.Fprintf(&sb, "Status: %s (exit %d)\n\n", sh.Status, sh.ExitCode)
			if len(sh.Lines) > 0 {
				fmt.Fprintf(&sb, "```\n%s\n```\n\n", strings.Join(sh.Lines, "\n"))
			}

		case ItemSubagent:
			sa := it.Subagent
			fmt.Fprintf(&sb, "## Subagent\n\nPrompt: %s\n\n", sa.Prompt)
			if sa.Result != "" {
				fmt.Fprintf(&sb, "%s\n\n", sa.Result)
			}
		}
	}
	return sb.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
