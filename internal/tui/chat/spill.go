package chat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Mootikins/crucible/pkg/logger"
)

// slug compresses a command or name into a short file-name-safe tag.
func slug(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
		case r == ' ' || r == '/' || r == '.' || r == '_':
			sb.WriteRune('-')
		}
		if sb.Len() >= 32 {
			break
		}
	}
	out := strings.Trim(sb.String(), "-")
	if out == "" {
		out = "output"
	}
	return out
}

func spillTimestamp(t time.Time) string {
	return t.Format("20060102-150405")
}

// writeShellSpill writes `<session>/shell/<ts>-<slug>.output` with the
// header block followed by the captured lines.
func writeShellSpill(sessionDir string, exec *CachedShellExecution, duration time.Duration) (string, error) {
	dir := filepath.Join(sessionDir, "shell")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create shell spill dir: %w", err)
	}

	cwd, _ := os.Getwd()
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.output", spillTimestamp(time.Now()), slug(exec.Command)))

	var sb strings.Builder
	fmt.Fprintf(&sb, "$ %s\n", exec.Command)
	fmt.Fprintf(&sb, "Exit: %d\n", exec.ExitCode)
	fmt.Fprintf(&sb, "Duration: %s\n", duration.Round(time.Millisecond))
	fmt.Fprintf(&sb, "Cwd: %s\n", cwd)
	sb.WriteString("---\n")
	for _, line := range exec.Lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write shell spill: %w", err)
	}
	return path, nil
}

// spillToolCmd writes the tool call's output to
// `<session>/tools/<ts>-<slug>.txt` and records the path so the cache
// stops asking.
func (a *App) spillToolCmd(name string) tea.Cmd {
	sessionDir := a.cfg.SessionDir
	tc := a.cache.latestTool(name)
	if sessionDir == "" || tc == nil {
		return nil
	}
	output := tc.Output.String()
	cache := a.cache

	return func() tea.Msg {
		dir := filepath.Join(sessionDir, "tools")
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Warn("[Chat] tool spill failed: %v", err)
			return ErrorToastMsg{Message: "failed to spill tool output"}
		}
		path := filepath.Join(dir, fmt.Sprintf("%s-%s.txt", spillTimestamp(time.Now()), slug(name)))
		if err := os.WriteFile(path, []byte(output), 0644); err != nil {
			logger.Warn("[Chat] tool spill failed: %v", err)
			return ErrorToastMsg{Message: "failed to spill tool output"}
		}
		cache.SetToolOutputPath(name, path)
		return nil
	}
}
