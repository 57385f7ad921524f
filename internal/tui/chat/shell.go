package chat

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Mootikins/crucible/pkg/logger"
)

// shellPollInterval drives output polling; reads never block the
// update loop.
const shellPollInterval = 100 * time.Millisecond

// shellMaxLiveLines bounds the in-memory scroll-back of one execution.
const shellMaxLiveLines = 5000

// shellState is the modal for one running or completed shell command.
type shellState struct {
	exec    *CachedShellExecution
	cmd     *exec.Cmd
	lines   chan string
	exit    chan int
	started time.Time

	scroll       int
	userScrolled bool
}

// openShell pushes the execution into the cache and spawns the process
// as a command so Update itself never blocks.
func (a *App) openShell(command string) (tea.Model, tea.Cmd) {
	if command == "" {
		a.errLine = "empty shell command"
		return a, nil
	}

	id := fmt.Sprintf("shell-%d", time.Now().UnixNano())
	cached := a.cache.PushShellExecution(id, command)

	sh := &shellState{
		exec:    cached,
		lines:   make(chan string, 256),
		exit:    make(chan int, 1),
		started: time.Now(),
	}
	a.shell = sh
	a.status = "Running: " + command

	shellPath := a.cfg.ShellPath
	return a, tea.Batch(
		func() tea.Msg {
			sh.spawn(shellPath, command)
			return ShellTickMsg{}
		},
	)
}

// spawn starts the process and wires stdout+stderr into the line
// channel. Runs off the update loop.
func (s *shellState) spawn(shellPath, command string) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/C", command)
	} else {
		cmd = exec.Command(shellPath, "-c", command)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.lines <- "error: " + err.Error()
		s.exit <- -1
		return
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		s.lines <- "error: " + err.Error()
		s.exit <- -1
		return
	}
	s.cmd = cmd

	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			s.lines <- scanner.Text()
		}
		code := 0
		if err := cmd.Wait(); err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}
		s.exit <- code
	}()
}

// pollShell drains buffered output without blocking, then schedules the
// next tick.
func (a *App) pollShell() tea.Cmd {
	sh := a.shell
	if sh == nil {
		return nil
	}
	return tea.Tick(shellPollInterval, func(time.Time) tea.Msg {
		var batch []string
		for {
			select {
			case line := <-sh.lines:
				batch = append(batch, line)
				if len(batch) >= 256 {
					return ShellLinesMsg{ExecID: sh.exec.ID, Lines: batch}
				}
			default:
				if len(batch) > 0 {
					return ShellLinesMsg{ExecID: sh.exec.ID, Lines: batch}
				}
				select {
				case code := <-sh.exit:
					return ShellExitMsg{ExecID: sh.exec.ID, ExitCode: code}
				default:
					return ShellTickMsg{}
				}
			}
		}
	})
}

// handleShellMsg applies shell poller messages.
func (a *App) handleShellMsg(msg ChatAppMsg) (tea.Model, tea.Cmd) {
	sh := a.shell
	if sh == nil {
		return a, nil
	}

	switch msg := msg.(type) {
	case ShellLinesMsg:
		if msg.ExecID != sh.exec.ID {
			return a, nil
		}
		sh.exec.Lines = append(sh.exec.Lines, msg.Lines...)
		if len(sh.exec.Lines) > shellMaxLiveLines {
			sh.exec.Lines = sh.exec.Lines[len(sh.exec.Lines)-shellMaxLiveLines:]
		}
		if !sh.userScrolled {
			sh.scroll = len(sh.exec.Lines)
		}
		return a, a.pollShell()

	case ShellExitMsg:
		if msg.ExecID != sh.exec.ID {
			return a, nil
		}
		sh.exec.ExitCode = msg.ExitCode
		// A cancel already set the status; the exit marker must not
		// overwrite it.
		if sh.exec.Status != ShellCancelled {
			sh.exec.Status = ShellDone
			a.status = fmt.Sprintf("Exit: %d", msg.ExitCode)
		}
		return a, a.spillShellCmd(sh.exec)

	case ShellTickMsg:
		if sh.exec.Status == ShellRunning {
			return a, a.pollShell()
		}
		return a, nil
	}
	return a, nil
}

// handleShellKey routes keys while the shell modal is open.
func (a *App) handleShellKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	sh := a.shell

	switch msg.String() {
	case "up", "k":
		sh.userScrolled = true
		if sh.scroll > 0 {
			sh.scroll--
		}
		return a, nil

	case "down", "j":
		if sh.scroll < len(sh.exec.Lines) {
			sh.scroll++
		}
		if sh.scroll >= len(sh.exec.Lines) {
			sh.userScrolled = false
		}
		return a, nil

	case "ctrl+c":
		if sh.exec.Status == ShellRunning {
			return a, a.cancelShell()
		}
		a.shell = nil
		return a, nil

	case "q", "esc":
		if sh.exec.Status == ShellRunning {
			return a, a.cancelShell()
		}
		a.shell = nil
		a.status = "Ready"
		return a, nil

	case "i":
		// Insert the tail of the output into the input line.
		tail := sh.exec.Lines
		if len(tail) > 20 {
			tail = tail[len(tail)-20:]
		}
		a.input.SetValue(a.input.Value() + joinLines(tail))
		return a, nil

	case "t":
		// Truncate the retained output to its last 100 lines.
		if len(sh.exec.Lines) > 100 {
			sh.exec.Lines = sh.exec.Lines[len(sh.exec.Lines)-100:]
			sh.scroll = len(sh.exec.Lines)
		}
		return a, nil

	case "e":
		return a, a.editShellOutputCmd(sh.exec)
	}
	return a, nil
}

// cancelShell sets the cancelled status before signalling the process,
// so the exit marker can never overwrite it.
func (a *App) cancelShell() tea.Cmd {
	sh := a.shell
	sh.exec.Status = ShellCancelled
	a.status = "Cancelled"

	proc := sh.cmd
	return func() tea.Msg {
		if proc != nil && proc.Process != nil {
			if runtime.GOOS == "windows" {
				_ = proc.Process.Kill()
			} else {
				_ = proc.Process.Signal(os.Interrupt)
			}
		}
		return nil
	}
}

// editShellOutputCmd opens the output in $EDITOR via a temp file.
func (a *App) editShellOutputCmd(exec0 *CachedShellExecution) tea.Cmd {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	tmp, err := os.CreateTemp("", "crucible-shell-*.txt")
	if err != nil {
		a.errLine = "failed to open editor buffer: " + err.Error()
		return nil
	}
	for _, line := range exec0.Lines {
		fmt.Fprintln(tmp, line)
	}
	tmp.Close()

	c := exec.Command(editor, tmp.Name())
	return tea.ExecProcess(c, func(err error) tea.Msg {
		if err != nil {
			return ErrorToastMsg{Message: "editor failed: " + err.Error()}
		}
		return nil
	})
}

// spillShellCmd writes the completed execution's output file and
// records the path.
func (a *App) spillShellCmd(exec0 *CachedShellExecution) tea.Cmd {
	sessionDir := a.cfg.SessionDir
	if sessionDir == "" {
		return nil
	}
	duration := time.Duration(0)
	if a.shell != nil {
		duration = time.Since(a.shell.started)
	}
	return func() tea.Msg {
		path, err := writeShellSpill(sessionDir, exec0, duration)
		if err != nil {
			logger.Warn("[Chat] shell spill failed: %v", err)
			return ErrorToastMsg{Message: "failed to save shell output"}
		}
		exec0.OutputPath = path
		return nil
	}
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
