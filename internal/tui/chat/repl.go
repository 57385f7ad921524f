package chat

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// handleReplCommand runs one colon command. Parse errors surface as the
// one-line error above the input, never as failures.
func (a *App) handleReplCommand(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return a, nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "quit":
		a.quitting = true
		return a, tea.Quit

	case "help", "h":
		a.status = ":quit :clear :palette :model :mcp :messages :export <path> :set :config"
		return a, nil

	case "clear":
		a.cache = NewCache(a.cfg.CacheCapacity)
		if a.cfg.SpillThreshold > 0 {
			a.cache.SetSpillThreshold(a.cfg.SpillThreshold)
		}
		a.status = "Cleared"
		return a, nil

	case "palette", "commands":
		a.input.SetValue(":")
		return a, a.refreshPopup()

	case "model":
		if len(args) == 0 {
			a.status = fmt.Sprintf("model: %s", a.cfg.Model)
			return a, nil
		}
		a.cfg.Model = args[0]
		a.status = fmt.Sprintf("model: %s", a.cfg.Model)
		return a, nil

	case "mcp":
		list := a.cfg.ListMCPServers
		if list == nil {
			a.status = "no MCP servers configured"
			return a, nil
		}
		servers := list()
		if len(servers) == 0 {
			a.status = "no MCP servers configured"
			return a, nil
		}
		a.status = "mcp: " + strings.Join(servers, ", ")
		return a, nil

	case "messages", "msgs":
		counts := map[ItemKind]int{}
		for _, it := range a.cache.Items() {
			counts[it.Kind]++
		}
		a.status = fmt.Sprintf("%d messages, %d tool calls, %d shell, %d subagents",
			counts[ItemMessage], counts[ItemToolCall], counts[ItemShellExecution], counts[ItemSubagent])
		return a, nil

	case "export":
		if len(args) == 0 {
			a.errLine = ":export needs a path"
			return a, nil
		}
		return a, a.exportCmd(args[0])

	case "set":
		return a.handleSetCommand(args)

	case "config":
		// ":config" and ":config show" both render the option summary.
		a.status = strings.ReplaceAll(a.options.Summary(), "\n", "  ")
		return a, nil

	default:
		a.errLine = fmt.Sprintf("unknown command :%s", cmd)
		return a, nil
	}
}

// handleSetCommand parses the :set forms:
// ":set", ":set key", ":set key=value", ":set key verb".
func (a *App) handleSetCommand(args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		a.status = strings.ReplaceAll(a.options.Summary(), "\n", "  ")
		return a, nil
	}

	key := args[0]
	verb := ""
	if k, v, ok := strings.Cut(key, "="); ok {
		key, verb = k, v
	} else if len(args) > 1 {
		verb = args[1]
	} else {
		verb = "?"
	}

	status, err := a.options.Apply(key, verb)
	if err != nil {
		a.errLine = err.Error()
		return a, nil
	}
	a.status = status
	return a, nil
}
