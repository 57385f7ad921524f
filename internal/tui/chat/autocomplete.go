package chat

import (
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// popupKind identifies which trigger opened the autocomplete popup.
type popupKind int

const (
	popupSlash popupKind = iota
	popupFile
	popupNote
	popupCommandArg
	popupModel
	popupSet
)

// popupState is the visible autocomplete list.
type popupState struct {
	kind  popupKind
	items []string
	// start is the byte offset in the input where the completion
	// replaces text.
	start  int
	cursor int
}

var slashCommands = []string{
	"/mode", "/normal", "/default", "/plan", "/auto", "/help", "/quit", "/exit", "/q",
}

var replCommands = []string{
	"quit", "help", "h", "clear", "palette", "commands", "model", "mcp",
	"messages", "msgs", "export", "set", "config",
}

// commandArgs maps REPL commands to their static argument completions.
var commandArgs = map[string][]string{
	"config": {"show"},
}

// refreshPopup recomputes the popup from the current input. Returns a
// command when a trigger needs a lazy fetch (models).
func (a *App) refreshPopup() tea.Cmd {
	v := a.input.Value()
	a.popup = nil
	if v == "" {
		return nil
	}

	// "/..." at the start: slash commands.
	if strings.HasPrefix(v, "/") && !strings.Contains(v, " ") {
		a.setPopup(popupSlash, filterPrefix(slashCommands, v), 0)
		return nil
	}

	// ":model <partial>": model names, fetched lazily on first use.
	if strings.HasPrefix(v, ":model ") {
		partial := strings.TrimPrefix(v, ":model ")
		if !a.modelsLoaded {
			fetch := a.cfg.FetchModels
			if fetch == nil {
				return nil
			}
			return func() tea.Msg {
				return ModelsLoadedMsg{Models: fetch()}
			}
		}
		a.setPopup(popupModel, filterPrefix(a.models, partial), len(":model "))
		return nil
	}

	// ":set <partial>": option keys, or values after "key=".
	if strings.HasPrefix(v, ":set ") {
		partial := strings.TrimPrefix(v, ":set ")
		if key, _, ok := strings.Cut(partial, "="); ok {
			values := []string{"on", "off", "toggle", "reset"}
			a.setPopup(popupSet, values, len(":set "+key+"="))
			return nil
		}
		a.setPopup(popupSet, filterPrefix(a.options.Keys(), partial), len(":set "))
		return nil
	}

	// ":<cmd> <arg>": static argument completion.
	if strings.HasPrefix(v, ":") {
		rest := strings.TrimPrefix(v, ":")
		if cmd, arg, ok := strings.Cut(rest, " "); ok {
			if args, has := commandArgs[cmd]; has {
				a.setPopup(popupCommandArg, filterPrefix(args, arg), len(":"+cmd+" "))
			}
			return nil
		}
		a.setPopup(popupCommandArg, filterPrefix(prefixed(replCommands, ":"), v), 0)
		return nil
	}

	// "[[partial": note titles.
	if i := strings.LastIndex(v, "[["); i >= 0 && !strings.Contains(v[i:], "]]") {
		partial := v[i+2:]
		if list := a.cfg.ListNotes; list != nil {
			a.setPopup(popupNote, filterContains(list(), partial), i+2)
		}
		return nil
	}

	// "@partial" at a word boundary: file names.
	if i := strings.LastIndex(v, "@"); i >= 0 && (i == 0 || v[i-1] == ' ') {
		partial := v[i+1:]
		if list := a.cfg.ListFiles; list != nil {
			a.setPopup(popupFile, filterContains(list(), partial), i+1)
		}
		return nil
	}
	return nil
}

func (a *App) setPopup(kind popupKind, items []string, start int) {
	if len(items) == 0 {
		a.popup = nil
		return
	}
	a.popup = &popupState{kind: kind, items: items, start: start}
}

// handlePopupKey routes keys while the popup is visible.
func (a *App) handlePopupKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := a.popup
	switch msg.String() {
	case "up":
		p.cursor = (p.cursor - 1 + len(p.items)) % len(p.items)
		return a, nil
	case "down":
		p.cursor = (p.cursor + 1) % len(p.items)
		return a, nil
	case "tab":
		a.acceptCompletion()
		return a, nil
	case "enter":
		a.acceptCompletion()
		return a, nil
	case "esc":
		a.popup = nil
		return a, nil
	case "ctrl+c":
		a.popup = nil
		a.input.SetValue("")
		return a, nil
	default:
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		refresh := a.refreshPopup()
		return a, tea.Batch(cmd, refresh)
	}
}

// acceptCompletion splices the selected item into the input.
func (a *App) acceptCompletion() {
	p := a.popup
	if p == nil || p.cursor >= len(p.items) {
		return
	}
	choice := p.items[p.cursor]
	v := a.input.Value()
	if p.start <= len(v) {
		v = v[:p.start] + choice
	}
	if p.kind == popupNote {
		v += "]]"
	}
	a.input.SetValue(v)
	a.input.CursorEnd()
	a.popup = nil
}

func filterPrefix(items []string, prefix string) []string {
	var out []string
	for _, it := range items {
		if strings.HasPrefix(strings.ToLower(it), strings.ToLower(prefix)) {
			out = append(out, it)
		}
	}
	sort.Strings(out)
	return out
}

func filterContains(items []string, sub string) []string {
	var out []string
	for _, it := range items {
		if strings.Contains(strings.ToLower(it), strings.ToLower(sub)) {
			out = append(out, it)
		}
	}
	sort.Strings(out)
	return out
}

func prefixed(items []string, prefix string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = prefix + it
	}
	return out
}
