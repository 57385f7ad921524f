package chat

import (
	"fmt"
	"sort"
	"strings"
)

// option is one boolean session setting with a default and a history so
// values can be popped back.
type option struct {
	key     string
	value   bool
	def     bool
	desc    string
	history []bool
}

// optionSet holds the :set-controlled session options.
type optionSet struct {
	opts map[string]*option
}

func defaultOptions() *optionSet {
	set := &optionSet{opts: map[string]*option{}}
	for _, o := range []*option{
		{key: "markdown", def: true, desc: "render assistant output as markdown"},
		{key: "autoscroll", def: true, desc: "follow new output in the viewport"},
		{key: "thinking", def: false, desc: "show assistant thinking blocks"},
		{key: "wrap", def: true, desc: "soft-wrap long lines"},
		{key: "timestamps", def: false, desc: "show message timestamps"},
	} {
		o.value = o.def
		set.opts[o.key] = o
	}
	return set
}

// Keys lists option names sorted.
func (s *optionSet) Keys() []string {
	keys := make([]string, 0, len(s.opts))
	for k := range s.opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the option value.
func (s *optionSet) Get(key string) (bool, bool) {
	o, ok := s.opts[key]
	if !ok {
		return false, false
	}
	return o.value, true
}

// Apply executes one :set operation and returns the status line to
// show. Unknown keys and verbs are validation errors.
func (s *optionSet) Apply(key, verb string) (string, error) {
	o, ok := s.opts[key]
	if !ok {
		return "", fmt.Errorf("unknown option %q", key)
	}

	push := func(v bool) {
		o.history = append(o.history, o.value)
		o.value = v
	}

	switch verb {
	case "on", "true", "1":
		push(true)
	case "off", "false", "0":
		push(false)
	case "toggle":
		push(!o.value)
	case "reset":
		push(o.def)
	case "pop":
		if len(o.history) == 0 {
			return "", fmt.Errorf("option %q has no history", key)
		}
		o.value = o.history[len(o.history)-1]
		o.history = o.history[:len(o.history)-1]
	case "?":
		return fmt.Sprintf("%s = %v", key, o.value), nil
	case "??":
		return fmt.Sprintf("%s = %v (default %v) — %s", key, o.value, o.def, o.desc), nil
	default:
		return "", fmt.Errorf("unknown verb %q (on|off|toggle|reset|pop|?|??)", verb)
	}
	return fmt.Sprintf("%s = %v", key, o.value), nil
}

// Summary renders every option for :set with no arguments.
func (s *optionSet) Summary() string {
	var lines []string
	for _, k := range s.Keys() {
		o := s.opts[k]
		marker := " "
		if o.value != o.def {
			marker = "*"
		}
		lines = append(lines, fmt.Sprintf("%s %s = %v", marker, k, o.value))
	}
	return strings.Join(lines, "\n")
}
