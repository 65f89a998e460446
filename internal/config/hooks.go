package config

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
)

// EnvMarker is set in the assistant's environment by `sp run`; the
// installed hooks do nothing without it.
const EnvMarker = "PLATE_SPINNER"

// hookCommands maps the assistant's hook names to sp hook subcommands.
var hookCommands = []struct {
	event   string
	command string
	matcher bool
}{
	{"SessionStart", "session-start", false},
	{"UserPromptSubmit", "prompt-submit", false},
	{"PreToolUse", "pre-tool-use", true},
	{"PostToolUse", "post-tool-use", true},
	{"Stop", "stop", false},
}

type hookCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

type hookMatcher struct {
	Matcher string        `json:"matcher,omitempty"`
	Hooks   []hookCommand `json:"hooks"`
}

type settings struct {
	Hooks map[string][]hookMatcher `json:"hooks"`
}

// HookSettings returns the settings.json fragment that routes the
// assistant's hooks to sp.
func HookSettings() ([]byte, error) {
	s := settings{Hooks: make(map[string][]hookMatcher)}
	for _, h := range hookCommands {
		m := hookMatcher{Hooks: []hookCommand{{
			Type:    "command",
			Command: `[ "$` + EnvMarker + `" = "1" ] && sp hook ` + h.command + ` || true`,
		}}}
		if h.matcher {
			m.Matcher = "*"
		}
		s.Hooks[h.event] = []hookMatcher{m}
	}
	return json.MarshalIndent(s, "", "  ")
}

// HooksInstalled reports whether the settings file at path routes any hook
// to sp. The file may contain comments and trailing commas.
func HooksInstalled(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var s settings
	if err := json.Unmarshal(jsonc.ToJSON(data), &s); err != nil {
		return false
	}
	for _, matchers := range s.Hooks {
		for _, m := range matchers {
			for _, h := range m.Hooks {
				if strings.Contains(h.Command, "sp hook") {
					return true
				}
			}
		}
	}
	return false
}
