package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/plate-spinner/plate-spinner/internal/config"
	"github.com/plate-spinner/plate-spinner/internal/session"
)

func TestBuildHookEvent(t *testing.T) {
	errMsg := "interrupted"
	in := hookInput{
		SessionID:      "abc",
		Cwd:            "/repo",
		TranscriptPath: "/t.jsonl",
		ToolName:       "Bash",
		ToolInput:      json.RawMessage(`{"command":"ls"}`),
		Error:          &errMsg,
	}
	branch := func(dir string) string {
		if dir != "/repo" {
			t.Errorf("branch dir = %q, want /repo", dir)
		}
		return "main"
	}

	tests := []struct {
		eventType  string
		wantBranch string
		wantTool   string
		wantError  bool
	}{
		{session.HookSessionStart, "main", "", false},
		{session.HookPromptSubmit, "", "", false},
		{session.HookToolStart, "", "Bash", false},
		{session.HookToolCall, "", "Bash", false},
		{session.HookStop, "", "", true},
	}
	for _, tt := range tests {
		ev := buildHookEvent(tt.eventType, in, hookEnv{
			toolTarget: "tmux:1.0",
			branch:     branch,
			transcript: func(string) (string, error) {
				t.Error("transcript lookup with a transcript_path present")
				return "", nil
			},
		})
		if err := ev.Validate(); err != nil {
			t.Errorf("%s: Validate() = %v", tt.eventType, err)
		}
		if ev.EventType != tt.eventType {
			t.Errorf("EventType = %q, want %q", ev.EventType, tt.eventType)
		}
		if ev.ProjectPath != "/repo" || ev.TranscriptPath != "/t.jsonl" || ev.ToolTarget != "tmux:1.0" {
			t.Errorf("%s: common fields = %+v", tt.eventType, ev)
		}
		if ev.GitBranch != tt.wantBranch {
			t.Errorf("%s: GitBranch = %q, want %q", tt.eventType, ev.GitBranch, tt.wantBranch)
		}
		if ev.ToolName != tt.wantTool {
			t.Errorf("%s: ToolName = %q, want %q", tt.eventType, ev.ToolName, tt.wantTool)
		}
		if tt.wantTool != "" && string(ev.ToolParams) != `{"command":"ls"}` {
			t.Errorf("%s: ToolParams = %s", tt.eventType, ev.ToolParams)
		}
		if ev.HasError() != tt.wantError {
			t.Errorf("%s: HasError() = %v, want %v", tt.eventType, ev.HasError(), tt.wantError)
		}
	}
}

func TestBuildHookEventFindsTranscript(t *testing.T) {
	env := hookEnv{
		branch: func(string) string { return "" },
		transcript: func(dir string) (string, error) {
			return "/home/u/.claude/projects/-repo/abc123.jsonl", nil
		},
	}
	ev := buildHookEvent(session.HookPromptSubmit, hookInput{Cwd: "/repo"}, env)
	if ev.SessionID != "abc123" {
		t.Errorf("SessionID = %q, want abc123", ev.SessionID)
	}
	if ev.TranscriptPath != "/home/u/.claude/projects/-repo/abc123.jsonl" {
		t.Errorf("TranscriptPath = %q", ev.TranscriptPath)
	}

	env.transcript = func(string) (string, error) { return "", errors.New("no transcripts") }
	ev = buildHookEvent(session.HookPromptSubmit, hookInput{SessionID: "s1", Cwd: "/repo"}, env)
	if ev.SessionID != "s1" || ev.TranscriptPath != "" {
		t.Errorf("event = %+v, want session s1 without transcript", ev)
	}
}

func TestHookKindsCoverInstalledCommands(t *testing.T) {
	for _, name := range []string{"session-start", "prompt-submit", "pre-tool-use", "post-tool-use", "stop"} {
		if _, ok := hookKinds[name]; !ok {
			t.Errorf("hookKinds missing %q", name)
		}
		cmd, _, err := hookCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("hook subcommand %q not registered", name)
		}
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		s    *session.Session
		want string
	}{
		{"empty", &session.Session{}, "-"},
		{"last tool", &session.Session{LastTool: "Edit"}, "Edit"},
		{"todos", &session.Session{LastTool: "Edit", TodoProgress: &session.TodoProgress{Completed: 1, Total: 3}}, "[1/3]"},
		{"summary", &session.Session{Summary: "Fixing  the\nparser", TodoProgress: &session.TodoProgress{Completed: 2, Total: 2}}, "Fixing the parser [2/2]"},
		{"zero total", &session.Session{LastTool: "Read", TodoProgress: &session.TodoProgress{}}, "Read"},
	}
	for _, tt := range tests {
		if got := describe(tt.s); got != tt.want {
			t.Errorf("%s: describe() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a much longer sentence", 10, "a much ..."},
		{"héllo wörld", 8, "héllo..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestPrintSessions(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	sessions := []*session.Session{
		{SessionID: "abc", ProjectPath: "/src/api", GitBranch: "main", Status: session.AwaitingInput, LastTool: "AskUserQuestion", UpdatedAt: now.Add(-2 * time.Minute)},
		{SessionID: session.PlaceholderID("/src/web"), ProjectPath: "/src/web", Status: session.Starting, UpdatedAt: now},
	}
	var buf bytes.Buffer
	if err := printSessions(&buf, sessions, now); err != nil {
		t.Fatalf("printSessions() error = %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "STATUS") || !strings.Contains(lines[0], "SUMMARY") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "? input") {
		t.Errorf("row 1 = %q, want status label", lines[1])
	}
	if !strings.Contains(lines[1], "api") || !strings.Contains(lines[1], "main") || !strings.Contains(lines[1], "2 minutes ago") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "web (starting)") {
		t.Errorf("row 2 = %q, want placeholder marker", lines[2])
	}
}

func TestMaskKey(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"short", "*****"},
		{"sk-ant-abcdef123456", "sk-a****3456"},
	}
	for _, tt := range tests {
		if got := maskKey(tt.in); got != tt.want {
			t.Errorf("maskKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReadKeyFromPipe(t *testing.T) {
	key, err := readKey(strings.NewReader("  sk-ant-xyz \nignored\n"), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("readKey() error = %v", err)
	}
	if key != "sk-ant-xyz" {
		t.Errorf("readKey() = %q, want sk-ant-xyz", key)
	}
}

func TestStatusLabel(t *testing.T) {
	for _, st := range session.AllStatuses() {
		want := string(st.Icon()) + " " + st.ShortName()
		if got := statusLabel(st); !strings.Contains(got, want) {
			t.Errorf("statusLabel(%v) = %q, want it to contain %q", st, got, want)
		}
	}
}

func TestWatchLine(t *testing.T) {
	s := &session.Session{SessionID: "abc", Status: session.Error, LastTool: "Bash"}
	got := watchLine("12:00:00", s)
	for _, want := range []string{"12:00:00", "X error", "abc", "Bash"} {
		if !strings.Contains(got, want) {
			t.Errorf("watchLine() = %q, missing %q", got, want)
		}
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", "")
	t.Cleanup(func() {
		configPath = ""
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigCommands(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "active.yaml")

	out, err := runCLI(t, "--config", active, "config", "path")
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if strings.TrimSpace(out) != active {
		t.Errorf("config path = %q, want %q", out, active)
	}

	out, err = runCLI(t, "--config", active, "config", "export")
	if err != nil {
		t.Fatalf("config export: %v", err)
	}
	if !strings.Contains(out, "port: 7890") {
		t.Errorf("export of defaults = %q", out)
	}
	if _, err := os.Stat(active); err != nil {
		t.Errorf("export did not write defaults: %v", err)
	}

	backup := filepath.Join(dir, "backup.yaml")
	if err := os.WriteFile(backup, []byte("server:\n  port: 8123\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "--config", active, "config", "import", backup); err != nil {
		t.Fatalf("config import: %v", err)
	}
	cfg, err := config.Load(active)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8123 || cfg.Monitor.Interval != config.Default().Monitor.Interval {
		t.Errorf("imported config = %+v", cfg)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("server:\n  port: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "--config", active, "config", "import", bad); err == nil {
		t.Error("import of an invalid config succeeded")
	}
	if cfg, _ := config.Load(active); cfg == nil || cfg.Server.Port != 8123 {
		t.Error("failed import replaced the active config")
	}
}
