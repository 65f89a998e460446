package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/plate-spinner/plate-spinner/internal/client"
	"github.com/plate-spinner/plate-spinner/internal/session"
	"github.com/plate-spinner/plate-spinner/internal/transcript"
	"github.com/spf13/cobra"
)

const (
	hookTimeout = time.Second
	// toolTargetEnv names the terminal location of the session when the
	// launcher knows it.
	toolTargetEnv = "PLATE_SPINNER_TOOL_TARGET"
)

// hookInput is the JSON the assistant writes to a hook's stdin.
type hookInput struct {
	SessionID      string          `json:"session_id"`
	Cwd            string          `json:"cwd"`
	TranscriptPath string          `json:"transcript_path"`
	ToolName       string          `json:"tool_name"`
	ToolInput      json.RawMessage `json:"tool_input"`
	Error          *string         `json:"error"`
}

// hookKinds maps sp hook subcommands to the daemon's event types.
var hookKinds = map[string]string{
	"session-start": session.HookSessionStart,
	"prompt-submit": session.HookPromptSubmit,
	"pre-tool-use":  session.HookToolStart,
	"post-tool-use": session.HookToolCall,
	"stop":          session.HookStop,
}

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Forward an assistant hook event to the daemon",
	Long: `Forward an assistant hook event to the daemon.

Reads the hook's JSON from stdin and posts it to the daemon. Delivery is
best effort: if the daemon is not running the event is dropped. Run
'sp install' to print the settings that wire these up.`,
}

func init() {
	rootCmd.AddCommand(hookCmd)
	for name := range hookKinds {
		hookCmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: "Forward a " + hookKinds[name] + " event",
			Args:  cobra.NoArgs,
			RunE:  runHook,
		})
	}
}

func runHook(cmd *cobra.Command, args []string) error {
	eventType := hookKinds[cmd.Name()]
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return err
	}
	var in hookInput
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("invalid hook input: %w", err)
	}

	ev := buildHookEvent(eventType, in, hookEnv{
		toolTarget: os.Getenv(toolTargetEnv),
		branch:     gitBranch,
		transcript: transcript.FindLatest,
	})

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), hookTimeout)
	defer cancel()
	// The daemon may be down; the assistant must not notice.
	_ = client.NewHTTPClient(cfg.BaseURL(), hookTimeout).PostEvent(ctx, ev)
	return nil
}

// hookEnv holds the lookups a hook performs outside its stdin payload.
type hookEnv struct {
	toolTarget string
	branch     func(dir string) string
	transcript func(projectPath string) (string, error)
}

func buildHookEvent(eventType string, in hookInput, env hookEnv) *session.HookEvent {
	ev := &session.HookEvent{
		SessionID:      in.SessionID,
		ProjectPath:    in.Cwd,
		EventType:      eventType,
		TranscriptPath: in.TranscriptPath,
		ToolTarget:     env.toolTarget,
	}
	// Older hosts omit the transcript path; fall back to the project's
	// newest transcript.
	if (ev.TranscriptPath == "" || ev.SessionID == "") && in.Cwd != "" {
		if path, err := env.transcript(in.Cwd); err == nil {
			if ev.TranscriptPath == "" {
				ev.TranscriptPath = path
			}
			if ev.SessionID == "" {
				ev.SessionID = transcript.SessionIDFromPath(path)
			}
		}
	}
	switch eventType {
	case session.HookSessionStart:
		if in.Cwd != "" {
			ev.GitBranch = env.branch(in.Cwd)
		}
	case session.HookToolStart, session.HookToolCall:
		ev.ToolName = in.ToolName
		ev.ToolParams = in.ToolInput
	case session.HookStop:
		ev.Error = in.Error
	}
	return ev
}

func gitBranch(dir string) string {
	out, err := exec.Command("git", "-C", dir, "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
