package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/plate-spinner/plate-spinner/internal/session"
	"github.com/plate-spinner/plate-spinner/internal/theme"
	"github.com/spf13/cobra"
)

var sessionsJSON bool

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"ls"},
	Short:   "List tracked sessions",
	Long: `List every session the daemon knows about, most recently updated first.

Examples:
  sp sessions
  sp sessions --json`,
	RunE: runSessions,
}

var sessionsDismissCmd = &cobra.Command{
	Use:   "dismiss <session-id>",
	Short: "Remove a session from the board",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDismiss,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsDismissCmd)
	sessionsCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Print raw JSON")
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	c := newClient(cfg)
	sessions, err := c.Sessions(cmd.Context())
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", c.BaseURL(), err)
	}

	out := cmd.OutOrStdout()
	if sessionsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions. Start one with 'sp run'.")
		return nil
	}
	return printSessions(out, sessions, time.Now())
}

func runSessionsDismiss(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if err := newClient(cfg).Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to dismiss %s: %w", args[0], err)
	}
	return nil
}

func printSessions(w io.Writer, sessions []*session.Session, now time.Time) error {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		project := filepath.Base(s.ProjectPath)
		if s.IsPlaceholder() {
			project += " (starting)"
		}
		rows = append(rows, []string{
			statusLabel(s.Status),
			project,
			dash(s.GitBranch),
			humanize.RelTime(s.UpdatedAt, now, "ago", "from now"),
			describe(s),
		})
	}

	t := table.New().
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		Headers("STATUS", "PROJECT", "BRANCH", "UPDATED", "SUMMARY").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return theme.HeaderStyle.PaddingRight(2)
			}
			return theme.CellStyle
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// statusLabel renders the icon and short name in the status's color.
func statusLabel(st session.Status) string {
	return theme.StatusStyle(st.String(), st.NeedsAttention()).
		Render(fmt.Sprintf("%c %s", st.Icon(), st.ShortName()))
}

// describe prefers the generated summary, then todo progress, then the last
// tool used.
func describe(s *session.Session) string {
	var parts []string
	if s.Summary != "" {
		parts = append(parts, truncate(s.Summary, 60))
	}
	if p := s.TodoProgress; p != nil && p.Total > 0 {
		parts = append(parts, fmt.Sprintf("[%d/%d]", p.Completed, p.Total))
	}
	if len(parts) == 0 && s.LastTool != "" {
		parts = append(parts, s.LastTool)
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
