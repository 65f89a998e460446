package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/plate-spinner/plate-spinner/internal/client"
	"github.com/plate-spinner/plate-spinner/internal/session"
	"github.com/plate-spinner/plate-spinner/internal/theme"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream session changes as they happen",
	Long: `Follow the daemon's change notifications and print each changed
session. Reconnects automatically if the daemon restarts.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := newClient(cfg)
	out := cmd.OutOrStdout()
	err = client.Watch(ctx, client.WSURL(c.BaseURL()), client.WatchHandler{
		OnConnect: func() {
			fmt.Fprintln(out, "connected")
			if sessions, err := c.Sessions(ctx); err == nil {
				printSessions(out, sessions, time.Now())
			}
		},
		OnNotification: func(n client.Notification) {
			printNotification(ctx, out, c, n)
		},
		OnDisconnect: func(err error) {
			fmt.Fprintf(out, "disconnected: %v\n", err)
		},
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printNotification(ctx context.Context, out io.Writer, c *client.HTTPClient, n client.Notification) {
	stamp := theme.DimStyle.Render(time.Now().Format(time.TimeOnly))
	if n.Type == client.NotifySessionDeleted {
		fmt.Fprintf(out, "%s  %s  %s\n", stamp, theme.DimStyle.Render("removed"), n.SessionID)
		return
	}
	s, err := c.Session(ctx, n.SessionID)
	if err != nil {
		fmt.Fprintf(out, "%s  changed  %s\n", stamp, n.SessionID)
		return
	}
	fmt.Fprintln(out, watchLine(stamp, s))
}

func watchLine(stamp string, s *session.Session) string {
	label := lipgloss.NewStyle().Width(11).Render(statusLabel(s.Status))
	return fmt.Sprintf("%s  %s %s  %s", stamp, label, s.SessionID, describe(s))
}
