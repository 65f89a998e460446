package cli

import (
	"fmt"

	"github.com/plate-spinner/plate-spinner/internal/launcher"
	"github.com/spf13/cobra"
)

var killCmd = &cobra.Command{
	Use:   "kill",
	Short: "Stop the background daemon",
	RunE:  runKill,
}

func init() {
	rootCmd.AddCommand(killCmd)
}

func runKill(cmd *cobra.Command, args []string) error {
	cfg, paths, err := loadConfig()
	if err != nil {
		return err
	}
	res, err := launcher.New(newClient(cfg), version, paths.LogFile()).Kill(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to scan processes: %w", err)
	}
	out := cmd.OutOrStdout()
	switch {
	case len(res.Terminated) > 0:
		fmt.Fprintf(out, "Daemon stopped (terminated pid %v)\n", res.Terminated)
	case res.Stopped():
		fmt.Fprintln(out, "Daemon stopped")
	default:
		fmt.Fprintln(out, "No daemon running")
	}
	return nil
}
