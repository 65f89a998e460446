package cli

import (
	"fmt"

	"github.com/plate-spinner/plate-spinner/internal/config"
	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Print the hook settings for the assistant",
	Long: `Print the hooks block to merge into the assistant's settings.json.

The hooks only fire for sessions started through 'sp run'.`,
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	_, paths, err := loadConfig()
	if err != nil {
		return err
	}
	settings, err := config.HookSettings()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if config.HooksInstalled(paths.ClaudeSettings) {
		fmt.Fprintf(out, "Hooks already present in %s\n", paths.ClaudeSettings)
		return nil
	}
	fmt.Fprintf(out, "Add the following to %s:\n\n%s\n", paths.ClaudeSettings, settings)
	return nil
}
