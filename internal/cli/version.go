package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client and daemon versions",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "sp %s\n", version)

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	h, err := newClient(cfg).Health(cmd.Context())
	if err != nil {
		fmt.Fprintln(out, "daemon not running")
		return nil
	}
	fmt.Fprintf(out, "daemon %s\n", h.Version)
	return nil
}
