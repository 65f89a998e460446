// Package cli implements the sp command.
package cli

import (
	"fmt"
	"os"

	"github.com/plate-spinner/plate-spinner/internal/client"
	"github.com/plate-spinner/plate-spinner/internal/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	version    = "dev"
)

// SetVersion sets the version reported by the daemon and compared by the
// launcher.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
	rootCmd.Version = version
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sp",
	Short: "Keep track of every coding assistant session you have spinning",
	Long: `sp - a status board for AI coding sessions

A background daemon receives hook events from the assistant, keeps the
current status of every session in SQLite, and pushes changes to viewers.
Sessions that stopped for input, approval or an error are easy to spot.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/plate-spinner/config.yaml)")
}

func loadConfig() (*config.Config, config.Paths, error) {
	paths, err := config.DefaultPaths()
	if err != nil {
		return nil, paths, err
	}
	cfg, err := config.LoadOrDefault(configFile(paths))
	if err != nil {
		return nil, paths, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, paths, nil
}

// configFile is the --config flag, or the default location.
func configFile(paths config.Paths) string {
	if configPath != "" {
		return configPath
	}
	return paths.ConfigFile()
}

func newClient(cfg *config.Config) *client.HTTPClient {
	return client.NewHTTPClient(cfg.BaseURL(), client.DefaultTimeout)
}
