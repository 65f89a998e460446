package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/plate-spinner/plate-spinner/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show, export or import the configuration file",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the config file, writing the defaults first if it is missing",
	Args:  cobra.NoArgs,
	RunE:  runConfigExport,
}

var configImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Validate a config file and install it",
	Long: `Validate a config file and install it as the active configuration.

Examples:
  sp config export > backup.yaml
  sp config import backup.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigImport,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configPathCmd, configExportCmd, configImportCmd)
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	paths, err := config.DefaultPaths()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), configFile(paths))
	return nil
}

func runConfigExport(cmd *cobra.Command, args []string) error {
	paths, err := config.DefaultPaths()
	if err != nil {
		return err
	}
	path := configFile(paths)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := config.Save(path, config.Default()); err != nil {
			return fmt.Errorf("failed to write defaults: %w", err)
		}
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigImport(cmd *cobra.Command, args []string) error {
	paths, err := config.DefaultPaths()
	if err != nil {
		return err
	}
	cfg, err := config.Load(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	if err := config.Save(configFile(paths), cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported config from %s\n", args[0])
	return nil
}
