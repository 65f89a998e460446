package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/plate-spinner/plate-spinner/internal/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Anthropic API key used for summaries",
	Long: `Manage the Anthropic API key used for session summaries.

The ANTHROPIC_API_KEY environment variable takes precedence over the
stored key.`,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the API key comes from",
	RunE:  runAuthStatus,
}

var authSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store an API key",
	Long: `Store an API key in the auth file with owner-only permissions.

Prompts without echo when run in a terminal, otherwise reads one line from
stdin:
  echo "$KEY" | sp auth set`,
	Args: cobra.NoArgs,
	RunE: runAuthSet,
}

var authUnsetCmd = &cobra.Command{
	Use:   "unset",
	Short: "Remove the stored API key",
	RunE:  runAuthUnset,
}

var authPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the auth file location",
	RunE:  runAuthPath,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authStatusCmd, authSetCmd, authUnsetCmd, authPathCmd)
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	_, paths, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	key, source := config.APIKey(paths.AuthFile())
	switch source {
	case config.KeyFromEnv:
		fmt.Fprintf(out, "API key: %s (from ANTHROPIC_API_KEY)\n", maskKey(key))
	case config.KeyFromFile:
		fmt.Fprintf(out, "API key: %s (from %s)\n", maskKey(key), paths.AuthFile())
	default:
		fmt.Fprintln(out, "API key: not configured; summaries are disabled")
	}
	return nil
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	_, paths, err := loadConfig()
	if err != nil {
		return err
	}
	key, err := readKey(cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if err := config.SaveAuth(paths.AuthFile(), config.Auth{AnthropicAPIKey: key}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved to %s\n", paths.AuthFile())
	return nil
}

func runAuthUnset(cmd *cobra.Command, args []string) error {
	_, paths, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.DeleteAuth(paths.AuthFile()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Stored API key removed")
	return nil
}

func runAuthPath(cmd *cobra.Command, args []string) error {
	_, paths, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), paths.AuthFile())
	return nil
}

func readKey(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Anthropic API key: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", 4) + key[len(key)-4:]
}
