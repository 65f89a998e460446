package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/plate-spinner/plate-spinner/internal/client"
	"github.com/plate-spinner/plate-spinner/internal/config"
	"github.com/plate-spinner/plate-spinner/internal/launcher"
	"github.com/spf13/cobra"
)

var runAssistant string

var runCmd = &cobra.Command{
	Use:   "run [-- assistant args...]",
	Short: "Run the assistant with status tracking",
	Long: `Start the daemon if needed, register a placeholder for this project,
run the assistant with its hooks enabled, and mark the project's sessions
closed when it exits.

Examples:
  sp run
  sp run -- --continue`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runAssistant, "assistant", "claude", "Assistant executable")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, paths, err := loadConfig()
	if err != nil {
		return err
	}
	project, err := os.Getwd()
	if err != nil {
		return err
	}
	c := newClient(cfg)

	l := launcher.New(c, version, paths.LogFile())
	if _, err := l.EnsureRunning(cmd.Context()); err != nil {
		log.Printf("daemon unavailable, continuing without tracking: %v", err)
	} else if _, err := c.Register(cmd.Context(), project); err != nil {
		log.Printf("register %s: %v", project, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			notifyStopped(c, project)
			os.Exit(1)
		}
	}()

	assistant := exec.Command(runAssistant, args...)
	assistant.Stdin = os.Stdin
	assistant.Stdout = os.Stdout
	assistant.Stderr = os.Stderr
	assistant.Env = append(os.Environ(), config.EnvMarker+"=1")
	runErr := assistant.Run()

	notifyStopped(c, project)

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		os.Exit(exitErr.ExitCode())
	}
	if runErr != nil {
		return fmt.Errorf("failed to run %s: %w", runAssistant, runErr)
	}
	return nil
}

func notifyStopped(c *client.HTTPClient, project string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := c.Stopped(ctx, project); err != nil {
		log.Printf("mark %s stopped: %v", project, err)
	}
}
