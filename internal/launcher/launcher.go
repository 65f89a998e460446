// Package launcher starts, restarts and stops the background daemon on
// behalf of short-lived CLI commands.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/plate-spinner/plate-spinner/internal/client"
)

const (
	// shutdownSettle is how long a replaced daemon gets to release the port.
	shutdownSettle = 500 * time.Millisecond
	startTimeout   = 3 * time.Second
	pollInterval   = 100 * time.Millisecond
)

type Outcome int

const (
	AlreadyRunning Outcome = iota
	Started
	Restarted
)

func (o Outcome) String() string {
	switch o {
	case AlreadyRunning:
		return "already running"
	case Started:
		return "started"
	case Restarted:
		return "restarted"
	}
	return "unknown"
}

type Launcher struct {
	client  *client.HTTPClient
	version string
	logPath string
	args    []string

	spawn  func() error
	settle time.Duration
	wait   time.Duration
}

// New returns a launcher for the daemon reachable through c. A daemon
// reporting a version other than version is replaced.
func New(c *client.HTTPClient, version, logPath string, daemonArgs ...string) *Launcher {
	l := &Launcher{
		client:  c,
		version: version,
		logPath: logPath,
		args:    append([]string{"daemon"}, daemonArgs...),
		settle:  shutdownSettle,
		wait:    startTimeout,
	}
	l.spawn = l.spawnDetached
	return l
}

// EnsureRunning makes sure a daemon of the current version is answering.
func (l *Launcher) EnsureRunning(ctx context.Context) (Outcome, error) {
	h, err := l.client.Health(ctx)
	if err == nil && h.Version == l.version {
		return AlreadyRunning, nil
	}

	outcome := Started
	if err == nil {
		log.Printf("daemon version %s does not match %s, restarting", h.Version, l.version)
		outcome = Restarted
		if err := l.client.Shutdown(ctx); err != nil {
			log.Printf("shutdown request failed: %v", err)
		}
		if !sleep(ctx, l.settle) {
			return outcome, ctx.Err()
		}
	}

	if err := l.spawn(); err != nil {
		return outcome, fmt.Errorf("spawn daemon: %w", err)
	}
	if err := l.awaitHealthy(ctx); err != nil {
		return outcome, err
	}
	return outcome, nil
}

func (l *Launcher) awaitHealthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	for {
		if h, err := l.client.Health(ctx); err == nil && h.Version == l.version {
			return nil
		}
		if !sleep(ctx, pollInterval) {
			return errors.New("daemon did not become healthy; see " + l.logPath)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// spawnDetached starts this executable as the daemon in its own process
// group with output appended to the log file.
func (l *Launcher) spawnDetached() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.logPath), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	cmd := exec.Command(exe, l.args...)
	cmd.Stdout = f
	cmd.Stderr = f
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}
