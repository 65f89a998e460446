package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "plate-spinner"

// Paths locates every file plate-spinner reads or writes.
type Paths struct {
	ConfigDir string
	DataDir   string
	// ClaudeSettings is the assistant's settings file, checked for hooks.
	ClaudeSettings string
}

// DefaultPaths resolves ~/.config/plate-spinner for configuration and the
// platform data directory for the database.
func DefaultPaths() (Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve home directory: %w", err)
	}
	return Paths{
		ConfigDir:      filepath.Join(home, ".config", appName),
		DataDir:        filepath.Join(dataHome(home), appName),
		ClaudeSettings: filepath.Join(home, ".claude", "settings.json"),
	}, nil
}

func dataHome(home string) string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support")
	}
	return filepath.Join(home, ".local", "share")
}

func (p Paths) ConfigFile() string { return filepath.Join(p.ConfigDir, "config.yaml") }
func (p Paths) AuthFile() string   { return filepath.Join(p.ConfigDir, "auth.toml") }
func (p Paths) DBPath() string     { return filepath.Join(p.DataDir, "plate-spinner.db") }
func (p Paths) LogFile() string    { return filepath.Join(p.DataDir, "daemon.log") }

func (p Paths) Banner() *BannerMarker {
	return &BannerMarker{path: filepath.Join(p.DataDir, "banner_dismissed")}
}

// BannerMarker records that the API key banner was dismissed by the
// existence of an empty file.
type BannerMarker struct {
	path string
}

func (b *BannerMarker) Dismissed() bool {
	_, err := os.Stat(b.path)
	return err == nil
}

func (b *BannerMarker) Dismiss() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(b.path, nil, 0644)
}

func (b *BannerMarker) Reset() error {
	if err := os.Remove(b.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
