package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 7890
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Broadcast  BroadcastConfig  `yaml:"broadcast"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

type MonitorConfig struct {
	Interval           time.Duration `yaml:"interval"`
	StalenessThreshold time.Duration `yaml:"staleness_threshold"`
	RunningStaleAfter  time.Duration `yaml:"running_stale_after"`
	RunningTimeout     time.Duration `yaml:"running_timeout"`
	WakeGrace          time.Duration `yaml:"wake_grace"`
	SleepMultiplier    int           `yaml:"sleep_multiplier"`
}

type BroadcastConfig struct {
	Buffer int `yaml:"buffer"`
}

type SummarizerConfig struct {
	Enabled bool          `yaml:"enabled"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// Cadence summarizes every Nth tool call; 0 turns the periodic
	// trigger off.
	Cadence int `yaml:"cadence"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: DefaultPort,
			Host: DefaultHost,
		},
		Monitor: MonitorConfig{
			Interval:           10 * time.Second,
			StalenessThreshold: 2 * time.Second,
			RunningStaleAfter:  30 * time.Second,
			RunningTimeout:     5 * time.Minute,
			WakeGrace:          10 * time.Second,
			SleepMultiplier:    3,
		},
		Broadcast: BroadcastConfig{
			Buffer: 100,
		},
		Summarizer: SummarizerConfig{
			Enabled: true,
			Model:   "claude-3-5-haiku-latest",
			BaseURL: "https://api.anthropic.com/v1",
			Timeout: 30 * time.Second,
			Cadence: 5,
		},
	}
}

// Load reads path on top of the defaults. A missing file is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save validates cfg and writes it to path as YAML.
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.Host == "" {
		return errors.New("server.host is empty")
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"monitor.interval", c.Monitor.Interval},
		{"monitor.staleness_threshold", c.Monitor.StalenessThreshold},
		{"monitor.running_stale_after", c.Monitor.RunningStaleAfter},
		{"monitor.running_timeout", c.Monitor.RunningTimeout},
		{"monitor.wake_grace", c.Monitor.WakeGrace},
		{"summarizer.timeout", c.Summarizer.Timeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", d.name, d.d)
		}
	}
	if c.Monitor.SleepMultiplier < 1 {
		return fmt.Errorf("monitor.sleep_multiplier must be at least 1, got %d", c.Monitor.SleepMultiplier)
	}
	if c.Broadcast.Buffer < 1 {
		return fmt.Errorf("broadcast.buffer must be at least 1, got %d", c.Broadcast.Buffer)
	}
	if c.Summarizer.Cadence < 0 {
		return fmt.Errorf("summarizer.cadence must not be negative, got %d", c.Summarizer.Cadence)
	}
	return nil
}

// BaseURL is where clients reach the daemon.
func (c *Config) BaseURL() string {
	host := c.Server.Host
	if host == "0.0.0.0" || host == "" {
		host = DefaultHost
	}
	return fmt.Sprintf("http://%s:%d", host, c.Server.Port)
}
