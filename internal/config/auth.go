package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const apiKeyEnv = "ANTHROPIC_API_KEY"

type Auth struct {
	AnthropicAPIKey string `toml:"anthropic_api_key"`
}

// LoadAuth reads the auth file. A missing file returns a zero Auth.
func LoadAuth(path string) (Auth, error) {
	var a Auth
	if _, err := toml.DecodeFile(path, &a); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Auth{}, nil
		}
		return Auth{}, fmt.Errorf("read %s: %w", path, err)
	}
	return a, nil
}

// SaveAuth writes the auth file readable only by the owner.
func SaveAuth(path string, a Auth) error {
	if strings.TrimSpace(a.AnthropicAPIKey) == "" {
		return errors.New("API key cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(a); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return err
	}
	// WriteFile keeps the mode of an existing file.
	return os.Chmod(path, 0600)
}

func DeleteAuth(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// KeySource says where APIKey found the key.
type KeySource int

const (
	KeyNone KeySource = iota
	KeyFromEnv
	KeyFromFile
)

// APIKey returns the Anthropic key, preferring the environment over the
// auth file.
func APIKey(authPath string) (string, KeySource) {
	if key := strings.TrimSpace(os.Getenv(apiKeyEnv)); key != "" {
		return key, KeyFromEnv
	}
	a, err := LoadAuth(authPath)
	if err != nil || a.AnthropicAPIKey == "" {
		return "", KeyNone
	}
	return a.AnthropicAPIKey, KeyFromFile
}
