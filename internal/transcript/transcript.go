// Package transcript reads the JSONL transcripts the assistant tool appends
// to while a session runs.
package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// tailSize bounds how much of a transcript is read to find its last entry.
const tailSize = 64 * 1024

const (
	maxMessageRunes     = 200
	minMessageBytes     = 10
	maxAssistantBlocks  = 3
	stopReasonEndOfTurn = "end_turn"
)

type Entry struct {
	Type      string          `json:"type"`
	UUID      string          `json:"uuid,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
}

type message struct {
	Role       string          `json:"role"`
	StopReason string          `json:"stop_reason"`
	Content    json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Name string `json:"name,omitempty"`
}

// ModTime returns the transcript's modification time.
func ModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// LastEntry parses the last non-empty line of the transcript. Only the final
// 64KiB are read; the first, possibly partial, line of that window is
// skipped.
func LastEntry(path string) (*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader := bufio.NewReader(f)
	if info.Size() > tailSize {
		if _, err := f.Seek(-tailSize, io.SeekEnd); err != nil {
			return nil, err
		}
		reader.Reset(f)
		if _, err := reader.ReadBytes('\n'); err != nil {
			return nil, fmt.Errorf("no complete line in last %d bytes", tailSize)
		}
	}

	var last []byte
	for {
		line, err := reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			last = append(last[:0], trimmed...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if len(last) == 0 {
		return nil, fmt.Errorf("transcript %s is empty", path)
	}

	var entry Entry
	if err := json.Unmarshal(last, &entry); err != nil {
		return nil, fmt.Errorf("parsing last entry: %w", err)
	}
	return &entry, nil
}

// IsCompletion reports whether the entry ends a turn: a summary record, or
// an assistant message that stopped at an ordinary end of turn.
func (e *Entry) IsCompletion() bool {
	switch e.Type {
	case "summary":
		return true
	case "assistant":
		var msg message
		if err := json.Unmarshal(e.Message, &msg); err != nil {
			return false
		}
		return msg.StopReason == stopReasonEndOfTurn
	default:
		return false
	}
}

// ShowsCompletion reports whether the transcript's last entry is a
// completion. Any read or parse failure counts as "no".
func ShowsCompletion(path string) bool {
	entry, err := LastEntry(path)
	if err != nil {
		return false
	}
	return entry.IsCompletion()
}

// Messages condenses the transcript into short "User: ...",
// "Assistant: ..." and "Tool: ..." lines. Malformed lines are skipped.
func Messages(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			var entry Entry
			if json.Unmarshal(trimmed, &entry) == nil {
				out = append(out, entry.messages()...)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (e *Entry) messages() []string {
	if e.Type != "user" && e.Type != "assistant" {
		return nil
	}
	var msg message
	if err := json.Unmarshal(e.Message, &msg); err != nil {
		return nil
	}

	var text string
	if err := json.Unmarshal(msg.Content, &text); err == nil {
		if m, ok := condense(text); ok {
			if e.Type == "user" {
				return []string{"User: " + m}
			}
			return []string{"Assistant: " + m}
		}
		return nil
	}
	if e.Type != "assistant" {
		return nil
	}

	var blocks []contentBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return nil
	}
	if len(blocks) > maxAssistantBlocks {
		blocks = blocks[:maxAssistantBlocks]
	}
	var out []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if m, ok := condense(b.Text); ok {
				out = append(out, "Assistant: "+m)
			}
		case "tool_use":
			name := b.Name
			if name == "" {
				name = "unknown"
			}
			out = append(out, "Tool: "+name)
		}
	}
	return out
}

// condense truncates to maxMessageRunes and drops short confirmations.
func condense(text string) (string, bool) {
	r := []rune(text)
	if len(r) > maxMessageRunes {
		text = string(r[:maxMessageRunes])
	}
	return text, len(text) >= minMessageBytes
}

// EncodeProjectPath maps a working directory to the directory name the
// assistant tool uses under ~/.claude/projects.
func EncodeProjectPath(path string) string {
	return strings.ReplaceAll(filepath.Clean(path), "/", "-")
}

// FindLatest returns the most recently written transcript for projectPath.
func FindLatest(projectPath string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return findLatestIn(filepath.Join(homeDir, ".claude", "projects", EncodeProjectPath(projectPath)))
}

func findLatestIn(projectDir string) (string, error) {
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return "", fmt.Errorf("reading project dir %s: %w", projectDir, err)
	}

	var bestPath string
	var bestTime time.Time
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(bestTime) {
			bestTime = info.ModTime()
			bestPath = filepath.Join(projectDir, entry.Name())
		}
	}
	if bestPath == "" {
		return "", fmt.Errorf("no transcripts found in %s", projectDir)
	}
	return bestPath, nil
}

// SessionIDFromPath returns the session id encoded in a transcript file name.
func SessionIDFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".jsonl")
}
