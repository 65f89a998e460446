// Package summarizer asks a language model for a one-line description of
// what a session is doing. Results are advisory; callers treat every error
// as "no update".
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cbroglie/mustache"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"

	"github.com/plate-spinner/plate-spinner/internal/transcript"
)

const (
	DefaultModel      = "claude-3-5-haiku-latest"
	DefaultBaseURL    = "https://api.anthropic.com/v1"
	DefaultTimeout    = 30 * time.Second
	shortSessionLimit = 5
	headMessages      = 5
	tailMessages      = 10
	activityMessages  = 5
)

var (
	ErrNoAPIKey   = errors.New("no API key configured")
	ErrNoMessages = errors.New("transcript has no usable messages")
	errEmptyReply = errors.New("empty response")
)

const shortPrompt = `What is this conversation about? Reply with ONLY a short phrase (3-8 words).

{{{context}}}`

const activityPrompt = `Conversation excerpt:
---
{{{context}}}
---

The overall task is "{{{goal}}}". Based on the last Assistant message, what is the current activity?
Reply with ONLY a brief phrase (3-8 words).`

const goalPrompt = `Conversation excerpt:
---
{{{context}}}
---

Summarize as: Goal: current activity
- Goal = overall task (2-4 words)
- Current activity = from the LAST assistant message
Example: Auth system: Running login tests
Reply with ONLY that one line.`

type Config struct {
	Model string
	// BaseURL is the API root; requests go to BaseURL + "/messages".
	BaseURL string
	Timeout time.Duration
}

// Result is one summarization. Goal is empty when the cached goal should be
// kept.
type Result struct {
	Summary string
	Goal    string
}

// Summarizer calls the Anthropic Messages API through langchaingo.
type Summarizer struct {
	cfg    Config
	apiKey func() string
	client *http.Client
}

// New returns a Summarizer that resolves its API key through apiKey on every
// call, so a key configured while the daemon runs takes effect immediately.
func New(cfg Config, apiKey func() string) *Summarizer {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Summarizer{
		cfg:    cfg,
		apiKey: apiKey,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// request is one prompt ready to send.
type request struct {
	prompt    string
	maxTokens int
	// goal is the cached goal used to build the prompt, if any.
	goal string
	// extractGoal is set when the reply carries a new goal.
	extractGoal bool
}

func buildRequest(messages []string, cachedGoal string) (request, error) {
	if len(messages) < shortSessionLimit {
		p, err := mustache.Render(shortPrompt, map[string]any{"context": strings.Join(messages, "\n")})
		return request{prompt: p, maxTokens: 30}, err
	}

	if cachedGoal != "" {
		recent := messages[max(0, len(messages)-activityMessages):]
		p, err := mustache.Render(activityPrompt, map[string]any{
			"context": strings.Join(recent, "\n"),
			"goal":    cachedGoal,
		})
		return request{prompt: p, maxTokens: 40, goal: cachedGoal}, err
	}

	excerpt := strings.Join(messages, "\n")
	if len(messages) > headMessages+tailMessages {
		excerpt = strings.Join(messages[:headMessages], "\n") + "\n...\n" +
			strings.Join(messages[len(messages)-tailMessages:], "\n")
	}
	p, err := mustache.Render(goalPrompt, map[string]any{"context": excerpt})
	return request{prompt: p, maxTokens: 60, extractGoal: true}, err
}

// goalFromSummary returns the text before the first colon, or the whole
// summary when there is none.
func goalFromSummary(summary string) string {
	if goal, _, ok := strings.Cut(summary, ":"); ok {
		return strings.TrimSpace(goal)
	}
	return summary
}

// Summarize reads the transcript and returns a fresh summary. cachedGoal,
// when set, is reused instead of asking for a new one.
func (s *Summarizer) Summarize(ctx context.Context, transcriptPath, cachedGoal string) (Result, error) {
	key := ""
	if s.apiKey != nil {
		key = s.apiKey()
	}
	if key == "" {
		return Result{}, ErrNoAPIKey
	}

	messages, err := transcript.Messages(transcriptPath)
	if err != nil {
		return Result{}, fmt.Errorf("reading transcript: %w", err)
	}
	if len(messages) == 0 {
		return Result{}, ErrNoMessages
	}

	req, err := buildRequest(messages, cachedGoal)
	if err != nil {
		return Result{}, fmt.Errorf("rendering prompt: %w", err)
	}
	reply, err := s.complete(ctx, key, req.prompt, req.maxTokens)
	if err != nil {
		return Result{}, err
	}

	switch {
	case req.goal != "":
		return Result{Summary: req.goal + ": " + reply}, nil
	case req.extractGoal:
		return Result{Summary: reply, Goal: goalFromSummary(reply)}, nil
	default:
		return Result{Summary: reply}, nil
	}
}

func (s *Summarizer) complete(ctx context.Context, key, prompt string, maxTokens int) (string, error) {
	llm, err := anthropic.New(
		anthropic.WithToken(key),
		anthropic.WithModel(s.cfg.Model),
		anthropic.WithBaseURL(s.cfg.BaseURL),
		anthropic.WithHTTPClient(s.client),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create anthropic client: %w", err)
	}

	reply, err := llms.GenerateFromSinglePrompt(ctx, llm, prompt,
		llms.WithMaxTokens(maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("anthropic generation failed: %w", err)
	}
	text := strings.TrimSpace(reply)
	if text == "" {
		return "", errEmptyReply
	}
	return text, nil
}
