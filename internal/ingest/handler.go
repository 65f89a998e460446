// Package ingest turns inbound hook events into store writes and schedules
// opportunistic summarization.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/plate-spinner/plate-spinner/internal/session"
	"github.com/plate-spinner/plate-spinner/internal/store"
	"github.com/plate-spinner/plate-spinner/internal/summarizer"
)

var ErrInvalidEvent = errors.New("invalid event")

const (
	DefaultCadence = 5
	DefaultTimeout = 45 * time.Second
)

// Store is the subset of *store.Store the handler writes through.
type Store interface {
	Ingest(store.IngestRecord) (store.IngestResult, error)
	TranscriptPath(sessionID string) (string, error)
	Goal(sessionID string) (string, error)
	EventCountByType(sessionID, eventType string) (int, error)
	SetSummary(sessionID, summary, goal string) error
}

type Summarizer interface {
	Summarize(ctx context.Context, transcriptPath, cachedGoal string) (summarizer.Result, error)
}

type Config struct {
	// Cadence summarizes on every Nth tool_call event of a session. Zero
	// disables the periodic trigger.
	Cadence int
	// Timeout bounds one summarization call.
	Timeout time.Duration
}

type Result struct {
	Status  session.Status
	Existed bool
}

type Handler struct {
	store      Store
	summarizer Summarizer
	cfg        Config
	now        func() time.Time

	group singleflight.Group
	wg    sync.WaitGroup
}

// NewHandler returns a handler writing to st. A nil sum disables
// summarization.
func NewHandler(st Store, sum Summarizer, cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Handler{
		store:      st,
		summarizer: sum,
		cfg:        cfg,
		now:        time.Now,
	}
}

// nextStatus applies ev to the stored status. A closed session only comes
// back on a new prompt or a session start.
func nextStatus(ev session.Event) store.NextStatus {
	return func(prior session.Status, existed bool) session.Status {
		if existed && prior == session.Closed && !ev.Reopens() {
			return session.Closed
		}
		return prior.Transition(ev)
	}
}

// Handle validates and records one event. payload is the raw body as
// received; when nil, ev is re-encoded for the event log.
func (h *Handler) Handle(ctx context.Context, ev *session.HookEvent, payload []byte) (Result, error) {
	if err := ev.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if payload == nil {
		data, err := json.Marshal(ev)
		if err != nil {
			return Result{}, err
		}
		payload = data
	}

	res, err := h.store.Ingest(store.IngestRecord{
		Upsert: store.UpsertParams{
			SessionID:      ev.SessionID,
			ProjectPath:    ev.ProjectPath,
			TranscriptPath: ev.TranscriptPath,
			GitBranch:      ev.GitBranch,
			ToolTarget:     ev.ToolTarget,
			EventType:      ev.EventType,
			ToolName:       ev.ToolName,
			Now:            h.now(),
		},
		Next:    nextStatus(ev.StatusEvent()),
		Payload: payload,
		Todos:   ev.Todos(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("ingest %s: %w", ev.SessionID, err)
	}

	if h.summarizer != nil {
		h.maybeSummarize(ev, res.Status)
	}
	return Result{Status: res.Status, Existed: res.Existed}, nil
}

func (h *Handler) shouldSummarize(ev *session.HookEvent, status session.Status) bool {
	if status.NeedsAttention() {
		return true
	}
	goal, err := h.store.Goal(ev.SessionID)
	if err != nil {
		log.Printf("ingest: reading goal for %s: %v", ev.SessionID, err)
		return false
	}
	if goal == "" {
		return true
	}
	if h.cfg.Cadence > 0 && ev.EventType == session.HookToolCall {
		n, err := h.store.EventCountByType(ev.SessionID, session.HookToolCall)
		if err != nil {
			log.Printf("ingest: counting events for %s: %v", ev.SessionID, err)
			return false
		}
		return n > 0 && n%h.cfg.Cadence == 0
	}
	return false
}

func (h *Handler) maybeSummarize(ev *session.HookEvent, status session.Status) {
	if !h.shouldSummarize(ev, status) {
		return
	}
	id := ev.SessionID

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		// Concurrent triggers for one session share a single call.
		h.group.Do(id, func() (any, error) {
			h.summarize(id)
			return nil, nil
		})
	}()
}

func (h *Handler) summarize(id string) {
	path, err := h.store.TranscriptPath(id)
	if err != nil || path == "" {
		return
	}
	goal, err := h.store.Goal(id)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.Timeout)
	defer cancel()
	res, err := h.summarizer.Summarize(ctx, path, goal)
	if err != nil {
		if !errors.Is(err, summarizer.ErrNoAPIKey) {
			log.Printf("ingest: summarize %s: %v", id, err)
		}
		return
	}
	if err := h.store.SetSummary(id, res.Summary, res.Goal); err != nil {
		log.Printf("ingest: saving summary for %s: %v", id, err)
	}
}

// Wait blocks until every scheduled summarization has finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}
