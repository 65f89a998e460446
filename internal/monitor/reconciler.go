// Package monitor runs the background scan that corrects session statuses
// whose closing hook event never arrived.
package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/plate-spinner/plate-spinner/internal/session"
	"github.com/plate-spinner/plate-spinner/internal/transcript"
)

const (
	DefaultInterval        = 10 * time.Second
	DefaultWakeGrace       = 10 * time.Second
	DefaultSleepMultiplier = 3
	DefaultRunningTimeout  = 5 * time.Minute
)

// Store is the subset of *store.Store the reconciler needs.
type Store interface {
	ListSessions() ([]*session.Session, error)
	CompareAndSetStatus(sessionID string, from session.Status, seenUpdatedAt time.Time, to session.Status, now time.Time) (bool, error)
}

type Config struct {
	Interval time.Duration
	// WakeGrace is how long Running sessions are left alone after the
	// process is found to have been suspended.
	WakeGrace time.Duration
	// SleepMultiplier times Interval is the gap between cycles that counts
	// as a suspend.
	SleepMultiplier int
	// RunningTimeout downgrades a quiet Running session even when its
	// transcript does not show a finished turn.
	RunningTimeout time.Duration
	Policy         session.StalenessPolicy
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.WakeGrace <= 0 {
		c.WakeGrace = DefaultWakeGrace
	}
	if c.SleepMultiplier <= 0 {
		c.SleepMultiplier = DefaultSleepMultiplier
	}
	if c.RunningTimeout <= 0 {
		c.RunningTimeout = DefaultRunningTimeout
	}
	if c.Policy == (session.StalenessPolicy{}) {
		c.Policy = session.DefaultStalenessPolicy()
	}
}

// Reconciler periodically compares recorded statuses with transcript
// activity. lastCheck and graceUntil belong to the goroutine running Start;
// Cycle must not be called concurrently.
type Reconciler struct {
	store Store
	cfg   Config

	now       func() time.Time
	modTime   func(path string) (time.Time, error)
	completed func(path string) bool

	lastCheck  time.Time
	graceUntil time.Time

	health scanHealth
}

func NewReconciler(st Store, cfg Config) *Reconciler {
	cfg.applyDefaults()
	return &Reconciler{
		store:     st,
		cfg:       cfg,
		now:       time.Now,
		modTime:   transcript.ModTime,
		completed: transcript.ShowsCompletion,
	}
}

// Start runs a cycle immediately and then on every tick until ctx is done.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	log.Printf("Reconciler started (interval %v, running timeout %v)", r.cfg.Interval, r.cfg.RunningTimeout)

	r.Cycle(r.now())

	for {
		select {
		case <-ctx.Done():
			log.Println("Reconciler stopped")
			return
		case <-ticker.C:
			r.Cycle(r.now())
		}
	}
}

// Health returns a snapshot safe to read from any goroutine.
func (r *Reconciler) Health() HealthSnapshot {
	return r.health.snapshot(r.now())
}

// Cycle performs one scan at time now and returns the ids it rewrote.
func (r *Reconciler) Cycle(now time.Time) []string {
	if !r.lastCheck.IsZero() {
		gap := now.Sub(r.lastCheck)
		if gap > r.cfg.Interval*time.Duration(r.cfg.SleepMultiplier) {
			r.graceUntil = now.Add(r.cfg.WakeGrace)
			r.health.recordWake(r.graceUntil)
			log.Printf("Reconciler: %v since last scan, assuming suspend; running sessions exempt until %s",
				gap.Round(time.Second), r.graceUntil.Format(time.TimeOnly))
		}
	}
	r.lastCheck = now
	inGrace := now.Before(r.graceUntil)

	sessions, err := r.store.ListSessions()
	if err != nil {
		r.health.recordFailure(now, err)
		log.Printf("Reconciler: listing sessions: %v", err)
		return nil
	}

	var changed []string
	for _, s := range sessions {
		to, ok := r.recover(s, now, inGrace)
		if !ok {
			continue
		}
		applied, err := r.store.CompareAndSetStatus(s.SessionID, s.Status, s.UpdatedAt, to, now)
		if err != nil {
			r.health.recordWriteError(now, fmt.Errorf("%s: %w", s.SessionID, err))
			log.Printf("Reconciler: updating %s: %v", s.SessionID, err)
			continue
		}
		if applied {
			log.Printf("Reconciler: %s %s -> %s", s.SessionID, s.Status, to)
			changed = append(changed, s.SessionID)
		}
	}
	r.health.recordScan(now, len(changed))
	return changed
}

// recover decides whether s is stale and, if so, which status it should
// move to.
func (r *Reconciler) recover(s *session.Session, now time.Time, inGrace bool) (session.Status, bool) {
	if s.TranscriptPath == "" {
		return s.Status, false
	}
	if s.Status != session.Running && !s.Status.Recoverable() {
		return s.Status, false
	}
	if s.Status == session.Running && inGrace {
		return s.Status, false
	}

	mtime, err := r.modTime(s.TranscriptPath)
	if err != nil {
		return s.Status, false
	}

	if s.Status == session.Running {
		last := mtime
		if s.UpdatedAt.After(last) {
			last = s.UpdatedAt
		}
		if !r.cfg.Policy.IsRunningStale(last, now) {
			return s.Status, false
		}
		if now.Sub(last) <= r.cfg.RunningTimeout && !r.completed(s.TranscriptPath) {
			return s.Status, false
		}
		// Recovery keeps Running; the write refreshes updated_at so the
		// session is not reconsidered until it goes quiet again.
		return s.Status.Transition(session.HealthCheckRecovery()), true
	}

	if !r.cfg.Policy.IsStale(mtime, s.UpdatedAt) {
		return s.Status, false
	}
	return s.Status.Transition(session.HealthCheckRecovery()), true
}
