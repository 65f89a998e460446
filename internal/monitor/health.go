package monitor

import (
	"sync"
	"time"
)

// scanHealth tracks how the reconciler's scans are going. The reconciler
// goroutine writes it while HTTP handlers read snapshots, hence the mutex.
type scanHealth struct {
	mu                  sync.Mutex
	consecutiveFailures int
	lastErr             string
	lastFail            time.Time
	lastScan            time.Time
	recovered           int
	wakes               int
	graceUntil          time.Time
}

// HealthSnapshot is a point-in-time copy of the reconciler's health.
type HealthSnapshot struct {
	Status              string    `json:"status"`
	LastScan            time.Time `json:"last_scan"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	Recovered           int       `json:"recovered"`
	Wakes               int       `json:"wakes"`
	InWakeGrace         bool      `json:"in_wake_grace"`
}

const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthFailed   = "failed"
)

// failedThreshold is how many scans in a row must fail before the
// reconciler reports itself failed rather than degraded.
const failedThreshold = 3

func (h *scanHealth) recordScan(at time.Time, recovered int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures = 0
	h.lastScan = at
	h.recovered += recovered
}

func (h *scanHealth) recordFailure(at time.Time, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures++
	h.lastErr = err.Error()
	h.lastFail = at
}

// recordWriteError notes a failed per-session write without failing the
// scan as a whole.
func (h *scanHealth) recordWriteError(at time.Time, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastErr = err.Error()
	h.lastFail = at
}

func (h *scanHealth) recordWake(graceUntil time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.wakes++
	h.graceUntil = graceUntil
}

func (h *scanHealth) snapshot(now time.Time) HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := HealthOK
	switch {
	case h.consecutiveFailures >= failedThreshold:
		status = HealthFailed
	case h.consecutiveFailures > 0:
		status = HealthDegraded
	}
	return HealthSnapshot{
		Status:              status,
		LastScan:            h.lastScan,
		ConsecutiveFailures: h.consecutiveFailures,
		LastError:           h.lastErr,
		Recovered:           h.recovered,
		Wakes:               h.wakes,
		InWakeGrace:         now.Before(h.graceUntil),
	}
}
