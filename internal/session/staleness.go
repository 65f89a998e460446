package session

import "time"

const (
	DefaultStalenessThreshold = 2 * time.Second
	DefaultRunningStaleAfter  = 30 * time.Second
)

// StalenessPolicy decides when a recorded status no longer matches what the
// transcript on disk says.
type StalenessPolicy struct {
	// Threshold applies to sessions waiting on the user.
	Threshold time.Duration
	// RunningThreshold is the absolute quiet time after which a Running
	// session is suspect.
	RunningThreshold time.Duration
}

func DefaultStalenessPolicy() StalenessPolicy {
	return StalenessPolicy{
		Threshold:        DefaultStalenessThreshold,
		RunningThreshold: DefaultRunningStaleAfter,
	}
}

// IsStale is true when the transcript was written after the last recorded
// update by more than the threshold.
func (p StalenessPolicy) IsStale(transcriptMtime, lastUpdate time.Time) bool {
	return transcriptMtime.After(lastUpdate.Add(p.Threshold))
}

// IsRunningStale is true when nothing happened for longer than the running
// threshold.
func (p StalenessPolicy) IsRunningStale(lastActivity, now time.Time) bool {
	return now.Sub(lastActivity) > p.RunningThreshold
}
