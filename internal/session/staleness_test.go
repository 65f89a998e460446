package session

import (
	"testing"
	"time"
)

func TestIsStale(t *testing.T) {
	p := DefaultStalenessPolicy()
	base := time.Unix(100, 0)

	tests := []struct {
		name  string
		mtime time.Time
		want  bool
	}{
		{"equal", time.Unix(100, 0), false},
		{"at threshold", time.Unix(102, 0), false},
		{"past threshold", time.Unix(103, 0), true},
		{"just past threshold", base.Add(2*time.Second + time.Nanosecond), true},
		{"older transcript", time.Unix(90, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.IsStale(tt.mtime, base); got != tt.want {
				t.Errorf("IsStale(%v, %v) = %v, want %v", tt.mtime.Unix(), base.Unix(), got, tt.want)
			}
		})
	}
}

func TestIsRunningStale(t *testing.T) {
	p := DefaultStalenessPolicy()
	last := time.Unix(100, 0)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"fresh", time.Unix(110, 0), false},
		{"at threshold", time.Unix(130, 0), false},
		{"one second past", time.Unix(131, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.IsRunningStale(last, tt.now); got != tt.want {
				t.Errorf("IsRunningStale(100, %d) = %v, want %v", tt.now.Unix(), got, tt.want)
			}
		})
	}
}

func TestCustomThreshold(t *testing.T) {
	p := StalenessPolicy{Threshold: 5 * time.Second, RunningThreshold: time.Minute}
	u := time.Unix(1000, 0)
	if p.IsStale(u.Add(5*time.Second), u) {
		t.Error("IsStale at custom threshold = true, want false")
	}
	if !p.IsStale(u.Add(6*time.Second), u) {
		t.Error("IsStale past custom threshold = false, want true")
	}
}
