package client

import "time"

type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type ReconcilerHealth struct {
	Status              string    `json:"status"`
	LastScan            time.Time `json:"last_scan"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	Recovered           int       `json:"recovered"`
	Wakes               int       `json:"wakes"`
	InWakeGrace         bool      `json:"in_wake_grace"`
}

type Status struct {
	Status           string            `json:"status"`
	Version          string            `json:"version"`
	APIKeyConfigured bool              `json:"api_key_configured"`
	HooksInstalled   bool              `json:"hooks_installed"`
	BannerDismissed  bool              `json:"banner_dismissed"`
	Subscribers      int               `json:"subscribers"`
	Reconciler       *ReconcilerHealth `json:"reconciler,omitempty"`
}

// Notification is one push from GET /ws.
type Notification struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

const (
	NotifySessionUpdate  = "session_update"
	NotifySessionDeleted = "session_deleted"
)

type registerResponse struct {
	PlaceholderID string `json:"placeholder_id"`
}

type stoppedResponse struct {
	Count int `json:"count"`
}
