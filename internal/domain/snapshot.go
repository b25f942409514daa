package domain

import "time"

// RelaySnapshot is a read-only view of a live relay session.
type RelaySnapshot struct {
	Session     Session    `json:"session"`
	State       string     `json:"state"`
	Muted       bool       `json:"muted"`
	Attempts    int        `json:"reconnect_attempts"`
	LastAttempt *time.Time `json:"last_reconnect,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	Usage       UsageStats `json:"usage"`
}
