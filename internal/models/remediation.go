package models

import "time"

// RemediationResult records one scripted fix attempt. Append-only; persisted
// regardless of outcome.
type RemediationResult struct {
	Attempted         bool
	Success           bool
	Action            string
	Logs              []string
	ShouldCreateIssue bool
	StartedAt         time.Time
	FinishedAt        time.Time
}

// Remediation strategy identifiers dispatched by the remediation table.
const (
	ActionRestart        = "restart"
	ActionReconnectDB    = "reconnect-db"
	ActionReconnectRedis = "reconnect-redis"
	ActionCacheClear     = "cache-clear"
)
