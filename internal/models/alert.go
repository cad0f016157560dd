package models

import "time"

// AlertSeverity enumerates inbound alert levels.
type AlertSeverity string

const (
	AlertCritical AlertSeverity = "critical"
	AlertWarning  AlertSeverity = "warning"
	AlertInfo     AlertSeverity = "info"
)

// AlertMetrics carries the quantitative evidence attached to an alert.
type AlertMetrics struct {
	ErrorCount        int           `json:"error_count"`
	TimeWindow        time.Duration `json:"time_window"`
	AffectedEndpoints []string      `json:"affected_endpoints,omitempty"`
}

// AlertContext is one inbound alert to investigate. Immutable; one per
// incoming webhook record or scheduler-detected error.
type AlertContext struct {
	Timestamp       time.Time     `json:"timestamp"`
	AlertName       string        `json:"alert_name"`
	Severity        AlertSeverity `json:"severity"`
	AffectedService string        `json:"affected_service"`
	LogQuery        string        `json:"log_query"`
	Metrics         AlertMetrics  `json:"metrics"`
}

// AlertRecord is the persisted trace of one received alert and the outcome of
// its investigation, served by the history endpoints.
type AlertRecord struct {
	ID           int64         `json:"id"`
	Source       string        `json:"source"`
	AlertName    string        `json:"alert_name"`
	Service      string        `json:"service"`
	Severity     AlertSeverity `json:"severity"`
	Status       string        `json:"status"`
	Signature    string        `json:"signature,omitempty"`
	Confidence   int           `json:"confidence"`
	ReceivedAt   time.Time     `json:"received_at"`
	CompletedAt  time.Time     `json:"completed_at,omitempty"`
	TicketNumber int           `json:"ticket_number,omitempty"`
}

// Alert record statuses as stored and reported by the API.
const (
	AlertStatusQueued        = "queued"
	AlertStatusInvestigating = "investigating"
	AlertStatusDismissed     = "dismissed"
	AlertStatusTicketed      = "ticketed"
	AlertStatusRemediated    = "remediated"
	AlertStatusFailed        = "failed"
)
