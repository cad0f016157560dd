package models

import "time"

// LogSeverity enumerates log levels emitted by monitored services.
type LogSeverity string

const (
	LogInfo  LogSeverity = "info"
	LogWarn  LogSeverity = "warn"
	LogError LogSeverity = "error"
)

// LogEntry is one normalised log line from a monitored service. Entries are
// immutable once parsed; the detector only reads them.
type LogEntry struct {
	Timestamp    time.Time
	Message      string
	Severity     LogSeverity
	ServiceName  string
	DeploymentID string
	RawLine      string
}
