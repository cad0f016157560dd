package models

import "time"

// ErrorSeverity ranks detected errors by impact.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// DetectedError is one temporally-grouped run of error-like log entries.
// Merge is the only mutation path: counts sum, LastSeen extends, stored log
// lines cap at MaxMergedLogLines. Everything else is fixed at detection time.
type DetectedError struct {
	Signature       string
	ServiceName     string
	ErrorMessage    string
	Severity        ErrorSeverity
	Category        string
	LogLines        []string
	StackTrace      string
	FirstSeen       time.Time
	LastSeen        time.Time
	OccurrenceCount int
	DeploymentID    string
}

// MaxErrorLogLines bounds the log lines stored on a freshly detected error.
const MaxErrorLogLines = 10

// MaxMergedLogLines bounds the log lines kept after merging occurrences.
const MaxMergedLogLines = 20
