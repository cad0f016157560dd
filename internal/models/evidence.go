package models

import "time"

// LogAnalysis summarises detector output for a single alert.
type LogAnalysis struct {
	Errors        []DetectedError
	TotalEntries  int
	ErrorCount    int
	HasStackTrace bool
	WindowStart   time.Time
	WindowEnd     time.Time
}

// TopError returns the detected error with the highest occurrence count, or
// nil when the analysis found nothing.
func (a LogAnalysis) TopError() *DetectedError {
	var top *DetectedError
	for i := range a.Errors {
		if top == nil || a.Errors[i].OccurrenceCount > top.OccurrenceCount {
			top = &a.Errors[i]
		}
	}
	return top
}

// HealthCheck is a point-in-time probe of the affected service.
type HealthCheck struct {
	APIResponsive     bool
	DatabaseConnected bool
	ResponseTime      time.Duration
	CheckedAt         time.Time
	Detail            string
}

// HistoricalContext is the store's memory of prior occurrences of the same
// signature or alert name. Read-only evidence; empty when nothing is on file.
type HistoricalContext struct {
	SeenBefore      bool
	OccurrenceCount int
	FirstSeen       time.Time
	LastSeen        time.Time
	Resolved        bool
	TicketNumber    int
}

// KnownIssue is a pre-seeded catalog entry matched against error text. Matches
// increment OccurrenceCount externally via the catalog.
type KnownIssue struct {
	ID                string        `yaml:"id"`
	Title             string        `yaml:"title"`
	Pattern           string        `yaml:"pattern"`
	Cause             string        `yaml:"cause"`
	Severity          ErrorSeverity `yaml:"severity"`
	Category          string        `yaml:"category"`
	Component         string        `yaml:"component"`
	AutoRemediable    bool          `yaml:"autoRemediable"`
	RemediationAction string        `yaml:"remediationAction"`
	OccurrenceCount   int           `yaml:"-"`
}
