package models

import "time"

// Checkpoint marks the last processed log timestamp for one monitored
// service. Upserted after every poll cycle.
type Checkpoint struct {
	ServiceName   string
	LastCheckTime time.Time
}

// DefaultCheckpointAge is how far back a service with no stored checkpoint is
// assumed to have been last checked.
const DefaultCheckpointAge = 15 * time.Minute

// IssueRecord is the persisted deduplication record for one error signature.
// Created once per unique signature; later matches increment OccurrenceCount
// and extend LastSeen instead of creating duplicates.
type IssueRecord struct {
	Signature       string        `json:"signature"`
	ServiceName     string        `json:"service_name"`
	Title           string        `json:"title"`
	Severity        ErrorSeverity `json:"severity"`
	Category        string        `json:"category"`
	TicketNumber    int           `json:"ticket_number,omitempty"`
	TicketURL       string        `json:"ticket_url,omitempty"`
	OccurrenceCount int           `json:"occurrence_count"`
	Analyzed        bool          `json:"analyzed"`
	Resolved        bool          `json:"resolved"`
	FirstSeen       time.Time     `json:"first_seen"`
	LastSeen        time.Time     `json:"last_seen"`
}

// StoreStats exposes persisted counters for the health and stats endpoints.
type StoreStats struct {
	AlertsTotal       int `json:"alerts_total"`
	OpenIssues        int `json:"open_issues"`
	ResolvedIssues    int `json:"resolved_issues"`
	RemediationsTotal int `json:"remediations_total"`
}
