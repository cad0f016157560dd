package store

import (
	"context"
	"errors"
	"time"

	"github.com/dinestack/dinewatch/internal/models"
)

// ErrNotFound signals that a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the single shared mutable resource of the pipeline. All writes are
// idempotent upserts or atomic increments keyed by a natural unique key
// (signature, service name, alert id), so concurrent investigations rely on
// these semantics instead of application-level locking.
type Store interface {
	// Ping verifies connectivity; the in-memory store always succeeds.
	Ping(ctx context.Context) error
	// Reconnect tears down and re-establishes the backing connection. Used by
	// the reconnect-db remediation strategy.
	Reconnect(ctx context.Context) error

	// GetLastCheckTime returns the checkpoint for a service, falling back to
	// now minus DefaultCheckpointAge when absent or unreadable. Never errors.
	GetLastCheckTime(ctx context.Context, service string) time.Time
	// SetCheckpoint upserts the checkpoint for a service.
	SetCheckpoint(ctx context.Context, service string, t time.Time) error

	// GetIssue fetches the issue record for a signature, or ErrNotFound.
	GetIssue(ctx context.Context, signature string) (models.IssueRecord, error)
	// UpsertIssue inserts a new issue record or, when the signature exists,
	// adds the occurrences and extends LastSeen. Returns the stored record.
	UpsertIssue(ctx context.Context, rec models.IssueRecord) (models.IssueRecord, error)
	// SetIssueTicket attaches a tracker ticket to an issue record.
	SetIssueTicket(ctx context.Context, signature string, number int, url string) error
	// ResolveIssue marks an issue resolved (e.g. after successful remediation).
	ResolveIssue(ctx context.Context, signature string) error

	// IncrementKnownIssue bumps the persisted counter for a catalog entry.
	IncrementKnownIssue(ctx context.Context, issueID string) error

	// RecordRemediation appends one immutable remediation attempt record.
	RecordRemediation(ctx context.Context, signature string, res models.RemediationResult) error

	// InsertAlert records a received alert and returns its id.
	InsertAlert(ctx context.Context, rec models.AlertRecord) (int64, error)
	// UpdateAlert overwrites the investigation outcome fields of an alert.
	UpdateAlert(ctx context.Context, rec models.AlertRecord) error
	// ListAlerts returns the most recent alerts, newest first.
	ListAlerts(ctx context.Context, limit int) ([]models.AlertRecord, error)
	// GetAlert fetches one alert by id, or ErrNotFound.
	GetAlert(ctx context.Context, id int64) (models.AlertRecord, error)

	// Stats exposes persisted counters for the health/stats endpoints.
	Stats(ctx context.Context) (models.StoreStats, error)

	Close()
}
