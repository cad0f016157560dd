package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dinestack/dinewatch/internal/models"
)

// Memory is an in-process Store used in tests and store-less development
// runs. Semantics mirror the Postgres implementation.
type Memory struct {
	mu           sync.Mutex
	checkpoints  map[string]time.Time
	issues       map[string]models.IssueRecord
	knownCounts  map[string]int
	remediations map[string][]models.RemediationResult
	alerts       []models.AlertRecord
	nextAlertID  int64
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		checkpoints:  make(map[string]time.Time),
		issues:       make(map[string]models.IssueRecord),
		knownCounts:  make(map[string]int),
		remediations: make(map[string][]models.RemediationResult),
		nextAlertID:  1,
	}
}

func (m *Memory) Ping(context.Context) error      { return nil }
func (m *Memory) Reconnect(context.Context) error { return nil }
func (m *Memory) Close()                          {}

func (m *Memory) GetLastCheckTime(_ context.Context, service string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.checkpoints[service]; ok {
		return t
	}
	return time.Now().Add(-models.DefaultCheckpointAge)
}

func (m *Memory) SetCheckpoint(_ context.Context, service string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[service] = t
	return nil
}

func (m *Memory) GetIssue(_ context.Context, signature string) (models.IssueRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.issues[signature]
	if !ok {
		return models.IssueRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) UpsertIssue(_ context.Context, rec models.IssueRecord) (models.IssueRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.issues[rec.Signature]
	if !ok {
		if rec.OccurrenceCount <= 0 {
			rec.OccurrenceCount = 1
		}
		m.issues[rec.Signature] = rec
		return rec, nil
	}

	existing.OccurrenceCount += max(rec.OccurrenceCount, 1)
	if rec.LastSeen.After(existing.LastSeen) {
		existing.LastSeen = rec.LastSeen
	}
	existing.Analyzed = existing.Analyzed || rec.Analyzed
	m.issues[rec.Signature] = existing
	return existing, nil
}

func (m *Memory) SetIssueTicket(_ context.Context, signature string, number int, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.issues[signature]
	if !ok {
		return ErrNotFound
	}
	rec.TicketNumber = number
	rec.TicketURL = url
	m.issues[signature] = rec
	return nil
}

func (m *Memory) ResolveIssue(_ context.Context, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.issues[signature]
	if !ok {
		return ErrNotFound
	}
	rec.Resolved = true
	m.issues[signature] = rec
	return nil
}

func (m *Memory) IncrementKnownIssue(_ context.Context, issueID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.knownCounts[issueID]++
	return nil
}

func (m *Memory) RecordRemediation(_ context.Context, signature string, res models.RemediationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remediations[signature] = append(m.remediations[signature], res)
	return nil
}

func (m *Memory) InsertAlert(_ context.Context, rec models.AlertRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.nextAlertID
	m.nextAlertID++
	m.alerts = append(m.alerts, rec)
	return rec.ID, nil
}

func (m *Memory) UpdateAlert(_ context.Context, rec models.AlertRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == rec.ID {
			m.alerts[i] = rec
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) ListAlerts(_ context.Context, limit int) ([]models.AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := append([]models.AlertRecord(nil), m.alerts...)
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) GetAlert(_ context.Context, id int64) (models.AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.alerts {
		if rec.ID == id {
			return rec, nil
		}
	}
	return models.AlertRecord{}, ErrNotFound
}

func (m *Memory) Stats(context.Context) (models.StoreStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := models.StoreStats{AlertsTotal: len(m.alerts)}
	for _, rec := range m.issues {
		if rec.Resolved {
			stats.ResolvedIssues++
		} else {
			stats.OpenIssues++
		}
	}
	for _, attempts := range m.remediations {
		stats.RemediationsTotal += len(attempts)
	}
	return stats, nil
}
