package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dinestack/dinewatch/internal/models"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	mu     sync.RWMutex
	pool   *pgxpool.Pool
	dsn    string
	logger *slog.Logger
}

// NewPostgres connects to the database, applies the schema, and returns the
// store. Connection failure is fatal to the caller; schema application is
// idempotent.
func NewPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Postgres{pool: pool, dsn: dsn, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS checkpoints (
		service_name TEXT PRIMARY KEY,
		last_check_time TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS issues (
		signature TEXT PRIMARY KEY,
		service_name TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		severity TEXT NOT NULL DEFAULT 'low',
		category TEXT NOT NULL DEFAULT 'general',
		ticket_number INT NOT NULL DEFAULT 0,
		ticket_url TEXT NOT NULL DEFAULT '',
		occurrence_count INT NOT NULL DEFAULT 1,
		analyzed BOOLEAN NOT NULL DEFAULT FALSE,
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		first_seen TIMESTAMPTZ NOT NULL,
		last_seen TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS known_issue_counts (
		issue_id TEXT PRIMARY KEY,
		occurrence_count INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS remediations (
		id BIGSERIAL PRIMARY KEY,
		signature TEXT NOT NULL,
		action TEXT NOT NULL,
		attempted BOOLEAN NOT NULL,
		success BOOLEAN NOT NULL,
		logs TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id BIGSERIAL PRIMARY KEY,
		source TEXT NOT NULL,
		alert_name TEXT NOT NULL,
		service TEXT NOT NULL,
		severity TEXT NOT NULL,
		status TEXT NOT NULL,
		signature TEXT NOT NULL DEFAULT '',
		confidence INT NOT NULL DEFAULT 0,
		ticket_number INT NOT NULL DEFAULT 0,
		received_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS alerts_received_at_idx ON alerts (received_at DESC)`,
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *Postgres) db() *pgxpool.Pool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool
}

// Ping verifies the pool is reachable with a trivial query.
func (s *Postgres) Ping(ctx context.Context) error {
	pool := s.db()
	if pool == nil {
		return errors.New("postgres pool closed")
	}
	var one int
	return pool.QueryRow(ctx, "SELECT 1").Scan(&one)
}

// Reconnect closes the current pool and dials a fresh one. Exercised by the
// reconnect-db remediation strategy.
func (s *Postgres) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}

	pool, err := pgxpool.New(ctx, s.dsn)
	if err != nil {
		return fmt.Errorf("reconnect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("reconnect ping: %w", err)
	}
	s.pool = pool
	return nil
}

func (s *Postgres) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}

func (s *Postgres) GetLastCheckTime(ctx context.Context, service string) time.Time {
	fallback := time.Now().Add(-models.DefaultCheckpointAge)

	var t time.Time
	err := s.db().QueryRow(ctx,
		`SELECT last_check_time FROM checkpoints WHERE service_name = $1`, service).Scan(&t)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("checkpoint read failed, using fallback window",
				slog.String("service", service), slog.Any("error", err))
		}
		return fallback
	}
	return t
}

func (s *Postgres) SetCheckpoint(ctx context.Context, service string, t time.Time) error {
	_, err := s.db().Exec(ctx,
		`INSERT INTO checkpoints (service_name, last_check_time) VALUES ($1, $2)
		 ON CONFLICT (service_name) DO UPDATE SET last_check_time = EXCLUDED.last_check_time`,
		service, t)
	return err
}

func (s *Postgres) GetIssue(ctx context.Context, signature string) (models.IssueRecord, error) {
	var rec models.IssueRecord
	err := s.db().QueryRow(ctx,
		`SELECT signature, service_name, title, severity, category, ticket_number, ticket_url,
		        occurrence_count, analyzed, resolved, first_seen, last_seen
		 FROM issues WHERE signature = $1`, signature).Scan(
		&rec.Signature, &rec.ServiceName, &rec.Title, &rec.Severity, &rec.Category,
		&rec.TicketNumber, &rec.TicketURL, &rec.OccurrenceCount, &rec.Analyzed,
		&rec.Resolved, &rec.FirstSeen, &rec.LastSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.IssueRecord{}, ErrNotFound
		}
		return models.IssueRecord{}, err
	}
	return rec, nil
}

func (s *Postgres) UpsertIssue(ctx context.Context, rec models.IssueRecord) (models.IssueRecord, error) {
	if rec.OccurrenceCount <= 0 {
		rec.OccurrenceCount = 1
	}

	var stored models.IssueRecord
	err := s.db().QueryRow(ctx,
		`INSERT INTO issues (signature, service_name, title, severity, category,
		                     occurrence_count, analyzed, first_seen, last_seen)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (signature) DO UPDATE SET
		   occurrence_count = issues.occurrence_count + EXCLUDED.occurrence_count,
		   last_seen = GREATEST(issues.last_seen, EXCLUDED.last_seen),
		   analyzed = issues.analyzed OR EXCLUDED.analyzed
		 RETURNING signature, service_name, title, severity, category, ticket_number,
		           ticket_url, occurrence_count, analyzed, resolved, first_seen, last_seen`,
		rec.Signature, rec.ServiceName, rec.Title, rec.Severity, rec.Category,
		rec.OccurrenceCount, rec.Analyzed, rec.FirstSeen, rec.LastSeen).Scan(
		&stored.Signature, &stored.ServiceName, &stored.Title, &stored.Severity,
		&stored.Category, &stored.TicketNumber, &stored.TicketURL, &stored.OccurrenceCount,
		&stored.Analyzed, &stored.Resolved, &stored.FirstSeen, &stored.LastSeen)
	if err != nil {
		return models.IssueRecord{}, fmt.Errorf("upsert issue: %w", err)
	}
	return stored, nil
}

func (s *Postgres) SetIssueTicket(ctx context.Context, signature string, number int, url string) error {
	tag, err := s.db().Exec(ctx,
		`UPDATE issues SET ticket_number = $2, ticket_url = $3 WHERE signature = $1`,
		signature, number, url)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) ResolveIssue(ctx context.Context, signature string) error {
	tag, err := s.db().Exec(ctx,
		`UPDATE issues SET resolved = TRUE WHERE signature = $1`, signature)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) IncrementKnownIssue(ctx context.Context, issueID string) error {
	_, err := s.db().Exec(ctx,
		`INSERT INTO known_issue_counts (issue_id, occurrence_count) VALUES ($1, 1)
		 ON CONFLICT (issue_id) DO UPDATE SET occurrence_count = known_issue_counts.occurrence_count + 1`,
		issueID)
	return err
}

func (s *Postgres) RecordRemediation(ctx context.Context, signature string, res models.RemediationResult) error {
	_, err := s.db().Exec(ctx,
		`INSERT INTO remediations (signature, action, attempted, success, logs, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		signature, res.Action, res.Attempted, res.Success,
		strings.Join(res.Logs, "\n"), res.StartedAt, res.FinishedAt)
	return err
}

func (s *Postgres) InsertAlert(ctx context.Context, rec models.AlertRecord) (int64, error) {
	var id int64
	err := s.db().QueryRow(ctx,
		`INSERT INTO alerts (source, alert_name, service, severity, status, signature,
		                     confidence, ticket_number, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		rec.Source, rec.AlertName, rec.Service, rec.Severity, rec.Status,
		rec.Signature, rec.Confidence, rec.TicketNumber, rec.ReceivedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert alert: %w", err)
	}
	return id, nil
}

func (s *Postgres) UpdateAlert(ctx context.Context, rec models.AlertRecord) error {
	tag, err := s.db().Exec(ctx,
		`UPDATE alerts SET status = $2, signature = $3, confidence = $4,
		                   ticket_number = $5, completed_at = $6
		 WHERE id = $1`,
		rec.ID, rec.Status, rec.Signature, rec.Confidence, rec.TicketNumber, rec.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) ListAlerts(ctx context.Context, limit int) ([]models.AlertRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db().Query(ctx,
		`SELECT id, source, alert_name, service, severity, status, signature,
		        confidence, ticket_number, received_at, COALESCE(completed_at, 'epoch'::timestamptz)
		 FROM alerts ORDER BY received_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AlertRecord
	for rows.Next() {
		var rec models.AlertRecord
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.AlertName, &rec.Service,
			&rec.Severity, &rec.Status, &rec.Signature, &rec.Confidence,
			&rec.TicketNumber, &rec.ReceivedAt, &rec.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Postgres) GetAlert(ctx context.Context, id int64) (models.AlertRecord, error) {
	var rec models.AlertRecord
	err := s.db().QueryRow(ctx,
		`SELECT id, source, alert_name, service, severity, status, signature,
		        confidence, ticket_number, received_at, COALESCE(completed_at, 'epoch'::timestamptz)
		 FROM alerts WHERE id = $1`, id).Scan(
		&rec.ID, &rec.Source, &rec.AlertName, &rec.Service, &rec.Severity,
		&rec.Status, &rec.Signature, &rec.Confidence, &rec.TicketNumber,
		&rec.ReceivedAt, &rec.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AlertRecord{}, ErrNotFound
		}
		return models.AlertRecord{}, err
	}
	return rec, nil
}

func (s *Postgres) Stats(ctx context.Context) (models.StoreStats, error) {
	var stats models.StoreStats
	err := s.db().QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM alerts),
		   (SELECT COUNT(*) FROM issues WHERE NOT resolved),
		   (SELECT COUNT(*) FROM issues WHERE resolved),
		   (SELECT COUNT(*) FROM remediations)`).Scan(
		&stats.AlertsTotal, &stats.OpenIssues, &stats.ResolvedIssues, &stats.RemediationsTotal)
	if err != nil {
		return models.StoreStats{}, err
	}
	return stats, nil
}
