package investigator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dinestack/dinewatch/internal/catalog"
	"github.com/dinestack/dinewatch/internal/detector"
	"github.com/dinestack/dinewatch/internal/metrics"
	"github.com/dinestack/dinewatch/internal/models"
	"github.com/dinestack/dinewatch/internal/notify"
	"github.com/dinestack/dinewatch/internal/queue"
	"github.com/dinestack/dinewatch/internal/store"
	"github.com/dinestack/dinewatch/internal/ticket"
	"github.com/dinestack/dinewatch/internal/utils"
	"github.com/dinestack/dinewatch/internal/validator"
)

// LogSource fetches logs for an investigation window.
type LogSource interface {
	FetchLogs(ctx context.Context, query, service string, start, end time.Time) ([]models.LogEntry, error)
}

// HealthSource probes the affected service.
type HealthSource interface {
	Check(ctx context.Context, healthURL string) models.HealthCheck
}

// Remediator runs one scripted fix attempt.
type Remediator interface {
	Dispatch(ctx context.Context, strategy, service, signature string) models.RemediationResult
	Has(strategy string) bool
}

// ServiceDirectory resolves monitored-service metadata (health URL, log query)
// by service name.
type ServiceDirectory interface {
	Lookup(service string) (healthURL, logQuery string)
}

// Investigator runs the evidence-gathering and decision pipeline for one
// alert: fetch logs, detect and deduplicate errors, probe health, consult the
// known-issue catalog and historical records, validate, then remediate,
// notify, and file or update a ticket as the verdict dictates.
type Investigator struct {
	logs     LogSource
	health   HealthSource
	detector *detector.Detector
	catalog  *catalog.Catalog
	valid    *validator.Validator
	store    store.Store
	remedy   Remediator
	notifier notify.Notifier
	ticketer ticket.Ticketer
	services ServiceDirectory
	latency  *utils.LatencyTracker
	logger   *slog.Logger
}

type Options struct {
	Logs      LogSource
	Health    HealthSource
	Detector  *detector.Detector
	Catalog   *catalog.Catalog
	Validator *validator.Validator
	Store     store.Store
	Remedy    Remediator
	Notifier  notify.Notifier
	Ticketer  ticket.Ticketer
	Services  ServiceDirectory
	Latency   *utils.LatencyTracker
	Logger    *slog.Logger
}

func New(opts Options) *Investigator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NoopNotifier{}
	}
	if opts.Latency == nil {
		opts.Latency = utils.NewLatencyTracker(512)
	}
	return &Investigator{
		logs:     opts.Logs,
		health:   opts.Health,
		detector: opts.Detector,
		catalog:  opts.Catalog,
		valid:    opts.Validator,
		store:    opts.Store,
		remedy:   opts.Remedy,
		notifier: opts.Notifier,
		ticketer: opts.Ticketer,
		services: opts.Services,
		latency:  opts.Latency,
		logger:   opts.Logger,
	}
}

// Latency exposes the investigation latency tracker for the stats endpoint.
func (inv *Investigator) Latency() *utils.LatencyTracker {
	return inv.latency
}

// Investigate processes one queued alert end to end. Log fetch failures are
// returned so the queue can retry; every later step degrades to a safe
// default instead of aborting the investigation.
func (inv *Investigator) Investigate(ctx context.Context, job queue.Job) error {
	started := time.Now()
	alert := job.Alert
	logger := inv.logger.With(
		slog.String("alert", alert.AlertName),
		slog.String("service", alert.AffectedService))

	record := models.AlertRecord{
		ID:         job.AlertID,
		Source:     job.Source,
		AlertName:  alert.AlertName,
		Service:    alert.AffectedService,
		Severity:   alert.Severity,
		Status:     models.AlertStatusInvestigating,
		ReceivedAt: alert.Timestamp,
	}
	inv.updateAlert(ctx, record)

	healthURL, defaultQuery := "", ""
	if inv.services != nil {
		healthURL, defaultQuery = inv.services.Lookup(alert.AffectedService)
	}

	analysis, err := inv.analyzeLogs(ctx, alert, defaultQuery)
	if err != nil {
		record.Status = models.AlertStatusFailed
		record.CompletedAt = time.Now().UTC()
		inv.updateAlert(ctx, record)
		inv.observe(started, metrics.OutcomeError)
		return fmt.Errorf("log analysis for %s failed: %w", alert.AffectedService, err)
	}

	health := inv.health.Check(ctx, healthURL)

	topErr := analysis.TopError()
	history := inv.historicalContext(ctx, topErr)
	known := inv.matchKnownIssue(ctx, alert, analysis)

	verdict := inv.valid.Validate(alert, analysis, health, history, known)
	logger.Info("alert validated",
		slog.Bool("real", verdict.IsRealIssue),
		slog.Int("confidence", verdict.Confidence),
		slog.String("reason", verdict.Reason))

	ref := inv.notifier.AlertReceived(ctx, alert)
	record.Confidence = verdict.Confidence

	if !verdict.IsRealIssue {
		inv.notifier.InvestigationResult(ctx, ref, alert, verdict, "")
		record.Status = models.AlertStatusDismissed
		record.CompletedAt = time.Now().UTC()
		inv.updateAlert(ctx, record)
		inv.writeCheckpoint(ctx, alert.AffectedService, analysis.WindowEnd)
		inv.observe(started, metrics.OutcomeDismissed)
		return nil
	}

	cat := inv.valid.Categorize(alert, analysis, health, known)

	signature, issue := inv.persistIssue(ctx, alert, topErr, cat, known)
	record.Signature = signature

	var remediation *models.RemediationResult
	if verdict.ShouldAttemptRemediation && known != nil && inv.remedy != nil && inv.remedy.Has(known.RemediationAction) {
		res := inv.remedy.Dispatch(ctx, known.RemediationAction, alert.AffectedService, signature)
		remediation = &res
		metrics.CountRemediation(res.Action, res.Success)
		inv.notifier.RemediationOutcome(ctx, ref, alert, res)
	}

	if remediation != nil && remediation.Success {
		if signature != "" {
			if err := inv.store.ResolveIssue(ctx, signature); err != nil {
				logger.Warn("failed to mark issue resolved", slog.Any("error", err))
			}
		}
		record.Status = models.AlertStatusRemediated
		record.CompletedAt = time.Now().UTC()
		inv.updateAlert(ctx, record)
		inv.writeCheckpoint(ctx, alert.AffectedService, analysis.WindowEnd)
		inv.observe(started, metrics.OutcomeSuccess)
		return nil
	}

	ticketURL := ""
	if verdict.ShouldCreateIssue && inv.ticketer != nil {
		number, url := inv.ensureTicket(ctx, alert, topErr, cat, verdict, remediation, issue, signature)
		record.TicketNumber = number
		ticketURL = url
		if number > 0 {
			record.Status = models.AlertStatusTicketed
		}
	}
	if record.Status == models.AlertStatusInvestigating {
		record.Status = models.AlertStatusDismissed
	}

	inv.notifier.InvestigationResult(ctx, ref, alert, verdict, ticketURL)

	record.CompletedAt = time.Now().UTC()
	inv.updateAlert(ctx, record)
	inv.writeCheckpoint(ctx, alert.AffectedService, analysis.WindowEnd)
	inv.observe(started, metrics.OutcomeSuccess)
	return nil
}

// analyzeLogs pulls the log window since the service's checkpoint and runs
// detection over it.
func (inv *Investigator) analyzeLogs(ctx context.Context, alert models.AlertContext, defaultQuery string) (models.LogAnalysis, error) {
	query := alert.LogQuery
	if query == "" {
		query = defaultQuery
	}
	if query == "" {
		query = fmt.Sprintf(`{service="%s"}`, alert.AffectedService)
	}

	start := inv.store.GetLastCheckTime(ctx, alert.AffectedService)
	end := time.Now().UTC()
	if !alert.Timestamp.IsZero() && alert.Timestamp.Before(start) {
		start = alert.Timestamp
	}

	entries, err := inv.logs.FetchLogs(ctx, query, alert.AffectedService, start, end)
	if err != nil {
		return models.LogAnalysis{}, err
	}

	detected := detector.Dedupe(inv.detector.Detect(entries))

	analysis := models.LogAnalysis{
		Errors:       detected,
		TotalEntries: len(entries),
		WindowStart:  start,
		WindowEnd:    end,
	}
	for _, e := range detected {
		analysis.ErrorCount += e.OccurrenceCount
		if e.StackTrace != "" {
			analysis.HasStackTrace = true
		}
	}
	return analysis, nil
}

func (inv *Investigator) historicalContext(ctx context.Context, topErr *models.DetectedError) models.HistoricalContext {
	if topErr == nil || topErr.Signature == "" {
		return models.HistoricalContext{}
	}
	rec, err := inv.store.GetIssue(ctx, topErr.Signature)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			inv.logger.Warn("failed to load issue history", slog.Any("error", err))
		}
		return models.HistoricalContext{}
	}
	return models.HistoricalContext{
		SeenBefore:      true,
		OccurrenceCount: rec.OccurrenceCount,
		FirstSeen:       rec.FirstSeen,
		LastSeen:        rec.LastSeen,
		Resolved:        rec.Resolved,
		TicketNumber:    rec.TicketNumber,
	}
}

func (inv *Investigator) matchKnownIssue(ctx context.Context, alert models.AlertContext, analysis models.LogAnalysis) *models.KnownIssue {
	if inv.catalog == nil {
		return nil
	}

	var b strings.Builder
	b.WriteString(alert.AlertName)
	for _, e := range analysis.Errors {
		b.WriteByte('\n')
		b.WriteString(e.ErrorMessage)
	}
	return inv.catalog.Match(ctx, b.String())
}

// persistIssue upserts the deduplication record for the top error and returns
// its signature with the stored state (including any pre-existing ticket).
func (inv *Investigator) persistIssue(ctx context.Context, alert models.AlertContext, topErr *models.DetectedError, cat models.IssueCategorization, known *models.KnownIssue) (string, *models.IssueRecord) {
	var rec models.IssueRecord
	now := time.Now().UTC()

	switch {
	case topErr != nil:
		rec = models.IssueRecord{
			Signature:       topErr.Signature,
			ServiceName:     alert.AffectedService,
			Title:           topErr.ErrorMessage,
			Severity:        cat.Severity,
			Category:        topErr.Category,
			OccurrenceCount: topErr.OccurrenceCount,
			Analyzed:        true,
			FirstSeen:       topErr.FirstSeen,
			LastSeen:        topErr.LastSeen,
		}
	case known != nil:
		rec = models.IssueRecord{
			Signature:       detector.GenerateSignature(known.Title, known.Category),
			ServiceName:     alert.AffectedService,
			Title:           known.Title,
			Severity:        known.Severity,
			Category:        known.Category,
			OccurrenceCount: 1,
			Analyzed:        true,
			FirstSeen:       now,
			LastSeen:        now,
		}
	default:
		rec = models.IssueRecord{
			Signature:       detector.GenerateSignature(alert.AlertName, "general"),
			ServiceName:     alert.AffectedService,
			Title:           alert.AlertName,
			Severity:        cat.Severity,
			Category:        "general",
			OccurrenceCount: 1,
			Analyzed:        true,
			FirstSeen:       now,
			LastSeen:        now,
		}
	}

	stored, err := inv.store.UpsertIssue(ctx, rec)
	if err != nil {
		inv.logger.Warn("failed to upsert issue record", slog.Any("error", err))
		return rec.Signature, &rec
	}
	return stored.Signature, &stored
}

// ensureTicket files a tracker issue exactly once per signature: recurrences
// of a signature that already carries a ticket get a comment instead of a new
// ticket.
func (inv *Investigator) ensureTicket(ctx context.Context, alert models.AlertContext, topErr *models.DetectedError, cat models.IssueCategorization, verdict models.ValidationResult, remediation *models.RemediationResult, issue *models.IssueRecord, signature string) (int, string) {
	if issue != nil && issue.TicketNumber > 0 {
		comment := ticket.OccurrenceComment(issue.OccurrenceCount, alert)
		if err := inv.ticketer.AddComment(ctx, issue.TicketNumber, comment); err != nil {
			inv.logger.Warn("failed to comment on existing ticket",
				slog.Int("number", issue.TicketNumber), slog.Any("error", err))
		}
		return issue.TicketNumber, issue.TicketURL
	}

	title := alert.AlertName
	if topErr != nil {
		title = topErr.ErrorMessage
	}
	created, err := inv.ticketer.CreateIssue(ctx,
		ticket.IssueTitle(cat, alert.AffectedService, title),
		ticket.IssueBody(alert, topErr, cat, verdict, remediation),
		ticket.Labels(cat))
	if err != nil {
		inv.logger.Error("failed to create ticket", slog.Any("error", err))
		return 0, ""
	}

	if signature != "" {
		if err := inv.store.SetIssueTicket(ctx, signature, created.Number, created.URL); err != nil {
			inv.logger.Warn("failed to attach ticket to issue record", slog.Any("error", err))
		}
	}
	return created.Number, created.URL
}

func (inv *Investigator) updateAlert(ctx context.Context, rec models.AlertRecord) {
	if rec.ID == 0 {
		return
	}
	if err := inv.store.UpdateAlert(ctx, rec); err != nil {
		inv.logger.Warn("failed to update alert record", slog.Any("error", err))
	}
}

func (inv *Investigator) writeCheckpoint(ctx context.Context, service string, t time.Time) {
	if err := inv.store.SetCheckpoint(ctx, service, t); err != nil {
		inv.logger.Warn("failed to write checkpoint", slog.Any("error", err))
	}
}

func (inv *Investigator) observe(started time.Time, outcome string) {
	elapsed := time.Since(started)
	inv.latency.Observe(elapsed)
	metrics.ObserveInvestigation(elapsed, outcome)
}
