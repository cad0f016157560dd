package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dinestack/dinewatch/internal/cache"
	"github.com/dinestack/dinewatch/internal/config"
	"github.com/dinestack/dinewatch/internal/detector"
	"github.com/dinestack/dinewatch/internal/investigator"
	"github.com/dinestack/dinewatch/internal/metrics"
	"github.com/dinestack/dinewatch/internal/models"
	"github.com/dinestack/dinewatch/internal/queue"
	"github.com/dinestack/dinewatch/internal/store"
)

// SourceScheduler tags alerts raised by the background poll loop.
const SourceScheduler = "scheduler"

// Scheduler polls monitored services on a fixed interval, turning freshly
// detected log errors into synthetic alerts on the investigation queue. A
// named run lock guards each service so overlapping cycles (slow Loki, manual
// trigger) drop instead of stacking up.
type Scheduler struct {
	cfg      config.MonitorConfig
	logs     investigator.LogSource
	detector *detector.Detector
	store    store.Store
	queue    queue.Queue
	locks    *cache.RunLock
	dedup    *cache.Dedup
	logger   *slog.Logger
}

func New(cfg config.MonitorConfig, logs investigator.LogSource, det *detector.Detector, st store.Store, q queue.Queue, locks *cache.RunLock, dedup *cache.Dedup, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if dedup == nil {
		dedup = cache.NewDedup(cache.NoopProvider{}, 0)
	}
	return &Scheduler{
		cfg:      cfg,
		logs:     logs,
		detector: det,
		store:    st,
		queue:    q,
		locks:    locks,
		dedup:    dedup,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled, checking all monitored services every
// interval. The first cycle runs immediately.
func (s *Scheduler) Run(ctx context.Context) {
	if len(s.cfg.Services) == 0 {
		s.logger.Info("no services configured, scheduler idle")
		<-ctx.Done()
		return
	}

	s.logger.Info("scheduler started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Int("services", len(s.cfg.Services)))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.CheckAll(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.CheckAll(ctx)
		}
	}
}

// CheckAll runs one poll cycle over every monitored service. Also invoked by
// the manual trigger endpoint.
func (s *Scheduler) CheckAll(ctx context.Context) {
	for _, svc := range s.cfg.Services {
		if err := s.checkService(ctx, svc); err != nil {
			s.logger.Warn("service check failed",
				slog.String("service", svc.Name), slog.Any("error", err))
		}
	}
}

// Busy reports whether any monitored service currently holds its run lock.
func (s *Scheduler) Busy() bool {
	for _, svc := range s.cfg.Services {
		if s.locks.Busy(lockName(svc.Name)) {
			return true
		}
	}
	return false
}

func (s *Scheduler) checkService(ctx context.Context, svc config.ServiceTarget) error {
	lock := lockName(svc.Name)
	if !s.locks.TryAcquire(ctx, lock) {
		s.logger.Info("previous check still running, skipping cycle",
			slog.String("service", svc.Name))
		return nil
	}
	defer s.locks.Release(ctx, lock)

	since := s.store.GetLastCheckTime(ctx, svc.Name)
	now := time.Now().UTC()

	query := svc.LogQuery
	if query == "" {
		query = fmt.Sprintf(`{service="%s"}`, svc.Name)
	}

	entries, err := s.logs.FetchLogs(ctx, query, svc.Name, since, now)
	if err != nil {
		return fmt.Errorf("failed to fetch logs: %w", err)
	}

	detected := detector.Dedupe(s.detector.Detect(entries))
	if len(detected) == 0 {
		// Nothing suspicious; advance the checkpoint so the next cycle
		// starts where this one left off.
		if err := s.store.SetCheckpoint(ctx, svc.Name, now); err != nil {
			s.logger.Warn("failed to write checkpoint", slog.Any("error", err))
		}
		return nil
	}

	s.logger.Info("detected errors during poll",
		slog.String("service", svc.Name), slog.Int("count", len(detected)))

	for _, derr := range detected {
		if s.dedup.Seen(ctx, svc.Name, derr.Signature) {
			s.logger.Info("signature queued recently, skipping",
				slog.String("service", svc.Name), slog.String("signature", derr.Signature))
			continue
		}
		alert := syntheticAlert(svc, derr, now.Sub(since))
		id, err := s.store.InsertAlert(ctx, models.AlertRecord{
			Source:     SourceScheduler,
			AlertName:  alert.AlertName,
			Service:    svc.Name,
			Severity:   alert.Severity,
			Status:     models.AlertStatusQueued,
			ReceivedAt: alert.Timestamp,
		})
		if err != nil {
			s.logger.Warn("failed to record scheduled alert", slog.Any("error", err))
		}
		metrics.CountAlert(SourceScheduler)
		if err := s.queue.Publish(ctx, queue.Job{AlertID: id, Alert: alert, Source: SourceScheduler, Attempt: 1}); err != nil {
			s.logger.Error("failed to enqueue investigation", slog.Any("error", err))
			continue
		}
		if err := s.dedup.Mark(ctx, svc.Name, derr.Signature); err != nil {
			s.logger.Warn("failed to mark signature as queued", slog.Any("error", err))
		}
	}
	return nil
}

func syntheticAlert(svc config.ServiceTarget, derr models.DetectedError, window time.Duration) models.AlertContext {
	return models.AlertContext{
		Timestamp:       derr.LastSeen,
		AlertName:       "scheduled-check: " + derr.Signature,
		Severity:        alertSeverity(derr.Severity),
		AffectedService: svc.Name,
		LogQuery:        svc.LogQuery,
		Metrics: models.AlertMetrics{
			ErrorCount: derr.OccurrenceCount,
			TimeWindow: window,
		},
	}
}

func alertSeverity(s models.ErrorSeverity) models.AlertSeverity {
	switch s {
	case models.SeverityCritical, models.SeverityHigh:
		return models.AlertCritical
	case models.SeverityMedium:
		return models.AlertWarning
	default:
		return models.AlertInfo
	}
}

func lockName(service string) string {
	return "check:" + service
}
