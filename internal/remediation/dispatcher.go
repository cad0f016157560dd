package remediation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dinestack/dinewatch/internal/models"
)

// Action is one scripted remediation strategy. Implementations append a log
// line per step to the result regardless of outcome.
type Action interface {
	Name() string
	Execute(ctx context.Context, service string) *models.RemediationResult
}

// AttemptRecorder persists immutable remediation attempt records.
type AttemptRecorder interface {
	RecordRemediation(ctx context.Context, signature string, res models.RemediationResult) error
}

// Dispatcher runs at most one remediation attempt per investigation:
// Idle -> Attempting(strategy) -> Succeeded|Failed. Attempts are never
// retried automatically within a single investigation.
type Dispatcher struct {
	actions  map[string]Action
	recorder AttemptRecorder
	logger   *slog.Logger
}

// NewDispatcher builds a dispatcher over a fixed strategy table.
func NewDispatcher(recorder AttemptRecorder, logger *slog.Logger, actions ...Action) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	table := make(map[string]Action, len(actions))
	for _, action := range actions {
		table[action.Name()] = action
	}
	return &Dispatcher{actions: table, recorder: recorder, logger: logger}
}

// Dispatch looks up and executes the named strategy for a service, persisting
// the attempt record. Unknown strategies produce a failed, unattempted result
// rather than an error.
func (d *Dispatcher) Dispatch(ctx context.Context, strategy, service, signature string) models.RemediationResult {
	started := time.Now().UTC()

	action, ok := d.actions[strategy]
	if !ok {
		result := models.RemediationResult{
			Attempted:         false,
			Success:           false,
			Action:            strategy,
			Logs:              []string{fmt.Sprintf("no remediation strategy registered for %q", strategy)},
			ShouldCreateIssue: true,
			StartedAt:         started,
			FinishedAt:        time.Now().UTC(),
		}
		d.record(ctx, signature, result)
		return result
	}

	d.logger.Info("attempting remediation",
		slog.String("action", strategy), slog.String("service", service))

	result := action.Execute(ctx, service)
	result.Action = strategy
	result.StartedAt = started
	result.FinishedAt = time.Now().UTC()
	result.ShouldCreateIssue = !result.Success

	d.record(ctx, signature, *result)

	if result.Success {
		d.logger.Info("remediation succeeded", slog.String("action", strategy), slog.String("service", service))
	} else {
		d.logger.Warn("remediation failed", slog.String("action", strategy), slog.String("service", service))
	}
	return *result
}

// Has reports whether a strategy is registered.
func (d *Dispatcher) Has(strategy string) bool {
	_, ok := d.actions[strategy]
	return ok
}

func (d *Dispatcher) record(ctx context.Context, signature string, res models.RemediationResult) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.RecordRemediation(ctx, signature, res); err != nil {
		d.logger.Warn("failed to persist remediation attempt", slog.Any("error", err))
	}
}
