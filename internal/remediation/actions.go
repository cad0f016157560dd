package remediation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dinestack/dinewatch/internal/health"
	"github.com/dinestack/dinewatch/internal/models"
)

// Actuator restarts a service process or container.
type Actuator interface {
	Restart(ctx context.Context, service string) error
}

// HealthProber verifies a service is reachable after a restart.
type HealthProber interface {
	Check(ctx context.Context, healthURL string) models.HealthCheck
}

// RestartAction restarts the affected service through an actuator, waits for
// it to come back, and verifies health before declaring success. healthURL
// resolves the probe endpoint for a service; an empty result skips the probe
// and trusts the actuator.
type RestartAction struct {
	actuator  Actuator
	prober    HealthProber
	healthURL func(service string) string
	wait      time.Duration
	sleep     func(ctx context.Context, d time.Duration) bool
	logger    *slog.Logger
}

func NewRestartAction(actuator Actuator, prober HealthProber, healthURL func(service string) string, wait time.Duration, logger *slog.Logger) *RestartAction {
	if logger == nil {
		logger = slog.Default()
	}
	if healthURL == nil {
		healthURL = func(string) string { return "" }
	}
	return &RestartAction{
		actuator:  actuator,
		prober:    prober,
		healthURL: healthURL,
		wait:      wait,
		sleep:     sleepCtx,
		logger:    logger,
	}
}

func (a *RestartAction) Name() string { return models.ActionRestart }

func (a *RestartAction) Execute(ctx context.Context, service string) *models.RemediationResult {
	res := &models.RemediationResult{Attempted: true}

	res.Logs = append(res.Logs, fmt.Sprintf("restarting service %s", service))
	if err := a.actuator.Restart(ctx, service); err != nil {
		res.Logs = append(res.Logs, fmt.Sprintf("restart request failed: %v", err))
		return res
	}

	res.Logs = append(res.Logs, fmt.Sprintf("restart issued, waiting %s for service to come back", a.wait))
	if !a.sleep(ctx, a.wait) {
		res.Logs = append(res.Logs, "cancelled while waiting for restart")
		return res
	}

	check := a.prober.Check(ctx, a.healthURL(service))
	if !check.APIResponsive {
		res.Logs = append(res.Logs, fmt.Sprintf("service still unresponsive after restart: %s", check.Detail))
		return res
	}

	res.Logs = append(res.Logs, fmt.Sprintf("service responsive in %s after restart", check.ResponseTime))
	res.Success = true
	return res
}

// Reconnector re-establishes the primary database connection pool.
type Reconnector interface {
	Reconnect(ctx context.Context) error
	Ping(ctx context.Context) error
}

// ReconnectDBAction tears down and re-dials the database pool, then pings to
// confirm the fresh connection works.
type ReconnectDBAction struct {
	db    Reconnector
	wait  time.Duration
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewReconnectDBAction(db Reconnector, wait time.Duration) *ReconnectDBAction {
	return &ReconnectDBAction{db: db, wait: wait, sleep: sleepCtx}
}

func (a *ReconnectDBAction) Name() string { return models.ActionReconnectDB }

func (a *ReconnectDBAction) Execute(ctx context.Context, service string) *models.RemediationResult {
	res := &models.RemediationResult{Attempted: true}

	res.Logs = append(res.Logs, "re-establishing database connection pool")
	if err := a.db.Reconnect(ctx); err != nil {
		res.Logs = append(res.Logs, fmt.Sprintf("reconnect failed: %v", err))
		return res
	}

	if a.wait > 0 {
		res.Logs = append(res.Logs, fmt.Sprintf("waiting %s before verifying connection", a.wait))
		if !a.sleep(ctx, a.wait) {
			res.Logs = append(res.Logs, "cancelled while waiting for reconnect")
			return res
		}
	}

	if err := a.db.Ping(ctx); err != nil {
		res.Logs = append(res.Logs, fmt.Sprintf("ping after reconnect failed: %v", err))
		return res
	}

	res.Logs = append(res.Logs, "database connection verified")
	res.Success = true
	return res
}

// StubAction is a placeholder strategy that always reports failure. Redis
// reconnect and cache clearing need privileged access to the cache tier that
// this service does not hold, so the attempt is recorded and escalated to a
// ticket instead.
type StubAction struct {
	name   string
	reason string
}

func NewReconnectRedisAction() *StubAction {
	return &StubAction{
		name:   models.ActionReconnectRedis,
		reason: "redis reconnect requires cache-tier credentials not available to this service",
	}
}

func NewCacheClearAction() *StubAction {
	return &StubAction{
		name:   models.ActionCacheClear,
		reason: "cache clear requires cache-tier credentials not available to this service",
	}
}

func (a *StubAction) Name() string { return a.name }

func (a *StubAction) Execute(ctx context.Context, service string) *models.RemediationResult {
	return &models.RemediationResult{
		Attempted: true,
		Success:   false,
		Logs:      []string{a.reason},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

var _ HealthProber = (*health.Checker)(nil)
