package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dinestack/dinewatch/internal/ingest"
	"github.com/dinestack/dinewatch/internal/metrics"
	"github.com/dinestack/dinewatch/internal/models"
	"github.com/dinestack/dinewatch/internal/queue"
	"github.com/dinestack/dinewatch/internal/store"
	"github.com/dinestack/dinewatch/internal/utils"
)

// Trigger runs an on-demand check cycle. Busy reports whether one is already
// in flight.
type Trigger interface {
	CheckAll(ctx context.Context)
	Busy() bool
}

const defaultHistoryLimit = 50

// Handlers hold the REST endpoint implementations.
type Handlers struct {
	store   store.Store
	queue   queue.Queue
	trigger Trigger
	latency *utils.LatencyTracker
	started time.Time
	logger  *slog.Logger
}

func NewHandlers(st store.Store, q queue.Queue, trigger Trigger, latency *utils.LatencyTracker, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		store:   st,
		queue:   q,
		trigger: trigger,
		latency: latency,
		started: time.Now(),
		logger:  logger,
	}
}

// Health reports liveness plus store connectivity.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// ReceiveAlerts accepts an alert webhook and responds 202 immediately; the
// investigation runs asynchronously through the queue.
func (h *Handlers) ReceiveAlerts(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")
	if source == "" {
		source = "webhook"
	}

	alerts, err := ingest.ParseWebhook(r.Body)
	if err != nil {
		if errors.Is(err, ingest.ErrNoAlerts) {
			writeError(w, http.StatusBadRequest, "payload contains no alerts")
			return
		}
		writeError(w, http.StatusBadRequest, "malformed alert payload")
		return
	}

	for _, alert := range alerts {
		metrics.CountAlert(source)

		id, err := h.store.InsertAlert(r.Context(), models.AlertRecord{
			Source:     source,
			AlertName:  alert.AlertName,
			Service:    alert.AffectedService,
			Severity:   alert.Severity,
			Status:     models.AlertStatusQueued,
			ReceivedAt: alert.Timestamp,
		})
		if err != nil {
			h.logger.Warn("failed to record alert", slog.Any("error", err))
		}

		job := queue.Job{AlertID: id, Alert: alert, Source: source, Attempt: 1}
		go func() {
			if err := h.queue.Publish(context.WithoutCancel(r.Context()), job); err != nil {
				h.logger.Error("failed to enqueue investigation", slog.Any("error", err))
			}
		}()
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": len(alerts),
	})
}

// AlertHistory lists recent alerts, newest first.
func (h *Handlers) AlertHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	alerts, err := h.store.ListAlerts(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

// AlertByID fetches one alert record.
func (h *Handlers) AlertByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	alert, err := h.store.GetAlert(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load alert")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// Stats reports persisted counters, investigation latency percentiles, and
// process resource usage.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	payload := map[string]any{
		"store":  stats,
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}
	if h.latency != nil {
		payload["investigation_latency"] = map[string]string{
			"p50": h.latency.Percentile(50).String(),
			"p95": h.latency.Percentile(95).String(),
			"p99": h.latency.Percentile(99).String(),
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		payload["memory_used_percent"] = vm.UsedPercent
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		payload["cpu_percent"] = pct[0]
	}

	writeJSON(w, http.StatusOK, payload)
}

// TriggerCheck starts an on-demand poll cycle unless one is already running.
func (h *Handlers) TriggerCheck(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		writeError(w, http.StatusNotImplemented, "scheduler not configured")
		return
	}
	if h.trigger.Busy() {
		writeError(w, http.StatusTooManyRequests, "a check cycle is already running")
		return
	}

	go h.trigger.CheckAll(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "check started"})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
