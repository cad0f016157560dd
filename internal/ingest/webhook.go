package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dinestack/dinewatch/internal/models"
	"github.com/dinestack/dinewatch/internal/utils"
)

// ErrNoAlerts signals a syntactically valid payload carrying nothing to
// investigate. Handlers answer it with a 4xx and queue no job.
var ErrNoAlerts = errors.New("payload contains no alerts")

// webhookPayload is the inbound JSON shape. Every field beyond the alerts
// array is optional and defaulted; external senders are not trusted to be
// complete.
type webhookPayload struct {
	Alerts []webhookAlert `json:"alerts"`
}

type webhookAlert struct {
	Timestamp       string   `json:"timestamp"`
	AlertName       string   `json:"alert_name"`
	Severity        string   `json:"severity"`
	AffectedService string   `json:"affected_service"`
	LogQuery        string   `json:"log_query"`
	Metrics         *struct {
		ErrorCount        int      `json:"error_count"`
		TimeWindowSeconds int      `json:"time_window_seconds"`
		AffectedEndpoints []string `json:"affected_endpoints"`
	} `json:"metrics"`
}

// ParseWebhook decodes and normalises an alert webhook body into alert
// contexts. Malformed JSON and empty alert arrays produce errors; individual
// missing fields do not.
func ParseWebhook(body io.Reader) ([]models.AlertContext, error) {
	var payload webhookPayload
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	if len(payload.Alerts) == 0 {
		return nil, ErrNoAlerts
	}

	alerts := make([]models.AlertContext, 0, len(payload.Alerts))
	for _, raw := range payload.Alerts {
		alerts = append(alerts, normalizeAlert(raw))
	}
	return alerts, nil
}

func normalizeAlert(raw webhookAlert) models.AlertContext {
	alert := models.AlertContext{
		Timestamp:       time.Now().UTC(),
		AlertName:       raw.AlertName,
		Severity:        normalizeSeverity(raw.Severity),
		AffectedService: raw.AffectedService,
		LogQuery:        raw.LogQuery,
	}

	if raw.Timestamp != "" {
		if t, err := utils.ParseRFC3339(raw.Timestamp); err == nil {
			alert.Timestamp = t
		}
	}
	if alert.AlertName == "" {
		alert.AlertName = "unnamed-alert"
	}
	if alert.AffectedService == "" {
		alert.AffectedService = "unknown"
	}
	if raw.Metrics != nil {
		alert.Metrics = models.AlertMetrics{
			ErrorCount:        raw.Metrics.ErrorCount,
			TimeWindow:        time.Duration(raw.Metrics.TimeWindowSeconds) * time.Second,
			AffectedEndpoints: raw.Metrics.AffectedEndpoints,
		}
	}
	return alert
}

func normalizeSeverity(s string) models.AlertSeverity {
	switch models.AlertSeverity(s) {
	case models.AlertCritical, models.AlertWarning, models.AlertInfo:
		return models.AlertSeverity(s)
	default:
		return models.AlertWarning
	}
}
