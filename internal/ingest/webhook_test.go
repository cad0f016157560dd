package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dinestack/dinewatch/internal/models"
)

func TestParseWebhookFullPayload(t *testing.T) {
	body := `{
		"alerts": [{
			"timestamp": "2026-08-01T12:00:00Z",
			"alert_name": "elevated error rate",
			"severity": "critical",
			"affected_service": "backend-api",
			"log_query": "{service=\"backend-api\"}",
			"metrics": {
				"error_count": 42,
				"time_window_seconds": 300,
				"affected_endpoints": ["/api/restaurants"]
			}
		}]
	}`

	alerts, err := ParseWebhook(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}

	a := alerts[0]
	if a.AlertName != "elevated error rate" || a.Severity != models.AlertCritical {
		t.Fatalf("unexpected alert: %+v", a)
	}
	if !a.Timestamp.Equal(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("timestamp not parsed: %v", a.Timestamp)
	}
	if a.Metrics.ErrorCount != 42 || a.Metrics.TimeWindow != 5*time.Minute {
		t.Fatalf("metrics not mapped: %+v", a.Metrics)
	}
	if len(a.Metrics.AffectedEndpoints) != 1 {
		t.Fatalf("endpoints lost: %+v", a.Metrics)
	}
}

func TestParseWebhookDefaults(t *testing.T) {
	alerts, err := ParseWebhook(strings.NewReader(`{"alerts":[{}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	a := alerts[0]
	if a.AlertName != "unnamed-alert" {
		t.Fatalf("expected default name, got %q", a.AlertName)
	}
	if a.AffectedService != "unknown" {
		t.Fatalf("expected default service, got %q", a.AffectedService)
	}
	if a.Severity != models.AlertWarning {
		t.Fatalf("expected default severity warning, got %q", a.Severity)
	}
	if time.Since(a.Timestamp) > time.Minute {
		t.Fatalf("missing timestamp should default to now, got %v", a.Timestamp)
	}
}

func TestParseWebhookUnknownSeverity(t *testing.T) {
	alerts, err := ParseWebhook(strings.NewReader(`{"alerts":[{"severity":"catastrophic"}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if alerts[0].Severity != models.AlertWarning {
		t.Fatalf("unknown severity should normalise to warning, got %q", alerts[0].Severity)
	}
}

func TestParseWebhookEmpty(t *testing.T) {
	_, err := ParseWebhook(strings.NewReader(`{"alerts":[]}`))
	if !errors.Is(err, ErrNoAlerts) {
		t.Fatalf("expected ErrNoAlerts, got %v", err)
	}

	_, err = ParseWebhook(strings.NewReader(`{}`))
	if !errors.Is(err, ErrNoAlerts) {
		t.Fatalf("expected ErrNoAlerts for missing array, got %v", err)
	}
}

func TestParseWebhookMalformed(t *testing.T) {
	_, err := ParseWebhook(strings.NewReader(`{not json`))
	if err == nil || errors.Is(err, ErrNoAlerts) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
