package validator

import (
	"fmt"
	"strings"
	"time"

	"github.com/dinestack/dinewatch/internal/config"
	"github.com/dinestack/dinewatch/internal/models"
)

// Validator decides real-vs-noise for one alert. The rule table is evaluated
// top to bottom and the first matching rule wins; there is no score blending.
type Validator struct {
	minErrorFrequency    int
	minConfidence        int
	singleErrorWithTrace bool
	responseTimeLimit    time.Duration
}

// New constructs a Validator from config, filling unset fields with defaults.
func New(cfg config.ValidationConfig) *Validator {
	v := &Validator{
		minErrorFrequency:    cfg.MinErrorFrequency,
		minConfidence:        cfg.MinConfidence,
		singleErrorWithTrace: cfg.SingleErrorWithTrace,
		responseTimeLimit:    cfg.ResponseTimeLimit,
	}
	if v.minErrorFrequency <= 0 {
		v.minErrorFrequency = 3
	}
	if v.minConfidence <= 0 {
		v.minConfidence = 60
	}
	if v.responseTimeLimit <= 0 {
		v.responseTimeLimit = 3 * time.Second
	}
	return v
}

// Validate applies the decision table to the assembled evidence for one alert.
func (v *Validator) Validate(
	alert models.AlertContext,
	analysis models.LogAnalysis,
	health models.HealthCheck,
	history models.HistoricalContext,
	known *models.KnownIssue,
) models.ValidationResult {
	result := v.decide(alert, analysis, health, known)

	result.KnownIssue = known
	result.ShouldCreateIssue = result.IsRealIssue && result.Confidence >= v.minConfidence
	result.ShouldAttemptRemediation = result.IsRealIssue && known != nil && known.AutoRemediable
	result.ShouldUpdateExisting = result.ShouldCreateIssue && history.SeenBefore && history.TicketNumber > 0 && !history.Resolved

	return result
}

func (v *Validator) decide(
	alert models.AlertContext,
	analysis models.LogAnalysis,
	health models.HealthCheck,
	known *models.KnownIssue,
) models.ValidationResult {
	// Rule 1: hard outage evidence preempts everything else.
	if !health.APIResponsive || !health.DatabaseConnected {
		return models.ValidationResult{
			IsRealIssue: true,
			Confidence:  95,
			Reason:      "service unresponsive or database disconnected",
		}
	}

	// Rule 2: JWT expiry noise. These fire on every expired session token and
	// were historically the top false-positive source, so the suppression has
	// to win even when the volume clears the frequency threshold.
	if known != nil && !known.AutoRemediable && strings.Contains(known.Title, "JWT") {
		return models.ValidationResult{
			IsRealIssue: false,
			Confidence:  90,
			Reason:      "matches known JWT expiry pattern (expected behaviour)",
		}
	}

	// Rule 3: error frequency at or above the configured minimum.
	if analysis.ErrorCount >= v.minErrorFrequency {
		return models.ValidationResult{
			IsRealIssue: true,
			Confidence:  85,
			Reason:      fmt.Sprintf("error frequency %d meets threshold %d", analysis.ErrorCount, v.minErrorFrequency),
		}
	}

	// Rule 4: stack trace during a critical alert.
	if analysis.HasStackTrace && alert.Severity == models.AlertCritical {
		return models.ValidationResult{
			IsRealIssue: true,
			Confidence:  80,
			Reason:      "stack trace present during critical alert",
		}
	}

	// Rule 5: degraded response time.
	if health.ResponseTime > v.responseTimeLimit {
		return models.ValidationResult{
			IsRealIssue: true,
			Confidence:  70,
			Reason:      fmt.Sprintf("response time %s over limit %s", health.ResponseTime, v.responseTimeLimit),
		}
	}

	// Rule 6: a lone stack trace still counts when configured to.
	if analysis.HasStackTrace && v.singleErrorWithTrace {
		return models.ValidationResult{
			IsRealIssue: true,
			Confidence:  65,
			Reason:      "single error with stack trace",
		}
	}

	// Rule 7: nothing conclusive.
	return models.ValidationResult{
		IsRealIssue: false,
		Confidence:  50,
		Reason:      "insufficient evidence of a real issue",
	}
}
