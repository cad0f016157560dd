package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels investigations that completed.
	OutcomeSuccess = "success"
	// OutcomeError labels investigations that failed outright.
	OutcomeError = "error"
	// OutcomeDismissed labels investigations the validator rejected as noise.
	OutcomeDismissed = "dismissed"
)

var (
	investigationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dinewatch",
			Name:      "investigations_total",
			Help:      "Total number of alert investigations, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	investigationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dinewatch",
			Name:      "investigation_seconds",
			Help:      "Investigation latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 45, 60},
		},
	)

	alertsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dinewatch",
			Name:      "alerts_received_total",
			Help:      "Webhook and scheduler alerts accepted for investigation.",
		},
		[]string{"source"},
	)

	remediationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dinewatch",
			Name:      "remediations_total",
			Help:      "Remediation attempts, partitioned by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	ticketsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dinewatch",
			Name:      "tickets_total",
			Help:      "Issue tracker operations, partitioned by kind (created/commented).",
		},
		[]string{"op"},
	)
)

// Register attaches dinewatch collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		investigationsTotal,
		investigationDurationSeconds,
		alertsReceivedTotal,
		remediationsTotal,
		ticketsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveInvestigation records an investigation duration and outcome label.
func ObserveInvestigation(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeError, OutcomeDismissed:
	default:
		outcome = OutcomeSuccess
	}
	investigationsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	investigationDurationSeconds.Observe(duration.Seconds())
}

// CountAlert records one accepted alert for the given source.
func CountAlert(source string) {
	alertsReceivedTotal.WithLabelValues(source).Inc()
}

// CountRemediation records one remediation attempt.
func CountRemediation(action string, success bool) {
	outcome := OutcomeError
	if success {
		outcome = OutcomeSuccess
	}
	remediationsTotal.WithLabelValues(action, outcome).Inc()
}

// CountTicket records one issue tracker operation ("created" or "commented").
func CountTicket(op string) {
	ticketsTotal.WithLabelValues(op).Inc()
}
