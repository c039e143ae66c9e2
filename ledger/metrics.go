package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the dispatcher's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	retries    *prometheus.CounterVec
	alerts     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pos",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Units of work run by the dispatcher, by outcome.",
			},
			[]string{"operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pos",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Wall time of dispatcher units of work including retries.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pos",
				Subsystem: "ledger",
				Name:      "conflict_retries_total",
				Help:      "Units of work re-run after a numbering or obligation conflict.",
			},
			[]string{"operation"},
		),
		alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pos",
				Subsystem: "ledger",
				Name:      "alerts_total",
				Help:      "Alerts evaluated, by type and whether they were raised or suppressed.",
			},
			[]string{"type", "result"},
		),
	}
	reg.MustRegister(m.operations, m.duration, m.retries, m.alerts)
	return m
}

func (m *Metrics) observe(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case IsClientError(err):
		outcome = "rejected"
	case IsRetryable(err):
		outcome = "conflict"
	default:
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) retry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

func (m *Metrics) alert(typ NotificationType, raised bool) {
	if m == nil {
		return
	}
	result := "raised"
	if !raised {
		result = "suppressed"
	}
	m.alerts.WithLabelValues(string(typ), result).Inc()
}
