// Package observability holds the Prometheus metrics and OpenTelemetry
// spans emitted while extracting judges from the portal.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "judgeroute"

// Metrics holds all Prometheus metrics for an extraction run.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Portal requests
	FetchAttemptsTotal *prometheus.CounterVec
	FetchSeconds       *prometheus.HistogramVec

	// Orchestrator
	OutcomesTotal *prometheus.CounterVec
	StepSeconds   prometheus.Histogram
	Cursor        prometheus.Gauge
	RecordsTotal  prometheus.Gauge
	BlockedRate   prometheus.Gauge
	SystemicBlock prometheus.Gauge
}

// DefaultMetrics creates metrics registered with the default registry.
func DefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// NewMetrics creates a new set of metrics registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FetchAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "fetch_attempts_total",
				Help:      "Portal HTTP attempts by result",
			},
			[]string{"result"},
		),
		FetchSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "fetch_seconds",
				Help:      "Duration of a single portal HTTP attempt",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"result"},
		),
		OutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "outcomes_total",
				Help:      "Resolved records by outcome kind",
			},
			[]string{"kind"},
		),
		StepSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "step_seconds",
				Help:      "Duration of one orchestrator step, pacing excluded",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40},
			},
		),
		Cursor: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "cursor",
			Help:      "Index of the next record to process",
		}),
		RecordsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "records",
			Help:      "Number of records in the current run",
		}),
		BlockedRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "blocked_rate",
			Help:      "Share of blocked outcomes in the rolling window",
		}),
		SystemicBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "systemic_block",
			Help:      "1 while the portal appears to be blocking this client",
		}),
	}
}

// ObserveFetch records one portal attempt.
func (m *Metrics) ObserveFetch(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchAttemptsTotal.WithLabelValues(result).Inc()
	m.FetchSeconds.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveStep records one orchestrator step.
func (m *Metrics) ObserveStep(kind string, d time.Duration, cursor, total int) {
	if m == nil {
		return
	}
	m.OutcomesTotal.WithLabelValues(kind).Inc()
	m.StepSeconds.Observe(d.Seconds())
	m.Cursor.Set(float64(cursor))
	m.RecordsTotal.Set(float64(total))
}

// SetBlocked updates the rolling blocked-rate gauges.
func (m *Metrics) SetBlocked(rate float64, systemic bool) {
	if m == nil {
		return
	}
	m.BlockedRate.Set(rate)
	if systemic {
		m.SystemicBlock.Set(1)
	} else {
		m.SystemicBlock.Set(0)
	}
}
