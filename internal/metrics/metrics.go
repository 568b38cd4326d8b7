// Package metrics holds the Prometheus instruments for publisher runs.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roostrcapital/xposter/internal/publisher"
)

// Metrics groups all Prometheus instruments used across the application.
type Metrics struct {
	Runs         *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	LastSuccess  prometheus.Gauge
	QueuePending *prometheus.GaugeVec
}

// New registers all instruments with reg. Pass a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xposter_runs_total",
			Help: "Publisher runs by outcome (posted, degraded, exhausted, failed).",
		}, []string{"outcome"}),

		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "xposter_step_duration_seconds",
			Help:    "Duration of each pipeline step.",
			Buckets: []float64{.05, .25, 1, 2.5, 5, 10, 30, 60},
		}, []string{"step", "result"}),

		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xposter_last_success_timestamp_seconds",
			Help: "Unix time of the last run that recorded a post.",
		}),

		QueuePending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xposter_queue_pending",
			Help: "Unposted queue items per slot.",
		}, []string{"slot"}),
	}

	reg.MustRegister(m.Runs, m.StepDuration, m.LastSuccess, m.QueuePending)
	return m
}

// PublisherHooks returns the callbacks expected by publisher.Deps.
func (m *Metrics) PublisherHooks() publisher.Hooks {
	return publisher.Hooks{
		OnStep: func(step publisher.Step, d time.Duration, err error) {
			result := "ok"
			if err != nil {
				result = "error"
			}
			m.StepDuration.WithLabelValues(string(step), result).Observe(d.Seconds())
		},
		OnOutcome: func(outcome string) {
			m.Runs.WithLabelValues(outcome).Inc()
			if outcome == string(publisher.OutcomePosted) || outcome == string(publisher.OutcomeDegraded) {
				m.LastSuccess.SetToCurrentTime()
			}
		},
	}
}

// SetPending replaces the per-slot pending gauges.
func (m *Metrics) SetPending(pending map[string]int) {
	m.QueuePending.Reset()
	for slot, n := range pending {
		m.QueuePending.WithLabelValues(slot).Set(float64(n))
	}
}

// WriteTextfile writes everything g gathers to path in the text format read
// by the node_exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
