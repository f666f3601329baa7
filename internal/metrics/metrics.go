// Package metrics exposes Prometheus instruments for pipeline runs. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joseph-ayodele/billing-parser/constants"
)

type Metrics struct {
	stageInvocations *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	ocrFailures      prometheus.Counter
	runs             *prometheus.CounterVec
	eventsEmitted    *prometheus.CounterVec
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "stage_invocations_total",
			Help:      "Pipeline stage invocations by stage.",
		}, []string{"stage"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "billing",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage wall time.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 3, 9),
		}, []string{"stage"}),
		ocrFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "ocr_failures_total",
			Help:      "Images whose recognition failed.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "runs_total",
			Help:      "Finished pipeline runs by terminal state and failure kind.",
		}, []string{"status", "kind"}),
		eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "events_total",
			Help:      "Tool events relayed to observers by type.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.stageInvocations, m.stageDuration, m.ocrFailures, m.runs, m.eventsEmitted)
	return m
}

func (m *Metrics) StageInvoked(stage constants.Stage, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageInvocations.WithLabelValues(string(stage)).Inc()
	m.stageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

func (m *Metrics) OCRFailures(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ocrFailures.Add(float64(n))
}

func (m *Metrics) RunFinished(state constants.RunState, kind string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(state), kind).Inc()
}

func (m *Metrics) EventRelayed(eventType string) {
	if m == nil {
		return
	}
	m.eventsEmitted.WithLabelValues(eventType).Inc()
}
