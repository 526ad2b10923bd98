package session

import (
	"github.com/dunamismax/styleflow/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics covers session lifecycle and transform outcomes. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	sessionsActive    prometheus.Gauge
	sessionsEnded     *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	transformsTotal   *prometheus.CounterVec
	transformDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "styleflow_sessions_active",
			Help: "Workflow sessions currently held in memory.",
		}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "styleflow_sessions_ended_total",
			Help: "Sessions removed, by reason.",
		}, []string{"reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "styleflow_workflow_transitions_total",
			Help: "Workflow state transitions.",
		}, []string{"from", "to"}),
		transformsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "styleflow_transforms_total",
			Help: "Finished transforms by style and outcome.",
		}, []string{"style", "status"}),
		transformDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "styleflow_transform_duration_seconds",
			Help:    "Time from transform start to resolution.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30, 60},
		}, []string{"style", "status"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.sessionsActive,
			m.sessionsEnded,
			m.transitions,
			m.transformsTotal,
			m.transformDuration,
		)
	}
	return m
}

func (m *Metrics) setActive(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

func (m *Metrics) sessionEnded(reason string) {
	if m == nil {
		return
	}
	m.sessionsEnded.WithLabelValues(reason).Inc()
}

func (m *Metrics) transition(from, to domain.Status) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

func (m *Metrics) transformFinished(record domain.TransformRecord) {
	if m == nil {
		return
	}
	m.transformsTotal.WithLabelValues(record.StyleID, record.Status).Inc()
	m.transformDuration.WithLabelValues(record.StyleID, record.Status).Observe(float64(record.DurationMS) / 1000)
}
