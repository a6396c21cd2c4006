package processing

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"canaswarm-vision-go/internal/types"
)

const metricsNamespace = "canavision"

// Frame outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeMalformed = "malformed"
	OutcomeBusy      = "busy"
	OutcomeError     = "error"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	FramesTotal     *prometheus.CounterVec
	DurationSeconds prometheus.Histogram
	WarningsTotal   *prometheus.CounterVec
	DropsTotal      *prometheus.CounterVec
	RiskTotal       *prometheus.CounterVec
	ActiveStreams   prometheus.Gauge
}

// NewMetrics registers the pipeline collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FramesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "frames_total",
			Help:      "Frames handled by the pipeline by outcome",
		}, []string{"outcome"}),
		DurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Wall time from frame receipt to Result",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.02, 0.03, 0.05, 0.075, 0.1, 0.25},
		}),
		WarningsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "warnings_total",
			Help:      "Warnings attached to Results by kind",
		}, []string{"kind"}),
		DropsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "dispatch",
			Name:      "drops_total",
			Help:      "Frames dropped before producing a Result by reason",
		}, []string{"reason"}),
		RiskTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "overall_risk_total",
			Help:      "Results by overall risk level",
		}, []string{"level"}),
		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "active_streams",
			Help:      "Camera streams holding tracking state",
		}),
	}
}

func (m *Metrics) recordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordResult(r *types.Result) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(OutcomeOK).Inc()
	m.DurationSeconds.Observe(r.ProcessingTime.Seconds())
	m.RiskTotal.WithLabelValues(r.Risk.Overall.String()).Inc()
	for _, w := range r.Warnings {
		m.WarningsTotal.WithLabelValues(string(w.Kind)).Inc()
	}
}

func (m *Metrics) recordDrop(reason DropReason) {
	if m == nil {
		return
	}
	m.DropsTotal.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) setStreams(n int) {
	if m == nil {
		return
	}
	m.ActiveStreams.Set(float64(n))
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
