package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Confidence stages observed by ObserveConfidence
const (
	StageGate     = "gate"
	StageEnsemble = "ensemble"
)

// Registry holds all Prometheus metrics. Every Record method is a no-op on
// a nil *Registry so components can run without instrumentation.
type Registry struct {
	*prometheus.Registry

	evaluations        prometheus.Counter
	evaluationDuration prometheus.Histogram
	signalsEmitted     *prometheus.CounterVec
	signalsSuppressed  *prometheus.CounterVec
	confidence         *prometheus.HistogramVec
	signalsRouted      *prometheus.CounterVec
	strategiesLoaded   prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		evaluations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "confluence_evaluations_total",
				Help: "Total number of snapshots evaluated",
			},
		),
		evaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "confluence_evaluation_duration_seconds",
				Help:    "Snapshot evaluation duration in seconds",
				Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			},
		),
		signalsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_signals_emitted_total",
				Help: "Total number of candidates emitted by the gate",
			},
			[]string{"symbol", "direction"},
		),
		signalsSuppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_signals_suppressed_total",
				Help: "Total number of snapshots suppressed, by reason",
			},
			[]string{"reason"},
		),
		confidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "confluence_confidence",
				Help:    "Candidate confidence by pipeline stage",
				Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
			},
			[]string{"stage"},
		),
		signalsRouted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confluence_signals_routed_total",
				Help: "Total number of candidates delivered to sinks",
			},
			[]string{"sink", "status"},
		),
		strategiesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "confluence_strategies_loaded",
				Help: "Number of strategy definitions in the active catalog",
			},
		),
	}

	reg.MustRegister(r.evaluations)
	reg.MustRegister(r.evaluationDuration)
	reg.MustRegister(r.signalsEmitted)
	reg.MustRegister(r.signalsSuppressed)
	reg.MustRegister(r.confidence)
	reg.MustRegister(r.signalsRouted)
	reg.MustRegister(r.strategiesLoaded)

	return r
}

// RecordEvaluation records one snapshot evaluation.
func (r *Registry) RecordEvaluation(duration float64) {
	if r == nil {
		return
	}
	r.evaluations.Inc()
	r.evaluationDuration.Observe(duration)
}

// RecordEmitted records a candidate leaving the gate.
func (r *Registry) RecordEmitted(symbol, direction string) {
	if r == nil {
		return
	}
	r.signalsEmitted.WithLabelValues(symbol, direction).Inc()
}

// RecordSuppressed records a snapshot or candidate that was dropped.
func (r *Registry) RecordSuppressed(reason string) {
	if r == nil {
		return
	}
	r.signalsSuppressed.WithLabelValues(reason).Inc()
}

// ObserveConfidence records a confidence value at a pipeline stage.
func (r *Registry) ObserveConfidence(stage string, v float64) {
	if r == nil {
		return
	}
	r.confidence.WithLabelValues(stage).Observe(v)
}

// RecordRouted records a sink delivery.
func (r *Registry) RecordRouted(sink, status string) {
	if r == nil {
		return
	}
	r.signalsRouted.WithLabelValues(sink, status).Inc()
}

// SetStrategiesLoaded sets the catalog size.
func (r *Registry) SetStrategiesLoaded(n int) {
	if r == nil {
		return
	}
	r.strategiesLoaded.Set(float64(n))
}

// WriteTextfile dumps the current metrics in Prometheus text format.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.Registry)
}
