package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cap_alerts"

// Metrics holds the Prometheus counters, histograms, and gauges for the CAP pipeline.
type Metrics struct {
	DocumentsConsumed prometheus.Counter
	DocumentsFailed   *prometheus.CounterVec // labels: reason={parse,date,unpaired,polygon,read,other}
	DocumentsSkipped  prometheus.Counter
	FeaturesEmitted   prometheus.Counter
	FeaturesLoaded    *prometheus.CounterVec // labels: sink={elasticsearch,kafka}
	DuplicateFeatures prometheus.Counter
	PairingIncomplete prometheus.Counter
	DegenerateRings   prometheus.Counter
	LoadErrors        *prometheus.CounterVec // labels: sink
	PipelineRunning   prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.DocumentsConsumed,
		m.DocumentsFailed,
		m.DocumentsSkipped,
		m.FeaturesEmitted,
		m.FeaturesLoaded,
		m.DuplicateFeatures,
		m.PairingIncomplete,
		m.DegenerateRings,
		m.LoadErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		DocumentsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_consumed_total",
			Help:      help("Total CAP documents read from the source."),
		}),
		DocumentsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_failed_total",
			Help:      help("CAP documents that produced no features because of an error, by reason."),
		}, []string{"reason"}),
		DocumentsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_skipped_total",
			Help:      help("CAP documents skipped because the seen ledger already holds them."),
		}),
		FeaturesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "features_emitted_total",
			Help:      help("Total GeoJSON features produced by the transform."),
		}),
		FeaturesLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "features_loaded_total",
			Help:      help("Total features accepted by a sink."),
		}, []string{"sink"}),
		DuplicateFeatures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_features_total",
			Help:      help("Features dropped because a newer document already produced the same identifier in this run."),
		}),
		PairingIncomplete: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairing_incomplete_total",
			Help:      help("Documents whose English and French area sets differ in size."),
		}),
		DegenerateRings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degenerate_rings_total",
			Help:      help("Emitted features whose ring is open or encloses no area."),
		}),
		LoadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_errors_total",
			Help:      help("Failed batch loads, by sink."),
		}, []string{"sink"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 when the pipeline is active, 0 when shut down."),
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      help("Number of CAP documents per extracted batch."),
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      help("Duration of a complete batch extract-transform-load cycle."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}
}
