package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "msi_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	RunDuration     prometheus.Histogram
	RunsTotal       *prometheus.CounterVec // labels: outcome={success,partial,failed}

	// Bulletin fetch metrics.
	FetchRequests  *prometheus.CounterVec   // labels: source, outcome={success,retry,error}
	FetchDuration  *prometheus.HistogramVec // labels: source
	SourceFailures *prometheus.CounterVec   // labels: source

	// Report processing metrics.
	ReportsParsed    *prometheus.CounterVec // labels: source
	MalformedReports *prometheus.CounterVec // labels: source
	RecordsStored    *prometheus.CounterVec // labels: sink
	SinkErrors       *prometheus.CounterVec // labels: sink

	// Notifications: outcome={sent,suppressed,error}.
	Notifications *prometheus.CounterVec
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PipelineRunning,
		m.RunDuration,
		m.RunsTotal,
		m.FetchRequests,
		m.FetchDuration,
		m.SourceFailures,
		m.ReportsParsed,
		m.MalformedReports,
		m.RecordsStored,
		m.SinkErrors,
		m.Notifications,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while the scheduler is active, 0 when shut down.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete fetch-parse-store run across all sources.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Bulletin HTTP requests by source and outcome.",
		}, []string{"source", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Bulletin HTTP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		SourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Sources that contributed no reports to a run.",
		}, []string{"source"}),
		ReportsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_parsed_total",
			Help:      "Reports segmented from bulletins and transformed into records.",
		}, []string{"source"}),
		MalformedReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_reports_total",
			Help:      "Reports routed to manual review.",
		}, []string{"source"}),
		RecordsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_stored_total",
			Help:      "Output records written by sink.",
		}, []string{"sink"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed sink writes by sink.",
		}, []string{"sink"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Malformed-report notifications by outcome.",
		}, []string{"outcome"}),
	}
}
