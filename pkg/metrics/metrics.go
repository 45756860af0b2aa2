package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kannich_job_duration_seconds",
			Help:    "Time taken to run a job, from block start to cleanup",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	JobResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kannich_job_results_total",
			Help: "Total jobs run, by job name and outcome",
		},
		[]string{"job", "result"},
	)

	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kannich_execution_duration_seconds",
			Help:    "Time taken to run a whole execution",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"execution"},
	)

	RunResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kannich_run_results_total",
			Help: "Total executions run, by execution name and outcome",
		},
		[]string{"execution", "result"},
	)

	LayersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kannich_layers_active",
			Help: "Number of overlay layers currently tracked by the layer manager",
		},
	)

	ParallelFanOutWidth = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kannich_parallel_fanout_width",
			Help:    "Number of steps fanned out by a parallel block",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		},
	)
)

func init() {
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(JobResultsTotal)
	prometheus.MustRegister(ExecutionDuration)
	prometheus.MustRegister(RunResultsTotal)
	prometheus.MustRegister(LayersActive)
	prometheus.MustRegister(ParallelFanOutWidth)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a convenience wrapper for timing an operation and observing
// its duration to a histogram once it completes.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram *prometheus.HistogramVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}
