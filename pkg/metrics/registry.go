package metrics

// Registry implements orchestrator.Metrics against the package-level
// Prometheus vars. It carries no state of its own — every instance
// observes to the same process-wide metrics — so callers can freely
// construct one per orchestrator without double-registering anything.
type Registry struct{}

// NewRegistry returns a Metrics implementation backed by the package's
// registered Prometheus collectors.
func NewRegistry() *Registry {
	return &Registry{}
}

// ObserveJobDuration records how long a job took to run.
func (r *Registry) ObserveJobDuration(jobName string, seconds float64) {
	JobDuration.WithLabelValues(jobName).Observe(seconds)
}

// IncJobResult increments the outcome counter for a finished job.
func (r *Registry) IncJobResult(jobName string, success bool) {
	JobResultsTotal.WithLabelValues(jobName, resultLabel(success)).Inc()
}

// ObserveExecutionDuration records how long a whole execution took.
func (r *Registry) ObserveExecutionDuration(executionName string, seconds float64) {
	ExecutionDuration.WithLabelValues(executionName).Observe(seconds)
}

// IncRunResult increments the outcome counter for a finished execution.
func (r *Registry) IncRunResult(executionName string, success bool) {
	RunResultsTotal.WithLabelValues(executionName, resultLabel(success)).Inc()
}

// ObserveParallelFanOut records how many steps a parallel block fanned
// out to.
func (r *Registry) ObserveParallelFanOut(width int) {
	ParallelFanOutWidth.Observe(float64(width))
}

// SetLayersActive reports the layer manager's current tracked-layer count.
func (r *Registry) SetLayersActive(n int) {
	LayersActive.Set(float64(n))
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
