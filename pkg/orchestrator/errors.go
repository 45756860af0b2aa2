package orchestrator

import "fmt"

// JobFailedError reports a job whose block returned a non-nil error
// and which was not marked allow_failure (spec.md §7).
type JobFailedError struct {
	JobName string
	Err     error
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed: %v", e.JobName, e.Err)
}

func (e *JobFailedError) Unwrap() error { return e.Err }

// ShutdownRequestedError is returned by any step that observes the
// container driver's shutdown flag mid-execution rather than starting
// new work (spec.md §5, §7).
type ShutdownRequestedError struct {
	Step string
}

func (e *ShutdownRequestedError) Error() string {
	return fmt.Sprintf("shutdown requested before %s could start", e.Step)
}
