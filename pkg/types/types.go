// Package types holds the pipeline data model shared by every kannich
// package: the immutable job/execution/step tree handed down by the
// pipeline front end, the mutable layer and job-scope records the
// orchestrator builds while running it, and the result shapes returned
// to the caller.
package types

import (
	"context"
	"fmt"
	"time"
)

// JobBlock is the suspendable procedure a Job runs. The job scope for
// the call is reachable from ctx via pkg/jobscope.From, which keeps
// pkg/types independent of the scope implementation (spec §4.5 step 3,
// §9: pass the scope as an explicit, context-propagated value rather
// than goroutine-local state). A JobBlock calling Scope.Fail returns
// that sentinel error; any other non-nil error is treated the same way
// by the orchestrator (spec §4.5, §7).
type JobBlock func(ctx context.Context) error

// Job is a named unit of user-defined work with its own private
// filesystem view once run.
type Job struct {
	Name        string
	Description string
	Block       JobBlock

	// Artifacts names the files this job produces, in the Ant-style
	// glob grammar of spec.md §4.6. A zero value collects nothing.
	Artifacts ArtifactSpec
}

// Execution is a named, ordered composition of steps — a starting point
// for a run.
type Execution struct {
	Name  string
	Steps []Step
}

// StepKind tags the four Step variants of spec.md §3.
type StepKind int

const (
	StepJobRef StepKind = iota
	StepExecutionRef
	StepSequential
	StepParallel
)

func (k StepKind) String() string {
	switch k {
	case StepJobRef:
		return "job"
	case StepExecutionRef:
		return "execution"
	case StepSequential:
		return "sequential"
	case StepParallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// Step is a tagged sum of JobRef / ExecutionRef / Sequential / Parallel.
// Exactly one of JobName / ExecutionName / Steps is meaningful,
// selected by Kind — pattern-matched by the orchestrator, never by type
// assertion or inheritance (spec.md §9).
type Step struct {
	Kind StepKind

	// JobName is set when Kind == StepJobRef.
	JobName string

	// ExecutionName is set when Kind == StepExecutionRef.
	ExecutionName string

	// Steps holds the children when Kind == StepSequential or StepParallel.
	Steps []Step
}

// JobRef builds a Step referencing the named job.
func JobRef(name string) Step { return Step{Kind: StepJobRef, JobName: name} }

// ExecutionRef builds a Step inlining the named execution's steps.
func ExecutionRef(name string) Step { return Step{Kind: StepExecutionRef, ExecutionName: name} }

// Sequential builds a Step running children in order, stopping on the
// first failure.
func Sequential(steps ...Step) Step { return Step{Kind: StepSequential, Steps: steps} }

// Parallel builds a Step running children concurrently; the block fails
// if any child fails.
func Parallel(steps ...Step) Step { return Step{Kind: StepParallel, Steps: steps} }

// Pipeline is the immutable tree supplied by the front end: a set of
// named jobs and named executions. Job.Name and Execution.Name are each
// unique within a Pipeline — the front end is responsible for that
// invariant, along with acyclicity of ExecutionRef chains (spec.md §3).
type Pipeline struct {
	Jobs       map[string]*Job
	Executions map[string]*Execution
	// Env carries pipeline-level environment entries, merged under the
	// host/CLI-forwarded environment when a job scope is constructed
	// (spec.md §4.5 step 2).
	Env map[string]string
}

// Job looks up a job by name.
func (p *Pipeline) Job(name string) (*Job, error) {
	j, ok := p.Jobs[name]
	if !ok {
		return nil, fmt.Errorf("job %q not found in pipeline", name)
	}
	return j, nil
}

// Execution looks up an execution by name.
func (p *Pipeline) Execution(name string) (*Execution, error) {
	e, ok := p.Executions[name]
	if !ok {
		return nil, fmt.Errorf("execution %q not found in pipeline", name)
	}
	return e, nil
}

// ArtifactSpec names files to copy out of a job's layer once it
// completes: an include pattern set narrowed by an exclude pattern set,
// both in the Ant-style glob grammar of spec.md §4.6.
type ArtifactSpec struct {
	Includes []string
	Excludes []string
}

// JobResult is the outcome of running a single job.
type JobResult struct {
	Name    string
	Success bool
	Message string
}

// ExecutionResult is the outcome of running an execution: success iff
// every recorded job succeeded.
type ExecutionResult struct {
	Name    string
	Success bool
	Jobs    []JobResult
}

// AddJob appends a job result and folds its success into the aggregate.
func (r *ExecutionResult) AddJob(jr JobResult) {
	r.Jobs = append(r.Jobs, jr)
	if !jr.Success {
		r.Success = false
	}
}

// NewExecutionResult starts an aggregate in the success state; it flips
// to failure the first time a job result reports failure.
func NewExecutionResult(name string) *ExecutionResult {
	return &ExecutionResult{Name: name, Success: true}
}

// RunRecord is a persisted summary of one orchestrator.RunExecution
// call, written by the run-history store after the execution result is
// already computed — an observability side effect, not part of the
// core's in-memory invariants (SPEC_FULL.md §3).
type RunRecord struct {
	ID            string
	PipelineFile  string
	ExecutionName string
	StartedAt     time.Time
	FinishedAt    time.Time
	Success       bool
	Jobs          []JobResult
}
