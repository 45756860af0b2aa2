package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kannich/kannich/pkg/jobscope"
	"github.com/kannich/kannich/pkg/layer"
	"github.com/kannich/kannich/pkg/log"
	"github.com/kannich/kannich/pkg/types"
)

// ArtifactCollector resolves a job's artifact spec against its
// finished layer and copies matches to a host directory. Satisfied by
// *artifact.Collector.
type ArtifactCollector interface {
	Collect(ctx context.Context, workDir string, spec types.ArtifactSpec, hostDir string) ([]string, error)
}

// Metrics receives per-job timing and outcome observations. Satisfied
// by pkg/metrics.Registry; nil-safe noopMetrics is used when the
// caller doesn't wire one in.
type Metrics interface {
	ObserveJobDuration(jobName string, seconds float64)
	IncJobResult(jobName string, success bool)
	ObserveExecutionDuration(executionName string, seconds float64)
	IncRunResult(executionName string, success bool)
	ObserveParallelFanOut(width int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveJobDuration(string, float64)       {}
func (noopMetrics) IncJobResult(string, bool)                {}
func (noopMetrics) ObserveExecutionDuration(string, float64) {}
func (noopMetrics) IncRunResult(string, bool)                {}
func (noopMetrics) ObserveParallelFanOut(int)                {}

// Orchestrator walks a pipeline's step tree against one build
// container's layer chain (spec.md §4.4).
type Orchestrator struct {
	pipeline     *types.Pipeline
	layers       *layer.Manager
	execer       jobscope.Execer
	shuttingDown func() bool
	metrics      Metrics
	logger       zerolog.Logger

	artifacts     ArtifactCollector
	artifactsRoot string

	mu           sync.Mutex
	trackedLayer []string
}

// WithArtifacts enables post-job artifact collection: every job whose
// Artifacts spec has at least one include pattern has its matches
// copied into hostRoot/<job name> once it succeeds (spec.md §4.6).
func (o *Orchestrator) WithArtifacts(c ArtifactCollector, hostRoot string) *Orchestrator {
	o.artifacts = c
	o.artifactsRoot = hostRoot
	return o
}

// New creates an orchestrator for pipeline, using layers to manage
// overlay state and execer to run commands inside the build container.
// shuttingDown is polled between steps so an in-flight host shutdown
// signal stops new work from starting (spec.md §5); a nil metrics
// disables observation.
func New(pipeline *types.Pipeline, layers *layer.Manager, execer jobscope.Execer, shuttingDown func() bool, metrics Metrics) *Orchestrator {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Orchestrator{
		pipeline:     pipeline,
		layers:       layers,
		execer:       execer,
		shuttingDown: shuttingDown,
		metrics:      metrics,
		logger:       log.WithComponent("orchestrator"),
	}
}

// RunExecution runs the named execution from a fresh root layer and
// returns its aggregate result along with the final layer, which the
// caller can read artifacts from before calling Cleanup.
func (o *Orchestrator) RunExecution(ctx context.Context, executionName string, env map[string]string) (*types.ExecutionResult, *layer.Layer, error) {
	exec, err := o.pipeline.Execution(executionName)
	if err != nil {
		return nil, nil, err
	}

	root, err := o.layers.Create(ctx, "")
	if err != nil {
		return nil, nil, err
	}
	o.track(root.ID)

	result := types.NewExecutionResult(executionName)
	start := time.Now()
	final, err := o.runSequential(ctx, exec.Steps, root, env, result)
	if err != nil {
		result.Success = false
	}
	o.metrics.ObserveExecutionDuration(executionName, time.Since(start).Seconds())
	o.metrics.IncRunResult(executionName, result.Success)
	return result, final, err
}

// Cleanup destroys every layer created while running an execution.
// Call it after artifacts have been collected from the final layer.
func (o *Orchestrator) Cleanup(ctx context.Context) {
	o.mu.Lock()
	ids := o.trackedLayer
	o.trackedLayer = nil
	o.mu.Unlock()

	for i := len(ids) - 1; i >= 0; i-- {
		if err := o.layers.Destroy(ctx, ids[i]); err != nil {
			o.logger.Warn().Err(err).Str("layer", ids[i]).Msg("failed to destroy layer during cleanup")
		}
	}
}

func (o *Orchestrator) track(layerID string) {
	o.mu.Lock()
	o.trackedLayer = append(o.trackedLayer, layerID)
	o.mu.Unlock()
}

// runStep dispatches on step.Kind (spec.md §9 — pattern-matched, never
// type-asserted) and returns the layer the lineage should continue
// from.
func (o *Orchestrator) runStep(ctx context.Context, step types.Step, base *layer.Layer, env map[string]string, result *types.ExecutionResult) (*layer.Layer, error) {
	switch step.Kind {
	case types.StepJobRef:
		return o.runJob(ctx, step.JobName, base, env, result)
	case types.StepExecutionRef:
		sub, err := o.pipeline.Execution(step.ExecutionName)
		if err != nil {
			return base, err
		}
		return o.runSequential(ctx, sub.Steps, base, env, result)
	case types.StepSequential:
		return o.runSequential(ctx, step.Steps, base, env, result)
	case types.StepParallel:
		return o.runParallel(ctx, step.Steps, base, env, result)
	default:
		return base, fmt.Errorf("unknown step kind %v", step.Kind)
	}
}

func (o *Orchestrator) runSequential(ctx context.Context, steps []types.Step, base *layer.Layer, env map[string]string, result *types.ExecutionResult) (*layer.Layer, error) {
	current := base
	for i, step := range steps {
		if o.shuttingDown != nil && o.shuttingDown() {
			return current, &ShutdownRequestedError{Step: fmt.Sprintf("step %d", i)}
		}
		next, err := o.runStep(ctx, step, current, env, result)
		if next != nil {
			current = next
		}
		if err != nil {
			return current, err
		}
	}
	return current, nil
}

// runJob runs one job as a child layer of base. A failing job that is
// not marked allow_failure returns a *JobFailedError and stops its
// sequential chain; one that is allow_failure reports its failure in
// result but returns no error, so the chain continues from its layer.
func (o *Orchestrator) runJob(ctx context.Context, jobName string, base *layer.Layer, env map[string]string, result *types.ExecutionResult) (*layer.Layer, error) {
	job, err := o.pipeline.Job(jobName)
	if err != nil {
		return base, err
	}

	childLayer, err := o.layers.Create(ctx, base.ID)
	if err != nil {
		return base, err
	}
	o.track(childLayer.ID)

	scope := jobscope.New(jobName, o.execer, childLayer.Merged, mergeEnv(o.pipeline.Env, env))
	jobCtx := jobscope.Into(ctx, scope)

	o.logger.Info().Str("job", jobName).Msg("job started")
	start := time.Now()
	blockErr := runBlock(jobCtx, job.Block, jobName)
	elapsed := time.Since(start).Seconds()

	for _, cerr := range scope.RunCleanups(jobCtx) {
		o.logger.Warn().Err(cerr).Str("job", jobName).Msg("cleanup callback failed")
	}

	o.metrics.ObserveJobDuration(jobName, elapsed)

	// A block that wraps its own sub-steps in Scope.AllowFailure already
	// caught and cleared any sentinel it wants swallowed, so scope.Failed
	// here only reflects a Fail() that propagated all the way out
	// (spec.md §4.5, §8).
	scopeFailed, failMsg := scope.Failed()
	success := blockErr == nil && !scopeFailed
	o.metrics.IncJobResult(jobName, success)

	jr := types.JobResult{Name: jobName, Success: success}
	if !success {
		switch {
		case failMsg != "":
			jr.Message = failMsg
		case blockErr != nil:
			jr.Message = blockErr.Error()
		}
	}
	result.AddJob(jr)

	if success {
		o.logger.Info().Str("job", jobName).Dur("duration", time.Since(start)).Msg("job succeeded")
		o.collectArtifacts(ctx, jobName, job, childLayer)
		return childLayer, nil
	}

	o.logger.Error().Str("job", jobName).Str("reason", jr.Message).Msg("job failed")
	failErr := blockErr
	if failErr == nil {
		failErr = fmt.Errorf("%s", failMsg)
	}
	return childLayer, &JobFailedError{JobName: jobName, Err: failErr}
}

// collectArtifacts pulls job's declared artifacts from finished,
// logging rather than failing the job on collection errors — a
// missing artifact glob does not retroactively fail work that already
// succeeded.
func (o *Orchestrator) collectArtifacts(ctx context.Context, jobName string, job *types.Job, finished *layer.Layer) {
	if o.artifacts == nil || len(job.Artifacts.Includes) == 0 {
		return
	}
	dest := filepath.Join(o.artifactsRoot, jobName)
	if _, err := o.artifacts.Collect(ctx, finished.Merged, job.Artifacts, dest); err != nil {
		o.logger.Warn().Err(err).Str("job", jobName).Msg("artifact collection failed")
	}
}

// runBlock invokes block, converting a panic into an error so one
// misbehaving job can't take down the whole orchestrator goroutine.
func runBlock(ctx context.Context, block types.JobBlock, jobName string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", jobName, r)
		}
	}()
	return block(ctx)
}

func mergeEnv(base, overlay map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}
