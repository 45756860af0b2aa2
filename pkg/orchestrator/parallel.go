package orchestrator

import (
	"context"
	"sync"

	"github.com/kannich/kannich/pkg/layer"
	"github.com/kannich/kannich/pkg/types"
)

// runParallel fans steps out from a single shared base layer, runs
// them concurrently to completion (each blind to the others' writes —
// every child mounts the same base as its lowerdir), then reconciles
// their diffs onto one new layer in declared order (spec.md §4.4, §9).
// A nested Parallel child fully resolves its own fan-out — recursively
// reaching this same function — before its single net diff takes part
// in the reconciliation here.
func (o *Orchestrator) runParallel(ctx context.Context, steps []types.Step, base *layer.Layer, env map[string]string, result *types.ExecutionResult) (*layer.Layer, error) {
	if len(steps) == 0 {
		return base, nil
	}
	if o.shuttingDown != nil && o.shuttingDown() {
		return base, &ShutdownRequestedError{Step: "parallel block"}
	}
	o.metrics.ObserveParallelFanOut(len(steps))

	childLayers := make([]*layer.Layer, len(steps))
	childErrs := make([]error, len(steps))
	childResults := make([]*types.ExecutionResult, len(steps))

	var wg sync.WaitGroup
	wg.Add(len(steps))
	for i, step := range steps {
		childResults[i] = types.NewExecutionResult(result.Name)
		go func(i int, step types.Step) {
			defer wg.Done()
			l, err := o.runStep(ctx, step, base, env, childResults[i])
			childLayers[i] = l
			childErrs[i] = err
		}(i, step)
	}
	wg.Wait()

	merged, err := o.layers.Create(ctx, base.ID)
	if err != nil {
		return base, err
	}
	o.track(merged.ID)

	var firstErr error
	for i, step := range steps {
		_ = step
		result.Jobs = append(result.Jobs, childResults[i].Jobs...)
		if !childResults[i].Success {
			result.Success = false
		}

		if childLayers[i] == nil || childLayers[i].ID == base.ID {
			if firstErr == nil && childErrs[i] != nil {
				firstErr = childErrs[i]
			}
			continue
		}

		entries, derr := o.layers.Diff(ctx, childLayers[i].ID)
		if derr != nil {
			if firstErr == nil {
				firstErr = derr
			}
			continue
		}
		if merr := o.layers.Merge(ctx, merged.ID, childLayers[i].Upper, entries); merr != nil {
			if firstErr == nil {
				firstErr = merr
			}
		}

		if firstErr == nil && childErrs[i] != nil {
			firstErr = childErrs[i]
		}
	}

	return merged, firstErr
}
