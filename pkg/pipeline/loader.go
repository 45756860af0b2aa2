package pipeline

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kannich/kannich/pkg/jobscope"
	"github.com/kannich/kannich/pkg/types"
)

// LoadFile reads and parses a pipeline YAML document from path.
func LoadFile(path string) (*types.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline file: %w", err)
	}
	return Load(data)
}

// Load parses a pipeline YAML document into a *types.Pipeline.
func Load(data []byte) (*types.Pipeline, error) {
	var fs fileSpec
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("parse pipeline: %w", err)
	}

	pipeline := &types.Pipeline{
		Jobs:       make(map[string]*types.Job, len(fs.Jobs)),
		Executions: make(map[string]*types.Execution, len(fs.Executions)),
		Env:        fs.Env,
	}

	for name, js := range fs.Jobs {
		artifacts := types.ArtifactSpec{}
		if js.Artifacts != nil {
			artifacts = types.ArtifactSpec{Includes: js.Artifacts.Includes, Excludes: js.Artifacts.Excludes}
		}
		pipeline.Jobs[name] = &types.Job{
			Name:        name,
			Description: js.Description,
			Block:       buildBlock(name, js),
			Artifacts:   artifacts,
		}
	}

	for name, es := range fs.Executions {
		steps, err := toSteps(es.Steps)
		if err != nil {
			return nil, fmt.Errorf("execution %q: %w", name, err)
		}
		pipeline.Executions[name] = &types.Execution{Name: name, Steps: steps}
	}

	return pipeline, nil
}

func toSteps(specs []stepSpec) ([]types.Step, error) {
	out := make([]types.Step, 0, len(specs))
	for _, s := range specs {
		step, err := toStep(s)
		if err != nil {
			return nil, err
		}
		out = append(out, step)
	}
	return out, nil
}

func toStep(s stepSpec) (types.Step, error) {
	if n := s.variantCount(); n != 1 {
		return types.Step{}, fmt.Errorf("step must set exactly one of job/execution/sequential/parallel, got %d: %s", n, s.describe())
	}

	switch {
	case s.Job != "":
		return types.JobRef(s.Job), nil
	case s.Execution != "":
		return types.ExecutionRef(s.Execution), nil
	case len(s.Sequential) > 0:
		children, err := toSteps(s.Sequential)
		if err != nil {
			return types.Step{}, err
		}
		return types.Sequential(children...), nil
	default:
		children, err := toSteps(s.Parallel)
		if err != nil {
			return types.Step{}, err
		}
		return types.Parallel(children...), nil
	}
}

// buildBlock turns a job's declarative YAML fields into a JobBlock
// closure. dir/env/tools are applied as nested scoped acquisitions
// (jobscope.Scope.WithCwd/WithEnv/WithTools) wrapping the step-running
// loop, so they restore on every exit path the way spec.md §4.5
// requires; allow_failure wraps the same loop in Scope.AllowFailure,
// catching the job-failure sentinel a non-zero exit produces and
// nothing else (spec.md §4.5, §8).
func buildBlock(name string, js *jobSpec) types.JobBlock {
	runSteps := func(ctx context.Context) error {
		scope := jobscope.From(ctx)
		if scope == nil {
			return fmt.Errorf("job %s: no job scope attached to context", name)
		}
		for _, cmd := range js.Steps {
			res, err := scope.Run(ctx, []string{"sh", "-c", cmd}, false)
			if err != nil {
				return scope.Fail(err.Error())
			}
			if res.ExitCode != 0 {
				return scope.Fail(fmt.Sprintf("command %q exited %d", cmd, res.ExitCode))
			}
		}
		return nil
	}

	run := runSteps
	if len(js.Tools) > 0 {
		inner := run
		run = func(ctx context.Context) error {
			scope := jobscope.From(ctx)
			return scope.WithTools(ctx, inner, js.Tools...)
		}
	}
	if len(js.Env) > 0 {
		inner := run
		run = func(ctx context.Context) error {
			scope := jobscope.From(ctx)
			return scope.WithEnv(ctx, js.Env, inner)
		}
	}
	if js.Dir != "" {
		inner := run
		run = func(ctx context.Context) error {
			scope := jobscope.From(ctx)
			return scope.WithCwd(ctx, js.Dir, inner)
		}
	}
	if js.AllowFailure {
		inner := run
		run = func(ctx context.Context) error {
			scope := jobscope.From(ctx)
			_, err := scope.AllowFailure(ctx, inner)
			return err
		}
	}

	return run
}
