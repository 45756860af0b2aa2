// Package pipeline is a minimal YAML front end for kannich pipelines —
// an explicit stand-in for whatever richer pipeline-definition language
// a real deployment supplies (spec.md §1, §3 — front-end parsing and
// templating are out of scope for the core). It decodes a document of
// named jobs and named executions into a *types.Pipeline, translating
// each job's declarative steps (run commands, cd, env, tools,
// allow_failure) into a types.JobBlock closure that drives the job
// scope the orchestrator attaches to its context.
package pipeline
