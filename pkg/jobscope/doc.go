// Package jobscope carries the mutable per-job state a running Job
// block observes and mutates: working directory, environment overlay,
// tool PATH prepends, registered cleanup callbacks, and the
// fail/allow_failure flags (spec.md §4.5).
//
// Go has no goroutine-local storage, so the scope travels explicitly as
// a context.Context value rather than the implicit "current job"
// global a single-threaded interpreter could get away with. Every
// JobBlock receives it as its ctx argument and reads it back with
// From; the orchestrator is the only caller that constructs one
// directly, via New and Derive.
package jobscope
