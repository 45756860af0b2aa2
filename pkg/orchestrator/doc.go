// Package orchestrator walks a pipeline's Job/Execution/Step tree and
// drives the job scope, layer manager, and container driver to execute
// it (spec.md §4.4).
//
// Sequential is a chain: each job's layer becomes the lineage base for
// the next step. Parallel is a fan-out from one shared base layer:
// every child starts from the same lowerdir, runs independently, and
// none observes another's writes. Reconciliation happens once every
// child — recursively resolving any nested parallel blocks of its own
// first — has produced a single net diff; those per-child diffs are
// then merged onto a fresh layer in declared (not completion) order,
// so the result is deterministic however the goroutines actually
// finished (spec.md §9).
package orchestrator
