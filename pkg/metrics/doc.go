/*
Package metrics defines kannich's Prometheus instrumentation: job
outcome counters, job/execution duration histograms, a live layer-count
gauge, and a parallel fan-out width histogram (SPEC_FULL.md component 9).

All metrics are package-level vars registered once in init(), following
the same global-registry convention the rest of the ecosystem uses —
Registry is a zero-size receiver type that just gives pkg/orchestrator
and pkg/layer a small interface to call through, so neither package
needs to import prometheus directly.

# Usage

	reg := metrics.NewRegistry()
	orch := orchestrator.New(pipeline, layers, execer, shuttingDown, reg)

	http.Handle("/metrics", metrics.Handler())
	go http.ListenAndServe(addr, nil)
*/
package metrics
