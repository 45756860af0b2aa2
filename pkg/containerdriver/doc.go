/*
Package containerdriver manages one long-lived build container for the
duration of a pipeline run (spec.md §4.2), backed by containerd's
client/task/process API: one container, one task (the no-op long-running
init process), and one containerd.Process per in-container exec call —
mirroring containerd's own "create once, exec many" model.

	Uninitialized ──initialize()──▶ Ready ──Close()──▶ Closed
	                                  │
	                                  ├─ exec(argv, cwd, env) — task.Exec
	                                  ├─ copyInto(path, bytes, append)
	                                  ├─ copyOut(path, hostDir)
	                                  └─ copyArtifacts(workDir, paths, hostDir)

Close is idempotent and safe to call from a normal return path, an
error path, or a host-signal shutdown hook; whichever caller reaches it
first releases the task and client connection.
*/
package containerdriver
