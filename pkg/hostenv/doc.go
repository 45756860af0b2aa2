// Package hostenv implements the environment contract of spec.md §6: a
// one-shot, \0-separated dump file handed off by the host wrapper, read
// once at executor startup and deleted, filtered through an opt-in
// allowlist of key prefixes before being merged into a job's
// environment.
//
// This is deliberately small and stdlib-only — it is a single file
// parse/filter step with no natural home in a third-party library, and
// kannich's own CLI plays the role of both the host wrapper and the
// executor the distilled spec describes as separate processes.
package hostenv
