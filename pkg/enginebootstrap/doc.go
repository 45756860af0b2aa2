// Package enginebootstrap implements the container-engine bootstrap
// fallback (SPEC_FULL.md component 10): containerdriver.Initialize
// first probes for a reachable containerd socket, and only on Darwin,
// when none is reachable, calls into this package to provision a
// small Linux VM with containerd running inside it before retrying.
// This only changes how a socket becomes available — everything past
// that point is the ordinary container-driver initialize sequence.
package enginebootstrap
