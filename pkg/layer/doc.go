// Package layer manages the copy-on-write overlay filesystems backing
// each step of a pipeline run (spec.md §4.3). Every layer is a
// fuse-overlayfs mount stacked on its parent's merged view:
//
//	layer N:   upperdir=<N>/upper  lowerdir=<N-1>/merged  workdir=<N>/work
//	           merged=<N>/merged
//
// The manager never touches the host filesystem directly — every
// mkdir, mount, diff inspection, and teardown is issued as a command
// inside the build container through the container driver's Exec, so a
// single FUSE-capable container is the only thing that needs the
// capability (pkg/containerdriver).
package layer
