package enginebootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/kannich/kannich/pkg/log"
)

// VM is the platform-specific VM-plus-engine provisioner. vmBootstrap
// (darwin) and vmUnsupported (everything else) both satisfy it.
type VM interface {
	// Start provisions the VM if needed and starts it, returning once
	// its containerd socket is reachable.
	Start(ctx context.Context) error
	// SocketPath returns the host-reachable path to the VM's
	// containerd socket. Only valid after a successful Start.
	SocketPath() string
	// Stop shuts the VM down.
	Stop(ctx context.Context) error
}

// Ensure returns a reachable containerd socket path: preferredSocket
// unchanged if it is already reachable, or the socket of a freshly
// bootstrapped VM otherwise. The bootstrap path is only implemented for
// Darwin (newVM on every other platform always fails to start) — a dead
// preferredSocket elsewhere is a hard failure (spec.md §4.2 "Bootstrap
// fallback").
func Ensure(ctx context.Context, preferredSocket, dataDir string) (socketPath string, cleanup func(context.Context) error, err error) {
	logger := log.WithComponent("enginebootstrap")
	noop := func(context.Context) error { return nil }

	if ProbeSocket(preferredSocket, time.Second) {
		logger.Debug().Str("socket", preferredSocket).Msg("engine socket already reachable")
		return preferredSocket, noop, nil
	}

	vm := newVM(dataDir, logger)
	if err := vm.Start(ctx); err != nil {
		return "", noop, fmt.Errorf("bootstrap container engine VM: %w", err)
	}

	return vm.SocketPath(), vm.Stop, nil
}
