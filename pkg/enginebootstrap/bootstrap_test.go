package enginebootstrap

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"
)

func TestProbeSocket_FalseWhenNothingListening(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonexistent.sock")
	if ProbeSocket(path, 100*time.Millisecond) {
		t.Error("ProbeSocket() = true for a socket nothing listens on")
	}
}

func TestProbeSocket_TrueWhenListening(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listening.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer ln.Close()

	if !ProbeSocket(path, time.Second) {
		t.Error("ProbeSocket() = false for a socket with an active listener")
	}
}

func TestEnsure_ReturnsPreferredSocketWhenAlreadyReachable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "containerd.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer ln.Close()

	socket, cleanup, err := Ensure(context.Background(), path, t.TempDir())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if socket != path {
		t.Errorf("Ensure() socket = %q, want %q", socket, path)
	}
	if err := cleanup(context.Background()); err != nil {
		t.Errorf("cleanup() error = %v", err)
	}
}
