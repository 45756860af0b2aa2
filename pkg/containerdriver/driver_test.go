package containerdriver

import (
	"context"
	"testing"
)

func TestNew_StartsUninitialized(t *testing.T) {
	d := New("")
	if d.State() != Uninitialized {
		t.Errorf("State() = %v, want Uninitialized", d.State())
	}
}

func TestClose_BeforeInitializeIsIdempotent(t *testing.T) {
	d := New("")
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if d.State() != Closed {
		t.Errorf("State() = %v, want Closed", d.State())
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestExec_BeforeInitializeReturnsErrNotReady(t *testing.T) {
	d := New("")
	_, err := d.Exec(context.Background(), []string{"true"}, "/", nil, false)
	if err != ErrNotReady {
		t.Fatalf("Exec() error = %v, want ErrNotReady", err)
	}
}

func TestRequestShutdown_IsObservable(t *testing.T) {
	d := New("")
	if d.ShuttingDown() {
		t.Fatal("ShuttingDown() = true before RequestShutdown")
	}
	d.RequestShutdown()
	if !d.ShuttingDown() {
		t.Fatal("ShuttingDown() = false after RequestShutdown")
	}
}
