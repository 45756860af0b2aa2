package layer

import (
	"context"
	"strings"
	"testing"

	"github.com/kannich/kannich/pkg/process"
)

type fakeExecer struct {
	calls []string
}

func (f *fakeExecer) Exec(_ context.Context, argv []string, _ string, _ map[string]string, _ bool) (process.Result, error) {
	script := ""
	if len(argv) == 3 {
		script = argv[2]
	}
	f.calls = append(f.calls, script)
	return process.Result{ExitCode: 0}, nil
}

func TestCreate_RootLayerSkipsOverlayMount(t *testing.T) {
	fe := &fakeExecer{}
	m := NewManager(fe, "/kannich/layers")

	l, err := m.Create(context.Background(), "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if l.Upper != l.Merged {
		t.Errorf("root layer should have Upper == Merged, got Upper=%q Merged=%q", l.Upper, l.Merged)
	}
	if strings.Contains(fe.calls[0], "fuse-overlayfs") {
		t.Errorf("root layer create should not invoke fuse-overlayfs: %q", fe.calls[0])
	}
}

func TestCreate_ChildLayerMountsOverParent(t *testing.T) {
	fe := &fakeExecer{}
	m := NewManager(fe, "/kannich/layers")

	root, err := m.Create(context.Background(), "")
	if err != nil {
		t.Fatalf("Create(root) error = %v", err)
	}
	child, err := m.Create(context.Background(), root.ID)
	if err != nil {
		t.Fatalf("Create(child) error = %v", err)
	}

	lastCall := fe.calls[len(fe.calls)-1]
	if !strings.Contains(lastCall, "fuse-overlayfs") {
		t.Fatalf("child create should invoke fuse-overlayfs: %q", lastCall)
	}
	if !strings.Contains(lastCall, "lowerdir='"+root.Merged+"'") {
		t.Errorf("expected lowerdir to reference parent's merged dir, got %q", lastCall)
	}
	if child.ParentID != root.ID {
		t.Errorf("ParentID = %q, want %q", child.ParentID, root.ID)
	}
}

func TestCreate_UnknownParentFails(t *testing.T) {
	fe := &fakeExecer{}
	m := NewManager(fe, "/kannich/layers")
	if _, err := m.Create(context.Background(), "does-not-exist"); err == nil {
		t.Fatal("expected error for unknown parent layer")
	}
}

func TestDestroy_UnknownLayerIsNoOp(t *testing.T) {
	fe := &fakeExecer{}
	m := NewManager(fe, "/kannich/layers")
	if err := m.Destroy(context.Background(), "does-not-exist"); err != nil {
		t.Errorf("Destroy() on unknown layer should be a no-op, got %v", err)
	}
	if len(fe.calls) != 0 {
		t.Errorf("Destroy() on unknown layer should not exec anything, got %v", fe.calls)
	}
}

func TestDestroy_RemovesFromRegistry(t *testing.T) {
	fe := &fakeExecer{}
	m := NewManager(fe, "/kannich/layers")
	l, err := m.Create(context.Background(), "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := m.Destroy(context.Background(), l.ID); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if _, err := m.Diff(context.Background(), l.ID); err == nil {
		t.Error("Diff() on destroyed layer should fail")
	}
}

func TestDiff_ParsesExecOutput(t *testing.T) {
	fe := &execerWithOutput{out: "FILE\t./built.bin\n"}
	m := NewManager(fe, "/kannich/layers")
	l, err := m.Create(context.Background(), "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	entries, err := m.Diff(context.Background(), l.ID)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "built.bin" || entries[0].Kind != DiffAdded {
		t.Errorf("got %+v, want single added built.bin entry", entries)
	}
}

type execerWithOutput struct {
	out string
}

func (e *execerWithOutput) Exec(_ context.Context, _ []string, _ string, _ map[string]string, _ bool) (process.Result, error) {
	return process.Result{Stdout: e.out, ExitCode: 0}, nil
}

func TestCreate_RefusesDuringShutdown(t *testing.T) {
	fe := &fakeExecer{}
	m := NewManager(fe, "/kannich/layers").WithShutdownCheck(func() bool { return true })
	if _, err := m.Create(context.Background(), ""); err == nil {
		t.Fatal("expected Create() to fail while shutting down")
	}
	if len(fe.calls) != 0 {
		t.Errorf("Create() during shutdown should not exec anything, got %v", fe.calls)
	}
}

func TestDestroy_SkipsUnmountDuringShutdown(t *testing.T) {
	fe := &fakeExecer{}
	m := NewManager(fe, "/kannich/layers")
	l, err := m.Create(context.Background(), "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	m.shuttingDown = func() bool { return true }
	before := len(fe.calls)
	if err := m.Destroy(context.Background(), l.ID); err != nil {
		t.Fatalf("Destroy() during shutdown error = %v, want nil", err)
	}
	if len(fe.calls) != before {
		t.Errorf("Destroy() during shutdown should not exec anything, got %d new calls", len(fe.calls)-before)
	}
	if _, err := m.Diff(context.Background(), l.ID); err == nil {
		t.Error("layer should still be removed from the registry even when destroy skips the unmount")
	}
}

func TestDestroy_UsesLazyUnmount(t *testing.T) {
	fe := &fakeExecer{}
	m := NewManager(fe, "/kannich/layers")
	l, err := m.Create(context.Background(), "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := m.Destroy(context.Background(), l.ID); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	script := fe.calls[len(fe.calls)-1]
	if !strings.Contains(script, "fusermount -uz") {
		t.Errorf("destroy script should use lazy unmount, got %q", script)
	}
}

func TestMerge_UnknownLayerFails(t *testing.T) {
	fe := &fakeExecer{}
	m := NewManager(fe, "/kannich/layers")
	err := m.Merge(context.Background(), "does-not-exist", "/kannich/layers/src/upper", []DiffEntry{{Path: "a", Kind: DiffAdded}})
	if err == nil {
		t.Fatal("expected error merging onto unknown layer")
	}
}

func TestMerge_NoEntriesIsNoOp(t *testing.T) {
	fe := &fakeExecer{}
	m := NewManager(fe, "/kannich/layers")
	l, err := m.Create(context.Background(), "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	before := len(fe.calls)
	if err := m.Merge(context.Background(), l.ID, "/kannich/layers/src/upper", nil); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(fe.calls) != before {
		t.Errorf("Merge() with no entries should not exec anything, got %d new calls", len(fe.calls)-before)
	}
}

func TestMerge_GeneratesOneCommandPerEntryKind(t *testing.T) {
	fe := &fakeExecer{}
	m := NewManager(fe, "/kannich/layers")
	l, err := m.Create(context.Background(), "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	entries := []DiffEntry{
		{Path: "bin/app", Kind: DiffAdded},
		{Path: "node_modules", Kind: DiffOpaqueDir},
		{Path: "old.txt", Kind: DiffDeletedWhiteout},
	}
	if err := m.Merge(context.Background(), l.ID, "/kannich/layers/src/upper", entries); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	script := fe.calls[len(fe.calls)-1]
	for _, want := range []string{"cp -a", "setfattr -n trusted.overlay.opaque", "mknod", "bin/app", "node_modules", "old.txt"} {
		if !strings.Contains(script, want) {
			t.Errorf("merge script missing %q: %s", want, script)
		}
	}
}
