package jobscope

import (
	"context"
	"errors"
	"testing"

	"github.com/kannich/kannich/pkg/process"
)

type recordingExecer struct {
	gotCwd string
	gotEnv map[string]string
	argv   []string
}

func (e *recordingExecer) Exec(_ context.Context, argv []string, cwd string, env map[string]string, _ bool) (process.Result, error) {
	e.argv = argv
	e.gotCwd = cwd
	e.gotEnv = env
	return process.Result{ExitCode: 0}, nil
}

func strptr(s string) *string { return &s }

func TestWithCwd_ResolvesRelativePathAndRestoresOnReturn(t *testing.T) {
	s := New("build", &recordingExecer{}, "/workspace", nil)

	var innerCwd string
	err := s.WithCwd(context.Background(), "sub/dir", func(context.Context) error {
		innerCwd = s.Cwd()
		return nil
	})
	if err != nil {
		t.Fatalf("WithCwd() error = %v", err)
	}
	if innerCwd != "/workspace/sub/dir" {
		t.Errorf("inner Cwd() = %q, want %q", innerCwd, "/workspace/sub/dir")
	}
	if s.Cwd() != "/workspace" {
		t.Errorf("Cwd() after WithCwd = %q, want restored %q", s.Cwd(), "/workspace")
	}
}

func TestWithCwd_AbsolutePathReplacesCwd(t *testing.T) {
	s := New("build", &recordingExecer{}, "/workspace", nil)
	var innerCwd string
	s.WithCwd(context.Background(), "/absolute", func(context.Context) error {
		innerCwd = s.Cwd()
		return nil
	})
	if innerCwd != "/absolute" {
		t.Errorf("inner Cwd() = %q, want %q", innerCwd, "/absolute")
	}
}

func TestWithCwd_RestoresEvenOnError(t *testing.T) {
	s := New("build", &recordingExecer{}, "/workspace", nil)
	boom := errors.New("boom")
	err := s.WithCwd(context.Background(), "sub", func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithCwd() error = %v, want %v", err, boom)
	}
	if s.Cwd() != "/workspace" {
		t.Errorf("Cwd() after failing WithCwd = %q, want restored %q", s.Cwd(), "/workspace")
	}
}

func TestWithCwd_RestoresEvenOnPanic(t *testing.T) {
	s := New("build", &recordingExecer{}, "/workspace", nil)
	func() {
		defer func() { recover() }()
		s.WithCwd(context.Background(), "sub", func(context.Context) error {
			panic("kaboom")
		})
	}()
	if s.Cwd() != "/workspace" {
		t.Errorf("Cwd() after panicking WithCwd = %q, want restored %q", s.Cwd(), "/workspace")
	}
}

func TestWithCwd_NestsCorrectly(t *testing.T) {
	s := New("build", &recordingExecer{}, "/workspace", nil)
	var nestedCwd string
	s.WithCwd(context.Background(), "a", func(ctx context.Context) error {
		return s.WithCwd(ctx, "b", func(context.Context) error {
			nestedCwd = s.Cwd()
			return nil
		})
	})
	if nestedCwd != "/workspace/a/b" {
		t.Errorf("nested Cwd() = %q, want %q", nestedCwd, "/workspace/a/b")
	}
	if s.Cwd() != "/workspace" {
		t.Errorf("Cwd() after nested WithCwd = %q, want restored %q", s.Cwd(), "/workspace")
	}
}

func TestWithEnv_SetsOverridesAndRestoresPriorValues(t *testing.T) {
	s := New("build", &recordingExecer{}, "/workspace", map[string]string{"A": "1"})

	var innerA, innerB string
	err := s.WithEnv(context.Background(), map[string]*string{"A": strptr("2"), "B": strptr("3")}, func(context.Context) error {
		env := s.Env()
		innerA, innerB = env["A"], env["B"]
		return nil
	})
	if err != nil {
		t.Fatalf("WithEnv() error = %v", err)
	}
	if innerA != "2" || innerB != "3" {
		t.Errorf("inner env A=%q B=%q, want A=2 B=3", innerA, innerB)
	}

	env := s.Env()
	if env["A"] != "1" {
		t.Errorf("A after WithEnv = %q, want restored %q", env["A"], "1")
	}
	if _, ok := env["B"]; ok {
		t.Errorf("B after WithEnv should be absent (was never set before), got %q", env["B"])
	}
}

func TestWithEnv_NilValueUnsetsForDuration(t *testing.T) {
	s := New("build", &recordingExecer{}, "/workspace", map[string]string{"A": "1"})

	var sawA bool
	s.WithEnv(context.Background(), map[string]*string{"A": nil}, func(context.Context) error {
		_, sawA = s.Env()["A"]
		return nil
	})
	if sawA {
		t.Error("A should be unset inside the WithEnv block")
	}
	if s.Env()["A"] != "1" {
		t.Errorf("A after WithEnv = %q, want restored %q", s.Env()["A"], "1")
	}
}

func TestWithTools_PrependsPathForDurationAndRestores(t *testing.T) {
	s := New("build", &recordingExecer{}, "/workspace", map[string]string{"PATH": "/usr/bin"})

	var innerPath string
	s.WithTools(context.Background(), func(context.Context) error {
		innerPath = s.Env()["PATH"]
		return nil
	}, "/opt/tool/bin")

	if innerPath != "/opt/tool/bin:/usr/bin" {
		t.Errorf("inner PATH = %q, want %q", innerPath, "/opt/tool/bin:/usr/bin")
	}
	if s.Env()["PATH"] != "/usr/bin" {
		t.Errorf("PATH after WithTools = %q, want restored %q", s.Env()["PATH"], "/usr/bin")
	}
}

func TestDerive_InheritsEnvButNotCleanupsOrFailState(t *testing.T) {
	parent := New("outer", &recordingExecer{}, "/workspace", map[string]string{"A": "1"})
	parent.OnCleanup(func(context.Context) error { return nil })
	parent.Fail("boom")

	child := parent.Derive("inner")
	if child.Env()["A"] != "1" {
		t.Errorf("child should inherit parent env, got %+v", child.Env())
	}
	if failed, _ := child.Failed(); failed {
		t.Error("child should not inherit parent's failed state")
	}
	errs := child.RunCleanups(context.Background())
	if len(errs) != 0 {
		t.Errorf("child should start with no inherited cleanups, got %d errors", len(errs))
	}
}

func TestRunCleanups_RunsInLIFOOrderAndCollectsErrors(t *testing.T) {
	s := New("build", &recordingExecer{}, "/workspace", nil)
	var order []int
	s.OnCleanup(func(context.Context) error { order = append(order, 1); return nil })
	s.OnCleanup(func(context.Context) error { order = append(order, 2); return errors.New("boom") })
	s.OnCleanup(func(context.Context) error { order = append(order, 3); return nil })

	errs := s.RunCleanups(context.Background())
	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Errorf("cleanup order = %v, want [3 2 1]", order)
	}
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}

	// A second call finds nothing left to run.
	if errs := s.RunCleanups(context.Background()); len(errs) != 0 {
		t.Errorf("second RunCleanups() should be empty, got %v", errs)
	}
}

func TestFail_SetsFailedAndReturnsSentinel(t *testing.T) {
	s := New("build", &recordingExecer{}, "/workspace", nil)
	err := s.Fail("disk full")
	if err == nil {
		t.Fatal("Fail() should return a non-nil error")
	}
	var failErr *FailError
	if !errors.As(err, &failErr) {
		t.Fatalf("Fail() should return a *FailError, got %T", err)
	}
	failed, msg := s.Failed()
	if !failed || msg != "disk full" {
		t.Errorf("Failed() = (%v, %q), want (true, %q)", failed, msg, "disk full")
	}
}

func TestAllowFailure_CatchesFailSentinelAndClearsFailedState(t *testing.T) {
	s := New("build", &recordingExecer{}, "/workspace", nil)

	ok, err := s.AllowFailure(context.Background(), func(context.Context) error {
		return s.Fail("flaky test")
	})
	if err != nil {
		t.Fatalf("AllowFailure() error = %v, want nil (sentinel caught)", err)
	}
	if ok {
		t.Error("AllowFailure() ok = true, want false for a caught failure")
	}
	if failed, _ := s.Failed(); failed {
		t.Error("Failed() should be false after AllowFailure catches the sentinel")
	}
}

func TestAllowFailure_PropagatesNonSentinelErrors(t *testing.T) {
	s := New("build", &recordingExecer{}, "/workspace", nil)
	boom := errors.New("disk on fire")

	ok, err := s.AllowFailure(context.Background(), func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("AllowFailure() error = %v, want %v to propagate", err, boom)
	}
	if ok {
		t.Error("AllowFailure() ok = true, want false")
	}
}

func TestAllowFailure_PropagatesPanics(t *testing.T) {
	s := New("build", &recordingExecer{}, "/workspace", nil)

	var recovered interface{}
	func() {
		defer func() { recovered = recover() }()
		s.AllowFailure(context.Background(), func(context.Context) error {
			panic("unexpected")
		})
	}()
	if recovered == nil {
		t.Fatal("AllowFailure() should let a panic propagate rather than swallow it")
	}
}

func TestAllowFailure_ReturnsTrueOnSuccess(t *testing.T) {
	s := New("build", &recordingExecer{}, "/workspace", nil)
	ok, err := s.AllowFailure(context.Background(), func(context.Context) error {
		return nil
	})
	if err != nil || !ok {
		t.Errorf("AllowFailure() = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestRun_UsesScopeCwdAndEnv(t *testing.T) {
	execer := &recordingExecer{}
	s := New("build", execer, "/workspace", map[string]string{"X": "y"})

	err := s.WithCwd(context.Background(), "out", func(ctx context.Context) error {
		_, err := s.Run(ctx, []string{"make"}, false)
		return err
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if execer.gotCwd != "/workspace/out" {
		t.Errorf("gotCwd = %q, want %q", execer.gotCwd, "/workspace/out")
	}
	if execer.gotEnv["X"] != "y" {
		t.Errorf("gotEnv = %+v, want X=y", execer.gotEnv)
	}
}

func TestIntoAndFrom_RoundTrip(t *testing.T) {
	s := New("build", &recordingExecer{}, "/workspace", nil)
	ctx := Into(context.Background(), s)
	if From(ctx) != s {
		t.Error("From(Into(ctx, s)) should return s")
	}
	if From(context.Background()) != nil {
		t.Error("From() on a bare context should return nil")
	}
}
