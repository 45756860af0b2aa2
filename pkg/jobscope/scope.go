package jobscope

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kannich/kannich/pkg/process"
)

// Execer runs a command with an explicit cwd and environment. It is
// satisfied by *containerdriver.Driver without either package
// importing the other.
type Execer interface {
	Exec(ctx context.Context, argv []string, cwd string, env map[string]string, silent bool) (process.Result, error)
}

// CleanupFunc is a callback registered with OnCleanup. Cleanups run in
// LIFO order once the owning job's block returns.
type CleanupFunc func(ctx context.Context) error

// FailError is the sentinel Scope.Fail returns: a deliberate
// job-failure, as opposed to any other error a block might return or
// panic with. Only AllowFailure catches it; everything else propagates
// unchanged (spec.md §4.5, §8).
type FailError struct {
	Message string
}

func (e *FailError) Error() string { return e.Message }

// Scope is the per-job state threaded through a context.Context during
// a job's execution.
type Scope struct {
	mu sync.Mutex

	jobName string
	execer  Execer

	cwd string
	env map[string]string

	cleanups []CleanupFunc

	failed      bool
	failMessage string
}

// New creates the root scope for jobName, seeded with the execution's
// initial working directory and environment.
func New(jobName string, execer Execer, cwd string, env map[string]string) *Scope {
	return &Scope{
		jobName: jobName,
		execer:  execer,
		cwd:     cwd,
		env:     copyEnv(env),
	}
}

// Derive produces the scope for a nested job, inheriting the parent's
// cwd and env, but starting with its own empty cleanup stack and
// cleared fail state — those are per-job, not inherited (spec.md
// §4.5).
func (s *Scope) Derive(jobName string) *Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Scope{
		jobName: jobName,
		execer:  s.execer,
		cwd:     s.cwd,
		env:     copyEnv(s.env),
	}
}

// JobName returns the name of the job that owns this scope.
func (s *Scope) JobName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobName
}

// Cwd returns the scope's current working directory.
func (s *Scope) Cwd() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// Env returns a snapshot copy of the scope's environment.
func (s *Scope) Env() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyEnv(s.env)
}

// WithCwd is the scoped `cd(sub)` acquisition of spec.md §4.5: it
// pushes a working directory for the duration of fn and guarantees the
// pop on every exit path, including a panic unwinding through fn. A
// relative sub is resolved against the scope's current directory at
// the time WithCwd is entered, so nested calls compose correctly.
func (s *Scope) WithCwd(ctx context.Context, sub string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	prev := s.cwd
	if filepath.IsAbs(sub) {
		s.cwd = sub
	} else {
		s.cwd = filepath.Join(prev, sub)
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cwd = prev
		s.mu.Unlock()
	}()

	return fn(ctx)
}

// WithEnv is the scoped `with_env(map)` acquisition of spec.md §4.5: it
// layers overrides onto the scope's environment for the duration of
// fn, restoring the exact prior value (including absence) of every
// overridden key on every exit path. A nil value for a key unsets it
// for the duration of fn.
func (s *Scope) WithEnv(ctx context.Context, overrides map[string]*string, fn func(ctx context.Context) error) error {
	if len(overrides) == 0 {
		return fn(ctx)
	}

	s.mu.Lock()
	prev := make(map[string]*string, len(overrides))
	for k, v := range overrides {
		if old, ok := s.env[k]; ok {
			oldCopy := old
			prev[k] = &oldCopy
		} else {
			prev[k] = nil
		}
		if v == nil {
			delete(s.env, k)
		} else {
			s.env[k] = *v
		}
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		for k, v := range prev {
			if v == nil {
				delete(s.env, k)
			} else {
				s.env[k] = *v
			}
		}
		s.mu.Unlock()
	}()

	return fn(ctx)
}

// WithTools is the scoped `with_tools(...)` acquisition of spec.md
// §4.5: it prepends dirs to PATH via WithEnv, for the duration of fn.
func (s *Scope) WithTools(ctx context.Context, fn func(ctx context.Context) error, dirs ...string) error {
	if len(dirs) == 0 {
		return fn(ctx)
	}

	s.mu.Lock()
	existing := s.env["PATH"]
	s.mu.Unlock()

	prefix := strings.Join(dirs, ":")
	newPath := prefix
	if existing != "" {
		newPath = prefix + ":" + existing
	}
	return s.WithEnv(ctx, map[string]*string{"PATH": &newPath}, fn)
}

// OnCleanup registers fn to run, in LIFO order with every other
// registered cleanup, once the job's block returns — regardless of
// whether it returned an error.
func (s *Scope) OnCleanup(fn CleanupFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups = append(s.cleanups, fn)
}

// Fail marks the job as failed and returns the job-failure sentinel
// the caller should propagate by returning it from the JobBlock.
func (s *Scope) Fail(message string) error {
	s.mu.Lock()
	s.failed = true
	s.failMessage = message
	s.mu.Unlock()
	return &FailError{Message: message}
}

// Failed reports whether Fail was called against this scope and not
// since caught by AllowFailure.
func (s *Scope) Failed() (failed bool, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed, s.failMessage
}

// AllowFailure runs fn and reports whether it succeeded. It is the
// `allow_failure { ... }` sub-block of spec.md §4.5: it catches fn's
// job-failure sentinel (from Fail) only, clearing the scope's failed
// state since the failure is now handled. Any other error, or a panic
// unwinding through fn, propagates unchanged (spec.md §8 "Allow-failure
// wraps only job-failure sentinels; unexpected exceptions still
// propagate").
func (s *Scope) AllowFailure(ctx context.Context, fn func(ctx context.Context) error) (bool, error) {
	err := fn(ctx)
	if err == nil {
		return true, nil
	}

	var failErr *FailError
	if errors.As(err, &failErr) {
		s.mu.Lock()
		s.failed = false
		s.failMessage = ""
		s.mu.Unlock()
		return false, nil
	}

	return false, err
}

// Run executes argv inside the scope's current cwd and env via the
// scope's execer (normally the container driver).
func (s *Scope) Run(ctx context.Context, argv []string, silent bool) (process.Result, error) {
	s.mu.Lock()
	execer, cwd, env := s.execer, s.cwd, copyEnv(s.env)
	s.mu.Unlock()
	return execer.Exec(ctx, argv, cwd, env, silent)
}

// RunCleanups runs every registered cleanup in LIFO order, collecting
// and returning every error rather than stopping at the first one —
// a failing cleanup must not prevent the rest from running.
func (s *Scope) RunCleanups(ctx context.Context) []error {
	s.mu.Lock()
	cleanups := s.cleanups
	s.cleanups = nil
	s.mu.Unlock()

	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func copyEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
