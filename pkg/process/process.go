// Package process runs a single command to completion, streaming its
// output line-by-line to the logger while buffering it for the caller.
// It is the systems substrate the container driver (pkg/containerdriver)
// and, indirectly, the layer manager (pkg/layer) drive every shell call
// through (spec.md §4.1).
package process

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/kannich/kannich/pkg/log"
)

// Result is the outcome of a completed run — a value, never an error,
// regardless of exit code (spec.md §4.1).
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// SpawnError is returned only when the target program could not be
// started at all.
type SpawnError struct {
	Argv []string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %q: %v", strings.Join(e.Argv, " "), e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Run launches argv[0] with exactly the given environment (no
// inheritance from the current process beyond what env supplies),
// streams stdout/stderr line-by-line to the logger (info for stdout,
// error for stderr, both at debug level when silent), and returns once
// both streams and the exit wait are drained.
func Run(ctx context.Context, argv []string, cwd string, env map[string]string, silent bool) (Result, error) {
	if len(argv) == 0 {
		return Result{}, &SpawnError{Argv: argv, Err: fmt.Errorf("empty argv")}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = cwd
	cmd.Env = flattenEnv(env)
	// New process group so a host-level cancellation can reach any
	// children the command itself spawns (spec.md §4.1, §5).
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, &SpawnError{Argv: argv, Err: err}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, &SpawnError{Argv: argv, Err: err}
	}

	logger := log.WithComponent("process")

	if err := cmd.Start(); err != nil {
		return Result{}, &SpawnError{Argv: argv, Err: err}
	}

	var stdout, stderr bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go streamLines(&wg, stdoutPipe, &stdout, logger, zerolog.InfoLevel, silent)
	go streamLines(&wg, stderrPipe, &stderr, logger, zerolog.ErrorLevel, silent)
	wg.Wait()

	exitCode := 0
	if waitErr := cmd.Wait(); waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			// The process started but something else went wrong
			// waiting on it (e.g. it was killed by a signal); report
			// it as a non-zero exit rather than a SpawnError since the
			// program did run.
			exitCode = -1
		}
	}

	return Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, nil
}

// RunShell wraps command in `shell -c command` and runs it with Run.
func RunShell(ctx context.Context, shell, command, cwd string, env map[string]string, silent bool) (Result, error) {
	return Run(ctx, []string{shell, "-c", command}, cwd, env, silent)
}

func streamLines(wg *sync.WaitGroup, r io.Reader, buf *bytes.Buffer, logger zerolog.Logger, level zerolog.Level, silent bool) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')

		emitLevel := level
		if silent {
			emitLevel = zerolog.DebugLevel
		}
		logger.WithLevel(emitLevel).Msg(line)
	}
}

// flattenEnv converts the env map into the KEY=VALUE slice exec.Cmd
// expects. The caller supplies the complete environment; nothing from
// the current process is inherited implicitly.
func flattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
