package containerdriver

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/containerd/containerd/cio"
	"github.com/google/uuid"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/rs/zerolog"

	"github.com/kannich/kannich/pkg/process"
)

// Exec runs argv inside the build container's filesystem namespace via a
// fresh containerd.Process attached to the long-running task, streaming
// output line-by-line the same way pkg/process streams a host command
// (spec.md §4.1, §4.2). It fails with ErrNotReady outside the Ready
// state.
func (d *Driver) Exec(ctx context.Context, argv []string, cwd string, env map[string]string, silent bool) (process.Result, error) {
	if d.State() != Ready {
		return process.Result{}, ErrNotReady
	}
	return d.execRaw(ctx, argv, cwd, env, silent)
}

func (d *Driver) execRaw(ctx context.Context, argv []string, cwd string, env map[string]string, silent ...bool) (process.Result, error) {
	isSilent := len(silent) > 0 && silent[0]
	ctx = d.withNamespace(ctx)

	spec := &specs.Process{
		Args: argv,
		Cwd:  cwd,
		Env:  flattenEnv(env),
	}

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()

	execID := "exec-" + uuid.NewString()[:8]
	proc, err := d.task.Exec(ctx, execID, spec, cio.NewCreator(cio.WithStreams(nil, stdoutW, stderrW)))
	if err != nil {
		return process.Result{}, &ContainerError{Op: fmt.Sprintf("exec %v", argv), Err: err}
	}

	statusCh, err := proc.Wait(ctx)
	if err != nil {
		return process.Result{}, &ContainerError{Op: "wait", Err: err}
	}
	if err := proc.Start(ctx); err != nil {
		return process.Result{}, &ContainerError{Op: "start exec", Err: err}
	}

	var stdout, stderr bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go drainLines(&wg, stdoutR, &stdout, d.logger, zerolog.InfoLevel, isSilent)
	go drainLines(&wg, stderrR, &stderr, d.logger, zerolog.ErrorLevel, isSilent)

	status := <-statusCh
	stdoutW.Close()
	stderrW.Close()
	wg.Wait()

	if _, err := proc.Delete(ctx); err != nil {
		d.logger.Warn().Err(err).Str("execID", execID).Msg("failed to delete exec process")
	}

	code, _, err := status.Result()
	if err != nil {
		return process.Result{}, &ContainerError{Op: "exit status", Err: err}
	}

	return process.Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: int(code)}, nil
}

func drainLines(wg *sync.WaitGroup, r io.Reader, buf *bytes.Buffer, logger zerolog.Logger, level zerolog.Level, silent bool) {
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

func flattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
