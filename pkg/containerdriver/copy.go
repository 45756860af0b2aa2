package containerdriver

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/containerd/containerd/cio"
	"github.com/google/uuid"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// CopyInto writes data into destPath inside the build container,
// appending rather than truncating when append is true. It is used to
// seed the container's working tree with files produced on the host
// (e.g. a rendered env dump) without a shared bind mount (spec.md
// §4.2).
func (d *Driver) CopyInto(ctx context.Context, destPath string, data []byte, appendMode bool) error {
	if d.State() != Ready {
		return ErrNotReady
	}
	ctx = d.withNamespace(ctx)

	redirect := ">"
	if appendMode {
		redirect = ">>"
	}
	spec := &specs.Process{
		Args: []string{"sh", "-c", fmt.Sprintf("mkdir -p %q && cat %s %q", filepath.Dir(destPath), redirect, destPath)},
		Cwd:  "/",
	}

	stdinR, stdinW := io.Pipe()
	execID := "copyinto-" + uuid.NewString()[:8]
	proc, err := d.task.Exec(ctx, execID, spec, cio.NewCreator(cio.WithStreams(stdinR, io.Discard, io.Discard)))
	if err != nil {
		return &ContainerError{Op: "copyInto exec", Err: err}
	}
	statusCh, err := proc.Wait(ctx)
	if err != nil {
		return &ContainerError{Op: "copyInto wait", Err: err}
	}
	if err := proc.Start(ctx); err != nil {
		return &ContainerError{Op: "copyInto start", Err: err}
	}

	go func() {
		stdinW.Write(data)
		stdinW.Close()
	}()

	status := <-statusCh
	if _, err := proc.Delete(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("failed to delete copyInto exec process")
	}
	code, _, err := status.Result()
	if err != nil {
		return &ContainerError{Op: "copyInto exit status", Err: err}
	}
	if code != 0 {
		return &ContainerError{Op: "copyInto", Err: fmt.Errorf("exit code %d", code)}
	}
	return nil
}

// CopyOut streams srcPath (a file or directory) out of the build
// container into hostDir via a tar stream piped through exec, so the
// host never needs a bind mount into the container's private
// filesystem (spec.md §4.2, §4.3 — layer diffs are read the same way).
func (d *Driver) CopyOut(ctx context.Context, srcPath, hostDir string) error {
	if d.State() != Ready {
		return ErrNotReady
	}
	ctx = d.withNamespace(ctx)

	if _, err := d.execRaw(ctx, []string{"test", "-e", srcPath}, "/", nil); err != nil {
		return &ContainerError{Op: "copyOut source check", Err: err}
	}

	dir := filepath.Dir(srcPath)
	base := filepath.Base(srcPath)
	return d.streamTarOut(ctx, dir, []string{base}, hostDir)
}

// CopyArtifacts streams the given workDir-relative paths out of the
// build container into hostDir in a single tar stream, preserving their
// relative layout (spec.md §4.6 — backs the artifact collector).
func (d *Driver) CopyArtifacts(ctx context.Context, workDir string, paths []string, hostDir string) error {
	if d.State() != Ready {
		return ErrNotReady
	}
	if len(paths) == 0 {
		return nil
	}
	ctx = d.withNamespace(ctx)
	return d.streamTarOut(ctx, workDir, paths, hostDir)
}

func (d *Driver) streamTarOut(ctx context.Context, baseDir string, relPaths []string, hostDir string) error {
	argv := append([]string{"tar", "-C", baseDir, "-cf", "-"}, relPaths...)
	spec := &specs.Process{
		Args: argv,
		Cwd:  "/",
	}

	stdoutR, stdoutW := io.Pipe()
	execID := "copyout-" + uuid.NewString()[:8]
	proc, err := d.task.Exec(ctx, execID, spec, cio.NewCreator(cio.WithStreams(nil, stdoutW, io.Discard)))
	if err != nil {
		return &ContainerError{Op: "copyOut exec", Err: err}
	}
	statusCh, err := proc.Wait(ctx)
	if err != nil {
		return &ContainerError{Op: "copyOut wait", Err: err}
	}
	if err := proc.Start(ctx); err != nil {
		return &ContainerError{Op: "copyOut start", Err: err}
	}

	extractErrCh := make(chan error, 1)
	go func() {
		extractErrCh <- extractTar(stdoutR, hostDir)
	}()

	status := <-statusCh
	stdoutW.Close()
	extractErr := <-extractErrCh

	if _, err := proc.Delete(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("failed to delete copyOut exec process")
	}
	code, _, err := status.Result()
	if err != nil {
		return &ContainerError{Op: "copyOut exit status", Err: err}
	}
	if code != 0 {
		return &ContainerError{Op: "copyOut", Err: fmt.Errorf("tar exited %d", code)}
	}
	if extractErr != nil {
		return &ContainerError{Op: "copyOut extract", Err: extractErr}
	}
	return nil
}

// extractTar extracts r into destDir, rejecting any entry whose
// resolved path would land outside destDir (zip-slip / tar-slip
// protection for paths coming out of the container).
func extractTar(r io.Reader, destDir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode&0o777))
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			f.Close()
		case tar.TypeSymlink, tar.TypeLink:
			// Links extracted from the container are never followed or
			// recreated on the host; silently skipping avoids both
			// traversal via the link target and surprising host state.
			continue
		default:
			continue
		}
	}
}

// safeJoin resolves name relative to base and rejects the result unless
// it stays within base, guarding against ".." segments or absolute
// paths embedded in a tar entry name.
func safeJoin(base, name string) (string, error) {
	cleaned := filepath.Clean("/" + name)
	joined := filepath.Join(base, cleaned)
	if joined != base && !strings.HasPrefix(joined, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("tar entry %q escapes destination directory", name)
	}
	return joined, nil
}
