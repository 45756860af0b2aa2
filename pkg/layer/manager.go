package layer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kannich/kannich/pkg/log"
	"github.com/kannich/kannich/pkg/process"
)

// Execer is the subset of the container driver a layer manager needs:
// every filesystem operation is a command run inside the build
// container (pkg/containerdriver), never a direct host syscall.
type Execer interface {
	Exec(ctx context.Context, argv []string, cwd string, env map[string]string, silent bool) (process.Result, error)
}

// Manager creates, diffs, and destroys the overlay layer chain backing
// a pipeline run (spec.md §4.3).
type Manager struct {
	exec    Execer
	rootDir string
	logger  zerolog.Logger

	shuttingDown func() bool

	mu     sync.Mutex
	layers map[string]*Layer
}

// NewManager creates a layer manager rooted at rootDir inside the
// build container (e.g. "/kannich/layers").
func NewManager(exec Execer, rootDir string) *Manager {
	return &Manager{
		exec:    exec,
		rootDir: rootDir,
		logger:  log.WithComponent("layer-manager"),
		layers:  make(map[string]*Layer),
	}
}

// WithShutdownCheck wires in the container driver's shutdown flag
// (e.g. *containerdriver.Driver.ShuttingDown): once it reports true,
// Create refuses new layers and Destroy skips its unmount/rm script,
// since the whole container is about to be torn down by the driver's
// own Close anyway (spec.md §4.3, §4.4, §5).
func (m *Manager) WithShutdownCheck(fn func() bool) *Manager {
	m.shuttingDown = fn
	return m
}

func (m *Manager) isShuttingDown() bool {
	return m.shuttingDown != nil && m.shuttingDown()
}

// Create allocates a new layer as a child of parentID ("" for a root
// layer with no lower view). The base layer has no lower directory and
// is not itself an overlay mount — its merged view is just its upper
// directory.
func (m *Manager) Create(ctx context.Context, parentID string) (*Layer, error) {
	if m.isShuttingDown() {
		return nil, &LayerError{Op: "create", Err: fmt.Errorf("shutdown in progress")}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var parent *Layer
	if parentID != "" {
		var ok bool
		parent, ok = m.layers[parentID]
		if !ok {
			return nil, &LayerError{LayerID: parentID, Op: "create", Err: fmt.Errorf("unknown parent layer")}
		}
	}

	id := uuid.NewString()
	l := newLayer(m.rootDir, id, parentID)

	if parent == nil {
		if _, err := m.run(ctx, "mkdir -p "+shq(l.Merged)); err != nil {
			return nil, &LayerError{LayerID: id, Op: "create root", Err: err}
		}
		m.layers[id] = l
		m.logger.Debug().Str("layer", id).Msg("created root layer")
		return l, nil
	}

	script := fmt.Sprintf(
		"mkdir -p %s %s %s && fuse-overlayfs -o lowerdir=%s,upperdir=%s,workdir=%s %s",
		shq(l.Upper), shq(l.Work), shq(l.Merged),
		shq(parent.Merged), shq(l.Upper), shq(l.Work), shq(l.Merged),
	)
	if _, err := m.run(ctx, script); err != nil {
		return nil, &LayerError{LayerID: id, Op: "create", Err: err}
	}

	m.layers[id] = l
	m.logger.Debug().Str("layer", id).Str("parent", parentID).Msg("created layer")
	return l, nil
}

// Diff reports every path changed in layerID's upper directory relative
// to its parent: regular file/dir additions and modifications, plain
// whiteouts (deletions), and opaque directories (a directory that
// replaces, rather than merges with, its lower counterpart).
func (m *Manager) Diff(ctx context.Context, layerID string) ([]DiffEntry, error) {
	m.mu.Lock()
	l, ok := m.layers[layerID]
	m.mu.Unlock()
	if !ok {
		return nil, &LayerError{LayerID: layerID, Op: "diff", Err: fmt.Errorf("unknown layer")}
	}

	out, err := m.run(ctx, diffScript(l.Upper))
	if err != nil {
		return nil, &LayerError{LayerID: layerID, Op: "diff", Err: err}
	}
	return parseDiffOutput(out), nil
}

// ActiveCount returns the number of layers currently tracked, for
// reporting to pkg/metrics.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.layers)
}

// Destroy lazy-unmounts and removes layerID. It is a no-op if the
// layer is unknown, so callers can call it unconditionally during
// cleanup, and it is silently skipped if a shutdown is already in
// progress — the driver's own Close tears the whole container (and
// every mount in it) down regardless (spec.md §4.3).
func (m *Manager) Destroy(ctx context.Context, layerID string) error {
	m.mu.Lock()
	l, ok := m.layers[layerID]
	if ok {
		delete(m.layers, layerID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	if m.isShuttingDown() {
		m.logger.Debug().Str("layer", layerID).Msg("skipping layer destroy, shutdown in progress")
		return nil
	}

	script := fmt.Sprintf("fusermount -uz %s 2>/dev/null || umount -l %s 2>/dev/null; rm -rf %s",
		shq(l.Merged), shq(l.Merged), shq(l.RootDir))
	if _, err := m.run(ctx, script); err != nil {
		return &LayerError{LayerID: layerID, Op: "destroy", Err: err}
	}
	m.logger.Debug().Str("layer", layerID).Msg("destroyed layer")
	return nil
}

func (m *Manager) run(ctx context.Context, script string) (string, error) {
	res, err := m.exec.Exec(ctx, []string{"sh", "-c", script}, "/", nil, true)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}

// shq single-quotes s for safe embedding in the shell scripts the
// manager execs; layer paths are manager-generated UUIDs so this is
// defense in depth rather than a load-bearing boundary.
func shq(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
