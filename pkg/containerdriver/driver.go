package containerdriver

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/containers"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	"github.com/google/uuid"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/rs/zerolog"

	"github.com/kannich/kannich/pkg/enginebootstrap"
	"github.com/kannich/kannich/pkg/log"
)

// State is the container driver's one-way lifecycle state.
type State int32

const (
	Uninitialized State = iota
	Ready
	Closed
)

const (
	namespaceName     = "kannich"
	defaultSocketPath = "/run/containerd/containerd.sock"
	defaultDataDir    = "/var/lib/kannich"
	initContainerID   = "kannich-build"
	fuseDeviceMajor   = 10
	fuseDeviceMinor   = 229
	fuseDevicePath    = "/dev/fuse"
	projectMountPath  = "/workspace"
	cacheMountPath    = "/kannich/cache"
)

// Mount describes a host directory bound into the build container.
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// Driver manages one long-lived build container for a pipeline run
// (spec.md §4.2).
type Driver struct {
	socketPath string
	dataDir    string
	logger     zerolog.Logger

	mu               sync.Mutex
	state            atomic.Int32
	client           *containerd.Client
	container        containerd.Container
	task             containerd.Task
	bootstrapCleanup func(context.Context) error

	shuttingDown atomic.Bool
}

// New creates a driver bound to the given containerd socket. An empty
// socketPath uses the default. If the socket isn't reachable at
// Initialize time, pkg/enginebootstrap provisions one (spec.md §4.2
// "Bootstrap fallback"); WithDataDir controls where that fallback keeps
// its VM state.
func New(socketPath string) *Driver {
	if socketPath == "" {
		socketPath = defaultSocketPath
	}
	d := &Driver{socketPath: socketPath, dataDir: defaultDataDir, logger: log.WithComponent("container-driver")}
	d.state.Store(int32(Uninitialized))
	return d
}

// WithDataDir overrides the directory the engine bootstrap fallback
// uses for VM state.
func (d *Driver) WithDataDir(dir string) *Driver {
	d.dataDir = dir
	return d
}

// State returns the driver's current lifecycle state.
func (d *Driver) State() State { return State(d.state.Load()) }

// RequestShutdown marks the driver as shutting down. Layer-destroy and
// new-layer-create operations routed through the driver become no-ops
// while this is set (spec.md §4.4, §5).
func (d *Driver) RequestShutdown() { d.shuttingDown.Store(true) }

// ShuttingDown reports whether RequestShutdown has been called.
func (d *Driver) ShuttingDown() bool { return d.shuttingDown.Load() }

func (d *Driver) withNamespace(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, namespaceName)
}

// Initialize ensures builderImage is present locally (pulling if not),
// creates the container with a FUSE-capable security context, starts it
// with a no-op long-running process, and verifies the project and cache
// binds with a `test -d` / touch-rm round trip. Fails with *MountError
// on either probe.
func (d *Driver) Initialize(ctx context.Context, builderImage string, projectBind, cacheBind Mount, socketBind *Mount) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx = d.withNamespace(ctx)

	socket, cleanup, err := enginebootstrap.Ensure(ctx, d.socketPath, d.dataDir)
	if err != nil {
		return &ContainerError{Op: "ensure engine socket", Err: err}
	}
	d.bootstrapCleanup = cleanup

	client, err := containerd.New(socket)
	if err != nil {
		return &ContainerError{Op: "connect", Err: err}
	}
	d.client = client

	image, err := client.GetImage(ctx, builderImage)
	if err != nil {
		image, err = client.Pull(ctx, builderImage, containerd.WithPullUnpack)
		if err != nil {
			d.closeLocked()
			return &ContainerError{Op: "pull image", Err: err}
		}
	}

	mounts := []specs.Mount{
		bindMount(projectBind),
		bindMount(cacheBind),
	}
	if socketBind != nil {
		mounts = append(mounts, bindMount(*socketBind))
	}

	id := initContainerID + "-" + uuid.NewString()[:8]
	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithProcessArgs("sleep", "infinity"),
		oci.WithMounts(mounts),
		oci.WithAddedCapabilities([]string{"CAP_SYS_ADMIN"}),
		withFuseDevice(),
	}

	container, err := client.NewContainer(
		ctx,
		id,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		d.closeLocked()
		return &ContainerError{Op: "create container", Err: err}
	}
	d.container = container

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		d.closeLocked()
		return &ContainerError{Op: "create task", Err: err}
	}
	if err := task.Start(ctx); err != nil {
		d.closeLocked()
		return &ContainerError{Op: "start task", Err: err}
	}
	d.task = task

	if err := d.probeMount(ctx, projectMountPath, false); err != nil {
		d.closeLocked()
		return &MountError{Path: projectMountPath, Err: err}
	}
	if err := d.probeMount(ctx, cacheMountPath, true); err != nil {
		d.closeLocked()
		return &MountError{Path: cacheMountPath, Err: err}
	}

	d.state.Store(int32(Ready))
	d.logger.Info().Str("image", builderImage).Msg("build container ready")
	return nil
}

// probeMount verifies a bind is reachable inside the container: a
// `test -d` for read-only binds, a touch/rm round trip for read-write
// ones (spec.md §4.2).
func (d *Driver) probeMount(ctx context.Context, path string, writable bool) error {
	if _, err := d.execRaw(ctx, []string{"test", "-d", path}, "/", nil); err != nil {
		return err
	}
	if !writable {
		return nil
	}
	probeFile := path + "/.kannich-mount-probe"
	if _, err := d.execRaw(ctx, []string{"sh", "-c", "touch " + probeFile + " && rm " + probeFile}, "/", nil); err != nil {
		return err
	}
	return nil
}

func bindMount(m Mount) specs.Mount {
	opts := []string{"rbind"}
	if m.ReadOnly {
		opts = append(opts, "ro")
	} else {
		opts = append(opts, "rw")
	}
	return specs.Mount{
		Source:      m.HostPath,
		Destination: m.ContainerPath,
		Type:        "bind",
		Options:     opts,
	}
}

// withFuseDevice grants access to /dev/fuse (device + cgroup allow-list
// entry) so the in-container layer manager (pkg/layer) can mount
// fuse-overlayfs without full container privilege.
func withFuseDevice() oci.SpecOpts {
	return func(_ context.Context, _ oci.Client, _ *containers.Container, s *oci.Spec) error {
		if s.Linux == nil {
			s.Linux = &specs.Linux{}
		}
		mode := os.FileMode(0o666)
		major := int64(fuseDeviceMajor)
		minor := int64(fuseDeviceMinor)
		s.Linux.Devices = append(s.Linux.Devices, specs.LinuxDevice{
			Path:     fuseDevicePath,
			Type:     "c",
			Major:    major,
			Minor:    minor,
			FileMode: &mode,
		})
		if s.Linux.Resources == nil {
			s.Linux.Resources = &specs.LinuxResources{}
		}
		s.Linux.Resources.Devices = append(s.Linux.Resources.Devices, specs.LinuxDeviceCgroup{
			Allow:  true,
			Type:   "c",
			Major:  &major,
			Minor:  &minor,
			Access: "rwm",
		})
		return nil
	}
}

// Close tears the container and client down. Idempotent: a second call
// (via normal return, error path, or the host-signal shutdown hook) is a
// no-op (spec.md §4.2, §8 "container close is idempotent").
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeLocked()
}

func (d *Driver) closeLocked() error {
	if d.state.Load() == int32(Closed) {
		return nil
	}
	d.state.Store(int32(Closed))

	var firstErr error
	ctx := d.withNamespace(context.Background())
	if d.task != nil {
		if _, err := d.task.Delete(ctx, containerd.WithProcessKill); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.container != nil {
		if err := d.container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.client != nil {
		if err := d.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.bootstrapCleanup != nil {
		if err := d.bootstrapCleanup(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.logger.Info().Msg("build container closed")
	return firstErr
}
