//go:build darwin

package enginebootstrap

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/lima-vm/lima/pkg/instance"
	"github.com/lima-vm/lima/pkg/limayaml"
	"github.com/lima-vm/lima/pkg/store"
	"github.com/rs/zerolog"
)

const instanceName = "kannich"

// limaVM bootstraps a minimal Linux VM running containerd via Lima, so
// kannich is runnable on a bare macOS dev machine with no engine of its
// own (spec.md §4.2 "Bootstrap fallback").
type limaVM struct {
	dataDir string
	logger  zerolog.Logger
	inst    *store.Instance
}

func newVM(dataDir string, logger zerolog.Logger) VM {
	return &limaVM{dataDir: dataDir, logger: logger}
}

func (v *limaVM) Start(ctx context.Context) error {
	if _, err := exec.LookPath("limactl"); err != nil {
		return fmt.Errorf("lima is not installed (try: brew install lima): %w", err)
	}

	inst, err := store.Inspect(instanceName)
	if err != nil {
		v.logger.Info().Str("instance", instanceName).Msg("creating lima instance")
		if err := v.create(ctx); err != nil {
			return fmt.Errorf("create lima instance: %w", err)
		}
		inst, err = store.Inspect(instanceName)
		if err != nil {
			return fmt.Errorf("inspect created lima instance: %w", err)
		}
	}
	v.inst = inst

	if inst.Status != store.StatusRunning {
		v.logger.Info().Str("instance", instanceName).Msg("starting lima instance")
		if err := instance.Start(ctx, inst, "", false); err != nil {
			return fmt.Errorf("start lima instance: %w", err)
		}
	}

	return v.waitForSocket(ctx)
}

func (v *limaVM) Stop(ctx context.Context) error {
	if v.inst == nil {
		return nil
	}
	if err := instance.StopGracefully(ctx, v.inst, false); err != nil {
		v.logger.Warn().Err(err).Msg("graceful lima stop failed, forcing")
		instance.StopForcibly(v.inst)
	}
	return nil
}

// SocketPath returns where Lima forwards the VM's containerd socket on
// the host: $LIMA_HOME/<instance>/sock/containerd.sock.
func (v *limaVM) SocketPath() string {
	limaHome := os.Getenv("LIMA_HOME")
	if limaHome == "" {
		home, _ := os.UserHomeDir()
		limaHome = filepath.Join(home, ".lima")
	}
	return filepath.Join(limaHome, instanceName, "sock", "containerd.sock")
}

func (v *limaVM) create(ctx context.Context) error {
	cfg := v.config()
	configYAML, err := limayaml.Marshal(&cfg, false)
	if err != nil {
		return fmt.Errorf("marshal lima config: %w", err)
	}
	_, err = instance.Create(ctx, instanceName, configYAML, false)
	return err
}

func (v *limaVM) config() limayaml.LimaYAML {
	arch := limayaml.AARCH64
	if runtime.GOARCH == "amd64" {
		arch = limayaml.X8664
	}
	cpus, memory, disk := 2, "2GiB", "20GiB"
	yes := true

	return limayaml.LimaYAML{
		Arch:   &arch,
		CPUs:   &cpus,
		Memory: &memory,
		Disk:   &disk,
		Images: []limayaml.Image{
			{File: limayaml.File{Location: "https://cloud-images.ubuntu.com/releases/22.04/release/ubuntu-22.04-server-cloudimg-arm64.img", Arch: limayaml.AARCH64}},
			{File: limayaml.File{Location: "https://cloud-images.ubuntu.com/releases/22.04/release/ubuntu-22.04-server-cloudimg-amd64.img", Arch: limayaml.X8664}},
		},
		Containerd: limayaml.Containerd{System: &yes},
		Mounts: []limayaml.Mount{
			{Location: v.dataDir, Writable: &yes},
		},
		Provision: []limayaml.Provision{
			{Mode: limayaml.ProvisionModeSystem, Script: "#!/bin/sh\nset -eux\nmodprobe fuse || true\napt-get install -y fuse-overlayfs || true\n"},
		},
		Message: "kannich lima VM ready",
	}
}

func (v *limaVM) waitForSocket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for lima VM containerd socket")
		case <-ticker.C:
			if ProbeSocket(v.SocketPath(), 500*time.Millisecond) {
				v.logger.Info().Str("socket", v.SocketPath()).Msg("lima VM containerd socket ready")
				return nil
			}
		}
	}
}
