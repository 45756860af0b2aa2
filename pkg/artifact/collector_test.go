package artifact

import (
	"context"
	"testing"

	"github.com/kannich/kannich/pkg/process"
	"github.com/kannich/kannich/pkg/types"
)

type fakeDriver struct {
	listOutput   string
	copiedPaths  []string
	copyCalled   bool
	copyWorkDir  string
	copyHostDir  string
}

func (f *fakeDriver) Exec(context.Context, []string, string, map[string]string, bool) (process.Result, error) {
	return process.Result{Stdout: f.listOutput, ExitCode: 0}, nil
}

func (f *fakeDriver) CopyArtifacts(_ context.Context, workDir string, paths []string, hostDir string) error {
	f.copyCalled = true
	f.copyWorkDir = workDir
	f.copiedPaths = paths
	f.copyHostDir = hostDir
	return nil
}

func TestCollect_MatchesAndCopies(t *testing.T) {
	fd := &fakeDriver{listOutput: "dist/app.bin\ndist/app.bin.map\nREADME.md\n"}
	c := NewCollector(fd)

	spec := types.ArtifactSpec{Includes: []string{"dist/**"}, Excludes: []string{"**/*.map"}}
	matched, err := c.Collect(context.Background(), "/workspace", spec, "/host/out")
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(matched) != 1 || matched[0] != "dist/app.bin" {
		t.Errorf("matched = %v, want [dist/app.bin]", matched)
	}
	if !fd.copyCalled {
		t.Fatal("CopyArtifacts should have been called")
	}
	if fd.copyWorkDir != "/workspace" || fd.copyHostDir != "/host/out" {
		t.Errorf("CopyArtifacts called with workDir=%q hostDir=%q", fd.copyWorkDir, fd.copyHostDir)
	}
}

func TestCollect_NoMatchesSkipsCopy(t *testing.T) {
	fd := &fakeDriver{listOutput: "README.md\n"}
	c := NewCollector(fd)

	matched, err := c.Collect(context.Background(), "/workspace", types.ArtifactSpec{Includes: []string{"dist/**"}}, "/host/out")
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(matched) != 0 {
		t.Errorf("matched = %v, want empty", matched)
	}
	if fd.copyCalled {
		t.Error("CopyArtifacts should not be called when nothing matched")
	}
}
