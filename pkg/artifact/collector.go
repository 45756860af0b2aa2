package artifact

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kannich/kannich/pkg/log"
	"github.com/kannich/kannich/pkg/process"
	"github.com/kannich/kannich/pkg/types"
)

// Lister runs a command inside the build container; the collector uses
// it to enumerate candidate files before matching them against a spec.
type Lister interface {
	Exec(ctx context.Context, argv []string, cwd string, env map[string]string, silent bool) (process.Result, error)
}

// Copier streams matched paths out of the build container, relative to
// workDir, into a host directory.
type Copier interface {
	CopyArtifacts(ctx context.Context, workDir string, paths []string, hostDir string) error
}

// Collector resolves and pulls artifacts for a completed job.
type Collector struct {
	lister Lister
	copier Copier
	logger zerolog.Logger
}

// NewCollector creates a collector driven by driver for both listing
// and copying — normally the same *containerdriver.Driver value.
func NewCollector(driver interface {
	Lister
	Copier
}) *Collector {
	return &Collector{lister: driver, copier: driver, logger: log.WithComponent("artifact-collector")}
}

// Collect lists every regular file under workDir, matches it against
// spec, and copies the matches into hostDir. It returns the matched
// paths (workDir-relative) for reporting; an empty match set is not an
// error.
func (c *Collector) Collect(ctx context.Context, workDir string, spec types.ArtifactSpec, hostDir string) ([]string, error) {
	files, err := c.list(ctx, workDir)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	matched := match(files, spec)
	if len(matched) == 0 {
		c.logger.Debug().Strs("includes", spec.Includes).Msg("no files matched artifact patterns")
		return nil, nil
	}

	if err := c.copier.CopyArtifacts(ctx, workDir, matched, hostDir); err != nil {
		return nil, fmt.Errorf("copy artifacts: %w", err)
	}
	c.logger.Info().Int("count", len(matched)).Str("destination", hostDir).Msg("collected artifacts")
	return matched, nil
}

// list enumerates every regular file under workDir as a path relative
// to it, using find rather than a host filesystem walk since workDir
// lives inside the build container (spec.md §4.2, §4.6).
func (c *Collector) list(ctx context.Context, workDir string) ([]string, error) {
	res, err := c.lister.Exec(ctx, []string{"find", ".", "-type", "f", "-printf", "%P\n"}, workDir, nil, true)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("find exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	var files []string
	scanner := bufio.NewScanner(strings.NewReader(res.Stdout))
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}
