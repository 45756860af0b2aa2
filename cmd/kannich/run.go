package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kannich/kannich/pkg/artifact"
	"github.com/kannich/kannich/pkg/containerdriver"
	"github.com/kannich/kannich/pkg/hostenv"
	"github.com/kannich/kannich/pkg/layer"
	"github.com/kannich/kannich/pkg/log"
	"github.com/kannich/kannich/pkg/metrics"
	"github.com/kannich/kannich/pkg/orchestrator"
	"github.com/kannich/kannich/pkg/pipeline"
	"github.com/kannich/kannich/pkg/process"
	"github.com/kannich/kannich/pkg/storage"
	"github.com/kannich/kannich/pkg/types"
)

func runRoot(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	initLogging(verbose)

	dataDir, _ := cmd.Flags().GetString("data-dir")
	historyN, _ := cmd.Flags().GetInt("history")
	if historyN > 0 {
		return runHistory(dataDir, historyN)
	}

	file, _ := cmd.Flags().GetString("file")
	pipe, err := pipeline.LoadFile(file)
	if err != nil {
		return fmt.Errorf("load pipeline: %w", err)
	}

	list, _ := cmd.Flags().GetBool("list")
	if list {
		printPipeline(pipe)
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("an execution name is required unless --list or --history is set")
	}
	executionName := args[0]

	env, err := resolveEnv(cmd)
	if err != nil {
		return fmt.Errorf("resolve environment: %w", err)
	}

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	var metricsServer *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/live", metrics.LivenessHandler())
		metricsServer = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Logger.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
		log.Logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")
	}

	socket, _ := cmd.Flags().GetString("socket")
	builderImage, _ := cmd.Flags().GetString("builder-image")
	projectDir, _ := cmd.Flags().GetString("project-dir")
	cacheDir, _ := cmd.Flags().GetString("cache-dir")
	artifactsDir, _ := cmd.Flags().GetString("artifacts-dir")
	devMode, _ := cmd.Flags().GetBool("dev-mode")

	driver := containerdriver.New(socket).WithDataDir(dataDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// cacheDir and artifactsDir are bind-mounted / read from on the
	// host, outside the build container the rest of this command talks
	// to exclusively through containerd — this is the one place the
	// host-level process runner actually runs something.
	if _, err := process.Run(ctx, []string{"mkdir", "-p", cacheDir, artifactsDir}, "/", nil, true); err != nil {
		return fmt.Errorf("prepare host directories: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Logger.Warn().Msg("shutdown requested, finishing in-flight work")
		driver.RequestShutdown()
	}()

	if err := driver.Initialize(ctx, builderImage, containerdriver.Mount{
		HostPath:      projectDir,
		ContainerPath: "/workspace",
		ReadOnly:      true,
	}, containerdriver.Mount{
		HostPath:      cacheDir,
		ContainerPath: "/kannich/cache",
		ReadOnly:      devMode,
	}, nil); err != nil {
		return fmt.Errorf("initialize build container: %w", err)
	}
	defer driver.Close(context.Background())

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("open run-history store: %w", err)
	}
	defer store.Close()

	reg := metrics.NewRegistry()
	layers := layer.NewManager(driver, "/kannich/overlays").WithShutdownCheck(driver.ShuttingDown)
	collector := metrics.NewCollector(layers)
	collector.Start(5 * time.Second)
	defer collector.Stop()

	orch := orchestrator.New(pipe, layers, driver, driver.ShuttingDown, reg).
		WithArtifacts(artifact.NewCollector(driver), artifactsDir)

	startedAt := time.Now()
	result, final, runErr := orch.RunExecution(ctx, executionName, env)
	finishedAt := time.Now()
	if final != nil {
		orch.Cleanup(context.Background())
	}

	if result != nil {
		if saveErr := store.SaveRun(&types.RunRecord{
			PipelineFile:  file,
			ExecutionName: executionName,
			StartedAt:     startedAt,
			FinishedAt:    finishedAt,
			Success:       result.Success,
			Jobs:          result.Jobs,
		}); saveErr != nil {
			log.Logger.Warn().Err(saveErr).Msg("failed to persist run record")
		}
	}

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsServer.Shutdown(shutdownCtx)
	}

	if runErr != nil {
		return describeFailure(executionName, result, runErr)
	}
	if result != nil && !result.Success {
		return describeFailure(executionName, result, fmt.Errorf("execution reported failure"))
	}
	return nil
}

// resolveEnv merges the host wrapper's env dump (filtered through the
// allowlist) under the pipeline's own env, then overlays -e flags on
// top — the most specific source wins (spec.md §6).
func resolveEnv(cmd *cobra.Command) (map[string]string, error) {
	dumpFile, _ := cmd.Flags().GetString("env-dump-file")
	allowlistFile, _ := cmd.Flags().GetString("env-allowlist-file")

	dump, err := hostenv.ReadDump(dumpFile)
	if err != nil {
		return nil, fmt.Errorf("read env dump: %w", err)
	}
	prefixes, err := hostenv.LoadAllowlist(allowlistFile)
	if err != nil {
		return nil, fmt.Errorf("load env allowlist: %w", err)
	}
	env := hostenv.Filter(dump, prefixes)

	flagEnv, _ := cmd.Flags().GetStringArray("env")
	for _, entry := range flagEnv {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid -e entry %q, want KEY=VALUE", entry)
		}
		env[k] = v
	}
	return env, nil
}

// describeFailure renders the single error-level summary line spec.md
// §7 requires: the execution name and the first failing job.
func describeFailure(executionName string, result *types.ExecutionResult, cause error) error {
	if result == nil {
		return fmt.Errorf("execution %s failed: %w", executionName, cause)
	}
	for _, jr := range result.Jobs {
		if !jr.Success {
			return fmt.Errorf("execution %s failed: job %s: %s", executionName, jr.Name, jr.Message)
		}
	}
	return fmt.Errorf("execution %s failed: %w", executionName, cause)
}

func printPipeline(pipe *types.Pipeline) {
	fmt.Println("Jobs:")
	for name, job := range pipe.Jobs {
		desc := job.Description
		if desc == "" {
			desc = "(no description)"
		}
		fmt.Printf("  %-20s %s\n", name, desc)
	}
	fmt.Println("\nExecutions:")
	for name, exec := range pipe.Executions {
		fmt.Printf("  %-20s %d step(s)\n", name, len(exec.Steps))
	}
}

func runHistory(dataDir string, n int) error {
	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("open run-history store: %w", err)
	}
	defer store.Close()

	records, err := store.ListRuns(n)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	fmt.Printf("%-24s %-20s %-8s %s\n", "STARTED", "EXECUTION", "SUCCESS", "JOBS")
	for _, r := range records {
		fmt.Printf("%-24s %-20s %-8t %d\n",
			r.StartedAt.Format(time.RFC3339), r.ExecutionName, r.Success, len(r.Jobs))
	}
	return nil
}
