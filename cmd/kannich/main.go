package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kannich/kannich/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kannich [flags] <execution>",
	Short: "kannich - local-first CI executor",
	Long: `kannich runs a pipeline of jobs and executions inside an isolated
Linux build container, giving every job its own copy-on-write
filesystem layer and collecting declared artifacts back to the host.`,
	Version:       fmt.Sprintf("%s (%s)", Version, Commit),
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

func init() {
	rootCmd.Flags().StringP("file", "f", ".kannichfile.yaml", "Path to the pipeline definition file")
	rootCmd.Flags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.Flags().StringArrayP("env", "e", nil, "Inject additional environment entries (KEY=VALUE), repeatable")
	rootCmd.Flags().BoolP("dev-mode", "d", false, "Use host-provided dependency cache instead of the pipeline-managed one")
	rootCmd.Flags().BoolP("list", "l", false, "Print pipeline contents and exit")

	rootCmd.Flags().Int("history", 0, "Print the last N run records from the run-history store and exit")
	rootCmd.Flags().String("metrics-addr", "", "If set, expose the metrics registry over HTTP at ADDR for the run's duration")

	rootCmd.Flags().String("socket", "", "containerd socket path (auto-detected/bootstrapped if unset)")
	rootCmd.Flags().String("data-dir", "/var/lib/kannich", "Data directory for run history and the engine bootstrap fallback")
	rootCmd.Flags().String("artifacts-dir", "./artifacts", "Host directory artifacts are collected into")
	rootCmd.Flags().String("builder-image", "docker.io/library/alpine:3.20", "Build container image")
	rootCmd.Flags().String("project-dir", ".", "Host project directory bind-mounted at /workspace")
	rootCmd.Flags().String("cache-dir", "./.kannich-cache", "Host cache directory bind-mounted at /kannich/cache")
	rootCmd.Flags().String("env-dump-file", "/kannich/env.dump", "Well-known path for the host wrapper's \\0-separated env dump")
	rootCmd.Flags().String("env-allowlist-file", "/kannich/env.allowlist", "Well-known path for the opt-in env allowlist")
}

func initLogging(verbose bool) {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	log.Init(log.Config{Level: level})
}
