package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	pipelineFile string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "pipeforge",
	Short: "pipeforge - container build pipelines from a single YAML file",
	Long: `pipeforge runs the build pipeline described in pipeforge.yaml.

A pipeline is a graph of targets: frontend bundles, container images built
from them, publish steps that push those images, and groups that tie stages
together. Targets run sequentially in dependency order and a failing stage
stops the run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the running
// pipeline.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&pipelineFile, "file", "f", "", "Path to pipeforge.yaml (default: searched upwards from the current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
