package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dosanma1/pipeforge/internal/config"
	"github.com/dosanma1/pipeforge/internal/daemon"
	"github.com/dosanma1/pipeforge/internal/pipeline"
	"github.com/dosanma1/pipeforge/internal/ui"
)

var watchSocket string

var watchCmd = &cobra.Command{
	Use:   "watch [target]",
	Short: "Rebuild a target whenever its sources change",
	Long: `Build a target, then watch the sources of its frontend and image stages
and rebuild on every change.

While watching, a gRPC health endpoint is served on a unix socket
($XDG_RUNTIME_DIR/pipeforge/daemon.sock by default). The service "pipeforge"
reports SERVING after a successful build and NOT_SERVING after a failure.

Watch mode never pushes images.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchSocket, "socket", "", "Unix socket for the health endpoint")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	p, err := loadPipeline()
	if err != nil {
		return err
	}
	logger := newLogger(cmd)
	out := cmd.OutOrStdout()

	runner := pipeline.New(pipeline.Config{
		Pipeline: p,
		Logger:   logger,
		Stdout:   out,
		Stderr:   cmd.ErrOrStderr(),
	})
	plan, err := runner.Plan(args...)
	if err != nil {
		return err
	}
	target := p.Default
	if len(args) > 0 {
		target = args[0]
	}

	paths := watchPaths(p, plan)
	if len(paths) == 0 {
		return fmt.Errorf("target %s has no sources to watch", target)
	}

	socket := watchSocket
	if socket == "" {
		if socket, err = daemon.DefaultSocketPath(); err != nil {
			return err
		}
	}

	d := daemon.New(&daemon.Config{
		SocketPath: socket,
		Target:     target,
		Version:    version,
		Logger:     logger,
	})
	if err := d.Start(); err != nil {
		return err
	}
	defer func() {
		if err := d.Stop(); err != nil {
			logger.Warn("failed to stop health server", "error", err)
		}
	}()

	watcher, err := daemon.NewWatcher(daemon.DefaultWatcherConfig(paths...))
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-watcher.Errors():
				logger.Warn("watcher error", "error", err)
			}
		}
	}()

	fmt.Fprintf(out, "%s Watching %d paths for %s (health: %s)\n", ui.IconWatch, len(paths), target, d.SocketPath())
	for _, path := range paths {
		fmt.Fprintf(out, "   • %s\n", path)
	}

	build := func(ctx context.Context) error {
		report, err := runner.Run(ctx, target)
		if report != nil {
			fmt.Fprintln(out)
			printReport(out, report)
		}
		return err
	}

	return d.Serve(ctx, watcher.Changes(), build)
}

// watchPaths returns the existing source paths of the frontend and image
// stages in plan.
func watchPaths(p *config.Pipeline, plan []string) []string {
	seen := make(map[string]bool)
	var paths []string
	add := func(rel string) {
		path := p.Path(rel)
		if seen[path] {
			return
		}
		if _, err := os.Stat(path); err != nil {
			return
		}
		seen[path] = true
		paths = append(paths, path)
	}

	for _, name := range plan {
		t := p.Targets[name]
		switch t.Kind {
		case config.KindFrontend:
			add(t.Context)
		case config.KindImage:
			add(t.Requirements)
			for _, rule := range t.Copy {
				if rule.Src != "" {
					add(rule.Src)
				}
			}
		}
	}
	return paths
}
