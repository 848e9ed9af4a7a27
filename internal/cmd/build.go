package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/dosanma1/pipeforge/internal/builder"
	"github.com/dosanma1/pipeforge/internal/config"
	"github.com/dosanma1/pipeforge/internal/pipeline"
	"github.com/dosanma1/pipeforge/internal/registry"
	"github.com/dosanma1/pipeforge/internal/ui"
)

var (
	buildPush       bool
	buildDryRun     bool
	buildRegistry   string
	buildTags       []string
	buildPublisher  string
	buildYes        bool
	buildNoProgress bool
)

var buildCmd = &cobra.Command{
	Use:   "build [target...]",
	Short: "Build pipeline targets",
	Long: `Build one or more targets and everything they depend on.

Targets run sequentially in dependency order. The first failing stage stops
the run and every stage after it is skipped. Without arguments the pipeline's
default target is built.

Publish stages only push when --push is given. Registry credentials are read
from PIPEFORGE_REGISTRY_USER and PIPEFORGE_REGISTRY_PASSWORD, which may be set
in a .env file next to pipeforge.yaml.

Examples:
  pipeforge build                              # Build the default target
  pipeforge build frontend                     # Build only the frontend bundle
  pipeforge build all --push                   # Build and push the image
  pipeforge build all --push --tag v1.2.0      # Push under a different tag
  pipeforge build all --dry-run                # Print the commands instead of running them`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().BoolVar(&buildPush, "push", false, "Push images in publish stages")
	buildCmd.Flags().BoolVar(&buildDryRun, "dry-run", false, "Print commands instead of executing them")
	buildCmd.Flags().StringVar(&buildRegistry, "registry", "", "Override the repository of publish stages")
	buildCmd.Flags().StringSliceVarP(&buildTags, "tag", "t", nil, "Override the tags of publish stages (repeatable)")
	buildCmd.Flags().StringVar(&buildPublisher, "publisher", "", "Override the publisher of publish stages (docker|registry)")
	buildCmd.Flags().BoolVarP(&buildYes, "yes", "y", false, "Do not ask for confirmation before pushing")
	buildCmd.Flags().BoolVar(&buildNoProgress, "no-progress", false, "Disable the progress bar")
}

func runBuild(cmd *cobra.Command, args []string) error {
	p, err := loadPipeline()
	if err != nil {
		return err
	}
	logger := newLogger(cmd)
	out := cmd.OutOrStdout()

	cfg := pipeline.Config{
		Pipeline: p,
		Logger:   logger,
		DryRun:   buildDryRun,
		Push:     buildPush,
		Publish: builder.PublishOverrides{
			Repository: buildRegistry,
			Tags:       buildTags,
			Publisher:  buildPublisher,
		},
		Stdout: out,
		Stderr: cmd.ErrOrStderr(),
	}
	if !buildNoProgress && !verbose {
		cfg.Progress = cmd.ErrOrStderr()
	}
	runner := pipeline.New(cfg)

	plan, err := runner.Plan(args...)
	if err != nil {
		return err
	}

	mode := ""
	if buildDryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(out, "%s Building %s%s: %s\n", ui.IconRocket, p.Name, mode, strings.Join(plan, " → "))

	interactive := stdinIsTerminal()
	if buildPush && !buildDryRun && !buildYes && !interactive {
		logger.Info("stdin is not a terminal, pushing without confirmation")
	}
	if confirmPush(buildPush, buildDryRun, buildYes, interactive) {
		refs, err := pushReferences(p, plan, cfg.Publish)
		if err != nil {
			return err
		}
		if len(refs) > 0 {
			fmt.Fprintf(out, "%s Images to push:\n", ui.IconPackage)
			for _, ref := range refs {
				fmt.Fprintf(out, "   • %s\n", ref)
			}
			ok, err := ui.NewConfirm("Push these images", false).Run()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(out, "%s Push cancelled\n", ui.IconError)
				return nil
			}
		}
	}

	report, runErr := runner.Run(cmd.Context(), args...)
	if report != nil {
		fmt.Fprintln(out)
		printReport(out, report)
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(out, "\n%s Build completed successfully\n", ui.IconSuccess)
	if !buildPush && hasKind(p, plan, config.KindPublish) {
		fmt.Fprintf(out, "   Run with --push to push the images\n")
	}
	return nil
}

// stdinIsTerminal reports whether prompts can be answered.
var stdinIsTerminal = func() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// confirmPush reports whether the user must approve the push first. CI runs
// without a terminal push directly.
func confirmPush(push, dryRun, yes, interactive bool) bool {
	return push && !dryRun && !yes && interactive
}

// pushReferences lists the references publish stages in plan would push.
func pushReferences(p *config.Pipeline, plan []string, overrides builder.PublishOverrides) ([]string, error) {
	resolver := config.NewResolver(p)

	var refs []string
	for _, name := range plan {
		t := p.Targets[name]
		if t.Kind != config.KindPublish {
			continue
		}
		parsed, err := registry.References(
			resolver.ResolveRepository(t, overrides.Repository),
			resolver.ResolveTags(t, overrides.Tags),
		)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", name, err)
		}
		for _, ref := range parsed {
			refs = append(refs, ref.Name())
		}
	}
	return refs, nil
}

func hasKind(p *config.Pipeline, plan []string, kind config.TargetKind) bool {
	for _, name := range plan {
		if p.Targets[name].Kind == kind {
			return true
		}
	}
	return false
}
