package cmd

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/dosanma1/pipeforge/internal/artifact"
	"github.com/dosanma1/pipeforge/internal/builder"
	"github.com/dosanma1/pipeforge/internal/config"
	"github.com/dosanma1/pipeforge/internal/graph"
	"github.com/dosanma1/pipeforge/internal/ui"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate pipeforge.yaml and the stage inputs",
	Long: `Validates pipeforge.yaml against the JSON Schema and the semantic rules,
checks the target graph for cycles and unknown dependencies, then runs the
input checks of every stage (source directories, lock files, requirements
files, image references) without building anything.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Validating %s...\n", ui.IconSearch, config.FileName)

	p, err := loadPipeline()
	if err != nil {
		return err
	}
	logger := newLogger(cmd)

	names := p.TargetNames()
	if _, err := graph.New(p).Plan(names...); err != nil {
		return err
	}

	builders := builder.DefaultRegistry()
	store := artifact.NewStore(p.StatePath())
	resolver := config.NewResolver(p)

	var result *multierror.Error
	for _, name := range names {
		t := p.Targets[name]
		b, err := builders.Get(t.Kind)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		opts := &builder.BuildOptions{
			Pipeline: p,
			Target:   t,
			Store:    store,
			Resolver: resolver,
			Logger:   logger,
		}
		if err := b.Validate(opts); err != nil {
			result = multierror.Append(result, fmt.Errorf("target %s: %w", name, err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s %s is valid (%d targets)\n", ui.IconSuccess, config.FileName, len(names))
	return nil
}
