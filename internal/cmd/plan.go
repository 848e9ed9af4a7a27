package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dosanma1/pipeforge/internal/pipeline"
	"github.com/dosanma1/pipeforge/internal/ui"
)

var planCmd = &cobra.Command{
	Use:   "plan [target...]",
	Short: "Show the stages a build would run",
	Long: `Resolve the dependency closure of the given targets (or the default
target) and print the stages in the order build would run them.

Nothing is executed. Cycles and unknown dependencies are reported here the
same way build reports them.`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	p, err := loadPipeline()
	if err != nil {
		return err
	}

	plan, err := pipeline.New(pipeline.Config{Pipeline: p, Logger: newLogger(cmd)}).Plan(args...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Plan for %s (%d stages)\n\n", ui.IconSearch, p.Name, len(plan))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTARGET\tKIND\tDEPENDS")
	for i, name := range plan {
		t := p.Targets[name]
		depends := "-"
		if len(t.Depends) > 0 {
			depends = strings.Join(t.Depends, ", ")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, name, t.Kind, depends)
	}
	return tw.Flush()
}
