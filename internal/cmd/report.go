package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dosanma1/pipeforge/internal/pipeline"
	"github.com/dosanma1/pipeforge/internal/ui"
)

// printReport writes one row per stage followed by the failure, if any.
func printReport(w io.Writer, report *pipeline.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tKIND\tSTATE\tDURATION\tRESULT")
	for _, s := range report.Stages {
		duration := "-"
		if s.State == pipeline.StateSucceeded || s.State == pipeline.StateFailed {
			duration = formatDuration(s.Duration)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s %s\t%s\t%s\n", s.Target, s.Kind, stateIcon(s.State), s.State, duration, s.Artifact.Summary())
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\nTotal: %s\n", formatDuration(report.Duration))
	if failed := report.Failed(); failed != nil {
		fmt.Fprintf(w, "%s %s failed: %v\n", ui.IconError, failed.Target, failed.Err)
		if hint := pipeline.Hint(failed.Err); hint != "" {
			fmt.Fprintf(w, "%s %s\n", ui.IconTool, hint)
		}
	}
}

func stateIcon(s pipeline.State) string {
	switch s {
	case pipeline.StateSucceeded:
		return ui.IconSuccess
	case pipeline.StateFailed:
		return ui.IconError
	case pipeline.StateSkipped:
		return ui.IconSkip
	default:
		return "•"
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
