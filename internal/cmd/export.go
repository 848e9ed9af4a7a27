package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dosanma1/pipeforge/internal/artifact"
	"github.com/dosanma1/pipeforge/internal/skaffold"
	"github.com/dosanma1/pipeforge/internal/ui"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export pipeline targets to other build tools",
}

var exportSkaffoldCmd = &cobra.Command{
	Use:   "skaffold <image-target>",
	Short: "Write a skaffold.yaml for an image target",
	Long: `Assemble the build context of an image target under .pipeforge/skaffold
and write a skaffold.yaml that builds it with the docker builder.

Artifacts copied into the image must already be built; run
'pipeforge build <target>' first. Every publish target of the image becomes
a profile that pushes to its repository:

  pipeforge export skaffold base-image
  skaffold run                  # build and run locally
  skaffold build -p publish     # build and push`,
	Args: cobra.ExactArgs(1),
	RunE: runExportSkaffold,
}

func init() {
	exportSkaffoldCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Directory to write skaffold.yaml to (default: workspace root)")
	exportCmd.AddCommand(exportSkaffoldCmd)
	rootCmd.AddCommand(exportCmd)
}

func runExportSkaffold(cmd *cobra.Command, args []string) error {
	p, err := loadPipeline()
	if err != nil {
		return err
	}

	exporter := skaffold.NewExporter(p, artifact.NewStore(p.StatePath()), newLogger(cmd))
	res, err := exporter.Export(skaffold.ExportOptions{Target: args[0], OutputDir: exportOutput})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Wrote %s\n", ui.IconSuccess, res.ConfigPath)
	fmt.Fprintf(out, "   image:   %s\n", res.Image)
	fmt.Fprintf(out, "   context: %s\n", res.ContextDir)
	for _, profile := range res.Profiles {
		fmt.Fprintf(out, "   profile: %s (push)\n", profile)
	}
	return nil
}
