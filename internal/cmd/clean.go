package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dosanma1/pipeforge/internal/artifact"
	"github.com/dosanma1/pipeforge/internal/ui"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove build artifacts and scratch contexts",
	Long: `Remove the .pipeforge directory of the workspace: published artifacts,
their manifests and every scratch build context. Images already built or
pushed are left alone.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	p, err := loadPipeline()
	if err != nil {
		return err
	}

	store := artifact.NewStore(p.StatePath())
	fmt.Fprintf(cmd.OutOrStdout(), "%s Removing %s...\n", ui.IconTrash, store.Root())
	if err := store.Clean(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Clean completed successfully\n", ui.IconSuccess)
	return nil
}
