package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dosanma1/pipeforge/internal/config"
	"github.com/dosanma1/pipeforge/internal/logging"
)

// findWorkspaceRoot finds the workspace root by looking for pipeforge.yaml
func findWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, config.FileName)); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("%s not found in current directory or any parent directory", config.FileName)
}

// loadPipeline loads the pipeline selected by --file, or the one found in
// the workspace root, and the .env file next to it.
func loadPipeline() (*config.Pipeline, error) {
	path := pipelineFile
	if path == "" {
		root, err := findWorkspaceRoot()
		if err != nil {
			return nil, fmt.Errorf("not in a pipeforge workspace: %w", err)
		}
		path = filepath.Join(root, config.FileName)
	}

	p, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}

	if err := config.LoadEnvFile(p.Root()); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	return p, nil
}

// newLogger creates the command logger and makes it the slog default.
func newLogger(cmd *cobra.Command) *slog.Logger {
	logger := logging.New(cmd.ErrOrStderr(), logging.Options{Verbose: verbose})
	slog.SetDefault(logger)
	return logger
}
