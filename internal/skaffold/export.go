package skaffold

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dosanma1/pipeforge/internal/artifact"
	"github.com/dosanma1/pipeforge/internal/builder"
	"github.com/dosanma1/pipeforge/internal/config"
	"github.com/dosanma1/pipeforge/pkg/xos"
)

// Exporter writes Skaffold configurations for image targets.
type Exporter struct {
	pipeline *config.Pipeline
	store    *artifact.Store
	logger   *slog.Logger
}

// NewExporter creates an exporter for a pipeline.
func NewExporter(p *config.Pipeline, store *artifact.Store, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{pipeline: p, store: store, logger: logger}
}

// Export assembles the image context under .pipeforge/skaffold/<target> and
// writes skaffold.yaml pointing at it. Artifacts copied into the image must
// already be built.
func (e *Exporter) Export(opts ExportOptions) (*ExportResult, error) {
	t, err := e.pipeline.Target(opts.Target)
	if err != nil {
		return nil, err
	}
	if t.Kind != config.KindImage {
		return nil, fmt.Errorf("target %q has kind %q, only image targets can be exported", t.Name, t.Kind)
	}

	ib := builder.NewImageBuilder()
	buildOpts := &builder.BuildOptions{
		Pipeline: e.pipeline,
		Target:   t,
		Store:    e.store,
		Logger:   e.logger,
	}
	if err := ib.Validate(buildOpts); err != nil {
		return nil, err
	}

	dir, err := e.store.ScratchDir("skaffold", t.Name)
	if err != nil {
		return nil, err
	}
	ic, err := ib.Assemble(buildOpts, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble build context (run 'pipeforge build' for its dependencies first): %w", err)
	}

	outDir := opts.OutputDir
	if outDir == "" {
		outDir = e.pipeline.Root()
	}
	outDir, err = filepath.Abs(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory: %w", err)
	}
	workspace, err := filepath.Rel(outDir, ic.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve context path: %w", err)
	}
	workspace = filepath.ToSlash(workspace)

	image := builder.LocalRepository(e.pipeline.Name, t.Name)

	cfg, err := GenerateConfig(e.pipeline, t, image, workspace)
	if err != nil {
		return nil, err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal skaffold config: %w", err)
	}

	configPath := filepath.Join(outDir, ConfigFileName)
	if err := xos.WriteFile(configPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", ConfigFileName, err)
	}

	result := &ExportResult{
		ConfigPath: configPath,
		ContextDir: ic.Dir,
		Dockerfile: ic.Dockerfile,
		Image:      image,
	}
	for _, profile := range cfg.Profiles {
		result.Profiles = append(result.Profiles, profile.Name)
	}

	e.logger.Info("exported skaffold config", "target", t.Name, "config", configPath, "context", ic.Dir)
	return result, nil
}
