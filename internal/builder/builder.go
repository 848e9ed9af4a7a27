// Package builder implements the pipeline stage kinds.
package builder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/dosanma1/pipeforge/internal/artifact"
	"github.com/dosanma1/pipeforge/internal/config"
	"github.com/dosanma1/pipeforge/internal/executil"
	"github.com/dosanma1/pipeforge/internal/registry"
)

// Builder is the interface every stage kind implements.
type Builder interface {
	// Name returns the builder name (e.g., "@pipeforge/frontend:build")
	Name() string

	// Kind returns the target kind this builder executes.
	Kind() config.TargetKind

	// Validate checks the stage inputs before anything runs.
	Validate(opts *BuildOptions) error

	// Build executes the stage and returns what it produced.
	Build(ctx context.Context, opts *BuildOptions) (*BuildArtifact, error)
}

// BuildOptions contains everything a stage needs to run.
type BuildOptions struct {
	Pipeline *config.Pipeline
	Target   *config.Target

	Store  *artifact.Store
	Runner executil.Runner

	// Results holds the artifacts of stages that already succeeded in this
	// run, keyed by target name.
	Results map[string]*BuildArtifact

	// DryRun prints commands instead of executing them.
	DryRun bool

	// Push enables registry pushes for publish stages.
	Push bool

	// Publish carries CLI overrides for publish stages.
	Publish PublishOverrides

	Resolver   *config.Resolver
	Publishers registry.Factory

	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer
}

// PublishOverrides are command-line values that take precedence over the
// pipeline file.
type PublishOverrides struct {
	Repository string
	Tags       []string
	Publisher  string
}

func (o *BuildOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger.With("target", o.Target.Name)
}

// Registry maps target kinds to builders.
type Registry struct {
	builders map[config.TargetKind]Builder
}

// NewRegistry creates an empty builder registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[config.TargetKind]Builder),
	}
}

// Register registers a builder for its kind.
func (r *Registry) Register(b Builder) error {
	kind := b.Kind()
	if existing, exists := r.builders[kind]; exists {
		return fmt.Errorf("kind %q already handled by %s", kind, existing.Name())
	}
	r.builders[kind] = b
	return nil
}

// Get retrieves the builder for a kind.
func (r *Registry) Get(kind config.TargetKind) (Builder, error) {
	b, exists := r.builders[kind]
	if !exists {
		return nil, fmt.Errorf("no builder registered for kind %q", kind)
	}
	return b, nil
}

// List returns all registered builder names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.builders))
	for _, b := range r.builders {
		names = append(names, b.Name())
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry with every built-in stage kind.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, b := range []Builder{
		NewFrontendBuilder(),
		NewImageBuilder(),
		NewPublishBuilder(),
		NewGroupBuilder(),
	} {
		// Built-in kinds are distinct.
		_ = r.Register(b)
	}
	return r
}
