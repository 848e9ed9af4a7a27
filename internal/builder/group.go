package builder

import (
	"context"

	"github.com/dosanma1/pipeforge/internal/config"
)

// GroupBuilder runs nothing itself; its dependencies do the work.
type GroupBuilder struct{}

// NewGroupBuilder creates a new group builder
func NewGroupBuilder() *GroupBuilder {
	return &GroupBuilder{}
}

// Name returns the builder name
func (b *GroupBuilder) Name() string {
	return "@pipeforge/group"
}

// Kind returns config.KindGroup.
func (b *GroupBuilder) Kind() config.TargetKind {
	return config.KindGroup
}

func (b *GroupBuilder) Validate(opts *BuildOptions) error {
	return nil
}

func (b *GroupBuilder) Build(ctx context.Context, opts *BuildOptions) (*BuildArtifact, error) {
	return &BuildArtifact{Type: ArtifactTypeNone}, nil
}
