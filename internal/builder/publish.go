package builder

import (
	"context"
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/dosanma1/pipeforge/internal/config"
	"github.com/dosanma1/pipeforge/internal/registry"
)

// PublishBuilder tags and pushes an image built by an upstream image stage.
type PublishBuilder struct{}

// NewPublishBuilder creates a new publish builder
func NewPublishBuilder() *PublishBuilder {
	return &PublishBuilder{}
}

// Name returns the builder name
func (b *PublishBuilder) Name() string {
	return "@pipeforge/publish:push"
}

// Kind returns config.KindPublish.
func (b *PublishBuilder) Kind() config.TargetKind {
	return config.KindPublish
}

// Validate checks the destination references resolve to valid names.
func (b *PublishBuilder) Validate(opts *BuildOptions) error {
	_, _, err := b.references(opts)
	return err
}

// Build pushes the upstream image when opts.Push is set outside a dry run.
// Otherwise it only reports the references it would push.
func (b *PublishBuilder) Build(ctx context.Context, opts *BuildOptions) (*BuildArtifact, error) {
	t := opts.Target
	log := opts.logger()

	refs, publisherName, err := b.references(opts)
	if err != nil {
		return nil, err
	}

	src, ok := opts.Results[t.Image]
	if !ok || src == nil || src.Type != ArtifactTypeImage {
		return nil, fmt.Errorf("%w: image %q has not been assembled", ErrMissingInput, t.Image)
	}

	result := &BuildArtifact{
		Type:    ArtifactTypePublished,
		Tag:     src.Tag,
		ImageID: src.ImageID,
		Digest:  src.Digest,
	}
	for _, ref := range refs {
		result.References = append(result.References, ref.String())
	}

	if !opts.Push || opts.DryRun {
		reason := "push disabled"
		if opts.DryRun {
			reason = "dry run"
		}
		for _, ref := range result.References {
			log.Info("skipping push", "ref", ref, "reason", reason)
		}
		return result, nil
	}

	if opts.Publishers == nil {
		return nil, fmt.Errorf("no publishers configured")
	}
	publisher, err := opts.Publishers(publisherName)
	if err != nil {
		return nil, err
	}

	var auth registry.Credentials
	if opts.Resolver != nil {
		auth.Username, auth.Password = opts.Resolver.ResolveCredentials()
	}

	log.Info("pushing image", "publisher", publisher.Name(), "source", src.Tag, "refs", len(refs))
	pushed, err := publisher.Publish(ctx, &registry.Request{
		Source:     src.Tag,
		References: refs,
		Auth:       auth,
	})
	if err != nil {
		return nil, err
	}

	for _, r := range pushed {
		log.Info("pushed", "ref", r.Reference, "digest", r.Digest)
	}
	result.Pushed = true
	return result, nil
}

func (b *PublishBuilder) references(opts *BuildOptions) ([]name.Reference, string, error) {
	t := opts.Target
	resolver := opts.Resolver
	if resolver == nil {
		resolver = config.NewResolver(opts.Pipeline)
	}

	repository := resolver.ResolveRepository(t, opts.Publish.Repository)
	tags := resolver.ResolveTags(t, opts.Publish.Tags)
	publisher := resolver.ResolvePublisher(t, opts.Publish.Publisher)

	refs, err := registry.References(repository, tags)
	if err != nil {
		return nil, "", err
	}
	return refs, publisher, nil
}
