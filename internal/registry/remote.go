package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/tarball"

	"github.com/dosanma1/pipeforge/internal/executil"
)

// RemotePublisher exports the image with docker save and uploads it with the
// registry API, without going through the docker daemon's push.
type RemotePublisher struct {
	runner   executil.Runner
	keychain authn.Keychain
	options  []remote.Option
}

// NewRemotePublisher creates a registry API publisher that falls back to the
// default keychain (docker config, credential helpers) when no explicit
// credentials are given.
func NewRemotePublisher(runner executil.Runner, opts ...remote.Option) *RemotePublisher {
	return &RemotePublisher{
		runner:   runner,
		keychain: authn.DefaultKeychain,
		options:  opts,
	}
}

func (p *RemotePublisher) Name() string {
	return PublisherRegistry
}

// Publish saves the source image to a temporary tarball and writes it to
// every reference.
func (p *RemotePublisher) Publish(ctx context.Context, req *Request) ([]Result, error) {
	tmp, err := os.MkdirTemp("", "pipeforge-push-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	archive := filepath.Join(tmp, "image.tar")
	if err := p.runner.Run(ctx, executil.Command("docker", "save", "-o", archive, req.Source)); err != nil {
		return nil, fmt.Errorf("%w: docker save %s: %v", ErrPush, req.Source, err)
	}

	img, err := tarball.ImageFromPath(archive, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read saved image: %v", ErrPush, err)
	}
	digest, err := img.Digest()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to compute image digest: %v", ErrPush, err)
	}

	opts := append([]remote.Option{remote.WithContext(ctx)}, p.options...)
	if req.Auth.Empty() {
		opts = append(opts, remote.WithAuthFromKeychain(p.keychain))
	} else {
		opts = append(opts, remote.WithAuth(&authn.Basic{
			Username: req.Auth.Username,
			Password: req.Auth.Password,
		}))
	}

	results := make([]Result, 0, len(req.References))
	for _, ref := range req.References {
		if err := remote.Write(ref, img, opts...); err != nil {
			return results, classify(ref.String(), err)
		}
		results = append(results, Result{Reference: ref.String(), Digest: digest.String()})
	}
	return results, nil
}
