// Package registry pushes locally built images to container registries.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"

	"github.com/dosanma1/pipeforge/internal/executil"
)

var (
	ErrPush             = errors.New("push failed")
	ErrAuth             = errors.New("registry authentication failed")
	ErrInvalidReference = errors.New("invalid image reference")
	ErrUnknownPublisher = errors.New("unknown publisher")
)

// Publisher names.
const (
	PublisherDocker   = "docker"
	PublisherRegistry = "registry"
)

// Credentials authenticate against a registry. Empty credentials mean the
// publisher relies on existing logins.
type Credentials struct {
	Username string
	Password string
}

// Empty reports whether no credentials were supplied.
func (c Credentials) Empty() bool {
	return c.Username == "" && c.Password == ""
}

// Request describes one push.
type Request struct {
	// Source is the local image tag to push.
	Source string
	// References are validated destination references.
	References []name.Reference
	Auth       Credentials
}

// Result is the outcome of pushing one reference.
type Result struct {
	Reference string
	Digest    string
}

// Publisher pushes a local image to one or more references.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, req *Request) ([]Result, error)
}

// Factory creates a publisher by name.
type Factory func(name string) (Publisher, error)

// NewFactory returns a Factory for the built-in publishers.
func NewFactory(runner executil.Runner) Factory {
	return func(publisher string) (Publisher, error) {
		switch publisher {
		case PublisherDocker:
			return NewDockerPublisher(runner), nil
		case PublisherRegistry:
			return NewRemotePublisher(runner), nil
		default:
			return nil, fmt.Errorf("%w %q (must be %s or %s)", ErrUnknownPublisher, publisher, PublisherDocker, PublisherRegistry)
		}
	}
}

// References builds and validates "<repository>:<tag>" for each tag.
func References(repository string, tags []string) ([]name.Reference, error) {
	if repository == "" {
		return nil, fmt.Errorf("%w: repository is empty", ErrInvalidReference)
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: no tags", ErrInvalidReference)
	}

	seen := make(map[string]bool, len(tags))
	refs := make([]name.Reference, 0, len(tags))
	for _, tag := range tags {
		raw := repository + ":" + tag
		if seen[raw] {
			continue
		}
		seen[raw] = true

		ref, err := name.NewTag(raw)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidReference, raw, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// classify maps registry transport errors to ErrAuth or ErrPush.
func classify(ref string, err error) error {
	var terr *transport.Error
	if errors.As(err, &terr) {
		switch terr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s: %v", ErrAuth, ref, err)
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrPush, ref, err)
}
