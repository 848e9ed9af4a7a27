package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dosanma1/pipeforge/internal/executil"
)

// DockerPublisher pushes with the docker CLI: tag, login, push, logout.
type DockerPublisher struct {
	runner executil.Runner

	// Stderr receives the docker CLI's error output.
	Stderr io.Writer
}

// NewDockerPublisher creates a docker CLI publisher.
func NewDockerPublisher(runner executil.Runner) *DockerPublisher {
	return &DockerPublisher{runner: runner, Stderr: os.Stderr}
}

func (p *DockerPublisher) Name() string {
	return PublisherDocker
}

// Publish tags the source image with every reference and pushes each one.
// When credentials are given, each registry is logged into once before the
// pushes and logged out of afterwards.
func (p *DockerPublisher) Publish(ctx context.Context, req *Request) ([]Result, error) {
	for _, ref := range req.References {
		if err := p.runner.Run(ctx, executil.Command("docker", "tag", req.Source, ref.String())); err != nil {
			return nil, fmt.Errorf("%w: docker tag %s: %v", ErrPush, ref, err)
		}
	}

	if !req.Auth.Empty() {
		var registries []string
		seen := map[string]bool{}
		for _, ref := range req.References {
			reg := ref.Context().RegistryStr()
			if !seen[reg] {
				seen[reg] = true
				registries = append(registries, reg)
			}
		}

		for _, reg := range registries {
			if err := p.login(ctx, reg, req.Auth); err != nil {
				return nil, err
			}
			defer p.logout(reg)
		}
	}

	results := make([]Result, 0, len(req.References))
	for _, ref := range req.References {
		var stderr bytes.Buffer
		cmd := executil.Command("docker", "push", ref.String())
		cmd.Stderr = io.MultiWriter(p.Stderr, &stderr)
		if err := p.runner.Run(ctx, cmd); err != nil {
			if authRejected(stderr.String()) {
				return results, fmt.Errorf("%w: %s: %v", ErrAuth, ref, err)
			}
			return results, fmt.Errorf("%w: %s: %v", ErrPush, ref, err)
		}
		results = append(results, Result{Reference: ref.String()})
	}
	return results, nil
}

// login passes the password on stdin so it never shows up in process
// listings or printed command lines.
func (p *DockerPublisher) login(ctx context.Context, registry string, auth Credentials) error {
	cmd := &executil.Cmd{
		Name:    "docker",
		Args:    []string{"login", "--username", auth.Username, "--password-stdin", registry},
		Stdin:   strings.NewReader(auth.Password),
		Secrets: []string{auth.Password},
	}
	if err := p.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("%w: docker login %s: %v", ErrAuth, registry, err)
	}
	return nil
}

// logout never fails the push.
func (p *DockerPublisher) logout(registry string) {
	_ = p.runner.Run(context.Background(), executil.Command("docker", "logout", registry))
}

// authRejected reports whether docker push output says the registry refused
// the credentials in use.
func authRejected(output string) bool {
	out := strings.ToLower(output)
	for _, marker := range []string{"unauthorized", "denied", "authentication required", "no basic auth credentials"} {
		if strings.Contains(out, marker) {
			return true
		}
	}
	return false
}
