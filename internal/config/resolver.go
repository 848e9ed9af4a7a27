package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override values from the pipeline file.
const (
	EnvRepository       = "PIPEFORGE_REPOSITORY"
	EnvTags             = "PIPEFORGE_TAGS"
	EnvPublisher        = "PIPEFORGE_PUBLISHER"
	EnvRegistryUser     = "PIPEFORGE_REGISTRY_USER"
	EnvRegistryPassword = "PIPEFORGE_REGISTRY_PASSWORD"
)

// Resolver handles configuration precedence: CLI flags > environment >
// pipeline file > defaults.
type Resolver struct {
	pipeline *Pipeline
	getenv   func(string) string
}

// NewResolver creates a new configuration resolver reading the process
// environment.
func NewResolver(p *Pipeline) *Resolver {
	return &Resolver{pipeline: p, getenv: os.Getenv}
}

// WithEnv replaces the environment lookup, mainly for tests.
func (r *Resolver) WithEnv(getenv func(string) string) *Resolver {
	r.getenv = getenv
	return r
}

// LoadEnvFile loads <root>/.env into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(root string) error {
	err := godotenv.Load(filepath.Join(root, ".env"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ResolveRepository resolves the repository a publish target pushes to.
// Precedence: CLI flag > PIPEFORGE_REPOSITORY > target.repository
func (r *Resolver) ResolveRepository(t *Target, cliRepository string) string {
	if cliRepository != "" {
		return cliRepository
	}
	if v := r.getenv(EnvRepository); v != "" {
		return v
	}
	return t.Repository
}

// ResolveTags resolves the tags a publish target pushes.
// Precedence: CLI flag > PIPEFORGE_TAGS (comma separated) > target.tags
func (r *Resolver) ResolveTags(t *Target, cliTags []string) []string {
	if len(cliTags) > 0 {
		return cliTags
	}
	if v := r.getenv(EnvTags); v != "" {
		var tags []string
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
		if len(tags) > 0 {
			return tags
		}
	}
	return t.Tags
}

// ResolvePublisher resolves which publisher pushes the image.
// Precedence: CLI flag > PIPEFORGE_PUBLISHER > target.publisher
func (r *Resolver) ResolvePublisher(t *Target, cliPublisher string) string {
	if cliPublisher != "" {
		return cliPublisher
	}
	if v := r.getenv(EnvPublisher); v != "" {
		return v
	}
	return t.Publisher
}

// ResolveCredentials returns registry credentials from the environment.
// Empty values mean the publisher falls back to its ambient login.
func (r *Resolver) ResolveCredentials() (user, password string) {
	return r.getenv(EnvRegistryUser), r.getenv(EnvRegistryPassword)
}
