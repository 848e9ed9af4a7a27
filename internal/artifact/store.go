// Package artifact stores the directory trees produced by frontend stages.
//
// Trees are populated in a staging directory and promoted with a rename, so
// the published path either holds a complete artifact or nothing new.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/opencontainers/go-digest"

	"github.com/dosanma1/pipeforge/pkg/xos"
)

// Manifest describes a published artifact.
type Manifest struct {
	Target    string        `json:"target"`
	Digest    digest.Digest `json:"digest"`
	Files     int           `json:"files"`
	Size      int64         `json:"size"`
	CreatedAt time.Time     `json:"createdAt"`
}

// HumanSize formats the artifact size for display.
func (m *Manifest) HumanSize() string {
	return humanize.IBytes(uint64(m.Size))
}

// Store manages artifacts under a state directory.
type Store struct {
	root string
	now  func() time.Time
}

// NewStore returns a store rooted at stateDir (usually .pipeforge).
func NewStore(stateDir string) *Store {
	return &Store{root: stateDir, now: time.Now}
}

// Root returns the state directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns the published location of a target's artifact.
func (s *Store) Path(target string) string {
	return filepath.Join(s.root, "artifacts", target)
}

// ManifestPath returns the manifest location of a target's artifact.
func (s *Store) ManifestPath(target string) string {
	return filepath.Join(s.root, "manifests", target+".json")
}

// ScratchDir creates a fresh scratch directory for a stage, removing any
// leftovers from a previous run.
func (s *Store) ScratchDir(kind, target string) (string, error) {
	dir := filepath.Join(s.root, kind, target)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return dir, nil
}

// Stage creates an empty staging directory for target next to the artifact
// path so the final rename stays on one filesystem.
func (s *Store) Stage(target string) (string, error) {
	parent := filepath.Join(s.root, "artifacts")
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	dir, err := os.MkdirTemp(parent, "."+target+".staging-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	return dir, nil
}

// Discard removes a staging directory that will not be promoted.
func (s *Store) Discard(staging string) {
	_ = os.RemoveAll(staging)
}

// Publish copies src into a staging directory and promotes it.
func (s *Store) Publish(target, src string) (*Manifest, error) {
	staging, err := s.Stage(target)
	if err != nil {
		return nil, err
	}

	if _, err := CopyTree(src, staging, CopyOptions{}); err != nil {
		s.Discard(staging)
		return nil, err
	}

	return s.Promote(target, staging)
}

// Promote digests a fully populated staging directory, moves it to the
// artifact path and writes the manifest. An empty tree is rejected and
// discarded.
func (s *Store) Promote(target, staging string) (*Manifest, error) {
	dgst, stats, err := Digest(staging)
	if err != nil {
		s.Discard(staging)
		return nil, err
	}
	if stats.Files == 0 {
		s.Discard(staging)
		return nil, fmt.Errorf("%w: %s produced no files", ErrEmptyArtifact, target)
	}

	if err := xos.ReplaceDir(staging, s.Path(target)); err != nil {
		s.Discard(staging)
		return nil, fmt.Errorf("failed to publish artifact %s: %w", target, err)
	}

	m := &Manifest{
		Target:    target,
		Digest:    dgst,
		Files:     stats.Files,
		Size:      stats.Size,
		CreatedAt: s.now().UTC(),
	}
	if err := os.MkdirAll(filepath.Dir(s.ManifestPath(target)), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create manifest directory: %w", err)
	}
	if err := xos.WriteJSON(s.ManifestPath(target), m, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return m, nil
}

// Manifest reads the manifest of a published artifact.
func (s *Store) Manifest(target string) (*Manifest, error) {
	data, err := os.ReadFile(s.ManifestPath(target))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest for %s: %w", target, err)
	}
	return &m, nil
}

// Verify checks that a published artifact exists and still matches its
// manifest digest.
func (s *Store) Verify(target string) (*Manifest, error) {
	m, err := s.Manifest(target)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.Path(target)); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
	}
	dgst, _, err := Digest(s.Path(target))
	if err != nil {
		return nil, err
	}
	if dgst != m.Digest {
		return nil, fmt.Errorf("artifact %s was modified after publishing (have %s, want %s)", target, dgst, m.Digest)
	}
	return m, nil
}

// Clean removes the whole state directory.
func (s *Store) Clean() error {
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("failed to remove %s: %w", s.root, err)
	}
	return nil
}
