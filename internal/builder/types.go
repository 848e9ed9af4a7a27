package builder

import (
	"fmt"

	"github.com/opencontainers/go-digest"

	"github.com/dosanma1/pipeforge/internal/artifact"
)

// ArtifactType represents the type of artifact produced by a builder
type ArtifactType string

const (
	// ArtifactTypeStatic represents a static file tree (HTML, CSS, JS)
	ArtifactTypeStatic ArtifactType = "static"
	// ArtifactTypeImage represents a locally built container image
	ArtifactTypeImage ArtifactType = "image"
	// ArtifactTypePublished represents image references in a registry
	ArtifactTypePublished ArtifactType = "published"
	// ArtifactTypeNone is produced by stages that only aggregate others
	ArtifactTypeNone ArtifactType = "none"
)

// BuildArtifact represents the output of a stage.
type BuildArtifact struct {
	// Type of artifact produced
	Type ArtifactType
	// Path to the artifact (local filesystem path)
	Path string
	// Digest of the artifact content or image
	Digest digest.Digest
	// Tag is the local tag of a built image
	Tag string
	// ImageID is the local image ID reported by docker
	ImageID string
	// References are the registry references of a publish stage
	References []string
	// Pushed is false when a publish stage only planned its pushes
	Pushed bool
	// Manifest describes a static artifact
	Manifest *artifact.Manifest
}

// Summary returns a one-line description for reports.
func (a *BuildArtifact) Summary() string {
	if a == nil {
		return ""
	}
	switch a.Type {
	case ArtifactTypeStatic:
		if a.Manifest != nil {
			return fmt.Sprintf("%s (%d files, %s)", shortID(a.Manifest.Digest.String()), a.Manifest.Files, a.Manifest.HumanSize())
		}
		return a.Path
	case ArtifactTypeImage:
		if a.ImageID != "" {
			return a.Tag + " " + shortID(a.ImageID)
		}
		return a.Tag
	case ArtifactTypePublished:
		if len(a.References) == 0 {
			return ""
		}
		s := a.References[0]
		if len(a.References) > 1 {
			s += fmt.Sprintf(" (+%d)", len(a.References)-1)
		}
		if !a.Pushed {
			s += " (not pushed)"
		}
		return s
	}
	return ""
}

func shortID(id string) string {
	d, err := digest.Parse(id)
	if err != nil {
		return id
	}
	enc := d.Encoded()
	if len(enc) > 12 {
		enc = enc[:12]
	}
	return enc
}
