// Package config loads and validates pipeforge.yaml pipeline files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// FileName is the pipeline file looked up in the workspace root.
const FileName = "pipeforge.yaml"

// StateDir is the workspace-relative directory holding artifacts and scratch
// build contexts.
const StateDir = ".pipeforge"

var ErrInvalidConfig = errors.New("invalid pipeline config")

// TargetKind selects which stage builder executes a target.
type TargetKind string

const (
	KindFrontend TargetKind = "frontend"
	KindImage    TargetKind = "image"
	KindPublish  TargetKind = "publish"
	KindGroup    TargetKind = "group"
)

// Pipeline represents the pipeforge.yaml file.
type Pipeline struct {
	Version string             `yaml:"version"`
	Name    string             `yaml:"name"`
	Default string             `yaml:"default,omitempty"`
	Targets map[string]*Target `yaml:"targets"`

	root string
}

// Target is a single build stage. Only the fields relevant to Kind are
// honored; the rest must be left empty.
type Target struct {
	Name        string     `yaml:"-"`
	Kind        TargetKind `yaml:"kind"`
	Description string     `yaml:"description,omitempty"`
	Depends     []string   `yaml:"depends,omitempty"`

	// Shared by frontend and image targets.
	Install string            `yaml:"install,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	// kind: frontend
	Context   string   `yaml:"context,omitempty"`
	Inputs    []string `yaml:"inputs,omitempty"`
	Exclude   []string `yaml:"exclude,omitempty"`
	Container string   `yaml:"container,omitempty"`
	Build     string   `yaml:"build,omitempty"`
	Output    string   `yaml:"output,omitempty"`

	// kind: image
	From         string            `yaml:"from,omitempty"`
	Workdir      string            `yaml:"workdir,omitempty"`
	Copy         []CopyRule        `yaml:"copy,omitempty"`
	Requirements string            `yaml:"requirements,omitempty"`
	Expose       []int             `yaml:"expose,omitempty"`
	Cmd          []string          `yaml:"cmd,omitempty"`
	Platform     string            `yaml:"platform,omitempty"`
	BuildArgs    map[string]string `yaml:"build_args,omitempty"`
	Labels       map[string]string `yaml:"labels,omitempty"`
	Pull         bool              `yaml:"pull,omitempty"`
	NoCache      bool              `yaml:"no_cache,omitempty"`

	// kind: publish
	Image      string   `yaml:"image,omitempty"`
	Repository string   `yaml:"repository,omitempty"`
	Tags       []string `yaml:"tags,omitempty"`
	Publisher  string   `yaml:"publisher,omitempty"`
}

// CopyRule places a host path or a dependency artifact into the image.
type CopyRule struct {
	Src      string   `yaml:"src,omitempty"`
	Artifact string   `yaml:"artifact,omitempty"`
	Dest     string   `yaml:"dest"`
	Exclude  []string `yaml:"exclude,omitempty"`
}

// Defaults applied when the pipeline file leaves a field empty.
const (
	DefaultTarget       = "all"
	DefaultOutput       = "build"
	DefaultBaseImage    = "python:3.11-slim"
	DefaultWorkdir      = "/app"
	DefaultRequirements = "requirements.txt"
	DefaultPort         = 3000
	DefaultPublisher    = "docker"
	DefaultTag          = "latest"
)

// DefaultCmd is the container start command used when none is configured.
var DefaultCmd = []string{"python3", "main.py"}

// Load reads the pipeline file in dir.
func Load(dir string) (*Pipeline, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile reads, schema-checks, decodes, defaults and validates a pipeline
// file. Relative paths in the file resolve against the file's directory.
func LoadFile(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}

	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	p, err := Parse(data)
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	p.root = root

	return p, nil
}

// Parse decodes pipeline YAML, applies defaults and validates the result.
// The workspace root of the returned pipeline is the current directory.
func Parse(data []byte) (*Pipeline, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Pipeline
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: failed to parse: %v", ErrInvalidConfig, err)
	}

	p.root = "."
	p.applyDefaults()

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &p, nil
}

// Root returns the absolute workspace root.
func (p *Pipeline) Root() string {
	return p.root
}

// SetRoot overrides the workspace root.
func (p *Pipeline) SetRoot(root string) {
	p.root = root
}

// Path resolves a workspace-relative path.
func (p *Pipeline) Path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(p.root, rel)
}

// StatePath resolves a path under the workspace state directory.
func (p *Pipeline) StatePath(elem ...string) string {
	return filepath.Join(append([]string{p.root, StateDir}, elem...)...)
}

// Target returns the named target.
func (p *Pipeline) Target(name string) (*Target, error) {
	t, ok := p.Targets[name]
	if !ok {
		return nil, fmt.Errorf("target %q not found", name)
	}
	return t, nil
}

// TargetNames returns all target names in sorted order.
func (p *Pipeline) TargetNames() []string {
	names := make([]string, 0, len(p.Targets))
	for name := range p.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// applyDefaults sets default values for missing fields.
func (p *Pipeline) applyDefaults() {
	if p.Version == "" {
		p.Version = "1"
	}
	if p.Default == "" {
		if _, ok := p.Targets[DefaultTarget]; ok {
			p.Default = DefaultTarget
		}
	}

	for name, t := range p.Targets {
		if t == nil {
			continue
		}
		t.Name = name

		switch t.Kind {
		case KindFrontend:
			if t.Context == "" {
				t.Context = "."
			}
			if t.Output == "" {
				t.Output = DefaultOutput
			}

		case KindImage:
			if t.From == "" {
				t.From = DefaultBaseImage
			}
			if t.Workdir == "" {
				t.Workdir = DefaultWorkdir
			}
			if t.Requirements == "" {
				t.Requirements = DefaultRequirements
			}
			if t.Expose == nil {
				t.Expose = []int{DefaultPort}
			}
			if t.Cmd == nil {
				t.Cmd = append([]string(nil), DefaultCmd...)
			}
			// An artifact can only be copied once its producer ran.
			for _, rule := range t.Copy {
				if rule.Artifact != "" {
					t.Depends = appendUnique(t.Depends, rule.Artifact)
				}
			}

		case KindPublish:
			if len(t.Tags) == 0 {
				t.Tags = []string{DefaultTag}
			}
			if t.Publisher == "" {
				t.Publisher = DefaultPublisher
			}
			if t.Image != "" {
				t.Depends = appendUnique(t.Depends, t.Image)
			}
		}
	}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
