package config

import (
	"fmt"
	"path"
	"regexp"

	"github.com/hashicorp/go-multierror"
)

var (
	// namePattern matches valid kebab-case names.
	namePattern = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)
)

// Validate checks the semantic rules the JSON schema cannot express.
// All problems are reported together.
func (p *Pipeline) Validate() error {
	var result *multierror.Error

	if p.Name == "" {
		result = multierror.Append(result, fmt.Errorf("name is required"))
	} else if err := ValidateName(p.Name); err != nil {
		result = multierror.Append(result, fmt.Errorf("invalid pipeline name: %w", err))
	}

	if len(p.Targets) == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one target is required"))
	}

	if p.Default != "" {
		if _, ok := p.Targets[p.Default]; !ok {
			result = multierror.Append(result, fmt.Errorf("default target %q not found", p.Default))
		}
	}

	for _, name := range p.TargetNames() {
		t := p.Targets[name]
		if t == nil {
			result = multierror.Append(result, fmt.Errorf("target %q: definition is empty", name))
			continue
		}
		for _, err := range p.validateTarget(t) {
			result = multierror.Append(result, fmt.Errorf("target %q: %w", name, err))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (p *Pipeline) validateTarget(t *Target) []error {
	var errs []error

	if err := ValidateName(t.Name); err != nil {
		errs = append(errs, fmt.Errorf("invalid target name: %w", err))
	}

	for _, dep := range t.Depends {
		if _, ok := p.Targets[dep]; !ok {
			errs = append(errs, fmt.Errorf("depends on unknown target %q", dep))
		}
	}

	switch t.Kind {
	case KindFrontend:
		if path.IsAbs(t.Output) {
			errs = append(errs, fmt.Errorf("output must be relative to the context"))
		}

	case KindImage:
		if len(t.Cmd) == 0 {
			errs = append(errs, fmt.Errorf("cmd must not be empty"))
		}
		if !path.IsAbs(t.Workdir) {
			errs = append(errs, fmt.Errorf("workdir %q must be absolute", t.Workdir))
		}
		for _, port := range t.Expose {
			if port < 1 || port > 65535 {
				errs = append(errs, fmt.Errorf("expose: port %d out of range", port))
			}
		}
		for i, rule := range t.Copy {
			if err := p.validateCopyRule(rule); err != nil {
				errs = append(errs, fmt.Errorf("copy[%d]: %w", i, err))
			}
		}

	case KindPublish:
		if t.Repository == "" {
			errs = append(errs, fmt.Errorf("repository is required"))
		}
		if t.Image == "" {
			errs = append(errs, fmt.Errorf("image is required"))
		} else if src, ok := p.Targets[t.Image]; !ok {
			errs = append(errs, fmt.Errorf("image target %q not found", t.Image))
		} else if src != nil && src.Kind != KindImage {
			errs = append(errs, fmt.Errorf("image target %q has kind %q, want %q", t.Image, src.Kind, KindImage))
		}
		switch t.Publisher {
		case "docker", "registry":
		default:
			errs = append(errs, fmt.Errorf("unknown publisher %q (must be docker or registry)", t.Publisher))
		}

	case KindGroup:
		if len(t.Depends) == 0 {
			errs = append(errs, fmt.Errorf("group must depend on at least one target"))
		}

	default:
		errs = append(errs, fmt.Errorf("invalid kind %q", t.Kind))
	}

	return errs
}

func (p *Pipeline) validateCopyRule(rule CopyRule) error {
	if rule.Dest == "" {
		return fmt.Errorf("dest is required")
	}
	if (rule.Src == "") == (rule.Artifact == "") {
		return fmt.Errorf("exactly one of src or artifact must be set")
	}
	if rule.Artifact != "" {
		src, ok := p.Targets[rule.Artifact]
		if !ok {
			return fmt.Errorf("artifact target %q not found", rule.Artifact)
		}
		if src != nil && src.Kind != KindFrontend {
			return fmt.Errorf("artifact target %q does not produce an artifact", rule.Artifact)
		}
	}
	return nil
}

// ValidateName validates a name follows kebab-case convention.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("name must be kebab-case (lowercase letters, numbers, and hyphens only, starting with a letter)")
	}
	return nil
}
