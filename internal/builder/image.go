package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/dosanma1/pipeforge/internal/artifact"
	"github.com/dosanma1/pipeforge/internal/config"
	"github.com/dosanma1/pipeforge/internal/executil"
	"github.com/dosanma1/pipeforge/pkg/xos"
)

// LocalRepository returns the repository image stages build into.
func LocalRepository(pipeline, target string) string {
	return "pipeforge.local/" + pipeline + "/" + target
}

// LocalTag returns the tag an image stage builds under before publishing.
func LocalTag(pipeline, target string) string {
	return LocalRepository(pipeline, target) + ":build"
}

// DefaultInstall returns the dependency install command for a requirements
// file copied into the image working directory.
func DefaultInstall(requirements string) string {
	return "pip install --no-cache-dir -r " + requirements
}

// ImageContext is an assembled docker build context.
type ImageContext struct {
	// Dir is the context root.
	Dir string
	// Dockerfile is the absolute path of the rendered Dockerfile.
	Dockerfile string
	Spec       DockerfileSpec
}

// ImageBuilder assembles a build context and runs docker build.
type ImageBuilder struct{}

// NewImageBuilder creates a new image builder
func NewImageBuilder() *ImageBuilder {
	return &ImageBuilder{}
}

// Name returns the builder name
func (b *ImageBuilder) Name() string {
	return "@pipeforge/image:build"
}

// Kind returns config.KindImage.
func (b *ImageBuilder) Kind() config.TargetKind {
	return config.KindImage
}

// Validate checks the dependency manifest and every host copy source exist.
func (b *ImageBuilder) Validate(opts *BuildOptions) error {
	t := opts.Target

	req := opts.Pipeline.Path(t.Requirements)
	if !fileExists(req) {
		return fmt.Errorf("%w: %s not found", ErrManifestMissing, t.Requirements)
	}

	for i, rule := range t.Copy {
		if rule.Src == "" {
			continue
		}
		if _, err := os.Stat(opts.Pipeline.Path(rule.Src)); err != nil {
			return fmt.Errorf("%w: copy[%d] source %q: %v", artifact.ErrCopy, i, rule.Src, err)
		}
	}
	return nil
}

// Build assembles the context, builds the image and reports its ID.
func (b *ImageBuilder) Build(ctx context.Context, opts *BuildOptions) (*BuildArtifact, error) {
	if err := b.Validate(opts); err != nil {
		return nil, err
	}

	t := opts.Target
	log := opts.logger()

	dir, err := opts.Store.ScratchDir("contexts", t.Name)
	if err != nil {
		return nil, err
	}

	ic, err := b.Assemble(opts, dir)
	if err != nil {
		return nil, err
	}
	log.Debug("assembled build context", "dir", ic.Dir)

	tag := LocalTag(opts.Pipeline.Name, t.Name)
	if err := opts.Runner.Run(ctx, b.buildCommand(opts, ic, tag)); err != nil {
		return nil, fmt.Errorf("%w: docker build: %v", ErrBuildCommand, err)
	}

	out, err := opts.Runner.Output(ctx, &executil.Cmd{
		Name:   "docker",
		Args:   []string{"image", "inspect", "--format", "{{.Id}}", tag},
		Stderr: opts.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to inspect image %s: %w", tag, err)
	}

	id := strings.TrimSpace(string(out))
	result := &BuildArtifact{
		Type:    ArtifactTypeImage,
		Path:    ic.Dir,
		Tag:     tag,
		ImageID: id,
	}
	if d, err := digest.Parse(id); err == nil {
		result.Digest = d
	}

	log.Info("image built", "tag", tag, "id", id)
	return result, nil
}

// Assemble populates dir with the requirements file, every copy source and
// the rendered Dockerfile.
func (b *ImageBuilder) Assemble(opts *BuildOptions, dir string) (*ImageContext, error) {
	t := opts.Target
	log := opts.logger()

	reqName := filepath.Base(t.Requirements)
	if err := xos.CopyFile(opts.Pipeline.Path(t.Requirements), filepath.Join(dir, reqName)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", artifact.ErrCopy, t.Requirements, err)
	}

	spec := DockerfileSpec{
		Target:       t.Name,
		From:         t.From,
		Workdir:      t.Workdir,
		Env:          t.Env,
		Requirements: reqName,
		Install:      t.Install,
		Expose:       t.Expose,
		Cmd:          t.Cmd,
		Labels:       t.Labels,
	}
	if spec.Install == "" {
		spec.Install = DefaultInstall(reqName)
	}
	for k := range t.BuildArgs {
		spec.Args = append(spec.Args, k)
	}

	for i, rule := range t.Copy {
		rel := path.Join("copy", strconv.Itoa(i))
		dst := filepath.Join(dir, filepath.FromSlash(rel))

		src, err := b.copySource(opts, rule)
		if errors.Is(err, artifact.ErrNotFound) && opts.DryRun {
			log.Warn("artifact not built yet, skipping copy in dry run", "artifact", rule.Artifact)
			continue
		}
		if err != nil {
			return nil, err
		}

		info, err := os.Stat(src)
		if err != nil {
			return nil, fmt.Errorf("%w: copy[%d]: %v", artifact.ErrCopy, i, err)
		}

		if !info.IsDir() {
			name := filepath.Base(src)
			if err := xos.CopyFile(src, filepath.Join(dst, name)); err != nil {
				return nil, fmt.Errorf("%w: copy[%d]: %v", artifact.ErrCopy, i, err)
			}
			spec.Copies = append(spec.Copies, DockerfileCopy{Src: rel + "/" + name, Dest: rule.Dest})
			continue
		}

		exclude := rule.Exclude
		if rule.Src != "" {
			exclude = append(append([]string(nil), artifact.DefaultExcludes...), rule.Exclude...)
		}
		if _, err := artifact.CopyTree(src, dst, artifact.CopyOptions{Exclude: exclude}); err != nil {
			return nil, fmt.Errorf("copy[%d]: %w", i, err)
		}
		spec.Copies = append(spec.Copies, DockerfileCopy{Src: rel + "/", Dest: dirDest(rule.Dest)})
	}

	dockerfile, err := RenderDockerfile(spec)
	if err != nil {
		return nil, err
	}
	dockerfilePath := filepath.Join(dir, DockerfileName)
	if err := xos.WriteFile(dockerfilePath, dockerfile, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write Dockerfile: %w", err)
	}

	return &ImageContext{Dir: dir, Dockerfile: dockerfilePath, Spec: spec}, nil
}

// copySource resolves a copy rule to a host path. Artifacts must be
// published and unmodified.
func (b *ImageBuilder) copySource(opts *BuildOptions, rule config.CopyRule) (string, error) {
	if rule.Src != "" {
		return opts.Pipeline.Path(rule.Src), nil
	}
	if _, err := opts.Store.Verify(rule.Artifact); err != nil {
		return "", fmt.Errorf("artifact %q: %w", rule.Artifact, err)
	}
	return opts.Store.Path(rule.Artifact), nil
}

func (b *ImageBuilder) buildCommand(opts *BuildOptions, ic *ImageContext, tag string) *executil.Cmd {
	t := opts.Target
	args := []string{"build", "-f", ic.Dockerfile, "-t", tag}
	if t.Platform != "" {
		args = append(args, "--platform", t.Platform)
	}
	if t.Pull {
		args = append(args, "--pull")
	}
	if t.NoCache {
		args = append(args, "--no-cache")
	}
	for _, kv := range executil.EnvList(t.BuildArgs) {
		args = append(args, "--build-arg", kv)
	}
	args = append(args, ic.Dir)

	return &executil.Cmd{
		Name:    "docker",
		Args:    args,
		Stdout:  opts.Stdout,
		Stderr:  opts.Stderr,
		Secrets: secretValues(t.BuildArgs),
	}
}

// dirDest makes a directory COPY destination end in a slash.
func dirDest(dest string) string {
	if strings.HasSuffix(dest, "/") {
		return dest
	}
	return dest + "/"
}
