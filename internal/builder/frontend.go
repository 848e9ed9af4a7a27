package builder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/dosanma1/pipeforge/internal/artifact"
	"github.com/dosanma1/pipeforge/internal/config"
	"github.com/dosanma1/pipeforge/internal/executil"
)

// containerWorkdir is where the scratch directory is mounted when a frontend
// stage runs inside a container.
const containerWorkdir = "/workspace"

// PackageManager describes how to install and build a JavaScript project.
type PackageManager struct {
	Name     string
	LockFile string
	Install  []string
	Build    []string
}

// packageManagers are checked in order; the first lock file found wins.
var packageManagers = []PackageManager{
	{
		Name:     "npm",
		LockFile: "package-lock.json",
		Install:  []string{"npm", "ci"},
		Build:    []string{"npm", "run", "build"},
	},
	{
		Name:     "yarn",
		LockFile: "yarn.lock",
		Install:  []string{"yarn", "install", "--frozen-lockfile"},
		Build:    []string{"yarn", "build"},
	},
	{
		Name:     "pnpm",
		LockFile: "pnpm-lock.yaml",
		Install:  []string{"pnpm", "install", "--frozen-lockfile"},
		Build:    []string{"pnpm", "run", "build"},
	},
}

// DetectPackageManager picks the package manager from the lock file in dir.
func DetectPackageManager(dir string) (PackageManager, error) {
	for _, pm := range packageManagers {
		if fileExists(filepath.Join(dir, pm.LockFile)) {
			return pm, nil
		}
	}
	return PackageManager{}, fmt.Errorf("%w: no lock file (package-lock.json, yarn.lock or pnpm-lock.yaml) in %s", ErrManifestMissing, dir)
}

// FrontendBuilder compiles a static web bundle into an artifact.
type FrontendBuilder struct{}

// NewFrontendBuilder creates a new frontend builder
func NewFrontendBuilder() *FrontendBuilder {
	return &FrontendBuilder{}
}

// Name returns the builder name
func (b *FrontendBuilder) Name() string {
	return "@pipeforge/frontend:build"
}

// Kind returns config.KindFrontend.
func (b *FrontendBuilder) Kind() config.TargetKind {
	return config.KindFrontend
}

// Validate checks the context holds a package manifest and a lock file.
func (b *FrontendBuilder) Validate(opts *BuildOptions) error {
	dir := opts.Pipeline.Path(opts.Target.Context)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("context directory does not exist: %s", dir)
	}

	if !fileExists(filepath.Join(dir, "package.json")) {
		return fmt.Errorf("%w: package.json not found in %s", ErrManifestMissing, dir)
	}

	_, err = DetectPackageManager(dir)
	return err
}

// Build copies the inputs to a scratch directory, installs and builds there,
// and publishes the output directory as the target's artifact.
func (b *FrontendBuilder) Build(ctx context.Context, opts *BuildOptions) (*BuildArtifact, error) {
	if err := b.Validate(opts); err != nil {
		return nil, err
	}

	t := opts.Target
	log := opts.logger()
	contextDir := opts.Pipeline.Path(t.Context)
	pm, _ := DetectPackageManager(contextDir)

	install, err := commandOrDefault(t.Install, pm.Install)
	if err != nil {
		return nil, err
	}
	build, err := commandOrDefault(t.Build, pm.Build)
	if err != nil {
		return nil, err
	}

	scratch, err := opts.Store.ScratchDir("work", t.Name)
	if err != nil {
		return nil, err
	}

	// A leftover output directory from a host build must not reach the
	// scratch copy, or it would be published as if the build produced it.
	exclude := append(append([]string(nil), artifact.DefaultExcludes...), t.Exclude...)
	if out := path.Clean(filepath.ToSlash(t.Output)); out != "." {
		exclude = append(exclude, path.Join(out, "**"))
	}

	n, err := artifact.CopyTree(contextDir, scratch, artifact.CopyOptions{
		Include: t.Inputs,
		Exclude: exclude,
	})
	if err != nil {
		return nil, err
	}
	log.Debug("copied frontend inputs", "files", n, "scratch", scratch, "packageManager", pm.Name)

	if err := opts.Runner.Run(ctx, b.command(opts, scratch, install)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependencyInstall, err)
	}
	if err := opts.Runner.Run(ctx, b.command(opts, scratch, build)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildCommand, err)
	}

	if opts.DryRun {
		return &BuildArtifact{Type: ArtifactTypeStatic, Path: opts.Store.Path(t.Name)}, nil
	}

	output := filepath.Join(scratch, filepath.FromSlash(t.Output))
	info, err := os.Stat(output)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return nil, fmt.Errorf("%w: output directory %q was not produced", artifact.ErrEmptyArtifact, t.Output)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat output: %w", err)
	}

	m, err := opts.Store.Publish(t.Name, output)
	if err != nil {
		return nil, err
	}

	// The scratch copy is only kept around when the stage fails.
	if err := os.RemoveAll(scratch); err != nil {
		log.Warn("failed to remove scratch directory", "dir", scratch, "error", err)
	}

	log.Info("artifact published", "digest", m.Digest.String(), "files", m.Files, "size", m.HumanSize())
	return &BuildArtifact{
		Type:     ArtifactTypeStatic,
		Path:     opts.Store.Path(t.Name),
		Digest:   m.Digest,
		Manifest: m,
	}, nil
}

// command runs argv in the scratch directory, on the host or inside the
// target's container image.
func (b *FrontendBuilder) command(opts *BuildOptions, scratch string, argv []string) *executil.Cmd {
	t := opts.Target
	if t.Container == "" {
		return &executil.Cmd{
			Name:   argv[0],
			Args:   argv[1:],
			Dir:    scratch,
			Env:    t.Env,
			Stdout: opts.Stdout,
			Stderr: opts.Stderr,
		}
	}

	args := []string{"run", "--rm",
		"-v", scratch + ":" + containerWorkdir,
		"-w", containerWorkdir,
	}
	for _, kv := range executil.EnvList(t.Env) {
		args = append(args, "-e", kv)
	}
	args = append(args, t.Container)
	args = append(args, argv...)

	return &executil.Cmd{
		Name:    "docker",
		Args:    args,
		Stdout:  opts.Stdout,
		Stderr:  opts.Stderr,
		Secrets: secretValues(t.Env),
	}
}

func commandOrDefault(command string, def []string) ([]string, error) {
	if command == "" {
		return def, nil
	}
	return executil.Split(command)
}

// secretValues returns the values of secret-looking env entries.
func secretValues(env map[string]string) []string {
	var secrets []string
	for k, v := range env {
		if v != "" && executil.IsSecretKey(k) {
			secrets = append(secrets, v)
		}
	}
	return secrets
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
