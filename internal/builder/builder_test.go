package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dosanma1/pipeforge/internal/artifact"
	"github.com/dosanma1/pipeforge/internal/config"
	"github.com/dosanma1/pipeforge/internal/executil"
	"github.com/dosanma1/pipeforge/internal/registry"
)

const testPipeline = `
name: incident-bot
targets:
  frontend:
    kind: frontend
    context: frontend
  base-image:
    kind: image
    copy:
      - artifact: frontend
        dest: frontend/build
      - src: backend
        dest: .
  publish:
    kind: publish
    image: base-image
    repository: ghcr.io/acme/incident-bot
  all:
    kind: group
    depends: [publish]
`

type workspace struct {
	root     string
	pipeline *config.Pipeline
	store    *artifact.Store
	runner   *executil.FakeRunner
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"frontend/package.json":      `{"name":"ui"}`,
		"frontend/package-lock.json": `{}`,
		"frontend/src/index.js":      "render()",
		"frontend/node_modules/x.js": "dep",
		"backend/main.py":            "print('hi')",
		"backend/__pycache__/m.pyc":  "bytecode",
		"requirements.txt":           "flask==3.0.0\n",
	})

	p, err := config.Parse([]byte(testPipeline))
	require.NoError(t, err)
	p.SetRoot(root)

	return &workspace{
		root:     root,
		pipeline: p,
		store:    artifact.NewStore(p.StatePath()),
		runner:   &executil.FakeRunner{},
	}
}

func (w *workspace) options(t *testing.T, target string) *BuildOptions {
	t.Helper()
	tgt, err := w.pipeline.Target(target)
	require.NoError(t, err)
	return &BuildOptions{
		Pipeline: w.pipeline,
		Target:   tgt,
		Store:    w.store,
		Runner:   w.runner,
		Results:  map[string]*BuildArtifact{},
		Resolver: config.NewResolver(w.pipeline).WithEnv(func(string) string { return "" }),
	}
}

// producesBundle makes the fake build command write an output directory.
func (w *workspace) producesBundle() {
	w.runner.On("npm run build", func(c *executil.Cmd) ([]byte, error) {
		dir := filepath.Join(c.Dir, "build")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		return nil, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html/>"), 0o644)
	})
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{
		"@pipeforge/frontend:build",
		"@pipeforge/group",
		"@pipeforge/image:build",
		"@pipeforge/publish:push",
	}, r.List())

	b, err := r.Get(config.KindImage)
	require.NoError(t, err)
	assert.Equal(t, "@pipeforge/image:build", b.Name())

	_, err = r.Get("lambda")
	assert.Error(t, err)

	assert.Error(t, r.Register(NewGroupBuilder()))
}

func TestDetectPackageManager(t *testing.T) {
	tests := []struct {
		lock    string
		want    string
		install []string
	}{
		{"package-lock.json", "npm", []string{"npm", "ci"}},
		{"yarn.lock", "yarn", []string{"yarn", "install", "--frozen-lockfile"}},
		{"pnpm-lock.yaml", "pnpm", []string{"pnpm", "install", "--frozen-lockfile"}},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, map[string]string{tt.lock: ""})
			pm, err := DetectPackageManager(dir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pm.Name)
			assert.Equal(t, tt.install, pm.Install)
		})
	}

	_, err := DetectPackageManager(t.TempDir())
	assert.ErrorIs(t, err, ErrManifestMissing)
}

func TestGroupBuilder(t *testing.T) {
	a, err := NewGroupBuilder().Build(context.Background(), &BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, ArtifactTypeNone, a.Type)
}

func TestPublishWithoutPushPushesNothing(t *testing.T) {
	w := newWorkspace(t)
	opts := w.options(t, "publish")
	opts.Results["base-image"] = &BuildArtifact{Type: ArtifactTypeImage, Tag: LocalTag("incident-bot", "base-image")}
	opts.Publishers = func(string) (registry.Publisher, error) {
		t.Fatal("publisher must not be created without push")
		return nil, nil
	}

	a, err := NewPublishBuilder().Build(context.Background(), opts)
	require.NoError(t, err)
	assert.False(t, a.Pushed)
	assert.Equal(t, []string{"ghcr.io/acme/incident-bot:latest"}, a.References)
	assert.Empty(t, w.runner.Lines())
}

type recordingPublisher struct {
	req *registry.Request
	err error
}

func (p *recordingPublisher) Name() string { return "recording" }

func (p *recordingPublisher) Publish(_ context.Context, req *registry.Request) ([]registry.Result, error) {
	p.req = req
	if p.err != nil {
		return nil, p.err
	}
	var results []registry.Result
	for _, ref := range req.References {
		results = append(results, registry.Result{Reference: ref.String()})
	}
	return results, nil
}

func TestPublishPushesWithOverrides(t *testing.T) {
	w := newWorkspace(t)
	opts := w.options(t, "publish")
	opts.Push = true
	opts.Publish = PublishOverrides{Repository: "registry.example.com/bot", Tags: []string{"v1", "latest"}}
	opts.Resolver = config.NewResolver(w.pipeline).WithEnv(func(k string) string {
		return map[string]string{
			config.EnvRegistryUser:     "bot",
			config.EnvRegistryPassword: "pw",
		}[k]
	})
	opts.Results["base-image"] = &BuildArtifact{Type: ArtifactTypeImage, Tag: "pipeforge.local/incident-bot/base-image:build"}

	pub := &recordingPublisher{}
	var requested string
	opts.Publishers = func(name string) (registry.Publisher, error) {
		requested = name
		return pub, nil
	}

	a, err := NewPublishBuilder().Build(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, a.Pushed)
	assert.Equal(t, "docker", requested)
	assert.Equal(t, []string{"registry.example.com/bot:v1", "registry.example.com/bot:latest"}, a.References)
	assert.Equal(t, "pipeforge.local/incident-bot/base-image:build", pub.req.Source)
	assert.Equal(t, registry.Credentials{Username: "bot", Password: "pw"}, pub.req.Auth)
}

func TestPublishFailures(t *testing.T) {
	w := newWorkspace(t)

	t.Run("image not assembled", func(t *testing.T) {
		opts := w.options(t, "publish")
		opts.Push = true
		_, err := NewPublishBuilder().Build(context.Background(), opts)
		assert.ErrorIs(t, err, ErrMissingInput)
	})

	t.Run("push error aborts", func(t *testing.T) {
		opts := w.options(t, "publish")
		opts.Push = true
		opts.Results["base-image"] = &BuildArtifact{Type: ArtifactTypeImage, Tag: "x"}
		opts.Publishers = func(string) (registry.Publisher, error) {
			return &recordingPublisher{err: registry.ErrAuth}, nil
		}
		_, err := NewPublishBuilder().Build(context.Background(), opts)
		assert.ErrorIs(t, err, registry.ErrAuth)
	})

	t.Run("invalid reference", func(t *testing.T) {
		opts := w.options(t, "publish")
		opts.Publish.Tags = []string{"not a tag"}
		assert.ErrorIs(t, NewPublishBuilder().Validate(opts), registry.ErrInvalidReference)
	})

	t.Run("unknown publisher", func(t *testing.T) {
		opts := w.options(t, "publish")
		opts.Push = true
		opts.Publish.Publisher = "ftp"
		opts.Results["base-image"] = &BuildArtifact{Type: ArtifactTypeImage, Tag: "x"}
		opts.Publishers = registry.NewFactory(w.runner)
		_, err := NewPublishBuilder().Build(context.Background(), opts)
		assert.True(t, errors.Is(err, registry.ErrUnknownPublisher))
	})
}
