package skaffold

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/GoogleContainerTools/skaffold/v2/pkg/skaffold/schema/latest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dosanma1/pipeforge/internal/artifact"
	"github.com/dosanma1/pipeforge/internal/builder"
	"github.com/dosanma1/pipeforge/internal/config"
)

const pipelineYAML = `
name: incident-bot
targets:
  frontend:
    kind: frontend
  base-image:
    kind: image
    platform: linux/amd64
    build_args:
      VERSION: "1.0"
      NPM_TOKEN: s3cret
    copy:
      - artifact: frontend
        dest: frontend/build
      - src: main.py
        dest: main.py
  publish:
    kind: publish
    image: base-image
    repository: ghcr.io/acme/incident-bot
`

func loadPipeline(t *testing.T) *config.Pipeline {
	t.Helper()
	p, err := config.Parse([]byte(pipelineYAML))
	require.NoError(t, err)
	p.SetRoot(t.TempDir())
	return p
}

func TestGenerateConfig(t *testing.T) {
	p := loadPipeline(t)
	cfg, err := GenerateConfig(p, p.Targets["base-image"], "pipeforge.local/incident-bot/base-image", ".pipeforge/skaffold/base-image")
	require.NoError(t, err)

	assert.Equal(t, latest.Version, cfg.APIVersion)
	assert.Equal(t, "incident-bot-base-image", cfg.Metadata.Name)
	assert.False(t, *cfg.Pipeline.Build.LocalBuild.Push)

	require.Len(t, cfg.Pipeline.Build.Artifacts, 1)
	a := cfg.Pipeline.Build.Artifacts[0]
	assert.Equal(t, "pipeforge.local/incident-bot/base-image", a.ImageName)
	assert.Equal(t, ".pipeforge/skaffold/base-image", a.Workspace)
	assert.Equal(t, []string{"linux/amd64"}, a.Platforms)
	require.NotNil(t, a.DockerArtifact)
	assert.Equal(t, builder.DockerfileName, a.DockerArtifact.DockerfilePath)
	assert.Equal(t, "1.0", *a.DockerArtifact.BuildArgs["VERSION"])
	assert.Equal(t, "{{ .NPM_TOKEN }}", *a.DockerArtifact.BuildArgs["NPM_TOKEN"])

	require.NotNil(t, cfg.Pipeline.Deploy.DockerDeploy)
	assert.Equal(t, []string{"pipeforge.local/incident-bot/base-image"}, cfg.Pipeline.Deploy.DockerDeploy.Images)

	require.Len(t, cfg.Profiles, 1)
	profile := cfg.Profiles[0]
	assert.Equal(t, "publish", profile.Name)
	assert.True(t, *profile.Pipeline.Build.LocalBuild.Push)
	assert.Equal(t, "ghcr.io/acme/incident-bot", profile.Pipeline.Build.Artifacts[0].ImageName)
}

func TestGenerateConfigRejectsNonImageTargets(t *testing.T) {
	p := loadPipeline(t)
	_, err := GenerateConfig(p, p.Targets["frontend"], "x", ".")
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	p := loadPipeline(t)
	root := p.Root()
	require.NoError(t, os.WriteFile(filepath.Join(root, "requirements.txt"), []byte("flask\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.py"), []byte("print()\n"), 0o644))

	store := artifact.NewStore(p.StatePath())
	bundle := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bundle, "index.html"), []byte("<html/>"), 0o644))
	_, err := store.Publish("frontend", bundle)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	res, err := NewExporter(p, store, logger).Export(ExportOptions{Target: "base-image"})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, ConfigFileName), res.ConfigPath)
	assert.Equal(t, []string{"publish"}, res.Profiles)
	assert.FileExists(t, filepath.Join(res.ContextDir, builder.DockerfileName))
	assert.FileExists(t, filepath.Join(res.ContextDir, "copy", "0", "index.html"))

	data, err := os.ReadFile(res.ConfigPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "s3cret")

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, latest.Version, doc["apiVersion"])
	assert.Equal(t, "Config", doc["kind"])
	assert.Contains(t, string(data), "dockerfile: "+builder.DockerfileName)
	assert.Contains(t, string(data), "context: .pipeforge/skaffold/base-image")
}

func TestExportRequiresBuiltArtifacts(t *testing.T) {
	p := loadPipeline(t)
	root := p.Root()
	require.NoError(t, os.WriteFile(filepath.Join(root, "requirements.txt"), []byte("flask\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.py"), []byte("print()\n"), 0o644))

	_, err := NewExporter(p, artifact.NewStore(p.StatePath()), nil).Export(ExportOptions{Target: "base-image"})
	assert.ErrorIs(t, err, artifact.ErrNotFound)
	assert.NoFileExists(t, filepath.Join(root, ConfigFileName))
}
