package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dosanma1/pipeforge/internal/builder"
	"github.com/dosanma1/pipeforge/internal/config"
	"github.com/dosanma1/pipeforge/internal/pipeline"
)

func canonicalPipeline(t *testing.T) *config.Pipeline {
	t.Helper()
	p, err := config.LoadFile(filepath.Join("..", "..", "testdata", config.FileName))
	require.NoError(t, err)
	return p
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains: it changes
// the working directory for the duration of the test and restores it after.
func chdir(t *testing.T, dir string) {
	t.Helper()
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	abs, err := os.Getwd()
	require.NoError(t, err)
	t.Setenv("PWD", abs)
	t.Cleanup(func() {
		if err := os.Chdir(oldwd); err != nil {
			t.Fatalf("restoring working directory: %v", err)
		}
	})
}

func TestFindWorkspaceRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, config.FileName), []byte("name: x\n"), 0o644))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	chdir(t, nested)
	got, err := findWorkspaceRoot()
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	got, err = filepath.EvalSymlinks(got)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFindWorkspaceRootMissing(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := findWorkspaceRoot()
	assert.ErrorContains(t, err, config.FileName)
}

func TestPushReferences(t *testing.T) {
	t.Setenv(config.EnvRepository, "")
	t.Setenv(config.EnvTags, "")
	p := canonicalPipeline(t)
	plan := []string{"frontend", "base-image", "publish", "all"}

	refs, err := pushReferences(p, plan, builder.PublishOverrides{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ghcr.io/incident-bot/incident-bot:latest"}, refs)

	refs, err = pushReferences(p, plan, builder.PublishOverrides{
		Repository: "registry.example.com/bot",
		Tags:       []string{"v1", "latest"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"registry.example.com/bot:v1", "registry.example.com/bot:latest"}, refs)

	refs, err = pushReferences(p, []string{"frontend"}, builder.PublishOverrides{})
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestWatchPaths(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"frontend", "backend"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "requirements.txt"), nil, 0o644))

	p := canonicalPipeline(t)
	p.SetRoot(root)

	paths := watchPaths(p, []string{"frontend", "base-image", "publish", "all"})
	assert.Equal(t, []string{
		filepath.Join(root, "frontend"),
		filepath.Join(root, "requirements.txt"),
		filepath.Join(root, "backend"),
	}, paths)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "backend")))
	assert.Len(t, watchPaths(p, []string{"base-image"}), 1, "missing paths are skipped")
}

func TestPrintReport(t *testing.T) {
	report := &pipeline.Report{
		Pipeline: "incident-bot",
		Duration: 1500 * time.Millisecond,
		Stages: []*pipeline.StageReport{
			{
				Target:   "frontend",
				Kind:     config.KindFrontend,
				State:    pipeline.StateSucceeded,
				Duration: 1200 * time.Millisecond,
				Artifact: &builder.BuildArtifact{Type: builder.ArtifactTypeStatic, Path: "/ws/.pipeforge/artifacts/frontend"},
			},
			{
				Target:   "base-image",
				Kind:     config.KindImage,
				State:    pipeline.StateFailed,
				Duration: 300 * time.Millisecond,
				Err:      errors.New("docker build exited with 1"),
			},
			{Target: "publish", Kind: config.KindPublish, State: pipeline.StateSkipped},
		},
	}

	var buf bytes.Buffer
	printReport(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "STAGE")
	assert.Contains(t, out, "/ws/.pipeforge/artifacts/frontend")
	assert.Contains(t, out, "1.2s")
	assert.Contains(t, out, "300ms")
	assert.Contains(t, out, "skipped")
	assert.Contains(t, out, "Total: 1.5s")
	assert.Contains(t, out, "base-image failed: docker build exited with 1")
}

func TestPlanCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"plan", "--file", filepath.Join("..", "..", "testdata", config.FileName)})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		pipelineFile = ""
	})

	require.NoError(t, rootCmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "Plan for incident-bot (4 stages)")
	fe := bytes.Index(buf.Bytes(), []byte("frontend"))
	img := bytes.Index(buf.Bytes(), []byte("base-image"))
	pub := bytes.Index(buf.Bytes(), []byte("publish"))
	assert.True(t, fe < img && img < pub, "stages are printed in execution order:\n%s", out)
}

func TestConfirmPush(t *testing.T) {
	tests := []struct {
		name        string
		push        bool
		dryRun      bool
		yes         bool
		interactive bool
		want        bool
	}{
		{name: "interactive push", push: true, interactive: true, want: true},
		{name: "no push", interactive: true},
		{name: "dry run", push: true, dryRun: true, interactive: true},
		{name: "yes flag", push: true, yes: true, interactive: true},
		{name: "no terminal", push: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, confirmPush(tt.push, tt.dryRun, tt.yes, tt.interactive))
		})
	}
}
