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
	"github.com/dosanma1/pipeforge/internal/executil"
)

func TestRenderDockerfile(t *testing.T) {
	got, err := RenderDockerfile(DockerfileSpec{
		Target:       "base-image",
		From:         "python:3.11-slim",
		Workdir:      "/app",
		Env:          map[string]string{"PORT": "3000", "APP_ENV": "prod"},
		Args:         []string{"VERSION"},
		Requirements: "requirements.txt",
		Install:      DefaultInstall("requirements.txt"),
		Copies: []DockerfileCopy{
			{Src: "copy/0/", Dest: "frontend/build/"},
			{Src: "copy/1/", Dest: "./"},
		},
		Expose: []int{3000},
		Cmd:    []string{"python3", "main.py"},
		Labels: map[string]string{"org.opencontainers.image.title": "incident-bot"},
	})
	require.NoError(t, err)

	want := `# Generated by pipeforge for target base-image. Do not edit.
FROM python:3.11-slim
ARG VERSION

WORKDIR /app
ENV APP_ENV="prod"
ENV PORT="3000"

COPY ["requirements.txt","./requirements.txt"]
RUN pip install --no-cache-dir -r requirements.txt
COPY ["copy/0/","frontend/build/"]
COPY ["copy/1/","./"]
EXPOSE 3000
LABEL "org.opencontainers.image.title"="incident-bot"

CMD ["python3","main.py"]
`
	assert.Equal(t, want, string(got))
}

func TestRenderDockerfileMinimal(t *testing.T) {
	got, err := RenderDockerfile(DockerfileSpec{
		Target:       "api",
		From:         "python:3.12",
		Workdir:      "/srv",
		Requirements: "requirements.txt",
		Install:      "pip install -r requirements.txt",
		Cmd:          []string{"gunicorn", "app:app"},
	})
	require.NoError(t, err)

	want := `# Generated by pipeforge for target api. Do not edit.
FROM python:3.12

WORKDIR /srv

COPY ["requirements.txt","./requirements.txt"]
RUN pip install -r requirements.txt

CMD ["gunicorn","app:app"]
`
	assert.Equal(t, want, string(got))
}

func TestRenderDockerfileKeepsValuesLiteral(t *testing.T) {
	got, err := RenderDockerfile(DockerfileSpec{
		Target:       "api",
		From:         "python:3.12",
		Workdir:      "/app",
		Env:          map[string]string{"GREETING": `say "hi" to $HOME\n`},
		Requirements: "requirements.txt",
		Install:      "pip install -r requirements.txt",
		Copies:       []DockerfileCopy{{Src: "copy/0/", Dest: "static files/"}},
		Cmd:          []string{"python3", "main.py"},
		Labels:       map[string]string{"org.example.cost": "$5 & up"},
	})
	require.NoError(t, err)

	out := string(got)
	assert.Contains(t, out, `ENV GREETING="say \"hi\" to \$HOME\\n"` + "\n")
	assert.Contains(t, out, `COPY ["copy/0/","static files/"]` + "\n")
	assert.Contains(t, out, `LABEL "org.example.cost"="\$5 & up"` + "\n")
}

func publishFrontend(t *testing.T, w *workspace) {
	t.Helper()
	out := t.TempDir()
	writeFiles(t, out, map[string]string{"index.html": "<html/>"})
	_, err := w.store.Publish("frontend", out)
	require.NoError(t, err)
}

func TestImageBuild(t *testing.T) {
	w := newWorkspace(t)
	publishFrontend(t, w)
	w.runner.On("docker image inspect", func(*executil.Cmd) ([]byte, error) {
		return []byte("sha256:4f53cda18c2baa0c0354bb5f9a3ecbe5ed12ab4d8e11ba873c2f11161202b945\n"), nil
	})

	opts := w.options(t, "base-image")
	opts.Target.Platform = "linux/amd64"
	opts.Target.BuildArgs = map[string]string{"VERSION": "1.0", "PIP_TOKEN": "t0ken"}

	a, err := NewImageBuilder().Build(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, ArtifactTypeImage, a.Type)
	assert.Equal(t, "pipeforge.local/incident-bot/base-image:build", a.Tag)
	assert.Equal(t, "sha256:4f53cda18c2baa0c0354bb5f9a3ecbe5ed12ab4d8e11ba873c2f11161202b945", a.ImageID)
	assert.Equal(t, a.ImageID, a.Digest.String())

	ctxDir := a.Path
	assert.FileExists(t, filepath.Join(ctxDir, "requirements.txt"))
	assert.FileExists(t, filepath.Join(ctxDir, "copy", "0", "index.html"))
	assert.FileExists(t, filepath.Join(ctxDir, "copy", "1", "main.py"))
	assert.NoDirExists(t, filepath.Join(ctxDir, "copy", "1", "__pycache__"), "default excludes apply to host sources")

	dockerfile, err := os.ReadFile(filepath.Join(ctxDir, DockerfileName))
	require.NoError(t, err)
	assert.Contains(t, string(dockerfile), `COPY ["copy/0/","frontend/build/"]` + "\n")
	assert.Contains(t, string(dockerfile), "ARG PIP_TOKEN\nARG VERSION\n")
	assert.Contains(t, string(dockerfile), "EXPOSE 3000\n")

	build := w.runner.Calls[0]
	assert.Equal(t, []string{
		"build", "-f", filepath.Join(ctxDir, DockerfileName),
		"-t", "pipeforge.local/incident-bot/base-image:build",
		"--platform", "linux/amd64",
		"--build-arg", "PIP_TOKEN=t0ken",
		"--build-arg", "VERSION=1.0",
		ctxDir,
	}, build.Args)
	assert.NotContains(t, build.String(), "t0ken")
}

func TestImageBuildRequiresManifest(t *testing.T) {
	w := newWorkspace(t)
	publishFrontend(t, w)
	require.NoError(t, os.Remove(filepath.Join(w.root, "requirements.txt")))

	_, err := NewImageBuilder().Build(context.Background(), w.options(t, "base-image"))
	assert.ErrorIs(t, err, ErrManifestMissing)
	assert.Empty(t, w.runner.Lines(), "no image may be produced")
}

func TestImageBuildRequiresArtifact(t *testing.T) {
	w := newWorkspace(t)

	_, err := NewImageBuilder().Build(context.Background(), w.options(t, "base-image"))
	assert.ErrorIs(t, err, artifact.ErrNotFound)
	assert.Empty(t, w.runner.Lines())
}

func TestImageBuildDryRunWithoutArtifact(t *testing.T) {
	w := newWorkspace(t)
	opts := w.options(t, "base-image")
	opts.DryRun = true

	a, err := NewImageBuilder().Build(context.Background(), opts)
	require.NoError(t, err)
	assert.Empty(t, a.ImageID)
	assert.Len(t, w.runner.Lines(), 2)
}

func TestImageBuildFails(t *testing.T) {
	w := newWorkspace(t)
	publishFrontend(t, w)
	w.runner.On("docker build", func(*executil.Cmd) ([]byte, error) { return nil, errors.New("exit status 1") })

	_, err := NewImageBuilder().Build(context.Background(), w.options(t, "base-image"))
	assert.ErrorIs(t, err, ErrBuildCommand)
	assert.Equal(t, 1, len(w.runner.Lines()), "inspect must not run after a failed build")
}

func TestImageCopyFile(t *testing.T) {
	w := newWorkspace(t)
	opts := w.options(t, "base-image")
	opts.Target.Copy = append(opts.Target.Copy[1:], opts.Target.Copy[0])
	opts.Target.Copy[0].Src = "backend/main.py"
	opts.Target.Copy[0].Dest = "main.py"
	publishFrontend(t, w)

	ic, err := NewImageBuilder().Assemble(opts, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DockerfileCopy{Src: "copy/0/main.py", Dest: "main.py"}, ic.Spec.Copies[0])
	assert.Equal(t, DockerfileCopy{Src: "copy/1/", Dest: "frontend/build/"}, ic.Spec.Copies[1])
}
