package pipeline

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/dosanma1/pipeforge/internal/artifact"
	"github.com/dosanma1/pipeforge/internal/builder"
	"github.com/dosanma1/pipeforge/internal/graph"
	"github.com/dosanma1/pipeforge/internal/registry"
)

// Hint converts a run error to a suggestion for the user. It returns an
// empty string when there is nothing useful to add.
func Hint(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.Canceled):
		return ""
	case errors.Is(err, exec.ErrNotFound):
		return "A required tool is not installed or not on PATH. Check that docker and the frontend package manager are available."
	case strings.Contains(err.Error(), "Cannot connect to the Docker daemon"):
		return "The Docker daemon is not running. Start Docker and try again."
	case errors.Is(err, registry.ErrAuth):
		return "The registry rejected the credentials. Set PIPEFORGE_REGISTRY_USER and PIPEFORGE_REGISTRY_PASSWORD (or a .env file)."
	case errors.Is(err, registry.ErrInvalidReference):
		return "Check the repository and tags of the publish target, or the --registry and --tag flags."
	case errors.Is(err, registry.ErrPush):
		return "The push failed. Pushes are not retried; run the build again with --push once the registry is reachable."
	case errors.Is(err, builder.ErrManifestMissing):
		return "Add the missing lock file or requirements file. For frontends run the package manager once to create the lock file."
	case errors.Is(err, builder.ErrDependencyInstall):
		return "Dependency install failed. Make sure the lock file is in sync with package.json."
	case errors.Is(err, artifact.ErrEmptyArtifact):
		return "The build produced no output. Check the 'output' directory of the frontend target."
	case errors.Is(err, artifact.ErrNotFound):
		return "An artifact this stage copies has not been built. Build its producer first, for example 'pipeforge build frontend'."
	case errors.Is(err, graph.ErrCycle), errors.Is(err, graph.ErrUnknownTarget):
		return "Fix the 'depends' lists in pipeforge.yaml. 'pipeforge plan' shows the resolved order."
	case errors.Is(err, ErrNoTarget):
		return "Pass a target name or set 'default' in pipeforge.yaml."
	}
	return ""
}
