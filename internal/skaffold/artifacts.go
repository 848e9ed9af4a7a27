package skaffold

import (
	"sort"

	"github.com/GoogleContainerTools/skaffold/v2/pkg/skaffold/schema/latest"

	"github.com/dosanma1/pipeforge/internal/builder"
	"github.com/dosanma1/pipeforge/internal/config"
)

// CreateDockerArtifact creates a Skaffold docker artifact building the
// assembled context at workspace with the rendered Dockerfile.
func CreateDockerArtifact(t *config.Target, imageName, workspace string) *latest.Artifact {
	artifact := &latest.Artifact{
		ImageName: imageName,
		Workspace: workspace,
		ArtifactType: latest.ArtifactType{
			DockerArtifact: &latest.DockerArtifact{
				DockerfilePath: builder.DockerfileName,
				BuildArgs:      buildArgs(t.BuildArgs),
				PullParent:     t.Pull,
				NoCache:        t.NoCache,
			},
		},
	}

	if t.Platform != "" {
		artifact.Platforms = []string{t.Platform}
	}

	return artifact
}

// buildArgs converts build args to Skaffold's pointer map. Secret-looking
// values are left to the environment so they never land in skaffold.yaml.
func buildArgs(args map[string]string) map[string]*string {
	if len(args) == 0 {
		return nil
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]*string, len(args))
	for _, k := range keys {
		v := args[k]
		if isSecret(k) {
			v = "{{ ." + k + " }}"
		}
		out[k] = &v
	}
	return out
}
