package skaffold

import (
	"fmt"

	"github.com/GoogleContainerTools/skaffold/v2/pkg/skaffold/schema/latest"

	"github.com/dosanma1/pipeforge/internal/config"
	"github.com/dosanma1/pipeforge/internal/executil"
)

// GenerateConfig creates a Skaffold configuration for one image target.
//
// The base pipeline builds the image under imageName from the assembled
// context and runs it with the docker deployer. Every publish target of the
// image gets a profile that builds under the publish repository and pushes.
func GenerateConfig(p *config.Pipeline, t *config.Target, imageName, contextDir string) (*latest.SkaffoldConfig, error) {
	if t == nil {
		return nil, fmt.Errorf("target cannot be nil")
	}
	if t.Kind != config.KindImage {
		return nil, fmt.Errorf("target %q has kind %q, only image targets can be exported", t.Name, t.Kind)
	}

	cfg := GetDefaultConfig(p.Name + "-" + t.Name)
	cfg.Pipeline.Build.Artifacts = []*latest.Artifact{
		CreateDockerArtifact(t, imageName, contextDir),
	}
	cfg.Pipeline.Deploy = latest.DeployConfig{
		DeployType: latest.DeployType{
			DockerDeploy: &latest.DockerDeploy{
				Images: []string{imageName},
			},
		},
	}

	cfg.Profiles = GenerateProfiles(p, t, contextDir)
	return cfg, nil
}

// GenerateProfiles returns one pushing profile per publish target of t,
// named after the publish target.
func GenerateProfiles(p *config.Pipeline, t *config.Target, contextDir string) []latest.Profile {
	var profiles []latest.Profile
	for _, name := range p.TargetNames() {
		pub := p.Targets[name]
		if pub.Kind != config.KindPublish || pub.Image != t.Name || pub.Repository == "" {
			continue
		}

		profiles = append(profiles, latest.Profile{
			Name: name,
			Pipeline: latest.Pipeline{
				Build: latest.BuildConfig{
					Artifacts: []*latest.Artifact{
						CreateDockerArtifact(t, pub.Repository, contextDir),
					},
					TagPolicy: latest.TagPolicy{
						ShaTagger: &latest.ShaTagger{},
					},
					BuildType: latest.BuildType{
						LocalBuild: &latest.LocalBuild{
							Push: boolPtr(true),
						},
					},
				},
			},
		})
	}
	return profiles
}

func isSecret(key string) bool {
	return executil.IsSecretKey(key)
}
