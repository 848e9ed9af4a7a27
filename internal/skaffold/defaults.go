package skaffold

import (
	"github.com/GoogleContainerTools/skaffold/v2/pkg/skaffold/schema/latest"
)

// GetDefaultConfig returns the base Skaffold configuration for an exported
// pipeline. Images are built locally and never pushed unless a profile
// enables it.
func GetDefaultConfig(name string) *latest.SkaffoldConfig {
	return &latest.SkaffoldConfig{
		APIVersion: latest.Version,
		Kind:       "Config",
		Metadata: latest.Metadata{
			Name: name,
		},
		Pipeline: latest.Pipeline{
			Build: latest.BuildConfig{
				TagPolicy: latest.TagPolicy{
					ShaTagger: &latest.ShaTagger{},
				},
				BuildType: latest.BuildType{
					LocalBuild: &latest.LocalBuild{
						Push: boolPtr(false),
					},
				},
			},
		},
	}
}

func boolPtr(b bool) *bool {
	return &b
}
