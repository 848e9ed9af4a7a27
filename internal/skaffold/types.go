// Package skaffold exports image targets as Skaffold configurations so they
// can be iterated on with skaffold dev.
package skaffold

// ConfigFileName is the Skaffold configuration written to the workspace root.
const ConfigFileName = "skaffold.yaml"

// ExportOptions contains options for exporting an image target.
type ExportOptions struct {
	// Target is the image target to export
	Target string

	// OutputDir receives skaffold.yaml. Defaults to the workspace root.
	OutputDir string
}

// ExportResult describes the files written by an export.
type ExportResult struct {
	// ConfigPath is the written skaffold.yaml
	ConfigPath string

	// ContextDir is the assembled docker build context
	ContextDir string

	// Dockerfile is the rendered Dockerfile inside ContextDir
	Dockerfile string

	// Image is the image name used by the artifact
	Image string

	// Profiles lists the generated profile names, one per publish target
	Profiles []string
}
