package builder

import "errors"

var (
	ErrManifestMissing   = errors.New("dependency manifest missing")
	ErrDependencyInstall = errors.New("dependency install failed")
	ErrBuildCommand      = errors.New("build command failed")
	ErrMissingInput      = errors.New("upstream result missing")
)
