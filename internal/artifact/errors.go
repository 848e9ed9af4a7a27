package artifact

import "errors"

var (
	ErrCopy          = errors.New("copy failed")
	ErrEmptyArtifact = errors.New("artifact is empty")
	ErrNotFound      = errors.New("artifact not found")
)
