//go:build !windows
// +build !windows

// Package xos provides atomic file operations used when publishing build
// artifacts and their manifests.
package xos

import (
	"os"

	"github.com/google/renameio/v2"
)

// WriteFile writes data to the named file atomically using rename.
// Readers observe either the previous content or the new content, never a
// partially written file.
func WriteFile(filename string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(filename, data, perm)
}
