//go:build windows
// +build windows

// Package xos provides atomic file operations used when publishing build
// artifacts and their manifests.
// On Windows the target is removed before the rename, so the replacement is
// not atomic with respect to concurrent readers.
package xos

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// WriteFile writes data to a temp file in the target directory and renames
// it over filename.
func WriteFile(filename string, data []byte, perm os.FileMode) error {
	return writeReader(filename, bytes.NewReader(data), perm)
}

// writeReader streams r into a temp file and renames it over filename.
func writeReader(filename string, r io.Reader, perm os.FileMode) error {
	tempFile, err := os.CreateTemp(filepath.Dir(filename), ".tmp-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tempName)
		}
	}()

	if _, err := io.Copy(tempFile, r); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tempName, perm); err != nil {
		return err
	}

	if _, err := os.Stat(filename); err == nil {
		if err := os.Remove(filename); err != nil {
			return err
		}
	}

	if err := os.Rename(tempName, filename); err != nil {
		return err
	}

	success = true
	return nil
}
