package xos

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteJSON marshals v with indentation and writes it atomically.
func WriteJSON(filename string, v any, perm os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(filename), err)
	}
	return WriteFile(filename, append(data, '\n'), perm)
}

// ReplaceDir promotes the fully populated staging directory to target.
//
// An existing target is first moved aside and only removed after the staging
// directory is in place, so target never points at a half-written tree. Both
// paths must be on the same filesystem.
func ReplaceDir(staging, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	var old string
	if _, err := os.Stat(target); err == nil {
		old = target + ".old"
		if err := os.RemoveAll(old); err != nil {
			return err
		}
		if err := os.Rename(target, old); err != nil {
			return fmt.Errorf("failed to move %s aside: %w", target, err)
		}
	}

	if err := os.Rename(staging, target); err != nil {
		if old != "" {
			// Put the previous tree back so consumers keep a complete copy.
			_ = os.Rename(old, target)
		}
		return fmt.Errorf("failed to promote %s: %w", staging, err)
	}

	if old != "" {
		return os.RemoveAll(old)
	}
	return nil
}

// CopyFile copies src to dst, preserving the permission bits of src.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
