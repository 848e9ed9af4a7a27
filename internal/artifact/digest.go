package artifact

import (
	_ "crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
)

// Stats summarizes a directory tree.
type Stats struct {
	Files int
	Size  int64
}

// Digest computes a content digest of the tree at dir.
//
// Entries are visited in lexical order and each contributes its relative
// path, executable bit and content, so two trees with the same files hash
// the same regardless of timestamps or where they live.
func Digest(dir string) (digest.Digest, Stats, error) {
	var stats Stats
	digester := digest.Canonical.Digester()
	h := digester.Hash()

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.Type()&fs.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(h, "L %s\x00%s\x00", rel, link)
			stats.Files++
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		mode := "f"
		if info.Mode().Perm()&0o111 != 0 {
			mode = "x"
		}
		fmt.Fprintf(h, "%s %s\x00%d\x00", mode, rel, info.Size())

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		n, err := io.Copy(h, f)
		f.Close()
		if err != nil {
			return err
		}

		stats.Files++
		stats.Size += n
		return nil
	})
	if err != nil {
		return "", Stats{}, fmt.Errorf("failed to digest %s: %w", dir, err)
	}

	return digester.Digest(), stats, nil
}
