package artifact

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dosanma1/pipeforge/pkg/xos"
)

// DefaultExcludes are never copied into a scratch build directory.
var DefaultExcludes = []string{
	"node_modules/**",
	".git/**",
	".pipeforge/**",
	"**/__pycache__/**",
	"**/*.pyc",
}

// CopyOptions selects which files of a tree are copied.
type CopyOptions struct {
	// Include lists paths relative to the source root. Empty means the
	// whole tree.
	Include []string
	// Exclude lists doublestar globs matched against slash-separated
	// relative paths.
	Exclude []string
}

// Excluded reports whether rel (slash separated) matches any pattern. A
// "dir/**" pattern also matches dir itself.
func Excluded(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if base, found := strings.CutSuffix(p, "/**"); found {
			if ok, _ := doublestar.Match(base, rel); ok {
				return true
			}
		}
	}
	return false
}

// CopyTree copies src into dst and returns the number of files copied.
// Regular files keep their permission bits, symlinks are recreated as-is.
func CopyTree(src, dst string, opts CopyOptions) (int, error) {
	roots := opts.Include
	if len(roots) == 0 {
		roots = []string{"."}
	}

	copied := 0
	for _, root := range roots {
		n, err := copyRoot(src, dst, filepath.Clean(root), opts.Exclude)
		if err != nil {
			return copied, err
		}
		copied += n
	}
	return copied, nil
}

func copyRoot(src, dst, root string, exclude []string) (int, error) {
	start := filepath.Join(src, root)
	if _, err := os.Lstat(start); err != nil {
		return 0, fmt.Errorf("%w: input %q: %v", ErrCopy, root, err)
	}

	copied := 0
	err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		slashRel := filepath.ToSlash(rel)
		if rel != "." && Excluded(slashRel, exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)

		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			_ = os.Remove(target)
			copied++
			return os.Symlink(link, target)

		case d.Type().IsRegular():
			copied++
			return xos.CopyFile(path, target)
		}
		return nil
	})
	if err != nil {
		return copied, fmt.Errorf("%w: %s: %v", ErrCopy, root, err)
	}
	return copied, nil
}
