package bridge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrOutsideRoot = errors.New("path is outside the transfer area")

// Contain resolves path against root (relative paths are taken relative to
// root) with symlinks followed, and fails unless the result stays inside
// root. Missing trailing components are allowed so upload targets can be
// checked before they exist.
func Contain(root, path string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: no root configured", ErrOutsideRoot)
	}
	base, err := resolve(root)
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	target, err := resolve(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", filepath.Base(path), err)
	}

	rel, err := filepath.Rel(base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return target, nil
}

// resolve makes p absolute and follows symlinks in its longest existing
// prefix.
func resolve(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	var rest []string
	cur := abs
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}
