// Package paths resolves and confines mindgraph storage paths.
//
// The graph document is the single source of truth for a project, so every
// path the store writes to must resolve inside the project root (or an
// explicitly allowed temp directory). Escaping paths are rejected.
package paths

import (
	"os"
	"path/filepath"
	"strings"

	mgerrors "mindgraph/internal/errors"
)

// StoreDirName is the per-project state directory.
const StoreDirName = ".mindgraph"

// Canonicalize converts an absolute path to a root-relative canonical path
// with forward slashes. Symlinks are resolved when the path exists.
func Canonicalize(absolutePath string, root string) (string, error) {
	resolved, err := filepath.EvalSymlinks(absolutePath)
	if err != nil {
		if os.IsNotExist(err) {
			resolved = absolutePath
		} else {
			return "", err
		}
	}

	rootResolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		if os.IsNotExist(err) {
			rootResolved = root
		} else {
			return "", err
		}
	}

	rel, err := filepath.Rel(rootResolved, resolved)
	if err != nil {
		return "", err
	}

	return filepath.ToSlash(rel), nil
}

// IsWithinRoot checks if a path is within the project root.
func IsWithinRoot(path string, root string) bool {
	canonical, err := Canonicalize(path, root)
	if err != nil {
		return false
	}
	return canonical != ".." && !strings.HasPrefix(canonical, "../")
}

// ResolveStorePath resolves the location of a store file. When storagePath
// is empty the default `<root>/.mindgraph/<name>` is used. A non-empty
// storagePath must land inside the project root or inside the OS temp
// directory; anything else is a StorePathEscape error.
func ResolveStorePath(root, storagePath, name string) (string, error) {
	if storagePath == "" {
		return filepath.Join(root, StoreDirName, name), nil
	}

	abs := storagePath
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, storagePath)
	}
	abs = filepath.Clean(abs)

	if IsWithinRoot(abs, root) || IsWithinRoot(abs, os.TempDir()) {
		return abs, nil
	}

	return "", mgerrors.Newf(mgerrors.StorePathEscape,
		"storage path %q resolves outside project root %q", storagePath, root)
}

// EnsureStoreDir creates the state directory under root if needed and
// returns its path.
func EnsureStoreDir(root string) (string, error) {
	dir := filepath.Join(root, StoreDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// NormalizePath converts backslashes to forward slashes for stored node paths.
func NormalizePath(path string) string {
	return filepath.ToSlash(path)
}
