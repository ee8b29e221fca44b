package domain

import (
	"path/filepath"
	"strings"
)

// Paths holds the filesystem roots used to resolve request paths.
type Paths struct {
	Home       string // Home directory of the execution environment
	Prefix     string // Installation prefix ($PREFIX)
	ScriptsDir string // Sandbox directory holding host-callable scripts
}

// DefaultScriptsDir returns the sandbox directory under home.
func DefaultScriptsDir(home string) string {
	return filepath.Join(home, ".termux", "tasker")
}

// Expand replaces a leading $PREFIX or ~ with the configured directory.
func (p Paths) Expand(path string) string {
	switch {
	case path == "$PREFIX":
		return p.Prefix
	case strings.HasPrefix(path, "$PREFIX/"):
		return filepath.Join(p.Prefix, path[len("$PREFIX/"):])
	case path == "~":
		return p.Home
	case strings.HasPrefix(path, "~/"):
		return filepath.Join(p.Home, path[2:])
	default:
		return path
	}
}

// ResolveExecutable turns a bundle executable into a canonical absolute path.
// Relative paths are taken relative to the scripts directory.
func (p Paths) ResolveExecutable(path string) string {
	return p.resolve(path, p.ScriptsDir)
}

// ResolveWorkingDirectory turns a bundle working directory into a canonical
// absolute path. Relative paths are taken relative to home; empty stays empty.
func (p Paths) ResolveWorkingDirectory(path string) string {
	if path == "" {
		return ""
	}
	return p.resolve(path, p.Home)
}

func (p Paths) resolve(path, base string) string {
	path = p.Expand(path)
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	return CanonicalPath(path)
}

// InScriptsDir reports whether path lies strictly under the scripts directory.
func (p Paths) InScriptsDir(path string) bool {
	return IsPathInDir(path, p.ScriptsDir, true)
}

// InHome reports whether path is home or lies under it.
func (p Paths) InHome(path string) bool {
	return IsPathInDir(path, p.Home, false)
}

// CanonicalPath returns a cleaned absolute path with symlinks resolved
// as far as the path exists.
func CanonicalPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	path = filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	// Resolve the deepest existing parent so paths that do not exist yet
	// still compare equal to their canonical siblings.
	dir, base := filepath.Split(path)
	if dir == "" || dir == path {
		return path
	}
	parent := filepath.Clean(dir)
	if parent == path {
		return path
	}
	return filepath.Join(CanonicalPath(parent), base)
}

// IsPathInDir reports whether path is inside dir. With ensureUnder the path
// must be strictly below dir; otherwise dir itself also matches.
func IsPathInDir(path, dir string, ensureUnder bool) bool {
	if path == "" || dir == "" {
		return false
	}
	path = CanonicalPath(path)
	dir = CanonicalPath(dir)
	if path == dir {
		return !ensureUnder
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
