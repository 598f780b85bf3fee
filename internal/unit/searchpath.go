package unit

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// SearchPath is the list of tool directories consulted before the inherited
// PATH. It only grows, and only when an install stage has completed.
type SearchPath struct {
	dirs []string
	base string
}

// NewSearchPath starts an empty list over base. An empty base uses $PATH.
func NewSearchPath(base string) SearchPath {
	if base == "" {
		base = os.Getenv("PATH")
	}
	return SearchPath{base: base}
}

// With returns a copy with dir added, newest first. Known dirs are not repeated.
func (p SearchPath) With(dir string) SearchPath {
	dir = filepath.Clean(dir)
	if slices.Contains(p.dirs, dir) {
		return p
	}
	dirs := make([]string, 0, len(p.dirs)+1)
	dirs = append(dirs, dir)
	dirs = append(dirs, p.dirs...)
	return SearchPath{dirs: dirs, base: p.base}
}

// Dirs lists the added directories in lookup order.
func (p SearchPath) Dirs() []string {
	return slices.Clone(p.dirs)
}

// String renders the PATH value.
func (p SearchPath) String() string {
	parts := slices.Clone(p.dirs)
	if p.base != "" {
		parts = append(parts, p.base)
	}
	return strings.Join(parts, string(os.PathListSeparator))
}

// Env renders the PATH=... assignment for a command environment.
func (p SearchPath) Env() string {
	return "PATH=" + p.String()
}
