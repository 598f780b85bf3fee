// Package workspace describes the on-disk areas a build run works in.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout is the filesystem partition of one workspace.
type Layout struct {
	Root     string
	Archives string // downloaded archives, one per unit
	Sources  string // extracted trees, one per unit
	Build    string // one tree per (unit, pass)
	Install  string // shared install prefix
	Status   string // stage artifacts and completion markers
}

// NewLayout derives the standard layout under root. An empty install selects <root>/install.
func NewLayout(root, install string) Layout {
	if install == "" {
		install = filepath.Join(root, "install")
	}
	return Layout{
		Root:     root,
		Archives: filepath.Join(root, "archives"),
		Sources:  filepath.Join(root, "sources"),
		Build:    filepath.Join(root, "build"),
		Install:  install,
		Status:   filepath.Join(root, "status"),
	}
}

// InstallBin is the directory later units find earlier units' executables in.
func (l Layout) InstallBin() string {
	return filepath.Join(l.Install, "bin")
}

// Ensure creates every area.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.Archives, l.Sources, l.Build, l.Install, l.Status} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
	}
	return nil
}
