// Package ledger records which (unit, stage) pairs have completed.
//
// The ledger has no index: a stage is done if and only if its zero-byte
// completion marker exists in the status directory. Markers are written with
// a temp file + rename + directory fsync so a crash never leaves one half
// committed.
package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidKey is returned for keys that cannot be mapped to a file name.
var ErrInvalidKey = errors.New("invalid ledger key")

// Key identifies one stage of one unit, e.g. {gcc-13.2.0, configure.1}.
type Key struct {
	Unit  string
	Stage string
}

func (k Key) String() string {
	return k.Unit + "." + k.Stage
}

// Validate rejects empty parts and anything that would escape the status directory.
func (k Key) Validate() error {
	for _, part := range []string{k.Unit, k.Stage} {
		if strings.TrimSpace(part) == "" || strings.ContainsAny(part, `/\`) || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, k.String())
		}
	}
	return nil
}

// Artifacts are the four files every stage execution owns.
type Artifacts struct {
	Command string // the exact command line issued
	Stdout  string
	Stderr  string
	Marker  string // zero-byte completion marker
}

// Ledger is the durable completion record consulted before every stage.
type Ledger interface {
	IsDone(key Key) bool
	MarkDone(key Key) error
}

// FileLedger keeps artifacts and markers in a single status directory.
type FileLedger struct {
	dir string
}

var _ Ledger = (*FileLedger)(nil)

// NewFileLedger returns a ledger rooted at dir. The directory is created lazily.
func NewFileLedger(dir string) *FileLedger {
	return &FileLedger{dir: dir}
}

// Dir returns the status directory.
func (l *FileLedger) Dir() string {
	return l.dir
}

// Artifacts returns the artifact paths for key.
func (l *FileLedger) Artifacts(key Key) Artifacts {
	base := filepath.Join(l.dir, key.String())
	return Artifacts{
		Command: base + ".cmd",
		Stdout:  base + ".out",
		Stderr:  base + ".err",
		Marker:  base + ".done",
	}
}

// IsDone reports whether the completion marker for key exists.
func (l *FileLedger) IsDone(key Key) bool {
	if key.Validate() != nil {
		return false
	}
	info, err := os.Stat(l.Artifacts(key).Marker)
	return err == nil && info.Mode().IsRegular()
}

// MarkDone atomically creates the completion marker for key.
func (l *FileLedger) MarkDone(key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create status dir %s: %w", l.dir, err)
	}
	marker := l.Artifacts(key).Marker

	tmp, err := os.CreateTemp(l.dir, filepath.Base(marker)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create marker for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, marker); err != nil {
		return fmt.Errorf("failed to commit marker for %s: %w", key, err)
	}
	committed = true
	return fsyncDir(l.dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
