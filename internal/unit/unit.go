// Package unit derives the names and paths of one package instance.
package unit

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownArchiveKind = errors.New("unknown archive kind")
	ErrInvalidUnit        = errors.New("invalid unit")
)

// ArchiveKind is how a unit's sources are distributed.
type ArchiveKind string

const (
	TarGz  ArchiveKind = "tar.gz"
	TarBz2 ArchiveKind = "tar.bz2"
	TarXz  ArchiveKind = "tar.xz"
	TarZst ArchiveKind = "tar.zst"
	Zip    ArchiveKind = "zip"
	Dir    ArchiveKind = "dir" // a directory on the local filesystem
	Git    ArchiveKind = "git" // a version-control checkout
)

var kindAliases = map[string]ArchiveKind{
	"tar.gz":    TarGz,
	"tgz":       TarGz,
	"gz":        TarGz,
	"gzip":      TarGz,
	"tar.bz2":   TarBz2,
	"tbz2":      TarBz2,
	"bz2":       TarBz2,
	"bzip2":     TarBz2,
	"tar.xz":    TarXz,
	"txz":       TarXz,
	"xz":        TarXz,
	"tar.zst":   TarZst,
	"zst":       TarZst,
	"zstd":      TarZst,
	"zip":       Zip,
	"dir":       Dir,
	"directory": Dir,
	"git":       Git,
	"vcs":       Git,
}

// ParseArchiveKind accepts the canonical names and their common aliases.
func ParseArchiveKind(s string) (ArchiveKind, error) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownArchiveKind, s)
	}
	return k, nil
}

// UnmarshalText lets manifests use aliases.
func (k *ArchiveKind) UnmarshalText(text []byte) error {
	parsed, err := ParseArchiveKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Suffix is appended to the source dir name to form the archive name.
func (k ArchiveKind) Suffix() string {
	switch k {
	case Dir:
		return ""
	case Git:
		return ".git"
	default:
		return "." + string(k)
	}
}

// Packed reports whether the kind is a single downloadable file.
func (k ArchiveKind) Packed() bool {
	return k != Dir && k != Git
}

// Unit is one manifest entry.
type Unit struct {
	Name     string
	Version  string
	Kind     ArchiveKind
	Location string
	// Options are transport specific download options, e.g. "ref" for git
	// or "user-agent" for http.
	Options map[string]string
	// B3Sum, when set, is the expected BLAKE3 sum of the downloaded archive.
	B3Sum string
}

// ID is the canonical source directory name, name-version.
func (u Unit) ID() string {
	if u.Version == "" {
		return u.Name
	}
	return u.Name + "-" + u.Version
}

// Option returns a download option, or def when unset.
func (u Unit) Option(key, def string) string {
	if v, ok := u.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// Validate checks the fields every derivation depends on.
func (u Unit) Validate() error {
	switch {
	case u.Name == "":
		return fmt.Errorf("%w: missing name", ErrInvalidUnit)
	case strings.ContainsAny(u.ID(), `/\ `) || strings.HasPrefix(u.ID(), "."):
		return fmt.Errorf("%w: %q is not usable as a directory name", ErrInvalidUnit, u.ID())
	case u.Location == "":
		return fmt.Errorf("%w: %s has no location", ErrInvalidUnit, u.ID())
	}
	if _, err := ParseArchiveKind(string(u.Kind)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidUnit, u.ID(), err)
	}
	return nil
}
