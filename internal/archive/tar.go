package archive

import (
	"archive/tar"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
	"golang.org/x/sys/unix"

	"tcforge/internal/unit"
)

// stripProbeEntries bounds how much of an archive the strip check reads.
const stripProbeEntries = 51

// openTar returns a tar reader for the archive at path. The returned closer
// releases both the decompressor and the file.
func openTar(path string, kind unit.ArchiveKind) (*tar.Reader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	closers := multiCloser{f}

	var r io.Reader = f
	switch kind {
	case unit.TarGz:
		gz, err := pgzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("failed to create gzip reader for %s: %w", path, err)
		}
		closers = append(multiCloser{gz}, closers...)
		r = gz
	case unit.TarBz2:
		r = bzip2.NewReader(f)
	case unit.TarXz:
		xr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("failed to create xz reader for %s: %w", path, err)
		}
		r = xr
	case unit.TarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("failed to create zstd reader for %s: %w", path, err)
		}
		closers = append(multiCloser{closeFunc(zr.Close)}, closers...)
		r = zr
	default:
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownArchive, kind)
	}
	return tar.NewReader(r), closers, nil
}

// shouldStripTar reports whether the first entries of the archive all sit
// under one top-level directory.
func shouldStripTar(path string, kind unit.ArchiveKind) (bool, error) {
	tr, closer, err := openTar(path, kind)
	if err != nil {
		return false, err
	}
	defer closer.Close()

	var names []string
	for len(names) < stripProbeEntries {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return false, fmt.Errorf("error reading tar header in %s: %w", path, err)
		}
		if hdr.Typeflag == tar.TypeXHeader || hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		names = append(names, hdr.Name)
	}
	return commonTopDir(names), nil
}

// commonTopDir reports whether every name shares one leading path component
// and at least one of them lives below it.
func commonTopDir(names []string) bool {
	if len(names) == 0 {
		return false
	}
	var top string
	nested := false
	for _, name := range names {
		name = strings.TrimPrefix(name, "./")
		head, rest, found := strings.Cut(name, "/")
		if top == "" {
			top = head
		}
		if head != top {
			return false
		}
		if found && rest != "" {
			nested = true
		}
	}
	return nested
}

// stripFirst drops the leading path component.
func stripFirst(name string) string {
	name = strings.TrimPrefix(name, "./")
	_, rest, _ := strings.Cut(name, "/")
	return rest
}

// target joins name onto dest and refuses names that escape it, either
// lexically or through a symlink extracted earlier.
func target(dest, name string) (string, error) {
	p := filepath.Join(dest, name)
	if !inside(dest, p) {
		return "", fmt.Errorf("illegal file path in archive: %s", name)
	}
	rel, err := filepath.Rel(dest, filepath.Dir(p))
	if err != nil || rel == "." {
		return p, err
	}
	cur := dest
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		cur = filepath.Join(cur, part)
		fi, err := os.Lstat(cur)
		if err != nil {
			break // not created yet
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("illegal file path in archive: %s goes through symlink %s", name, cur)
		}
	}
	return p, nil
}

func inside(dest, p string) bool {
	return p == dest || strings.HasPrefix(p, dest+string(os.PathSeparator))
}

// checkLink refuses symlinks that are absolute or point outside dest.
func checkLink(dest, linkPath, linkname string) error {
	if filepath.IsAbs(linkname) || !inside(dest, filepath.Join(filepath.Dir(linkPath), linkname)) {
		return fmt.Errorf("illegal symlink in archive: %s -> %s", linkPath, linkname)
	}
	return nil
}

// extractTar unpacks the archive into dest, handling PAX headers and
// preserving timestamps. With strip set the top-level directory is dropped.
func extractTar(path string, kind unit.ArchiveKind, dest string, strip bool) error {
	dest, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	tr, closer, err := openTar(path, kind)
	if err != nil {
		return err
	}
	defer closer.Close()

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading tar header in %s: %w", path, err)
		}
		if hdr.Typeflag == tar.TypeXHeader || hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		name := hdr.Name
		if strip {
			name = stripFirst(name)
		}
		if name == "" {
			continue
		}
		targetPath, err := target(dest, name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return fmt.Errorf("failed to create parent dir for %s: %w", targetPath, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, os.FileMode(hdr.Mode)|0o700); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", targetPath, err)
			}
		case tar.TypeReg:
			if err := writeFile(targetPath, tr, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
			if err := os.Chtimes(targetPath, hdr.AccessTime, hdr.ModTime); err != nil {
				return fmt.Errorf("failed to set times for file %s: %w", targetPath, err)
			}
		case tar.TypeSymlink:
			if err := checkLink(dest, targetPath, hdr.Linkname); err != nil {
				return err
			}
			_ = os.Remove(targetPath)
			if err := os.Symlink(hdr.Linkname, targetPath); err != nil {
				return fmt.Errorf("failed to create symlink %s -> %s: %w", targetPath, hdr.Linkname, err)
			}
			tv := unix.NsecToTimeval(hdr.ModTime.UnixNano())
			_ = unix.Lutimes(targetPath, []unix.Timeval{tv, tv})
		case tar.TypeLink:
			linkName := hdr.Linkname
			if strip {
				linkName = stripFirst(linkName)
			}
			oldPath, err := target(dest, linkName)
			if err != nil {
				return err
			}
			_ = os.Remove(targetPath)
			if err := os.Link(oldPath, targetPath); err != nil {
				return fmt.Errorf("failed to create hard link %s: %w", targetPath, err)
			}
		}
	}
	return nil
}

func writeFile(path string, r io.Reader, mode os.FileMode) error {
	// replace a symlink instead of writing through it
	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to replace symlink %s: %w", path, err)
		}
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	return out.Close()
}

type closeFunc func()

func (f closeFunc) Close() error {
	f()
	return nil
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
