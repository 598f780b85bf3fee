package archive

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// copyTree copies src into dest, keeping modes and symlinks.
func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		out := filepath.Join(dest, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(out, info.Mode().Perm()|0o700)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			_ = os.Remove(out)
			return os.Symlink(link, out)
		case info.Mode().IsRegular():
			in, err := os.Open(path)
			if err != nil {
				return err
			}
			defer in.Close()
			return writeFile(out, in, info.Mode().Perm())
		default:
			return fmt.Errorf("cannot copy %s: unsupported file type", path)
		}
	})
}
