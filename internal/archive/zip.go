package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// extractZip unpacks a zip archive into dest, dropping a shared top-level
// directory the same way the tar path does.
func extractZip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	dest, err = filepath.Abs(dest)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	strip := commonTopDir(names)

	for _, f := range r.File {
		name := f.Name
		if strip {
			name = stripFirst(name)
		}
		if name == "" {
			continue
		}
		fpath, err := target(dest, name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(fpath), 0o755); err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s in %s: %w", f.Name, src, err)
		}
		err = writeFile(fpath, rc, f.Mode().Perm())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
