// Package archive builds the extract stage: the archive cached by the fetch
// stage becomes the unit's source tree.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"

	"tcforge/internal/runner"
	"tcforge/internal/unit"
)

// ErrUnknownArchive is returned for archive kinds no extractor handles.
var ErrUnknownArchive = errors.New("unknown archive kind")

// Command returns the extract stage command for c. The source directory is
// always recreated from scratch so an interrupted extraction is redone cleanly.
func Command(c unit.Context, path unit.SearchPath) (runner.Runnable, error) {
	src, dest := c.ArchivePath(), c.SourceDir()

	var extract runner.Runnable
	switch kind := c.Unit.Kind; kind {
	case unit.TarGz, unit.TarBz2, unit.TarXz, unit.TarZst:
		strip, err := shouldStripTar(src, kind)
		if err != nil {
			// not fetched yet; release tarballs carry a top-level dir
			strip = true
		}
		system, err := systemTar(src, dest, strip, path)
		if err != nil {
			return nil, err
		}
		extract = runner.AnyOf{system, runner.Native{
			Line: fmt.Sprintf("extract-%s %s %s", kind, src, dest),
			Fn: func(context.Context, string, io.Writer, io.Writer) error {
				return extractTar(src, kind, dest, strip)
			},
		}}
	case unit.Zip:
		extract = runner.Native{
			Line: fmt.Sprintf("unzip %s %s", src, dest),
			Fn: func(context.Context, string, io.Writer, io.Writer) error {
				return extractZip(src, dest)
			},
		}
	case unit.Dir:
		from := c.Unit.Location
		extract = runner.Native{
			Line: fmt.Sprintf("cp -a %s/. %s", from, dest),
			Fn: func(context.Context, string, io.Writer, io.Writer) error {
				return copyTree(from, dest)
			},
		}
	case unit.Git:
		b := runner.New("git").Env("PATH", path.String()).Arg("clone")
		if ref := c.Unit.Option("ref", ""); ref != "" {
			b.Arg("--branch", ref)
		}
		clone, err := b.Arg(src, dest).Build()
		if err != nil {
			return nil, err
		}
		// git clone creates dest itself
		return runner.AllOf{runner.RemoveAll(dest), clone}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownArchive, kind)
	}

	return runner.AllOf{runner.RemoveAll(dest), runner.MkdirAll(dest), extract}, nil
}

func systemTar(src, dest string, strip bool, path unit.SearchPath) (runner.Command, error) {
	b := runner.New("tar").Env("PATH", path.String()).Arg("-xf", src, "-C", dest)
	if strip {
		b.Flag("strip-components", "1")
	}
	return b.Build()
}
