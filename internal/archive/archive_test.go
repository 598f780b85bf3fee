package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"tcforge/internal/runner"
	"tcforge/internal/unit"
	"tcforge/internal/workspace"
)

type entry struct {
	name string
	body string
	link string
}

func tarBytes(t *testing.T, entries []entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, ModTime: time.Unix(1700000000, 0)}
		switch {
		case e.link != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.link
		case e.name[len(e.name)-1] == '/':
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := io.WriteString(tw, e.body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func compress(t *testing.T, kind unit.ArchiveKind, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch kind {
	case unit.TarGz:
		w = gzip.NewWriter(&buf)
	case unit.TarXz:
		w, err = xz.NewWriter(&buf)
	case unit.TarZst:
		w, err = zstd.NewWriter(&buf)
	default:
		t.Fatalf("no writer for %s", kind)
	}
	require.NoError(t, err)
	_, err = w.Write(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

var sourceTree = []entry{
	{name: "foo-1.0/"},
	{name: "foo-1.0/configure", body: "#!/bin/sh\n"},
	{name: "foo-1.0/src/"},
	{name: "foo-1.0/src/main.c", body: "int main(void) { return 0; }\n"},
	{name: "foo-1.0/README", link: "src/main.c"},
}

func TestExtractTarKinds(t *testing.T) {
	for _, kind := range []unit.ArchiveKind{unit.TarGz, unit.TarXz, unit.TarZst} {
		t.Run(string(kind), func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "foo-1.0."+string(kind))
			require.NoError(t, os.WriteFile(path, compress(t, kind, tarBytes(t, sourceTree)), 0o644))

			strip, err := shouldStripTar(path, kind)
			require.NoError(t, err)
			assert.True(t, strip)

			dest := filepath.Join(dir, "out")
			require.NoError(t, extractTar(path, kind, dest, strip))

			data, err := os.ReadFile(filepath.Join(dest, "src", "main.c"))
			require.NoError(t, err)
			assert.Equal(t, "int main(void) { return 0; }\n", string(data))
			link, err := os.Readlink(filepath.Join(dest, "README"))
			require.NoError(t, err)
			assert.Equal(t, "src/main.c", link)
			_, err = os.Stat(filepath.Join(dest, "foo-1.0"))
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestExtractTarWithoutTopDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flat.tar.gz")
	raw := tarBytes(t, []entry{{name: "a.txt", body: "a"}, {name: "b/c.txt", body: "c"}})
	require.NoError(t, os.WriteFile(path, compress(t, unit.TarGz, raw), 0o644))

	strip, err := shouldStripTar(path, unit.TarGz)
	require.NoError(t, err)
	assert.False(t, strip)

	dest := filepath.Join(dir, "out")
	require.NoError(t, extractTar(path, unit.TarGz, dest, strip))
	assert.FileExists(t, filepath.Join(dest, "a.txt"))
	assert.FileExists(t, filepath.Join(dest, "b", "c.txt"))
}

func TestExtractTarRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evil.tar.gz")
	raw := tarBytes(t, []entry{{name: "../../etc/evil", body: "x"}})
	require.NoError(t, os.WriteFile(path, compress(t, unit.TarGz, raw), 0o644))

	err := extractTar(path, unit.TarGz, filepath.Join(dir, "out"), false)
	assert.ErrorContains(t, err, "illegal file path")
}

func TestExtractTarRejectsSymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(dir, "outside")
	require.NoError(t, os.Mkdir(outside, 0o755))

	cases := map[string][]entry{
		"absolute link": {
			{name: "pkg-1.0/evil", link: outside},
			{name: "pkg-1.0/evil/escaped.txt", body: "x"},
		},
		"relative link": {
			{name: "pkg-1.0/evil", link: "../outside"},
			{name: "pkg-1.0/evil/escaped.txt", body: "x"},
		},
	}
	for name, entries := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "pkg-1.0.tar.gz")
			require.NoError(t, os.WriteFile(path, compress(t, unit.TarGz, tarBytes(t, entries)), 0o644))

			err := extractTar(path, unit.TarGz, filepath.Join(dir, "out"), true)
			assert.ErrorContains(t, err, "illegal symlink")
			assert.NoFileExists(t, filepath.Join(outside, "escaped.txt"))
		})
	}
}

func TestTargetRefusesPathsThroughSymlinks(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dest, "real"), 0o755))
	require.NoError(t, os.Symlink("real", filepath.Join(dest, "alias")))

	p, err := target(dest, "real/file")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "real", "file"), p)

	_, err = target(dest, "alias/file")
	assert.ErrorContains(t, err, "goes through symlink")

	// the link itself may be replaced
	_, err = target(dest, "alias")
	assert.NoError(t, err)
}

func TestWriteFileReplacesSymlink(t *testing.T) {
	dir := t.TempDir()
	victim := filepath.Join(dir, "victim")
	require.NoError(t, os.WriteFile(victim, []byte("keep"), 0o644))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(victim, link))

	require.NoError(t, writeFile(link, strings.NewReader("new"), 0o644))

	data, err := os.ReadFile(victim)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
	fi, err := os.Lstat(link)
	require.NoError(t, err)
	assert.True(t, fi.Mode().IsRegular())
}

func TestCommonTopDir(t *testing.T) {
	assert.True(t, commonTopDir([]string{"gcc-13.2.0/", "gcc-13.2.0/configure"}))
	assert.True(t, commonTopDir([]string{"./x/", "./x/y"}))
	assert.False(t, commonTopDir([]string{"x/a", "y/b"}))
	assert.False(t, commonTopDir([]string{"single-file"}))
	assert.False(t, commonTopDir(nil))
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "foo-1.0.zip")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range []entry{{name: "foo-1.0/a.txt", body: "a"}, {name: "foo-1.0/sub/b.txt", body: "b"}} {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = io.WriteString(w, e.body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	dest := filepath.Join(dir, "out")
	require.NoError(t, extractZip(path, dest))
	data, err := os.ReadFile(filepath.Join(dest, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
}

func newContext(t *testing.T, u unit.Unit) unit.Context {
	t.Helper()
	layout := workspace.NewLayout(t.TempDir(), "")
	require.NoError(t, layout.Ensure())
	return unit.NewContext(u, "", layout)
}

func TestCommandFallsBackToNativeExtraction(t *testing.T) {
	c := newContext(t, unit.Unit{Name: "foo", Version: "1.0", Kind: unit.TarGz, Location: "https://example.org"})
	require.NoError(t, os.WriteFile(c.ArchivePath(), compress(t, unit.TarGz, tarBytes(t, sourceTree)), 0o644))

	// leftovers of an interrupted extraction are removed
	require.NoError(t, os.MkdirAll(c.SourceDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(c.SourceDir(), "stale"), nil, 0o644))

	cmd, err := Command(c, unit.NewSearchPath(t.TempDir()))
	require.NoError(t, err)
	assert.Contains(t, cmd.CommandLine(), "tar -xf "+c.ArchivePath()+" -C "+c.SourceDir()+" --strip-components=1")

	require.NoError(t, cmd.Run(context.Background(), "", io.Discard, io.Discard))
	assert.FileExists(t, filepath.Join(c.SourceDir(), "configure"))
	assert.NoFileExists(t, filepath.Join(c.SourceDir(), "stale"))
}

func TestCommandCopiesDirectory(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "x.c"), []byte("x"), 0o644))

	c := newContext(t, unit.Unit{Name: "local", Version: "0", Kind: unit.Dir, Location: src})
	cmd, err := Command(c, unit.NewSearchPath(""))
	require.NoError(t, err)
	require.NoError(t, cmd.Run(context.Background(), "", io.Discard, io.Discard))

	data, err := os.ReadFile(filepath.Join(c.SourceDir(), "sub", "x.c"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestCommandGit(t *testing.T) {
	c := newContext(t, unit.Unit{Name: "newlib", Version: "head", Kind: unit.Git,
		Location: "https://sourceware.org/git/newlib-cygwin.git", Options: map[string]string{"ref": "main"}})
	cmd, err := Command(c, unit.NewSearchPath("/usr/bin"))
	require.NoError(t, err)

	steps := cmd.(runner.AllOf)
	clone := steps[1].(runner.Command)
	assert.Equal(t, []string{"clone", "--branch", "main", c.ArchivePath(), c.SourceDir()}, clone.Args)
}

func TestCommandUnknownKind(t *testing.T) {
	c := newContext(t, unit.Unit{Name: "x", Version: "1", Kind: "rar", Location: "/x"})
	_, err := Command(c, unit.NewSearchPath(""))
	assert.ErrorIs(t, err, ErrUnknownArchive)
}
