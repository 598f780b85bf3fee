// Package fetch resolves a unit's location to the command that leaves its
// archive in the archive cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"tcforge/internal/runner"
	"tcforge/internal/unit"
)

// ErrUnsupportedTransport is returned for locations no transport handles.
var ErrUnsupportedTransport = errors.New("unsupported transport")

// Options configure a Fetcher.
type Options struct {
	GNUMirror string
	// Store serves s3:// locations; nil disables them.
	Store ObjectStore
	// Progress receives the native downloader's progress bar; nil hides it.
	Progress io.Writer
}

// Fetcher builds fetch stage commands.
type Fetcher struct {
	gnuMirror string
	store     ObjectStore
	progress  io.Writer
}

// New returns a Fetcher.
func New(opts Options) *Fetcher {
	return &Fetcher{
		gnuMirror: opts.GNUMirror,
		store:     opts.Store,
		progress:  opts.Progress,
	}
}

// URL is the location actually contacted for c, after mirror substitution.
func (f *Fetcher) URL(c unit.Context) string {
	if c.Unit.Kind == unit.Git {
		return strings.TrimPrefix(c.URL(), "git+")
	}
	return ApplyGNUMirror(c.URL(), f.gnuMirror)
}

// Command returns the fetch stage command for c. External tools are looked
// up through path.
func (f *Fetcher) Command(c unit.Context, path unit.SearchPath) (runner.Runnable, error) {
	switch c.Unit.Kind {
	case unit.Dir:
		return checkDir(c.Unit.Location)
	case unit.Git:
		return f.gitClone(c, path)
	}

	raw := f.URL(c)
	dest := c.ArchivePath()
	var (
		get runner.Runnable
		err error
	)
	switch scheme(raw) {
	case "http", "https", "ftp":
		get, err = f.download(c.Unit, raw, dest, path)
	case "s3":
		get, err = f.s3Get(raw, dest)
	case "file":
		get, err = copyFile(strings.TrimPrefix(raw, "file://"), dest)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedTransport, raw)
	}
	if err != nil {
		return nil, err
	}

	if c.Unit.B3Sum != "" {
		return runner.AllOf{get, verifyStep(dest, c.Unit.B3Sum)}, nil
	}
	return get, nil
}

func scheme(raw string) string {
	if filepath.IsAbs(raw) {
		return "file"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// download tries curl, then wget, then the built-in client.
func (f *Fetcher) download(u unit.Unit, raw, dest string, path unit.SearchPath) (runner.Runnable, error) {
	userAgent := u.Option("user-agent", "")
	insecure := u.Option("insecure", "") == "true"

	curl := runner.New("curl").Env("PATH", path.String()).Arg("-L", "--fail", "-sS")
	wget := runner.New("wget").Env("PATH", path.String()).Arg("-nv")
	if userAgent != "" {
		curl.Arg("-A", userAgent)
		wget.Arg("-U", userAgent)
	}
	if insecure {
		curl.Arg("-k")
		wget.Arg("--no-check-certificate")
	}
	curlCmd, err := curl.Arg("-o", dest, raw).Build()
	if err != nil {
		return nil, err
	}
	wgetCmd, err := wget.Arg("-O", dest, raw).Build()
	if err != nil {
		return nil, err
	}

	var client *http.Client
	native := runner.Native{
		Line: "http-get " + raw + " " + dest,
		Fn: func(ctx context.Context, _ string, _, _ io.Writer) error {
			if client == nil {
				client = newHTTPClient(insecure)
			}
			return httpGet(ctx, client, raw, dest, userAgent, f.progress)
		},
	}
	return runner.AnyOf{curlCmd, wgetCmd, native}, nil
}

func (f *Fetcher) s3Get(raw, dest string) (runner.Runnable, error) {
	bucket, key, err := ParseS3URL(raw)
	if err != nil {
		return nil, err
	}
	if f.store == nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnsupportedTransport, raw, ErrS3NotConfigured)
	}
	store := f.store
	return runner.Native{
		Line: "s3-get " + raw + " " + dest,
		Fn: func(ctx context.Context, _ string, _, _ io.Writer) error {
			return store.Download(ctx, bucket, key, dest)
		},
	}, nil
}

func (f *Fetcher) gitClone(c unit.Context, path unit.SearchPath) (runner.Runnable, error) {
	raw := f.URL(c)
	switch scheme(raw) {
	case "git", "http", "https", "ssh", "file":
	default:
		if !strings.Contains(raw, "@") {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedTransport, raw)
		}
	}
	b := runner.New("git").Env("PATH", path.String()).Arg("clone", "--bare")
	if ref := c.Unit.Option("ref", ""); ref != "" {
		b.Arg("--branch", ref)
	}
	if depth := c.Unit.Option("depth", ""); depth != "" {
		b.Flag("depth", depth)
	}
	clone, err := b.Arg(raw, c.ArchivePath()).Build()
	if err != nil {
		return nil, err
	}
	return runner.AllOf{runner.RemoveAll(c.ArchivePath()), clone}, nil
}

func checkDir(dir string) (runner.Runnable, error) {
	if !filepath.IsAbs(dir) {
		return nil, fmt.Errorf("%w: directory location %q must be absolute", ErrUnsupportedTransport, dir)
	}
	return runner.Native{
		Line: "test -d " + dir,
		Fn: func(context.Context, string, io.Writer, io.Writer) error {
			info, err := os.Stat(dir)
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			return nil
		},
	}, nil
}

func copyFile(src, dest string) (runner.Runnable, error) {
	if !filepath.IsAbs(src) {
		return nil, fmt.Errorf("%w: file location %q must be absolute", ErrUnsupportedTransport, src)
	}
	return runner.Native{
		Line: "cp " + src + " " + dest,
		Fn: func(context.Context, string, io.Writer, io.Writer) error {
			in, err := os.Open(src)
			if err != nil {
				return err
			}
			defer in.Close()
			out, err := os.Create(dest)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, in); err != nil {
				out.Close()
				return err
			}
			return out.Close()
		},
	}, nil
}
