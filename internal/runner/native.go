package runner

import (
	"context"
	"io"
	"os"
)

// Native is a stage step implemented in Go rather than by an external tool,
// used when the preferred tool is not installed.
type Native struct {
	Line string
	Fn   func(ctx context.Context, dir string, stdout, stderr io.Writer) error
}

var _ Runnable = Native{}

// CommandLine returns the description echoed into the .cmd artifact.
func (n Native) CommandLine() string {
	return n.Line
}

// Run calls Fn.
func (n Native) Run(ctx context.Context, dir string, stdout, stderr io.Writer) error {
	return n.Fn(ctx, dir, stdout, stderr)
}

// RemoveAll deletes path so a step can start from a clean slate.
func RemoveAll(path string) Native {
	return Native{
		Line: "rm -rf " + quote(path),
		Fn: func(context.Context, string, io.Writer, io.Writer) error {
			return os.RemoveAll(path)
		},
	}
}

// MkdirAll creates path and its parents.
func MkdirAll(path string) Native {
	return Native{
		Line: "mkdir -p " + quote(path),
		Fn: func(context.Context, string, io.Writer, io.Writer) error {
			return os.MkdirAll(path, 0o755)
		},
	}
}
