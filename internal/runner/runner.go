package runner

import (
	"context"
	"fmt"
	"io"
)

// Sinks are the three artifact writers of one stage execution.
type Sinks struct {
	Echo   io.Writer
	Stdout io.Writer
	Stderr io.Writer
}

// Runner is the process runner: echo the command line, then pipe the
// process output into the sinks. It never looks at the output itself.
type Runner struct {
	// Mirror, when set, also receives stdout and stderr (verbose mode).
	Mirror io.Writer
}

// NewRunner returns a Runner; mirror may be nil.
func NewRunner(mirror io.Writer) *Runner {
	return &Runner{Mirror: mirror}
}

// Run executes r in dir. A nil error means the command exited zero.
func (rn *Runner) Run(ctx context.Context, r Runnable, dir string, sinks Sinks) error {
	if _, err := fmt.Fprintln(sinks.Echo, r.CommandLine()); err != nil {
		return fmt.Errorf("failed to record command line: %w", err)
	}
	stdout, stderr := sinks.Stdout, sinks.Stderr
	if rn != nil && rn.Mirror != nil {
		stdout = io.MultiWriter(stdout, rn.Mirror)
		stderr = io.MultiWriter(stderr, rn.Mirror)
	}
	return r.Run(ctx, dir, stdout, stderr)
}
