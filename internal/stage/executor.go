// Package stage executes one (unit, stage) at most once to successful
// completion, using the ledger to skip work that already finished.
package stage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tcforge/internal/ledger"
	"tcforge/internal/runner"
	"tcforge/internal/ui"
)

// Store is a ledger that also knows where a stage's artifacts live.
type Store interface {
	ledger.Ledger
	Artifacts(key ledger.Key) ledger.Artifacts
}

// Runner runs a command with its output bound to the artifact sinks.
type Runner interface {
	Run(ctx context.Context, r runner.Runnable, dir string, sinks runner.Sinks) error
}

// Executor is the stage executor.
type Executor struct {
	store     Store
	runner    Runner
	out       *ui.Printer
	tailLines int
	tracker   *Tracker
	stats     Stats
}

// Stats counts what the executor did during this process.
type Stats struct {
	Executed int
	Skipped  int
	Failed   int
}

// NewExecutor wires a store and a runner. tailLines bounds the log tails
// attached to failures; zero disables them.
func NewExecutor(store Store, r Runner, out *ui.Printer, tailLines int) *Executor {
	return &Executor{
		store:     store,
		runner:    r,
		out:       out,
		tailLines: tailLines,
		tracker:   NewTracker(),
	}
}

// Tracker returns the per-run stage state tracker.
func (e *Executor) Tracker() *Tracker {
	return e.tracker
}

// Stats returns the counters so far.
func (e *Executor) Stats() Stats {
	return e.stats
}

// Done reports whether key has completed in this or any earlier run.
func (e *Executor) Done(key ledger.Key) bool {
	return e.store.IsDone(key)
}

// Run executes cmd in dir for key unless the ledger already has it.
// Every run truncates the previous artifacts; the completion marker is only
// written after a zero exit.
func (e *Executor) Run(ctx context.Context, key ledger.Key, cmd runner.Runnable, dir string) error {
	return e.RunFunc(ctx, key, func() (runner.Runnable, error) { return cmd, nil }, dir)
}

// RunFunc is Run with the command built only when the stage has to execute.
// A build error is recorded through Reject.
func (e *Executor) RunFunc(ctx context.Context, key ledger.Key, build func() (runner.Runnable, error), dir string) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if e.store.IsDone(key) {
		e.stats.Skipped++
		e.tracker.Skip(key)
		e.out.Info("%s already done", key)
		return nil
	}

	cmd, err := build()
	if err != nil {
		return e.Reject(key, err)
	}

	e.tracker.Begin(key)
	e.out.Info("%s", key)
	e.out.Debugf("%s: %s (in %s)\n", key, cmd.CommandLine(), dir)
	start := time.Now()

	art := e.store.Artifacts(key)
	if err := e.execute(ctx, art, cmd, dir); err != nil {
		return e.fail(key, art, err)
	}
	if err := e.store.MarkDone(key); err != nil {
		return e.fail(key, art, fmt.Errorf("failed to record completion: %w", err))
	}

	e.stats.Executed++
	e.tracker.Succeed(key)
	e.out.OK("%s OK (%s)", key, time.Since(start).Round(time.Millisecond))
	return nil
}

// Reject records a stage that could not even be started, e.g. because no
// transport handles its URL. Only the stderr artifact is written; echo and
// stdout left by an earlier attempt are removed.
func (e *Executor) Reject(key ledger.Key, cause error) error {
	if err := key.Validate(); err != nil {
		return err
	}
	e.tracker.Begin(key)
	art := e.store.Artifacts(key)
	for _, stale := range []string{art.Command, art.Stdout} {
		if err := os.Remove(stale); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.out.Warn("could not remove %s: %v", stale, err)
		}
	}
	if err := writeArtifact(art.Stderr, cause.Error()+"\n"); err != nil {
		e.out.Warn("could not write %s: %v", art.Stderr, err)
	}
	return e.fail(key, art, cause)
}

func (e *Executor) execute(ctx context.Context, art ledger.Artifacts, cmd runner.Runnable, dir string) (err error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create working dir %s: %w", dir, err)
		}
	}

	files := make([]*os.File, 0, 3)
	defer func() {
		for _, f := range files {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	}()
	for _, path := range []string{art.Command, art.Stdout, art.Stderr} {
		f, err := createArtifact(path)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	return e.runner.Run(ctx, cmd, dir, runner.Sinks{
		Echo:   files[0],
		Stdout: files[1],
		Stderr: files[2],
	})
}

func (e *Executor) fail(key ledger.Key, art ledger.Artifacts, cause error) error {
	e.stats.Failed++
	e.tracker.Fail(key)
	serr := &Error{
		Key:       key,
		Err:       cause,
		Artifacts: art,
		EchoTail:  tailFile(art.Command, e.tailLines),
		ErrTail:   tailFile(art.Stderr, e.tailLines),
	}

	if errors.Is(cause, context.Canceled) {
		e.out.Error("%s interrupted", key)
		return serr
	}
	e.out.Error("%s failed: %v", key, cause)
	if len(serr.EchoTail) > 0 {
		e.out.Block(art.Command, serr.EchoTail)
	}
	if len(serr.ErrTail) > 0 {
		e.out.Block(art.Stderr, serr.ErrTail)
	}
	return serr
}

func createArtifact(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create status dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact %s: %w", path, err)
	}
	return f, nil
}

func writeArtifact(path, body string) error {
	f, err := createArtifact(path)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
