// Package pipeline drives the plan: units in order, and for each unit its
// stages in order, stopping at the first failure.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"tcforge/internal/ledger"
	"tcforge/internal/manifest"
	"tcforge/internal/runner"
	"tcforge/internal/stage"
	"tcforge/internal/ui"
	"tcforge/internal/unit"
	"tcforge/internal/workspace"
)

// ErrMissingDependency is returned when a step's required install is not done.
var ErrMissingDependency = errors.New("missing dependency")

// BuildFunc builds one stage command.
type BuildFunc func(c unit.Context, step manifest.Step, path unit.SearchPath) (runner.Runnable, error)

// Commands builds the command of every stage kind.
type Commands interface {
	Fetch(c unit.Context, step manifest.Step, path unit.SearchPath) (runner.Runnable, error)
	Extract(c unit.Context, step manifest.Step, path unit.SearchPath) (runner.Runnable, error)
	Configure(c unit.Context, step manifest.Step, path unit.SearchPath) (runner.Runnable, error)
	Make(c unit.Context, step manifest.Step, path unit.SearchPath) (runner.Runnable, error)
	Install(c unit.Context, step manifest.Step, path unit.SearchPath) (runner.Runnable, error)
}

// Options wire a Driver.
type Options struct {
	Manifest *manifest.Manifest
	Layout   workspace.Layout
	Store    stage.Store
	Executor *stage.Executor
	Commands Commands
	Out      *ui.Printer
	// BasePath is the inherited PATH; empty uses $PATH.
	BasePath string
}

// Driver is the pipeline driver.
type Driver struct {
	manifest *manifest.Manifest
	layout   workspace.Layout
	store    stage.Store
	exec     *stage.Executor
	commands Commands
	out      *ui.Printer
	basePath string
}

// New returns a Driver.
func New(opts Options) *Driver {
	return &Driver{
		manifest: opts.Manifest,
		layout:   opts.Layout,
		store:    opts.Store,
		exec:     opts.Executor,
		commands: opts.Commands,
		out:      opts.Out,
		basePath: opts.BasePath,
	}
}

type stageSpec struct {
	key   ledger.Key
	dir   string
	build BuildFunc
}

// stages lists a step's stages in execution order. fetch and extract carry
// pass-independent keys, so a second pass finds them already done.
func (d *Driver) stages(c unit.Context, step manifest.Step) []stageSpec {
	return []stageSpec{
		{key: c.FetchKey(), dir: d.layout.Archives, build: d.commands.Fetch},
		{key: c.ExtractKey(), dir: d.layout.Sources, build: d.commands.Extract},
		{key: c.ConfigureKey(), dir: c.BuildDir(), build: d.commands.Configure},
		{key: c.MakeKey(step.Make.Target), dir: c.BuildDir(), build: d.commands.Make},
		{key: c.InstallKey(), dir: c.BuildDir(), build: d.commands.Install},
	}
}

func (d *Driver) context(step manifest.Step) (unit.Context, error) {
	u, err := d.manifest.UnitByName(step.Unit)
	if err != nil {
		return unit.Context{}, err
	}
	return unit.NewContext(u, step.Pass, d.layout), nil
}

// Run executes the plan. The first failing stage ends the run and its error,
// a *stage.Error for stage failures, is returned.
func (d *Driver) Run(ctx context.Context) error {
	path := unit.NewSearchPath(d.basePath)

	for _, step := range d.manifest.Plan {
		c, err := d.context(step)
		if err != nil {
			return err
		}
		if err := d.checkRequires(step); err != nil {
			return err
		}
		d.out.Info("Building %s (%s)", step.ID(), c.SourceDirName())

		for _, s := range d.stages(c, step) {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("build interrupted before %s: %w", s.key, err)
			}
			build, stepPath := s.build, path
			err := d.exec.RunFunc(ctx, s.key, func() (runner.Runnable, error) {
				return build(c, step, stepPath)
			}, s.dir)
			if err != nil {
				return err
			}
		}

		// later steps find this step's tools first
		path = path.With(d.layout.InstallBin())
		d.out.Debugf("search path now %s\n", path)
	}
	return nil
}

func (d *Driver) checkRequires(step manifest.Step) error {
	for _, id := range step.Requires {
		req, ok := d.manifest.Step(id)
		if !ok {
			return fmt.Errorf("%w: %s requires unknown step %s", ErrMissingDependency, step.ID(), id)
		}
		rc, err := d.context(req)
		if err != nil {
			return err
		}
		if !d.store.IsDone(rc.InstallKey()) {
			return fmt.Errorf("%w: %s requires %s, but %s is not done", ErrMissingDependency, step.ID(), id, rc.InstallKey())
		}
	}
	return nil
}

// StageState is what the status directory says about one stage.
type StageState string

const (
	StatePending    StageState = "pending"
	StateDone       StageState = "done"
	StateIncomplete StageState = "incomplete" // attempted, never completed
)

// PlannedStage is one stage of the plan as it would run now.
type PlannedStage struct {
	Step    string
	Key     ledger.Key
	Dir     string
	Command string
	State   StageState
	Err     error // the command could not be built
}

// Plan lists every stage of the plan without running anything. Commands are
// built with the search path the run would use.
func (d *Driver) Plan() ([]PlannedStage, error) {
	path := unit.NewSearchPath(d.basePath)
	var out []PlannedStage

	for _, step := range d.manifest.Plan {
		c, err := d.context(step)
		if err != nil {
			return nil, err
		}
		for _, s := range d.stages(c, step) {
			p := PlannedStage{
				Step:  step.ID(),
				Key:   s.key,
				Dir:   s.dir,
				State: d.state(s.key),
			}
			if cmd, err := s.build(c, step, path); err != nil {
				p.Err = err
			} else {
				p.Command = cmd.CommandLine()
			}
			out = append(out, p)
		}
		path = path.With(d.layout.InstallBin())
	}
	return out, nil
}

func (d *Driver) state(key ledger.Key) StageState {
	if d.store.IsDone(key) {
		return StateDone
	}
	art := d.store.Artifacts(key)
	for _, p := range []string{art.Command, art.Stderr} {
		if _, err := os.Stat(p); err == nil {
			return StateIncomplete
		}
	}
	return StatePending
}
