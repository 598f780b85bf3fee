// Package recipe turns a plan step into the concrete commands of its stages.
package recipe

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"tcforge/internal/archive"
	"tcforge/internal/fetch"
	"tcforge/internal/manifest"
	"tcforge/internal/runner"
	"tcforge/internal/unit"
)

// ErrUnknownVariable is returned when a template names a variable nobody defines.
var ErrUnknownVariable = errors.New("unknown template variable")

// Settings are the per-run values templates can reference.
type Settings struct {
	Target string
	Prefix string
	Jobs   int
	Nice   bool
	// Vars are manifest level variables; built-in names take precedence.
	Vars map[string]string
}

// Book builds stage commands. It holds no per-unit state.
type Book struct {
	settings Settings
	fetcher  *fetch.Fetcher
}

// New returns a Book.
func New(settings Settings, fetcher *fetch.Fetcher) *Book {
	if settings.Jobs < 1 {
		settings.Jobs = 1
	}
	return &Book{settings: settings, fetcher: fetcher}
}

// Fetch returns the fetch stage command.
func (b *Book) Fetch(c unit.Context, _ manifest.Step, path unit.SearchPath) (runner.Runnable, error) {
	return b.fetcher.Command(c, path)
}

// Extract returns the extract stage command.
func (b *Book) Extract(c unit.Context, _ manifest.Step, path unit.SearchPath) (runner.Runnable, error) {
	return archive.Command(c, path)
}

// Configure runs the unit's configure script from its out-of-tree build dir.
func (b *Book) Configure(c unit.Context, step manifest.Step, path unit.SearchPath) (runner.Runnable, error) {
	vars := b.vars(c)
	cmd := runner.New(filepath.Join(c.SourceDir(), "configure"))
	if err := b.environ(cmd, step, vars, path); err != nil {
		return nil, err
	}
	for _, flag := range step.Configure {
		arg, err := expand(flag, vars)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", step.ID(), err)
		}
		cmd.Arg(arg)
	}
	return cmd.Build()
}

// Make runs the build goal with the -j hint.
func (b *Book) Make(c unit.Context, step manifest.Step, path unit.SearchPath) (runner.Runnable, error) {
	return b.make(c, step, step.Make.Target, step.Make.Vars, b.settings.Jobs, path)
}

// Install runs the install goal. It is not parallelised.
func (b *Book) Install(c unit.Context, step manifest.Step, path unit.SearchPath) (runner.Runnable, error) {
	return b.make(c, step, step.InstallTarget(), step.Install.Vars, 0, path)
}

func (b *Book) make(c unit.Context, step manifest.Step, target string, makeVars map[string]string, jobs int, path unit.SearchPath) (runner.Runnable, error) {
	vars := b.vars(c)
	var cmd *runner.Builder
	if b.settings.Nice {
		cmd = runner.New("nice").Arg("-n", "19", "make")
	} else {
		cmd = runner.New("make")
	}
	if err := b.environ(cmd, step, vars, path); err != nil {
		return nil, err
	}
	if jobs > 0 {
		cmd.Arg("-j" + strconv.Itoa(jobs))
	}
	if target != "" {
		cmd.Arg(target)
	}
	for _, name := range slices.Sorted(maps.Keys(makeVars)) {
		value, err := expand(makeVars[name], vars)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", step.ID(), err)
		}
		cmd.Var(name, value)
	}
	return cmd.Build()
}

// environ sets PATH from the search path, then the step's own variables.
func (b *Book) environ(cmd *runner.Builder, step manifest.Step, vars map[string]string, path unit.SearchPath) error {
	cmd.Env("PATH", path.String())
	for _, name := range slices.Sorted(maps.Keys(step.Env)) {
		value, err := expand(step.Env[name], vars)
		if err != nil {
			return fmt.Errorf("step %s: %w", step.ID(), err)
		}
		cmd.Env(name, value)
	}
	return nil
}

// vars are the values ${NAME} resolves to for c.
func (b *Book) vars(c unit.Context) map[string]string {
	vars := make(map[string]string, len(b.settings.Vars)+8)
	maps.Copy(vars, b.settings.Vars)
	maps.Copy(vars, map[string]string{
		"TARGET":  b.settings.Target,
		"PREFIX":  b.settings.Prefix,
		"JOBS":    strconv.Itoa(b.settings.Jobs),
		"ROOT":    c.Layout.Root,
		"SOURCES": c.Layout.Sources,
		"SOURCE":  c.SourceDir(),
		"BUILD":   c.BuildDir(),
		"NAME":    c.Unit.Name,
		"VERSION": c.Unit.Version,
	})
	return vars
}

// expand substitutes $NAME and ${NAME}; $$ is a literal dollar.
func expand(s string, vars map[string]string) (string, error) {
	var missing []string
	out := os.Expand(s, func(name string) string {
		if name == "$" {
			return "$"
		}
		v, ok := vars[name]
		if !ok {
			missing = append(missing, name)
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s in %q", ErrUnknownVariable, missing[0], s)
	}
	return out, nil
}
