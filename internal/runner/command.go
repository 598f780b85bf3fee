// Package runner executes one stage command and streams its output into the
// stage's artifact files.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidCommand is returned by Builder.Build for malformed argument lists.
var ErrInvalidCommand = errors.New("invalid command")

// Runnable is anything a stage can execute: an external process or a native Go step.
type Runnable interface {
	// CommandLine is echoed verbatim into the stage's .cmd artifact.
	CommandLine() string
	Run(ctx context.Context, dir string, stdout, stderr io.Writer) error
}

// Command is a validated argv plus environment assignments.
type Command struct {
	Name string
	Args []string
	Env  []string // KEY=VALUE, layered over the parent environment
}

var _ Runnable = Command{}

// CommandLine renders the command as a copy-pasteable shell line.
func (c Command) CommandLine() string {
	parts := make([]string, 0, len(c.Env)+len(c.Args)+1)
	for _, kv := range c.Env {
		k, v, _ := strings.Cut(kv, "=")
		parts = append(parts, k+"="+quote(v))
	}
	parts = append(parts, quote(c.Name))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

// Lookup returns the value the command's own environment assigns to key.
func (c Command) Lookup(key string) (string, bool) {
	for i := len(c.Env) - 1; i >= 0; i-- {
		k, v, _ := strings.Cut(c.Env[i], "=")
		if k == key {
			return v, true
		}
	}
	return "", false
}

// Run starts the process in dir and waits for it to exit.
func (c Command) Run(ctx context.Context, dir string, stdout, stderr io.Writer) error {
	path, err := c.resolve()
	if err != nil {
		return err
	}
	return runGroup(ctx, path, c, dir, stdout, stderr)
}

// resolve looks the program up in the command's PATH, not the orchestrator's,
// so tools installed by earlier units are found.
func (c Command) resolve() (string, error) {
	if strings.Contains(c.Name, "/") {
		return c.Name, nil
	}
	searchPath, ok := c.Lookup("PATH")
	if !ok {
		searchPath = os.Getenv("PATH")
	}
	for _, dir := range filepath.SplitList(searchPath) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, c.Name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: executable not found in PATH", c.Name)
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'`$\\|&;<>()*?[]#~!{}") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Builder assembles a Command argument by argument.
type Builder struct {
	name string
	args []string
	env  []string
	err  error
}

// New starts a command for the given program.
func New(name string) *Builder {
	return &Builder{name: name}
}

// Arg appends literal arguments.
func (b *Builder) Arg(args ...string) *Builder {
	b.args = append(b.args, args...)
	return b
}

// Flag appends --name=value, or --name when value is empty.
func (b *Builder) Flag(name, value string) *Builder {
	if value == "" {
		return b.Arg("--" + name)
	}
	return b.Arg("--" + name + "=" + value)
}

// Var appends a NAME=value argument, the form make accepts for variables.
func (b *Builder) Var(name, value string) *Builder {
	if !validName(name) {
		b.fail("bad variable name %q", name)
		return b
	}
	return b.Arg(name + "=" + value)
}

// Env sets an environment variable for the child process.
func (b *Builder) Env(name, value string) *Builder {
	if !validName(name) {
		b.fail("bad environment name %q", name)
		return b
	}
	b.env = append(b.env, name+"="+value)
	return b
}

// Environ appends KEY=VALUE pairs.
func (b *Builder) Environ(kvs ...string) *Builder {
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			b.fail("bad environment entry %q", kv)
			continue
		}
		b.Env(k, v)
	}
	return b
}

// Build validates and returns the command.
func (b *Builder) Build() (Command, error) {
	if b.err != nil {
		return Command{}, b.err
	}
	if strings.TrimSpace(b.name) == "" {
		return Command{}, fmt.Errorf("%w: empty program name", ErrInvalidCommand)
	}
	for _, a := range append([]string{b.name}, b.args...) {
		if strings.ContainsRune(a, 0) {
			return Command{}, fmt.Errorf("%w: NUL byte in %q", ErrInvalidCommand, a)
		}
	}
	return Command{
		Name: b.name,
		Args: append([]string(nil), b.args...),
		Env:  append([]string(nil), b.env...),
	}, nil
}

func (b *Builder) fail(format string, a ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("%w: "+format, append([]any{ErrInvalidCommand}, a...)...)
	}
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
