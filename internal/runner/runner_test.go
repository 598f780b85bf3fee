package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	cmd, err := New("/src/gcc-13.2.0/configure").
		Flag("target", "arm-none-eabi").
		Flag("disable-nls", "").
		Var("CFLAGS_FOR_TARGET", "-Os -g").
		Env("PATH", "/ws/install/bin:/usr/bin").
		Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"--target=arm-none-eabi", "--disable-nls", "CFLAGS_FOR_TARGET=-Os -g"}, cmd.Args)
	assert.Equal(t,
		"PATH=/ws/install/bin:/usr/bin /src/gcc-13.2.0/configure --target=arm-none-eabi --disable-nls 'CFLAGS_FOR_TARGET=-Os -g'",
		cmd.CommandLine())

	path, ok := cmd.Lookup("PATH")
	assert.True(t, ok)
	assert.Equal(t, "/ws/install/bin:/usr/bin", path)
}

func TestBuilderRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		b    *Builder
	}{
		{"empty program", New(" ")},
		{"bad var", New("make").Var("1BAD", "x")},
		{"bad env", New("make").Env("A-B", "x")},
		{"bad environ", New("make").Environ("NOEQUALS")},
		{"nul byte", New("make").Arg("a\x00b")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Build()
			assert.ErrorIs(t, err, ErrInvalidCommand)
		})
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "plain", quote("plain"))
	assert.Equal(t, "''", quote(""))
	assert.Equal(t, "'a b'", quote("a b"))
	assert.Equal(t, `'it'\''s'`, quote("it's"))
}

func TestRunnerEchoesAndStreams(t *testing.T) {
	cmd, err := New("sh").Arg("-c", "echo out; echo err >&2").Build()
	require.NoError(t, err)

	var echo, stdout, stderr bytes.Buffer
	err = NewRunner(nil).Run(context.Background(), cmd, t.TempDir(), Sinks{Echo: &echo, Stdout: &stdout, Stderr: &stderr})
	require.NoError(t, err)

	assert.Equal(t, "sh -c 'echo out; echo err >&2'\n", echo.String())
	assert.Equal(t, "out\n", stdout.String())
	assert.Equal(t, "err\n", stderr.String())
}

func TestRunnerMirror(t *testing.T) {
	cmd, err := New("sh").Arg("-c", "echo mirrored").Build()
	require.NoError(t, err)

	var mirror bytes.Buffer
	err = NewRunner(&mirror).Run(context.Background(), cmd, t.TempDir(), Sinks{Echo: io.Discard, Stdout: io.Discard, Stderr: io.Discard})
	require.NoError(t, err)
	assert.Equal(t, "mirrored\n", mirror.String())
}

func TestRunnerReportsExitStatus(t *testing.T) {
	cmd, err := New("sh").Arg("-c", "exit 3").Build()
	require.NoError(t, err)

	err = NewRunner(nil).Run(context.Background(), cmd, t.TempDir(), Sinks{Echo: io.Discard, Stdout: io.Discard, Stderr: io.Discard})
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
}

func TestRunUsesWorkingDir(t *testing.T) {
	dir := t.TempDir()
	cmd, err := New("sh").Arg("-c", "pwd").Build()
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, cmd.Run(context.Background(), dir, &out, io.Discard))
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, want, strings.TrimSpace(out.String()))
}

func TestRunResolvesFromCommandPath(t *testing.T) {
	bin := t.TempDir()
	tool := filepath.Join(bin, "arm-none-eabi-as")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\necho assembled\n"), 0o755))

	cmd, err := New("arm-none-eabi-as").Env("PATH", bin+":"+os.Getenv("PATH")).Build()
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, cmd.Run(context.Background(), t.TempDir(), &out, io.Discard))
	assert.Equal(t, "assembled\n", out.String())

	missing, err := New("definitely-not-installed-tool").Env("PATH", bin).Build()
	require.NoError(t, err)
	assert.Error(t, missing.Run(context.Background(), t.TempDir(), io.Discard, io.Discard))
}

func TestRunCancelKillsProcess(t *testing.T) {
	cmd, err := New("sh").Arg("-c", "sleep 30").Build()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = cmd.Run(ctx, t.TempDir(), io.Discard, io.Discard)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestNative(t *testing.T) {
	called := 0
	n := Native{Line: "native download https://example.org/x.tar.gz", Fn: func(ctx context.Context, dir string, stdout, stderr io.Writer) error {
		called++
		_, err := io.WriteString(stdout, "fetched\n")
		return err
	}}

	var echo, out bytes.Buffer
	require.NoError(t, NewRunner(nil).Run(context.Background(), n, "", Sinks{Echo: &echo, Stdout: &out, Stderr: io.Discard}))
	assert.Equal(t, 1, called)
	assert.Equal(t, "native download https://example.org/x.tar.gz\n", echo.String())
	assert.Equal(t, "fetched\n", out.String())
}

func TestAnyOfFallsThrough(t *testing.T) {
	var order []string
	step := func(name string, err error) Native {
		return Native{Line: name, Fn: func(context.Context, string, io.Writer, io.Writer) error {
			order = append(order, name)
			return err
		}}
	}
	var stderr bytes.Buffer
	r := AnyOf{step("curl", errors.New("curl: 404")), step("wget", nil), step("native", nil)}

	assert.Equal(t, "curl || wget || native", r.CommandLine())
	require.NoError(t, r.Run(context.Background(), "", io.Discard, &stderr))
	assert.Equal(t, []string{"curl", "wget"}, order)
	assert.Contains(t, stderr.String(), "curl: 404; trying wget")

	order = nil
	err := AnyOf{step("a", errors.New("a failed")), step("b", errors.New("b failed"))}.Run(context.Background(), "", io.Discard, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a failed")
	assert.Contains(t, err.Error(), "b failed")
}

func TestAllOfStopsAtFirstFailure(t *testing.T) {
	calls := 0
	ok := Native{Line: "ok", Fn: func(context.Context, string, io.Writer, io.Writer) error { calls++; return nil }}
	bad := Native{Line: "bad", Fn: func(context.Context, string, io.Writer, io.Writer) error { calls++; return errors.New("bad") }}

	r := AllOf{AnyOf{ok, bad}, bad, ok}
	assert.Equal(t, "(ok || bad) && bad && ok", r.CommandLine())
	assert.EqualError(t, r.Run(context.Background(), "", io.Discard, io.Discard), "bad")
	assert.Equal(t, 2, calls)
}
