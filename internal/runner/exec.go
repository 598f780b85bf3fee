package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ExitError reports a command that ran and exited unsuccessfully.
type ExitError struct {
	Command string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Command, e.Code)
}

// runGroup runs the command in its own process group. When ctx is cancelled
// the whole group is killed, so make's children go down with it.
func runGroup(ctx context.Context, path string, c Command, dir string, stdout, stderr io.Writer) error {
	// --- Phase 1: build the command ---
	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.Args[0] = c.Name
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdin = nil
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	// --- Phase 2: isolate process group for context-based cleanup ---
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second

	// --- Phase 3: start and wait ---
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", c.Name, err)
	}
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("command aborted: %w", ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Command: c.Name, Code: exitErr.ExitCode()}
		}
		return err
	}
	return nil
}
