package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// AnyOf runs alternatives in order until one succeeds, like `a || b || c`.
// Each failure is noted on stderr before the next alternative starts.
type AnyOf []Runnable

var _ Runnable = AnyOf{}

func (a AnyOf) CommandLine() string {
	return join(a, " || ")
}

func (a AnyOf) Run(ctx context.Context, dir string, stdout, stderr io.Writer) error {
	if len(a) == 0 {
		return fmt.Errorf("%w: no alternatives", ErrInvalidCommand)
	}
	var errs []error
	for i, r := range a {
		err := r.Run(ctx, dir, stdout, stderr)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		errs = append(errs, err)
		if i < len(a)-1 {
			fmt.Fprintf(stderr, "%v; trying %s\n", err, a[i+1].CommandLine())
		}
	}
	return errors.Join(errs...)
}

// AllOf runs steps in order and stops at the first failure, like `a && b`.
type AllOf []Runnable

var _ Runnable = AllOf{}

func (a AllOf) CommandLine() string {
	return join(a, " && ")
}

func (a AllOf) Run(ctx context.Context, dir string, stdout, stderr io.Writer) error {
	if len(a) == 0 {
		return fmt.Errorf("%w: empty sequence", ErrInvalidCommand)
	}
	for _, r := range a {
		if err := r.Run(ctx, dir, stdout, stderr); err != nil {
			return err
		}
	}
	return nil
}

func join(rs []Runnable, sep string) string {
	parts := make([]string, 0, len(rs))
	for _, r := range rs {
		line := r.CommandLine()
		switch c := r.(type) {
		case AnyOf:
			if len(c) > 1 {
				line = "(" + line + ")"
			}
		case AllOf:
			if len(c) > 1 {
				line = "(" + line + ")"
			}
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, sep)
}
