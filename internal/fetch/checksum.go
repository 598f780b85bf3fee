package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"lukechampine.com/blake3"

	"tcforge/internal/runner"
)

// ErrChecksumMismatch is returned when a downloaded archive does not hash to its declared sum.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// Sum returns the hex BLAKE3-256 of the file at path.
func Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// Verify checks the file at path against want.
func Verify(path, want string) error {
	got, err := Sum(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, strings.TrimSpace(want)) {
		return fmt.Errorf("%w for %s: expected %s, got %s", ErrChecksumMismatch, path, want, got)
	}
	return nil
}

// verifyStep is the native step appended to a download when a sum is declared.
func verifyStep(path, want string) runner.Native {
	return runner.Native{
		Line: fmt.Sprintf("verify-blake3 %s %s", path, want),
		Fn: func(_ context.Context, _ string, stdout, _ io.Writer) error {
			if err := Verify(path, want); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%s: OK\n", path)
			return nil
		},
	}
}
