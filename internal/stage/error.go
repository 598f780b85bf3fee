package stage

import (
	"fmt"

	"tcforge/internal/ledger"
)

// Error is a fatal stage failure. It carries the tails of the stage's
// command echo and stderr artifacts so callers can show them without
// re-reading the status directory.
type Error struct {
	Key       ledger.Key
	Err       error
	Artifacts ledger.Artifacts
	EchoTail  []string
	ErrTail   []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
