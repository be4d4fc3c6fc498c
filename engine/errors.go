package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrHandleClosed is returned when an operation is attempted on a
	// closed handle.
	ErrHandleClosed = errors.New("engine: handle is closed")

	// ErrNoConfig is returned by Acquire when no configuration has been
	// established for the coordinator yet.
	ErrNoConfig = errors.New("engine: no configuration established for path")

	// ErrNotWritable is returned when a write is attempted through a
	// handle whose storage does not support writing.
	ErrNotWritable = errors.New("engine: handle is not writable")
)

// MismatchedConfigError is returned by handle acquisition when the requested
// configuration is incompatible with the one the coordinator already applied.
// Field names the first divergent configuration field. The stored
// configuration is left untouched.
type MismatchedConfigError struct {
	Path  string
	Field string
}

func (e *MismatchedConfigError) Error() string {
	return fmt.Sprintf("engine: file at %q already opened with different %s", e.Path, e.Field)
}
