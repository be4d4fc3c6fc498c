package mvgo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/mvgo/engine"
	"github.com/hupe1980/mvgo/store"
)

var (
	// ErrMismatchedConfig is returned when a path is opened with a
	// configuration incompatible with the one already established.
	// The divergent field is named by the wrapped engine error.
	ErrMismatchedConfig = errors.New("mismatched configuration")

	// ErrFileAccess is returned when the underlying store file cannot be
	// opened.
	ErrFileAccess = errors.New("file access error")

	// ErrDatabaseClosed is returned when an operation is attempted on a
	// closed DB.
	ErrDatabaseClosed = errors.New("database is closed")

	// ErrNotOpen is returned by OpenExisting when no live coordinator
	// exists for the path.
	ErrNotOpen = errors.New("path is not open")
)

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var mce *engine.MismatchedConfigError
	if errors.As(err, &mce) {
		return fmt.Errorf("%w: %w", ErrMismatchedConfig, err)
	}
	var ae *store.AccessError
	if errors.As(err, &ae) {
		return fmt.Errorf("%w: %w", ErrFileAccess, err)
	}
	if errors.Is(err, engine.ErrHandleClosed) {
		return fmt.Errorf("%w: %w", ErrDatabaseClosed, err)
	}

	return err
}
