// Package store defines the versioned-storage collaborator consumed by the
// coordination layer, together with an in-memory reference implementation.
//
// The coordination layer never touches file contents directly: it opens
// handles, begins and ends read transactions at specific versions, and asks a
// handle to advance through the transaction history while populating change
// information. Everything below that interface — object encoding, on-disk
// locking, compaction — belongs to the storage engine.
package store

import (
	"errors"
	"fmt"

	"github.com/hupe1980/mvgo/changeset"
	"github.com/hupe1980/mvgo/core"
)

// ErrReadOnly is returned when a mutation is attempted through a read-only
// handle.
var ErrReadOnly = errors.New("store: handle is read-only")

// ErrNoReadTransaction is returned when an operation requires an active read
// transaction and none has been begun.
var ErrNoReadTransaction = errors.New("store: no active read transaction")

// AccessError reports a failure to open a file. The coordination layer
// captures it as the sticky pipeline error when a helper handle cannot be
// opened.
type AccessError struct {
	Path string
	Err  error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("store: access error: %s: %v", e.Path, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

// Storage opens versioned files under a configuration.
type Storage interface {
	// Open opens the file described by cfg and returns a fresh handle.
	// Open fails with *AccessError if the file cannot be opened.
	Open(cfg core.Config) (Handle, error)
}

// Handle is one open view of a versioned file. A handle holds at most one
// read transaction at a time; Advance applies transaction-log entries to move
// it forward while optionally recording change information.
//
// Handles are not safe for concurrent use. The coordination layer serializes
// all access to its helper handles.
type Handle interface {
	// BeginRead starts a read transaction at the given version. The zero
	// version or core.Unbounded begins at the latest committed version.
	BeginRead(v core.Version) error

	// EndRead releases the read transaction without closing the handle.
	// Data handed over against the current snapshot is not retained past
	// EndRead.
	EndRead()

	// Advance applies transaction-log entries from the current version up
	// to target (core.Unbounded for latest). If info is non-nil, changes
	// to its declared tables and collections are recorded into it. It
	// returns the version the handle stopped at.
	Advance(info *changeset.Bucket, target core.Version) (core.Version, error)

	// Version returns the version of the current read transaction.
	Version() core.Version

	// Close releases the handle.
	Close() error
}

// Writer is the optional write capability of a Handle. Handles opened
// read-write through the reference store implement it.
type Writer interface {
	// Commit runs fn against a mutation recorder and commits the recorded
	// changes as a single new version.
	Commit(fn func(tx *Tx) error) (core.Version, error)
}
