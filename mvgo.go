package mvgo

import (
	"sync/atomic"

	"github.com/hupe1980/mvgo/changeset"
	"github.com/hupe1980/mvgo/core"
	"github.com/hupe1980/mvgo/engine"
	"github.com/hupe1980/mvgo/store"
)

// DB is one session on a coordinated store file: a front-end handle plus the
// shared-ownership reference to the file's coordinator.
//
// A DB is intended for use from the goroutine that opened it; open one DB per
// goroutine and let the coordinator's handle cache deduplicate them.
type DB struct {
	coord  *engine.Coordinator
	h      *engine.Handle
	logger *Logger
	closed atomic.Bool
}

// Open opens the store file at path, creating or joining the path's
// coordinator. The first open of a path establishes its configuration; later
// opens must be compatible with it.
func Open(path string, optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)
	cfg := o.cfg
	cfg.Path = path

	coord := engine.GetCoordinator(path, o.engineOptions()...)
	h, err := coord.AcquireHandle(cfg)
	if err != nil {
		coord.Release()
		err = translateError(err)
		o.logger.LogOpen(path, cfg.ReadOnly, err)
		return nil, err
	}

	o.logger.LogOpen(path, cfg.ReadOnly, nil)
	return &DB{coord: coord, h: h, logger: o.logger}, nil
}

// OpenExisting joins the live coordinator for path using its established
// configuration. It fails with ErrNotOpen when the path has no live
// coordinator.
func OpenExisting(path string) (*DB, error) {
	coord, ok := engine.ExistingCoordinator(path)
	if !ok {
		return nil, ErrNotOpen
	}
	h, err := coord.Acquire()
	if err != nil {
		coord.Release()
		return nil, translateError(err)
	}
	return &DB{coord: coord, h: h, logger: NoopLogger()}, nil
}

// Write runs fn as a single write transaction and signals the commit to
// every coordinator on the path.
func (db *DB) Write(fn func(tx *store.Tx) error) (core.Version, error) {
	if db.closed.Load() {
		return core.Version{}, ErrDatabaseClosed
	}
	v, err := db.h.Write(fn)
	err = translateError(err)
	db.logger.LogWrite(db.coord.Path(), v, err)
	return v, err
}

// Refresh advances the session to the version the notification pipeline has
// converged on and delivers matured watcher results.
func (db *DB) Refresh() error {
	if db.closed.Load() {
		return ErrDatabaseClosed
	}
	err := translateError(db.h.Refresh())
	db.logger.LogRefresh(db.coord.Path(), db.h.Version(), err)
	return err
}

// ProcessAvailable delivers already-matured watcher results without advancing
// the session's transaction.
func (db *DB) ProcessAvailable() {
	if db.closed.Load() {
		return
	}
	db.h.ProcessAvailable()
}

// Watch registers a notifier with the path's notification pipeline. The
// notifier stays registered until it reports not-alive.
func (db *DB) Watch(n engine.Notifier) error {
	if db.closed.Load() {
		return ErrDatabaseClosed
	}
	db.coord.RegisterNotifier(n)
	return nil
}

// Notifications returns a channel receiving a coalesced signal per processed
// commit. Callers typically Refresh in response.
func (db *DB) Notifications() <-chan struct{} {
	return db.h.Notifications()
}

// SetChangeCallback installs a callback invoked with accumulated changes
// whenever the session's transaction advances.
func (db *DB) SetChangeCallback(fn func(*changeset.Bucket)) {
	db.h.SetChangeCallback(fn)
}

// Version returns the version of the session's current read transaction.
func (db *DB) Version() core.Version {
	return db.h.Version()
}

// Schema returns the coordinator's schema definition, or false when no
// handles are open for the path.
func (db *DB) Schema() (core.Schema, bool) {
	return db.coord.Schema()
}

// UpdateSchema replaces the coordinator's stored schema definition. The new
// schema is not validated against existing data.
func (db *DB) UpdateSchema(s core.Schema) {
	db.coord.UpdateSchema(s)
}

// Handle exposes the underlying engine handle for advanced integrations.
func (db *DB) Handle() *engine.Handle {
	return db.h
}

// Close releases the session's handle and its coordinator reference. The
// coordinator itself tears down when its last reference drops.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := db.h.Close()
	db.coord.Release()
	return err
}

// ClearCache detaches every coordinator's commit-signal listener, closes
// every currently open handle across all paths, and drops all coordinator
// registry entries. A subsequent Open re-establishes everything fresh.
func ClearCache() {
	engine.ClearCache()
}

// ClearAllCaches invokes the per-coordinator cache clear on every live
// coordinator, leaving registry entries in place.
func ClearAllCaches() {
	engine.ClearAllCaches()
}
