package engine

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hupe1980/mvgo/changeset"
	"github.com/hupe1980/mvgo/core"
	"github.com/hupe1980/mvgo/store"
)

// Handle is a front-end session bound to one coordinator: one goroutine's
// view of the store, holding its own read transaction.
//
// A handle may be shared when acquired through the per-goroutine cache; it
// closes for real once every owner has called Close, or immediately when the
// coordinator's cache is cleared.
type Handle struct {
	id    uuid.UUID
	coord *Coordinator
	cfg   core.Config
	sh    store.Handle

	refs   atomic.Int64
	closed atomic.Bool

	notifyCh chan struct{}

	cbMu     sync.Mutex
	onChange func(*changeset.Bucket)
}

func newHandle(c *Coordinator, cfg core.Config) (*Handle, error) {
	sh, err := c.opts.Storage.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := sh.BeginRead(core.Unbounded); err != nil {
		sh.Close()
		return nil, err
	}

	h := &Handle{
		id:       uuid.New(),
		coord:    c,
		cfg:      cfg,
		sh:       sh,
		notifyCh: make(chan struct{}, 1),
	}
	h.refs.Store(1)
	return h, nil
}

// ID returns the handle's identity, used in registry records and log fields.
func (h *Handle) ID() uuid.UUID { return h.id }

// Config returns the configuration the handle was acquired with.
func (h *Handle) Config() core.Config { return h.cfg }

// Version returns the version of the handle's current read transaction.
func (h *Handle) Version() core.Version { return h.sh.Version() }

// Coordinator returns the coordinator the handle is bound to.
func (h *Handle) Coordinator() *Coordinator { return h.coord }

// IsClosed reports whether the handle has been closed.
func (h *Handle) IsClosed() bool { return h.closed.Load() }

// Notifications returns a channel that receives a coalesced signal whenever a
// commit has been processed and the handle may have something to refresh.
func (h *Handle) Notifications() <-chan struct{} { return h.notifyCh }

// SetChangeCallback installs a callback invoked with the accumulated changes
// each time the handle's own transaction advances. Passing nil disables
// change collection for the handle.
func (h *Handle) SetChangeCallback(fn func(*changeset.Bucket)) {
	h.cbMu.Lock()
	h.onChange = fn
	h.cbMu.Unlock()
}

// Refresh advances the handle to the version the notification pipeline has
// converged on and delivers every matured notifier result against it.
func (h *Handle) Refresh() error {
	if h.closed.Load() {
		return ErrHandleClosed
	}
	return h.coord.AdvanceToReady(h)
}

// ProcessAvailable delivers already-matured notifier results without forcing
// the handle's own transaction forward.
func (h *Handle) ProcessAvailable() {
	if h.closed.Load() {
		return
	}
	h.coord.ProcessAvailable(h)
}

// Write runs fn as a single write transaction against the underlying store
// and signals the commit to every coordinator on the path. It fails with
// ErrNotWritable when the storage handle has no write capability.
func (h *Handle) Write(fn func(tx *store.Tx) error) (core.Version, error) {
	if h.closed.Load() {
		return core.Version{}, ErrHandleClosed
	}
	w, ok := h.sh.(store.Writer)
	if !ok {
		return core.Version{}, ErrNotWritable
	}

	v, err := w.Commit(fn)
	if err != nil {
		return core.Version{}, err
	}
	h.coord.SendCommitNotifications()
	return v, nil
}

// Close releases this owner's reference. The handle shuts down once the last
// owner closes it: the read transaction ends, the handle is removed from the
// coordinator's registry, and the coordinator reference is released.
func (h *Handle) Close() error {
	if h.closed.Load() {
		return nil
	}
	if h.refs.Add(-1) > 0 {
		return nil
	}
	h.forceClose()
	return nil
}

// forceClose closes the handle regardless of remaining owners. Used by cache
// clearing, where every cached handle must actually close.
func (h *Handle) forceClose() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	h.sh.EndRead()
	_ = h.sh.Close()
	h.coord.unregister(h)
	h.coord.release()
}

func (h *Handle) retain() {
	h.refs.Add(1)
}

// postNotification delivers a coalesced wakeup to the handle's owner.
func (h *Handle) postNotification() {
	select {
	case h.notifyCh <- struct{}{}:
	default:
	}
}

// advanceTransaction moves the handle's own read transaction to target,
// collecting changes for the change callback when one is installed. It may
// invoke the callback, so callers must not hold the pipeline lock.
func (h *Handle) advanceTransaction(target core.Version) error {
	h.cbMu.Lock()
	fn := h.onChange
	h.cbMu.Unlock()

	var info *changeset.Bucket
	if fn != nil {
		info = changeset.NewBucket()
		info.RequireAll()
	}

	before := h.sh.Version()
	after, err := h.sh.Advance(info, target)
	if err != nil {
		return err
	}
	if fn != nil && before != after {
		fn(info)
	}
	return nil
}

// handleRecord is the coordinator's non-owning view of a handle: the handle,
// its cache eligibility, and the goroutine that created it. A record whose
// referent has closed is expired and pruned lazily.
type handleRecord struct {
	h     *Handle
	cache bool
	gid   uint64
}

func (r handleRecord) expired() bool {
	return r.h.IsClosed()
}

func (r handleRecord) cachedFor(gid uint64) bool {
	return r.cache && r.gid == gid && !r.expired()
}
