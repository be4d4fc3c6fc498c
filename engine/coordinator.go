// Package engine implements the per-file coordination layer of mvgo.
//
// A Coordinator is the aggregate root for one store file: it owns the
// established configuration, the registry of open front-end handles, the
// notification pipeline, and the optional commit-signal listener. A
// process-wide registry guarantees at most one live coordinator per path.
//
// Lock ordering, outermost first: registry lock, coordinator handle lock,
// pipeline lock. The pipeline lock is always released before running notifier
// diff or callback code, and the registry lock is always released before
// closing a handle or stopping a signaler, since both may re-enter the
// coordinator.
package engine

import (
	"sync"
	"sync/atomic"

	"github.com/hupe1980/mvgo/core"
	"github.com/hupe1980/mvgo/internal/gid"
	"github.com/hupe1980/mvgo/store"
)

// Coordinator coordinates every open handle and notifier for one file path.
//
// Coordinators are reference counted: GetCoordinator and each acquired handle
// hold one reference, and the coordinator tears down (stopping its signaler,
// closing its helper handles, pruning its registry slot) when the last
// reference is released.
type Coordinator struct {
	path string
	opts Options

	refs atomic.Int64

	mu        sync.Mutex
	cfg       core.Config
	hasConfig bool
	handles   []handleRecord
	signaler  CommitSignaler

	pipe notificationPipeline
}

func newCoordinator(path string, opts Options) *Coordinator {
	c := &Coordinator{path: path, opts: opts}
	c.pipe.init(c)
	return c
}

// Path returns the file path the coordinator governs.
func (c *Coordinator) Path() string { return c.path }

// AcquireHandle returns a handle for the coordinator's file under cfg.
//
// The first acquisition (writable: while no commit-signal listener and no
// registered handles exist; read-only: while no handles exist) establishes
// the coordinator's configuration and, if requested, starts the commit-signal
// listener — a listener start failure is fatal and reported immediately.
// Later acquisitions only validate compatibility; a mismatch fails with
// *MismatchedConfigError and leaves the stored configuration untouched.
//
// With caching requested, a live cache-eligible handle created on the calling
// goroutine is reused instead of opening a new one.
func (c *Coordinator) AcquireHandle(cfg core.Config) (*Handle, error) {
	cfg.Path = c.path

	h, cached, err := c.acquireHandle(cfg)
	c.opts.Metrics.RecordAcquire(cached, err)
	if err != nil {
		c.opts.Logger.Error("handle acquisition failed", "path", c.path, "error", err)
		return nil, err
	}
	c.opts.Logger.Debug("handle acquired", "path", c.path, "handle", h.ID(), "cached", cached)
	return h, nil
}

func (c *Coordinator) acquireHandle(cfg core.Config) (*Handle, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneRecords()

	establishing := !c.hasConfig || (c.signaler == nil && len(c.handles) == 0)
	if establishing {
		c.cfg = cfg
		c.hasConfig = true
		if !cfg.ReadOnly && cfg.AutomaticChangeNotifications && c.signaler == nil {
			s := c.opts.NewSignaler(c.path)
			if err := s.Start(c.OnCommit); err != nil {
				// The location is unusable for signaling; fatal
				// for the establishing caller, not a pipeline
				// error.
				return nil, false, &store.AccessError{Path: c.path, Err: err}
			}
			c.signaler = s
		}
		c.pipe.setConfig(c.cfg)
	} else {
		if field, ok := c.cfg.CompatibleWith(cfg); !ok {
			return nil, false, &MismatchedConfigError{Path: c.path, Field: field}
		}
	}

	g := gid.ID()
	if cfg.Cache {
		for _, rec := range c.handles {
			if rec.cachedFor(g) {
				rec.h.retain()
				return rec.h, true, nil
			}
		}
	}

	h, err := newHandle(c, cfg)
	if err != nil {
		return nil, false, err
	}
	// The record carries the coordinator's caching preference, not the
	// caller's.
	c.handles = append(c.handles, handleRecord{h: h, cache: c.cfg.Cache, gid: g})
	c.retain()
	return h, false, nil
}

// Acquire returns a handle using the coordinator's established configuration.
func (c *Coordinator) Acquire() (*Handle, error) {
	c.mu.Lock()
	if !c.hasConfig {
		c.mu.Unlock()
		return nil, ErrNoConfig
	}
	cfg := c.cfg
	c.mu.Unlock()
	return c.AcquireHandle(cfg)
}

// Schema returns the coordinator's schema definition, or false when no
// handles are open.
func (c *Coordinator) Schema() (core.Schema, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneRecords()
	if len(c.handles) == 0 {
		return nil, false
	}
	return c.cfg.Schema, true
}

// UpdateSchema replaces the stored schema definition. It does not validate
// the new schema against existing data or notify open handles; schema
// divergence detection is a known gap of this layer.
func (c *Coordinator) UpdateSchema(s core.Schema) {
	c.mu.Lock()
	c.cfg.Schema = s
	c.pipe.setConfig(c.cfg)
	c.mu.Unlock()
}

// RegisterNotifier adds a notifier to the notification pipeline, pinning the
// helper store to at least its source version.
func (c *Coordinator) RegisterNotifier(n Notifier) {
	c.pipe.register(n)
}

// OnCommit is the commit hook: it runs the notification pipeline, then posts
// a notification to every live handle. It is invoked by the commit-signal
// listener from an arbitrary goroutine and is safe to call concurrently with
// RegisterNotifier.
func (c *Coordinator) OnCommit() {
	c.pipe.run()

	c.mu.Lock()
	for _, rec := range c.handles {
		if !rec.expired() {
			rec.h.postNotification()
		}
	}
	c.mu.Unlock()
}

// SendCommitNotifications signals a local commit to every listener on the
// path. Without a listener (automatic notifications disabled) the commit hook
// runs synchronously on the calling goroutine instead.
func (c *Coordinator) SendCommitNotifications() {
	c.mu.Lock()
	s := c.signaler
	c.mu.Unlock()

	if s != nil {
		s.Notify()
		return
	}
	c.OnCommit()
}

// AdvanceToReady advances the handle to the pipeline's converged version and
// delivers matured notifier results. See Handle.Refresh.
func (c *Coordinator) AdvanceToReady(h *Handle) error {
	return c.pipe.advanceToReady(h)
}

// ProcessAvailable delivers matured notifier results against the handle's
// current transaction without advancing it.
func (c *Coordinator) ProcessAvailable(h *Handle) {
	c.pipe.processAvailable(h)
}

// ClearCache stops the coordinator's commit-signal listener and closes every
// handle it currently tracks. Stopping and closing happen after the internal
// lock is released, since both may re-enter the coordinator.
func (c *Coordinator) ClearCache() {
	var handles []*Handle
	var sig CommitSignaler

	c.mu.Lock()
	sig = c.signaler
	c.signaler = nil
	for _, rec := range c.handles {
		if !rec.expired() {
			handles = append(handles, rec.h)
		}
	}
	c.handles = nil
	c.mu.Unlock()

	if sig != nil {
		sig.Stop()
	}
	for _, h := range handles {
		h.forceClose()
	}
}

// unregister removes the handle's record along with any expired records.
func (c *Coordinator) unregister(h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.handles[:0]
	for _, rec := range c.handles {
		if rec.expired() || rec.h == h {
			continue
		}
		kept = append(kept, rec)
	}
	c.handles = kept
}

// pruneRecords drops expired records. Callers hold c.mu.
func (c *Coordinator) pruneRecords() {
	kept := c.handles[:0]
	for _, rec := range c.handles {
		if rec.expired() {
			continue
		}
		kept = append(kept, rec)
	}
	c.handles = kept
}

func (c *Coordinator) retain() {
	c.refs.Add(1)
}

// release drops one reference. The last release prunes dead registry entries
// (including this coordinator's own slot) and tears the coordinator down.
func (c *Coordinator) release() {
	registryMu.Lock()
	last := c.refs.Add(-1) == 0
	if last {
		pruneRegistryLocked()
	}
	registryMu.Unlock()

	if last {
		c.teardown()
	}
}

// Release drops the reference obtained from GetCoordinator or
// ExistingCoordinator.
func (c *Coordinator) Release() {
	c.release()
}

func (c *Coordinator) teardown() {
	c.mu.Lock()
	sig := c.signaler
	c.signaler = nil
	c.mu.Unlock()

	if sig != nil {
		sig.Stop()
	}
	c.pipe.close()
	c.opts.Logger.Debug("coordinator torn down", "path", c.path)
}
