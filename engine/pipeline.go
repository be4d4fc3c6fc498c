package engine

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/mvgo/changeset"
	"github.com/hupe1980/mvgo/core"
	"github.com/hupe1980/mvgo/store"
)

// notificationPipeline advances independently-registered notifiers through
// committed versions and converges them on a common version in a single pass
// over the transaction history.
//
// It owns two helper store handles: the advancer fast-forwards newly
// registered notifiers from their source versions, the runner executes every
// converged notifier. Both are touched only under mu, except during the
// explicitly carved-out lock-free run window.
//
// An open failure for either handle becomes the sticky pipeline error: it is
// never cleared, opening is never retried, and every notifier observes it
// through its Deliver call for the lifetime of the coordinator.
type notificationPipeline struct {
	c *Coordinator

	// runMu serializes run invocations end to end, including the lock-free
	// diff window. The commit hook runs inline on the writer's goroutine
	// when no signaler is configured, so run must tolerate being invoked
	// from several goroutines at once.
	runMu sync.Mutex

	mu       sync.Mutex
	cfg      core.Config
	haveCfg  bool
	advancer store.Handle
	runner   store.Handle

	newNotifiers []Notifier
	notifiers    []Notifier

	err        error
	errLogOnce rate.Sometimes
}

func (p *notificationPipeline) init(c *Coordinator) {
	p.c = c
	p.errLogOnce = rate.Sometimes{First: 1}
}

// setConfig snapshots the coordinator's established configuration for helper
// handle opens. Called whenever the coordinator (re-)establishes its config.
// Notifiers registered before the first configuration waited for it; the first
// setConfig performs their deferred version pin.
func (p *notificationPipeline) setConfig(cfg core.Config) {
	p.mu.Lock()
	p.cfg = cfg
	first := !p.haveCfg
	p.haveCfg = true
	if first && len(p.newNotifiers) > 0 {
		v := core.Unbounded
		for _, n := range p.newNotifiers {
			if nv := n.Version(); nv.Less(v) {
				v = nv
			}
		}
		p.pinVersion(v)
	}
	p.mu.Unlock()
}

// fail records the sticky pipeline error. Once set it is never cleared and no
// helper open is retried; recreating the coordinator is the only reset path.
func (p *notificationPipeline) fail(err error) {
	p.err = err
	p.errLogOnce.Do(func() {
		p.c.opts.Logger.Error("notification pipeline disabled",
			"path", p.c.path,
			"error", err,
		)
	})
}

// register pins the helper store to at least the notifier's source version
// and queues it for the next run.
func (p *notificationPipeline) register(n Notifier) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pinVersion(n.Version())
	p.newNotifiers = append(p.newNotifiers, n)
	p.c.opts.Metrics.RecordRegister()
}

// pinVersion makes sure the advancer handle holds a read lock on a version no
// newer than v, so the transaction history back to v stays available.
func (p *notificationPipeline) pinVersion(v core.Version) {
	if !p.haveCfg {
		// No configuration established yet; the sticky error is
		// reserved for real store failures, so the pin is deferred to
		// setConfig instead of opening against a zero config.
		return
	}
	if p.err != nil {
		// The notifier will receive the sticky error on delivery.
		return
	}

	if p.advancer == nil {
		h, err := p.c.opts.Storage.Open(p.cfg)
		if err != nil {
			p.fail(err)
			return
		}
		if err := h.BeginRead(v); err != nil {
			h.Close()
			p.fail(err)
			return
		}
		p.advancer = h
		return
	}

	if len(p.newNotifiers) == 0 {
		// First pending notifier: nothing depends on the previous
		// snapshot, so just begin a fresh read.
		if err := p.advancer.BeginRead(v); err != nil {
			p.fail(err)
		}
		return
	}

	if v.Less(p.advancer.Version()) {
		// Handover data referencing the current snapshot is not
		// retained once the read ends, so the pin has to move back to
		// cover the oldest outstanding dependency.
		p.advancer.EndRead()
		if err := p.advancer.BeginRead(v); err != nil {
			p.fail(err)
		}
	}
}

// openRunner makes sure the runner handle exists and holds a read
// transaction. Only called when no sticky error is set.
func (p *notificationPipeline) openRunner() {
	if p.runner == nil {
		h, err := p.c.opts.Storage.Open(p.cfg)
		if err != nil {
			p.fail(err)
			return
		}
		if err := h.BeginRead(core.Unbounded); err != nil {
			h.Close()
			p.fail(err)
			return
		}
		p.runner = h
		return
	}
	if len(p.notifiers) == 0 {
		if err := p.runner.BeginRead(core.Unbounded); err != nil {
			p.fail(err)
		}
	}
}

// cleanUpDead removes notifiers that report not-alive from both lists,
// invoking their release hook exactly once. If a list empties, the matching
// helper handle's read transaction ends so the store's version pin is
// released; the handle itself stays open since reopening is costly.
func (p *notificationPipeline) cleanUpDead() {
	swapRemove := func(list []Notifier) ([]Notifier, bool) {
		removed := false
		for i := 0; i < len(list); i++ {
			if list[i].IsAlive() {
				continue
			}
			list[i].ReleaseData()
			list[i] = list[len(list)-1]
			list = list[:len(list)-1]
			i--
			removed = true
		}
		return list, removed
	}

	var removed bool
	if p.notifiers, removed = swapRemove(p.notifiers); removed {
		if len(p.notifiers) == 0 && p.runner != nil {
			p.runner.EndRead()
		}
	}
	if p.newNotifiers, removed = swapRemove(p.newNotifiers); removed {
		if len(p.newNotifiers) == 0 && p.advancer != nil {
			p.advancer.EndRead()
		}
	}
}

// run is invoked synchronously from the commit hook. It converges every
// pending notifier to the current version, advances the active set, computes
// diffs off the lock, and publishes the combined active list.
func (p *notificationPipeline) run() {
	start := time.Now()

	p.runMu.Lock()
	defer p.runMu.Unlock()

	p.mu.Lock()

	p.cleanUpDead()

	if len(p.notifiers) == 0 && len(p.newNotifiers) == 0 {
		p.mu.Unlock()
		return
	}

	if !p.haveCfg {
		// Nothing to advance against until a configuration is
		// established; registrations stay pending.
		p.mu.Unlock()
		return
	}

	if p.err == nil {
		p.openRunner()
	}

	if p.err != nil {
		// Move pending notifiers into the active list unprocessed;
		// they receive the sticky error on delivery.
		p.notifiers = append(p.notifiers, p.newNotifiers...)
		p.newNotifiers = nil
		n := len(p.notifiers)
		err := p.err
		p.mu.Unlock()
		p.c.opts.Metrics.RecordRun(time.Since(start), n, err)
		return
	}

	// Bucket 0 collects the range for already-active notifiers; one more
	// bucket is opened per distinct source version among the pending ones.
	buckets := []*changeset.Bucket{changeset.NewBucket()}
	var version core.Version

	newNotifiers := p.newNotifiers
	p.newNotifiers = nil

	if len(newNotifiers) > 0 {
		// Sort pending notifiers by source version so one forward pass
		// over the transaction log can pull them all to the latest
		// version.
		sort.SliceStable(newNotifiers, func(i, j int) bool {
			return newNotifiers[i].Version().Less(newNotifiers[j].Version())
		})

		cur := changeset.NewBucket()
		buckets = append(buckets, cur)
		version = p.advancer.Version()

		for _, n := range newNotifiers {
			if version != n.Version() {
				// Crossing a source-version boundary: close the
				// current bucket and open the next one. The
				// declared collection interests move along so
				// their tracking continues across the boundary.
				if _, err := p.advancer.Advance(cur, n.Version()); err != nil {
					p.abortRun(start, newNotifiers, err)
					return
				}
				next := changeset.NewBucket()
				next.Lists = cur.TakeLists()
				next.InheritInterest(cur)
				buckets = append(buckets, next)
				cur = next
				version = n.Version()
			}
			// Interest must be declared before advancing past the
			// notifier's version; a notifier must never see change
			// info computed before its interest was registered.
			n.AttachTo(p.advancer)
			n.AddRequiredChangeInfo(cur)
		}

		if _, err := p.advancer.Advance(cur, core.Unbounded); err != nil {
			p.abortRun(start, newNotifiers, err)
			return
		}
		for _, n := range newNotifiers {
			n.Detach()
		}
		version = p.advancer.Version()
		p.advancer.EndRead()
	}

	// Advance the runner over the full range for the active set, with
	// their interests declared into bucket 0 first.
	for _, n := range p.notifiers {
		n.AddRequiredChangeInfo(buckets[0])
	}
	if _, err := p.runner.Advance(buckets[0], version); err != nil {
		p.abortRun(start, newNotifiers, err)
		return
	}
	for _, n := range newNotifiers {
		n.AttachTo(p.runner)
	}

	// Snapshot the combined list, then release the lock: diff computation
	// may run user code and must not block register/unregister.
	notifiers := append(append([]Notifier(nil), p.notifiers...), newNotifiers...)
	p.mu.Unlock()

	changeset.Fold(buckets)

	for _, n := range notifiers {
		n.Run()
	}

	// Reacquire the lock while updating the fields read by other threads.
	p.mu.Lock()
	for _, n := range notifiers {
		n.PrepareHandover()
	}
	p.notifiers = notifiers
	p.cleanUpDead()
	n := len(p.notifiers)
	p.mu.Unlock()

	p.c.opts.Metrics.RecordRun(time.Since(start), n, nil)
	p.c.opts.Logger.Debug("notification pipeline run",
		"path", p.c.path,
		"notifiers", n,
		"version_seq", version.Seq,
		"duration", time.Since(start),
	)
}

// abortRun captures an advance failure as the sticky error and parks the
// pending notifiers in the active list so they observe it on delivery.
// Called with the pipeline lock held; releases it.
func (p *notificationPipeline) abortRun(start time.Time, pending []Notifier, err error) {
	p.fail(err)
	p.notifiers = append(p.notifiers, pending...)
	n := len(p.notifiers)
	p.mu.Unlock()
	p.c.opts.Metrics.RecordRun(time.Since(start), n, err)
}

// readyVersion returns the minimum version among active notifiers with a
// prepared handover, or core.Unbounded if there is none. Callers hold mu.
func (p *notificationPipeline) readyVersion() core.Version {
	v := core.Unbounded
	for _, n := range p.notifiers {
		nv := n.Version()
		if nv.IsZero() {
			continue
		}
		if nv.Less(v) {
			v = nv
		}
	}
	return v
}

// advanceToReady advances the handle's own transaction to the version the
// pipeline has converged on and delivers every matured result against it.
func (p *notificationPipeline) advanceToReady(h *Handle) error {
	p.mu.Lock()
	version := p.readyVersion()
	p.mu.Unlock()

	if version.IsUnbounded() {
		// No async notifiers; just advance to latest.
		return h.advanceTransaction(core.Unbounded)
	}
	if version.Less(h.sh.Version()) {
		// Async results are out of date; ignore.
		return nil
	}

	var delivered []Notifier
	for {
		// Advance without holding the lock: the change callback may
		// run user code.
		if err := h.advanceTransaction(version); err != nil {
			return err
		}

		p.mu.Lock()
		// The notifiers may have converged to a newer version while
		// the lock was dropped; if so, release and re-advance.
		version = p.readyVersion()
		if version.IsUnbounded() {
			p.mu.Unlock()
			return nil
		}
		if version != h.sh.Version() {
			p.mu.Unlock()
			continue
		}

		for _, n := range p.notifiers {
			if n.Deliver(h.sh, p.err) {
				delivered = append(delivered, n)
			}
		}
		p.mu.Unlock()
		break
	}

	for _, n := range delivered {
		n.CallCallbacks()
	}
	p.c.opts.Metrics.RecordDeliver(len(delivered))
	return nil
}

// processAvailable delivers already-matured results against the handle's
// current transaction without advancing it.
func (p *notificationPipeline) processAvailable(h *Handle) {
	var delivered []Notifier

	p.mu.Lock()
	for _, n := range p.notifiers {
		if n.Deliver(h.sh, p.err) {
			delivered = append(delivered, n)
		}
	}
	p.mu.Unlock()

	for _, n := range delivered {
		n.CallCallbacks()
	}
	p.c.opts.Metrics.RecordDeliver(len(delivered))
}

// close releases the helper handles. Called once from coordinator teardown,
// after the commit signaler has stopped. Taking runMu first waits out any
// in-flight inline run before the handles go away.
func (p *notificationPipeline) close() {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.advancer != nil {
		p.advancer.EndRead()
		_ = p.advancer.Close()
		p.advancer = nil
	}
	if p.runner != nil {
		p.runner.EndRead()
		_ = p.runner.Close()
		p.runner = nil
	}
}
