package engine

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

var (
	registryMu   sync.Mutex
	coordinators = make(map[string]*Coordinator)
)

// GetCoordinator returns the live coordinator for path, creating one if none
// exists. The returned reference must be balanced with Release. Options only
// apply when the call creates the coordinator.
func GetCoordinator(path string, optFns ...func(*Options)) *Coordinator {
	registryMu.Lock()
	defer registryMu.Unlock()

	c, ok := coordinators[path]
	if !ok || c.refs.Load() == 0 {
		c = newCoordinator(path, applyOptions(optFns))
		coordinators[path] = c
	}
	c.refs.Add(1)
	return c
}

// ExistingCoordinator returns the live coordinator for path without creating
// one. A returned coordinator must be balanced with Release.
func ExistingCoordinator(path string) (*Coordinator, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()

	c, ok := coordinators[path]
	if !ok || c.refs.Load() == 0 {
		return nil, false
	}
	c.refs.Add(1)
	return c, true
}

// ClearCache detaches every coordinator's commit-signal listener, drops all
// registry entries, and closes every currently open handle. Handles are
// closed after the registry lock is released, since closing may re-enter
// coordinator-internal locks.
func ClearCache() {
	var handles []*Handle
	var signalers []CommitSignaler

	registryMu.Lock()
	for _, c := range coordinators {
		if c.refs.Load() == 0 {
			continue
		}
		c.mu.Lock()
		if c.signaler != nil {
			signalers = append(signalers, c.signaler)
			c.signaler = nil
		}
		for _, rec := range c.handles {
			if !rec.expired() {
				handles = append(handles, rec.h)
			}
		}
		c.mu.Unlock()
	}
	clear(coordinators)
	registryMu.Unlock()

	for _, s := range signalers {
		s.Stop()
	}

	var g errgroup.Group
	g.SetLimit(8)
	for _, h := range handles {
		h := h
		g.Go(func() error {
			h.forceClose()
			return nil
		})
	}
	_ = g.Wait()
}

// ClearAllCaches invokes the per-coordinator cache clear on every live
// coordinator, leaving the registry entries in place.
func ClearAllCaches() {
	var live []*Coordinator

	registryMu.Lock()
	for _, c := range coordinators {
		if c.refs.Load() == 0 {
			continue
		}
		c.refs.Add(1)
		live = append(live, c)
	}
	registryMu.Unlock()

	for _, c := range live {
		c.ClearCache()
		c.Release()
	}
}

// pruneRegistryLocked removes entries whose coordinator has no owners left.
// Invoked from a coordinator's own teardown rather than a background sweep.
func pruneRegistryLocked() {
	for path, c := range coordinators {
		if c.refs.Load() == 0 {
			delete(coordinators, path)
		}
	}
}

// registrySize reports the number of registry entries; used by tests.
func registrySize() int {
	registryMu.Lock()
	defer registryMu.Unlock()
	return len(coordinators)
}
