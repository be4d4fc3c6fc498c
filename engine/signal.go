package engine

import "sync"

// CommitSignaler is the commit-signaling collaborator: it invokes the
// coordinator's on-commit hook whenever any writer on the same path commits,
// and lets the local writer poke every listener on the path.
//
// The mechanism itself is a black box to the coordination layer; the
// in-process implementation below covers embedders running in one process,
// the FIFO implementation (unix only) covers cross-process signaling.
type CommitSignaler interface {
	// Start begins listening and invokes onCommit, from an arbitrary
	// goroutine, whenever a commit is signaled. A start failure makes the
	// establishing handle acquisition fail.
	Start(onCommit func()) error

	// Notify signals every listener on the path, including this one.
	Notify()

	// Stop detaches the listener and waits for an in-flight onCommit
	// invocation to return.
	Stop()
}

var (
	inprocMu        sync.Mutex
	inprocListeners = make(map[string][]*InProcSignaler)
)

// InProcSignaler fans commit signals out to every coordinator on the same
// path within this process. Signals are coalesced: a listener that has not
// yet drained a pending signal sees a burst of commits as one.
type InProcSignaler struct {
	path string
	ch   chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewInProcSignaler creates a signaler for the given path.
func NewInProcSignaler(path string) *InProcSignaler {
	return &InProcSignaler{path: path}
}

// Start implements CommitSignaler.
func (s *InProcSignaler) Start(onCommit func()) error {
	s.ch = make(chan struct{}, 1)
	s.done = make(chan struct{})

	inprocMu.Lock()
	inprocListeners[s.path] = append(inprocListeners[s.path], s)
	inprocMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.done:
				return
			case <-s.ch:
				onCommit()
			}
		}
	}()
	return nil
}

// Notify implements CommitSignaler.
func (s *InProcSignaler) Notify() {
	inprocMu.Lock()
	listeners := append([]*InProcSignaler(nil), inprocListeners[s.path]...)
	inprocMu.Unlock()

	for _, l := range listeners {
		select {
		case l.ch <- struct{}{}:
		default:
			// A signal is already pending; commits coalesce.
		}
	}
}

// Stop implements CommitSignaler.
func (s *InProcSignaler) Stop() {
	inprocMu.Lock()
	listeners := inprocListeners[s.path]
	for i, l := range listeners {
		if l == s {
			inprocListeners[s.path] = append(listeners[:i:i], listeners[i+1:]...)
			break
		}
	}
	if len(inprocListeners[s.path]) == 0 {
		delete(inprocListeners, s.path)
	}
	inprocMu.Unlock()

	close(s.done)
	s.wg.Wait()
}
