//go:build unix

package engine

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

// FIFOSignaler signals commits across processes through a named pipe next to
// the store file. Every process on the path writes one byte per commit;
// the listener drains the pipe and invokes the on-commit hook once per burst.
//
// A byte is consumed by exactly one reader, so the FIFO supports one listener
// per path per machine. Multi-listener deployments need a richer mechanism;
// the coordination layer does not care which one.
type FIFOSignaler struct {
	path string

	mu      sync.Mutex
	fd      int
	ctlR    int
	ctlW    int
	started bool
	wg      sync.WaitGroup
}

// NewFIFOSignaler creates a signaler whose pipe lives at path + ".note".
func NewFIFOSignaler(path string) *FIFOSignaler {
	return &FIFOSignaler{path: path + ".note", fd: -1}
}

// Start implements CommitSignaler.
func (s *FIFOSignaler) Start(onCommit func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("engine: fifo signaler already started")
	}

	if err := unix.Mkfifo(s.path, 0o600); err != nil && !errors.Is(err, unix.EEXIST) {
		return err
	}

	// O_RDWR keeps the read end from seeing EOF when other writers close,
	// and keeps our own writes from failing with no reader attached.
	fd, err := unix.Open(s.path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return err
	}

	var ctl [2]int
	if err := unix.Pipe(ctl[:]); err != nil {
		unix.Close(fd)
		return err
	}

	s.fd = fd
	s.ctlR, s.ctlW = ctl[0], ctl[1]
	s.started = true

	s.wg.Add(1)
	go s.listen(onCommit)
	return nil
}

func (s *FIFOSignaler) listen(onCommit func()) {
	defer s.wg.Done()

	fds := []unix.PollFd{
		{Fd: int32(s.fd), Events: unix.POLLIN},
		{Fd: int32(s.ctlR), Events: unix.POLLIN},
	}
	buf := make([]byte, 256)

	for {
		fds[0].Revents = 0
		fds[1].Revents = 0
		if _, err := unix.Poll(fds, -1); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return
		}
		if fds[1].Revents != 0 {
			return
		}
		if fds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		// Drain the pipe so a burst of commits collapses into one hook
		// invocation.
		for {
			n, err := unix.Read(s.fd, buf)
			if n < len(buf) || err != nil {
				break
			}
		}
		onCommit()
	}
}

// Notify implements CommitSignaler.
func (s *FIFOSignaler) Notify() {
	s.mu.Lock()
	fd := s.fd
	s.mu.Unlock()
	if fd < 0 {
		return
	}
	// EAGAIN means the pipe is full, so a wakeup is already pending.
	_, _ = unix.Write(fd, []byte{'c'})
}

// Stop implements CommitSignaler.
func (s *FIFOSignaler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	ctlW := s.ctlW
	s.mu.Unlock()

	_, _ = unix.Write(ctlW, []byte{'q'})
	s.wg.Wait()

	s.mu.Lock()
	unix.Close(s.fd)
	unix.Close(s.ctlR)
	unix.Close(s.ctlW)
	s.fd = -1
	s.mu.Unlock()
}
