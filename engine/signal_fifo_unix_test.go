//go:build unix

package engine

import (
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestFIFOSignalerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	hits := make(chan struct{}, 16)

	s := NewFIFOSignaler(path)
	if err := s.Start(func() { hits <- struct{}{} }); err != nil {
		t.Fatalf("start: %v", err)
	}

	s.Notify()
	select {
	case <-hits:
	case <-time.After(2 * time.Second):
		t.Fatal("no wakeup after notify")
	}

	s.Stop()
	// Stop is idempotent.
	s.Stop()

	s.Notify()
	select {
	case <-hits:
		t.Fatal("wakeup after stop")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFIFOSignalerCrossProcessWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	hits := make(chan struct{}, 16)

	listener := NewFIFOSignaler(path)
	if err := listener.Start(func() { hits <- struct{}{} }); err != nil {
		t.Fatalf("start listener: %v", err)
	}
	defer listener.Stop()

	// A raw write to the pipe stands in for a commit in another process.
	fd, err := unix.Open(path+".note", unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("open pipe: %v", err)
	}
	if _, err := unix.Write(fd, []byte{'c'}); err != nil {
		t.Fatalf("write pipe: %v", err)
	}
	unix.Close(fd)

	select {
	case <-hits:
	case <-time.After(2 * time.Second):
		t.Fatal("no wakeup from the external write")
	}
}
