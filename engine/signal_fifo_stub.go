//go:build !unix

package engine

import "errors"

// FIFOSignaler is only available on unix platforms.
type FIFOSignaler struct {
	path string
}

// NewFIFOSignaler creates a signaler whose pipe would live at path + ".note".
func NewFIFOSignaler(path string) *FIFOSignaler {
	return &FIFOSignaler{path: path + ".note"}
}

// Start implements CommitSignaler.
func (s *FIFOSignaler) Start(func()) error {
	return errors.New("engine: fifo signaler is not supported on this platform")
}

// Notify implements CommitSignaler.
func (s *FIFOSignaler) Notify() {}

// Stop implements CommitSignaler.
func (s *FIFOSignaler) Stop() {}
