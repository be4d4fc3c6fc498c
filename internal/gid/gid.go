// Package gid exposes the numeric ID of the calling goroutine.
//
// Handle caching is scoped to the goroutine that created the handle, which
// requires a stable identity for "the current goroutine". The runtime does
// not expose one, so the ID is parsed out of the first line of a stack trace.
// This is the only supported, allocation-bounded way to obtain it.
package gid

import (
	"bytes"
	"runtime"
	"strconv"
)

var prefix = []byte("goroutine ")

// ID returns the ID of the calling goroutine.
func ID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], prefix)
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
