package core

import "bytes"

// NotVersioned is the sentinel schema version meaning the caller does not
// constrain the schema version of an already-open file.
const NotVersioned = ^uint64(0)

// Config describes how a file is opened.
//
// The first configuration successfully applied to a path becomes the
// coordinator's configuration; later opens of the same path only validate
// compatibility against it (see CompatibleWith).
type Config struct {
	// Path is the file path. It is also the coordinator registry key.
	Path string

	// ReadOnly opens the file without write access.
	ReadOnly bool

	// InMemory keeps the file contents purely in memory.
	InMemory bool

	// EncryptionKey is the optional key the file is encrypted with.
	EncryptionKey []byte

	// SchemaVersion is the expected schema version, or NotVersioned to
	// accept whatever version the file already has.
	SchemaVersion uint64

	// Schema is the schema definition for the file.
	Schema Schema

	// Cache enables per-goroutine handle reuse within a coordinator.
	Cache bool

	// AutomaticChangeNotifications starts a commit-signal listener so that
	// commits from any thread or process drive the notification pipeline.
	AutomaticChangeNotifications bool
}

// CompatibleWith reports whether a new configuration may open a file already
// governed by c. On mismatch it returns the name of the first divergent field.
//
// Schema-divergence detection on re-open is a known, deliberate gap: two
// compatible configurations may still carry different schema definitions.
func (c Config) CompatibleWith(n Config) (string, bool) {
	if c.ReadOnly != n.ReadOnly {
		return "read permissions", false
	}
	if c.InMemory != n.InMemory {
		return "inMemory setting", false
	}
	if !bytes.Equal(c.EncryptionKey, n.EncryptionKey) {
		return "encryption key", false
	}
	if c.SchemaVersion != n.SchemaVersion && n.SchemaVersion != NotVersioned {
		return "schema version", false
	}
	return "", true
}
