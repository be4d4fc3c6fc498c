package store

import (
	"bytes"
	"errors"
	"os"
	"sync"

	"github.com/hupe1980/mvgo/changeset"
	"github.com/hupe1980/mvgo/core"
)

// Default is the process-wide reference storage used when no Storage is
// configured explicitly.
var Default Storage = NewMemStorage()

// MemStorage is the in-memory reference implementation of Storage.
//
// Files are kept per path for the lifetime of the process, so independently
// opened handles for the same path share one commit history — mirroring how a
// real storage engine shares state through the file system. Files opened with
// a non-empty path and InMemory unset additionally persist their commit
// history to a journal and replay it on the first open.
type MemStorage struct {
	mu    sync.Mutex
	files map[string]*memFile
}

// NewMemStorage creates an empty MemStorage.
func NewMemStorage() *MemStorage {
	return &MemStorage{files: make(map[string]*memFile)}
}

// Open implements Storage.
func (s *MemStorage) Open(cfg core.Config) (Handle, error) {
	if cfg.Path == "" {
		return nil, &AccessError{Path: cfg.Path, Err: errors.New("empty path")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[cfg.Path]
	if !ok {
		var err error
		f, err = newMemFile(cfg)
		if err != nil {
			return nil, err
		}
		s.files[cfg.Path] = f
	} else if !bytes.Equal(f.key, cfg.EncryptionKey) {
		return nil, &AccessError{Path: cfg.Path, Err: errors.New("decryption failed")}
	}

	return &memHandle{file: f, readOnly: cfg.ReadOnly}, nil
}

// Remove drops the in-memory state for a path. It does not delete a journal
// file; callers manage on-disk artifacts themselves.
func (s *MemStorage) Remove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[path]; ok {
		f.closeJournal()
		delete(s.files, path)
	}
}

func newMemFile(cfg core.Config) (*memFile, error) {
	f := &memFile{
		path:    cfg.Path,
		key:     append([]byte(nil), cfg.EncryptionKey...),
		schema:  cfg.Schema,
		version: core.Version{Seq: 1},
	}

	if cfg.InMemory {
		return f, nil
	}

	if cfg.ReadOnly {
		if _, err := os.Stat(cfg.Path); err != nil {
			return nil, &AccessError{Path: cfg.Path, Err: err}
		}
	}

	j, entries, err := OpenJournal(cfg.Path)
	if err != nil {
		return nil, &AccessError{Path: cfg.Path, Err: err}
	}
	f.journal = j
	f.commits = entries
	if n := len(entries); n > 0 {
		f.version = entries[n-1].Version
	}
	return f, nil
}

// memFile is the shared state of one open path: an append-only sequence of
// commit records plus the current version.
type memFile struct {
	mu      sync.RWMutex
	path    string
	key     []byte
	schema  core.Schema
	commits []CommitEntry
	version core.Version
	journal *Journal
}

func (f *memFile) latest() core.Version {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.version
}

func (f *memFile) closeJournal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.journal != nil {
		_ = f.journal.Close()
		f.journal = nil
	}
}

// collect records every commit in (from, to] into info, honoring the declared
// table and collection interests.
func (f *memFile) collect(info *changeset.Bucket, from, to core.Version) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for i := range f.commits {
		e := &f.commits[i]
		if !from.Less(e.Version) || to.Less(e.Version) {
			continue
		}
		for table, b := range e.Tables {
			if info.Requires(table) {
				info.Table(table).Merge(b)
			}
		}
		for _, le := range e.Lists {
			for _, lc := range info.Lists {
				if lc.Table == le.Table && lc.Column == le.Column && lc.Row == le.Row {
					lc.Changes.Merge(le.Changes)
				}
			}
		}
	}
}

func (f *memFile) commit(fn func(tx *Tx) error) (core.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tx := &Tx{tables: make(map[uint32]*changeset.Builder)}
	if err := fn(tx); err != nil {
		return core.Version{}, err
	}

	v := core.Version{Seq: f.version.Seq + 1, Gen: f.version.Gen}
	entry := CommitEntry{Version: v, Tables: tx.tables, Lists: tx.lists}
	if f.journal != nil {
		if err := f.journal.Append(entry); err != nil {
			return core.Version{}, err
		}
	}
	f.commits = append(f.commits, entry)
	f.version = v
	return v, nil
}

// memHandle is one open view of a memFile.
type memHandle struct {
	file     *memFile
	readOnly bool

	mu      sync.Mutex
	reading bool
	version core.Version
	closed  bool
}

var (
	_ Handle = (*memHandle)(nil)
	_ Writer = (*memHandle)(nil)
)

// BeginRead implements Handle.
func (h *memHandle) BeginRead(v core.Version) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("store: handle is closed")
	}

	latest := h.file.latest()
	if v.IsZero() || v.IsUnbounded() {
		v = latest
	} else if latest.Less(v) {
		return errors.New("store: version is not committed yet")
	}

	h.reading = true
	h.version = v
	return nil
}

// EndRead implements Handle.
func (h *memHandle) EndRead() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reading = false
}

// Advance implements Handle.
func (h *memHandle) Advance(info *changeset.Bucket, target core.Version) (core.Version, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return core.Version{}, errors.New("store: handle is closed")
	}
	if !h.reading {
		return core.Version{}, ErrNoReadTransaction
	}

	latest := h.file.latest()
	if target.IsZero() || target.IsUnbounded() || latest.Less(target) {
		target = latest
	}
	if target.Less(h.version) {
		return core.Version{}, errors.New("store: cannot advance backwards")
	}

	if info != nil {
		h.file.collect(info, h.version, target)
	}
	h.version = target
	return h.version, nil
}

// Version implements Handle.
func (h *memHandle) Version() core.Version {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.version
}

// Close implements Handle.
func (h *memHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reading = false
	h.closed = true
	return nil
}

// Commit implements Writer.
func (h *memHandle) Commit(fn func(tx *Tx) error) (core.Version, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return core.Version{}, errors.New("store: handle is closed")
	}
	if h.readOnly {
		h.mu.Unlock()
		return core.Version{}, ErrReadOnly
	}
	h.mu.Unlock()

	return h.file.commit(fn)
}

// Tx records the mutations of a single commit.
type Tx struct {
	tables map[uint32]*changeset.Builder
	lists  []ListEntry
}

func (tx *Tx) table(table uint32) *changeset.Builder {
	b, ok := tx.tables[table]
	if !ok {
		b = changeset.NewBuilder()
		tx.tables[table] = b
	}
	return b
}

// Insert records rows inserted into a table.
func (tx *Tx) Insert(table uint32, rows ...uint32) {
	tx.table(table).Insert(rows...)
}

// Delete records rows deleted from a table.
func (tx *Tx) Delete(table uint32, rows ...uint32) {
	tx.table(table).Delete(rows...)
}

// Modify records rows modified in a table.
func (tx *Tx) Modify(table uint32, rows ...uint32) {
	tx.table(table).Modify(rows...)
}

func (tx *Tx) list(table, column, row uint32) *changeset.Builder {
	for _, le := range tx.lists {
		if le.Table == table && le.Column == column && le.Row == row {
			return le.Changes
		}
	}
	le := ListEntry{Table: table, Column: column, Row: row, Changes: changeset.NewBuilder()}
	tx.lists = append(tx.lists, le)
	return le.Changes
}

// InsertList records elements inserted into a collection property.
func (tx *Tx) InsertList(table, column, row uint32, indexes ...uint32) {
	tx.list(table, column, row).Insert(indexes...)
}

// DeleteList records elements deleted from a collection property.
func (tx *Tx) DeleteList(table, column, row uint32, indexes ...uint32) {
	tx.list(table, column, row).Delete(indexes...)
}

// ModifyList records elements modified within a collection property.
func (tx *Tx) ModifyList(table, column, row uint32, indexes ...uint32) {
	tx.list(table, column, row).Modify(indexes...)
}
