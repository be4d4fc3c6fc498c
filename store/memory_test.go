package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mvgo/changeset"
	"github.com/hupe1980/mvgo/core"
)

func memConfig(path string) core.Config {
	return core.Config{Path: path, InMemory: true}
}

func TestOpenEmptyPath(t *testing.T) {
	s := NewMemStorage()

	_, err := s.Open(core.Config{})
	var ae *AccessError
	require.ErrorAs(t, err, &ae)
}

func TestOpenSharesFilePerPath(t *testing.T) {
	s := NewMemStorage()

	h1, err := s.Open(memConfig("a"))
	require.NoError(t, err)
	h2, err := s.Open(memConfig("a"))
	require.NoError(t, err)

	v, err := h1.(Writer).Commit(func(tx *Tx) error {
		tx.Insert(0, 1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, h2.BeginRead(core.Unbounded))
	assert.Equal(t, v, h2.Version())
}

func TestOpenEncryptionKeyMismatch(t *testing.T) {
	s := NewMemStorage()

	cfg := memConfig("a")
	cfg.EncryptionKey = []byte("secret")
	_, err := s.Open(cfg)
	require.NoError(t, err)

	cfg.EncryptionKey = []byte("wrong")
	_, err = s.Open(cfg)
	var ae *AccessError
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Error(), "decryption failed")
}

func TestBeginReadVersions(t *testing.T) {
	s := NewMemStorage()
	h, err := s.Open(memConfig("a"))
	require.NoError(t, err)

	w := h.(Writer)
	v1, err := w.Commit(func(tx *Tx) error { tx.Insert(0, 1); return nil })
	require.NoError(t, err)
	v2, err := w.Commit(func(tx *Tx) error { tx.Insert(0, 2); return nil })
	require.NoError(t, err)

	require.NoError(t, h.BeginRead(v1))
	assert.Equal(t, v1, h.Version())

	require.NoError(t, h.BeginRead(core.Unbounded))
	assert.Equal(t, v2, h.Version())

	require.NoError(t, h.BeginRead(core.Version{}))
	assert.Equal(t, v2, h.Version())

	assert.Error(t, h.BeginRead(core.Version{Seq: v2.Seq + 1}))
}

func TestAdvanceRequiresReadTransaction(t *testing.T) {
	s := NewMemStorage()
	h, err := s.Open(memConfig("a"))
	require.NoError(t, err)

	_, err = h.Advance(nil, core.Unbounded)
	assert.ErrorIs(t, err, ErrNoReadTransaction)
}

func TestAdvanceCollectsDeclaredTables(t *testing.T) {
	s := NewMemStorage()
	h, err := s.Open(memConfig("a"))
	require.NoError(t, err)
	require.NoError(t, h.BeginRead(core.Unbounded))

	w := h.(Writer)
	_, err = w.Commit(func(tx *Tx) error {
		tx.Insert(0, 1)
		tx.Modify(1, 5)
		return nil
	})
	require.NoError(t, err)
	_, err = w.Commit(func(tx *Tx) error {
		tx.Delete(0, 1)
		return nil
	})
	require.NoError(t, err)

	info := changeset.NewBucket()
	info.RequireTable(0)

	v, err := h.Advance(info, core.Unbounded)
	require.NoError(t, err)
	assert.Equal(t, v, h.Version())

	assert.Equal(t, []uint32{1}, info.Table(0).Insertions())
	assert.Equal(t, []uint32{1}, info.Table(0).Deletions())
	// Table 1 was never declared.
	assert.Nil(t, info.TableIfChanged(1))
}

func TestAdvanceCollectsDeclaredLists(t *testing.T) {
	s := NewMemStorage()
	h, err := s.Open(memConfig("a"))
	require.NoError(t, err)
	require.NoError(t, h.BeginRead(core.Unbounded))

	_, err = h.(Writer).Commit(func(tx *Tx) error {
		tx.InsertList(1, 2, 3, 0, 1)
		tx.InsertList(9, 9, 9, 7)
		return nil
	})
	require.NoError(t, err)

	info := changeset.NewBucket()
	changes := info.RequireList(1, 2, 3)

	_, err = h.Advance(info, core.Unbounded)
	require.NoError(t, err)

	assert.Equal(t, []uint32{0, 1}, changes.Insertions())
}

func TestAdvancePartialRange(t *testing.T) {
	s := NewMemStorage()
	h, err := s.Open(memConfig("a"))
	require.NoError(t, err)
	require.NoError(t, h.BeginRead(core.Unbounded))

	w := h.(Writer)
	v1, err := w.Commit(func(tx *Tx) error { tx.Insert(0, 1); return nil })
	require.NoError(t, err)
	_, err = w.Commit(func(tx *Tx) error { tx.Insert(0, 2); return nil })
	require.NoError(t, err)

	info := changeset.NewBucket()
	info.RequireAll()

	got, err := h.Advance(info, v1)
	require.NoError(t, err)
	assert.Equal(t, v1, got)
	assert.Equal(t, []uint32{1}, info.Table(0).Insertions())

	// Moving back is not a thing.
	require.NoError(t, h.BeginRead(core.Unbounded))
	_, err = h.Advance(nil, v1)
	assert.Error(t, err)
}

func TestCommitReadOnly(t *testing.T) {
	s := NewMemStorage()
	cfg := memConfig("a")
	_, err := s.Open(cfg)
	require.NoError(t, err)

	cfg.ReadOnly = true
	h, err := s.Open(cfg)
	require.NoError(t, err)

	_, err = h.(Writer).Commit(func(tx *Tx) error { return nil })
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestCommitRollsBackOnError(t *testing.T) {
	s := NewMemStorage()
	h, err := s.Open(memConfig("a"))
	require.NoError(t, err)
	require.NoError(t, h.BeginRead(core.Unbounded))
	before := h.Version()

	boom := assert.AnError
	_, err = h.(Writer).Commit(func(tx *Tx) error {
		tx.Insert(0, 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	v, err := h.Advance(nil, core.Unbounded)
	require.NoError(t, err)
	assert.Equal(t, before, v)
}

func TestClosedHandle(t *testing.T) {
	s := NewMemStorage()
	h, err := s.Open(memConfig("a"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	assert.Error(t, h.BeginRead(core.Unbounded))
	_, err = h.Advance(nil, core.Unbounded)
	assert.Error(t, err)
}
