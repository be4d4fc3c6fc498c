package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/mvgo/changeset"
	"github.com/hupe1980/mvgo/core"
)

// CommitEntry is one committed transaction: the version it produced plus the
// change information recorded against it.
type CommitEntry struct {
	Version core.Version
	Tables  map[uint32]*changeset.Builder
	Lists   []ListEntry
}

// ListEntry is the change information of one collection property within a
// commit.
type ListEntry struct {
	Table   uint32
	Column  uint32
	Row     uint32
	Changes *changeset.Builder
}

// Journal persists the commit history of a reference-store file as a sequence
// of length-prefixed, zstd-compressed records. Concatenated records replay in
// commit order, so appending after a reopen needs no index rewriting.
type Journal struct {
	f   *os.File
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// OpenJournal opens (creating if necessary) the journal at path, replays any
// existing records and leaves the file positioned for appending.
func OpenJournal(path string) (*Journal, []CommitEntry, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, nil, err
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		f.Close()
		return nil, nil, err
	}
	j := &Journal{f: f, enc: enc, dec: dec}

	entries, err := j.replay()
	if err != nil {
		j.Close()
		return nil, nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		j.Close()
		return nil, nil, err
	}
	return j, entries, nil
}

// Append writes one commit record and syncs it to disk.
func (j *Journal) Append(e CommitEntry) error {
	payload, err := encodeEntry(e)
	if err != nil {
		return err
	}
	frame := j.enc.EncodeAll(payload, nil)

	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(frame)))
	if _, err := j.f.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := j.f.Write(frame); err != nil {
		return err
	}
	return j.f.Sync()
}

// Close releases the journal's file and codec resources.
func (j *Journal) Close() error {
	j.enc.Close()
	j.dec.Close()
	return j.f.Close()
}

func (j *Journal) replay() ([]CommitEntry, error) {
	if _, err := j.f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var entries []CommitEntry
	var hdr [4]byte
	for {
		if _, err := io.ReadFull(j.f, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return nil, fmt.Errorf("store: journal header: %w", err)
		}
		frame := make([]byte, binary.LittleEndian.Uint32(hdr[:]))
		if _, err := io.ReadFull(j.f, frame); err != nil {
			return nil, fmt.Errorf("store: journal record: %w", err)
		}
		payload, err := j.dec.DecodeAll(frame, nil)
		if err != nil {
			return nil, fmt.Errorf("store: journal decompress: %w", err)
		}
		e, err := decodeEntry(payload)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
}

func encodeEntry(e CommitEntry) ([]byte, error) {
	var out []byte
	out = binary.LittleEndian.AppendUint64(out, e.Version.Seq)
	out = binary.LittleEndian.AppendUint32(out, e.Version.Gen)

	out = binary.LittleEndian.AppendUint32(out, uint32(len(e.Tables)))
	for table, b := range e.Tables {
		data, err := b.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out = binary.LittleEndian.AppendUint32(out, table)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(data)))
		out = append(out, data...)
	}

	out = binary.LittleEndian.AppendUint32(out, uint32(len(e.Lists)))
	for _, le := range e.Lists {
		data, err := le.Changes.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out = binary.LittleEndian.AppendUint32(out, le.Table)
		out = binary.LittleEndian.AppendUint32(out, le.Column)
		out = binary.LittleEndian.AppendUint32(out, le.Row)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(data)))
		out = append(out, data...)
	}
	return out, nil
}

func decodeEntry(data []byte) (CommitEntry, error) {
	r := entryReader{data: data}
	e := CommitEntry{
		Version: core.Version{Seq: r.uint64(), Gen: r.uint32()},
		Tables:  make(map[uint32]*changeset.Builder),
	}

	for n := r.uint32(); n > 0 && r.err == nil; n-- {
		table := r.uint32()
		b := changeset.NewBuilder()
		if err := r.builder(b); err != nil {
			return CommitEntry{}, err
		}
		e.Tables[table] = b
	}

	for n := r.uint32(); n > 0 && r.err == nil; n-- {
		le := ListEntry{Table: r.uint32(), Column: r.uint32(), Row: r.uint32(), Changes: changeset.NewBuilder()}
		if err := r.builder(le.Changes); err != nil {
			return CommitEntry{}, err
		}
		e.Lists = append(e.Lists, le)
	}

	if r.err != nil {
		return CommitEntry{}, r.err
	}
	return e, nil
}

type entryReader struct {
	data []byte
	err  error
}

func (r *entryReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.data) < n {
		r.err = errors.New("store: truncated journal entry")
		return nil
	}
	out := r.data[:n]
	r.data = r.data[n:]
	return out
}

func (r *entryReader) uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *entryReader) uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *entryReader) builder(b *changeset.Builder) error {
	data := r.take(int(r.uint32()))
	if r.err != nil {
		return r.err
	}
	return b.UnmarshalBinary(data)
}
