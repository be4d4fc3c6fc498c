package changeset

import (
	"encoding/binary"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// MarshalBinary encodes the builder as three length-prefixed roaring bitmaps.
func (b *Builder) MarshalBinary() ([]byte, error) {
	var out []byte
	for _, bm := range []*roaring.Bitmap{b.insertions, b.deletions, b.modifications} {
		data, err := bm.ToBytes()
		if err != nil {
			return nil, fmt.Errorf("changeset: marshal bitmap: %w", err)
		}
		out = binary.LittleEndian.AppendUint32(out, uint32(len(data)))
		out = append(out, data...)
	}
	return out, nil
}

// UnmarshalBinary decodes data produced by MarshalBinary, replacing the
// builder's contents.
func (b *Builder) UnmarshalBinary(data []byte) error {
	bitmaps := make([]*roaring.Bitmap, 0, 3)
	for i := 0; i < 3; i++ {
		if len(data) < 4 {
			return fmt.Errorf("changeset: truncated builder data")
		}
		n := binary.LittleEndian.Uint32(data)
		data = data[4:]
		if uint32(len(data)) < n {
			return fmt.Errorf("changeset: truncated bitmap data")
		}
		bm := roaring.New()
		if err := bm.UnmarshalBinary(data[:n]); err != nil {
			return fmt.Errorf("changeset: unmarshal bitmap: %w", err)
		}
		bitmaps = append(bitmaps, bm)
		data = data[n:]
	}
	if len(data) != 0 {
		return fmt.Errorf("changeset: %d trailing bytes after builder data", len(data))
	}
	b.insertions, b.deletions, b.modifications = bitmaps[0], bitmaps[1], bitmaps[2]
	return nil
}
