// Package changeset accumulates per-table and per-collection change
// information across version ranges of a versioned store.
//
// A Builder collects the row index sets (insertions, deletions, modifications)
// of one table or collection. A Bucket groups builders for the half-open
// version range between two notifier registration versions; the notification
// pipeline folds buckets latest-to-earliest so that a subscriber registered at
// an older version observes the union of changes from its registration version
// through the converged version.
package changeset

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// Builder accumulates the changed row indexes of a single table or collection.
type Builder struct {
	insertions    *roaring.Bitmap
	deletions     *roaring.Bitmap
	modifications *roaring.Bitmap
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		insertions:    roaring.New(),
		deletions:     roaring.New(),
		modifications: roaring.New(),
	}
}

// Insert records newly inserted rows.
func (b *Builder) Insert(rows ...uint32) {
	b.insertions.AddMany(rows)
}

// Delete records deleted rows.
func (b *Builder) Delete(rows ...uint32) {
	b.deletions.AddMany(rows)
}

// Modify records modified rows.
func (b *Builder) Modify(rows ...uint32) {
	b.modifications.AddMany(rows)
}

// Insertions returns the inserted row indexes in ascending order.
func (b *Builder) Insertions() []uint32 { return b.insertions.ToArray() }

// Deletions returns the deleted row indexes in ascending order.
func (b *Builder) Deletions() []uint32 { return b.deletions.ToArray() }

// Modifications returns the modified row indexes in ascending order.
func (b *Builder) Modifications() []uint32 { return b.modifications.ToArray() }

// Empty reports whether no changes have been recorded.
func (b *Builder) Empty() bool {
	return b.insertions.IsEmpty() && b.deletions.IsEmpty() && b.modifications.IsEmpty()
}

// Merge folds the changes of o into b. Merge is associative, so a chain of
// per-range builders can be folded in any grouping as long as order is kept.
func (b *Builder) Merge(o *Builder) {
	if o == nil {
		return
	}
	b.insertions.Or(o.insertions)
	b.deletions.Or(o.deletions)
	b.modifications.Or(o.modifications)
}

// Clone returns a deep copy of b.
func (b *Builder) Clone() *Builder {
	return &Builder{
		insertions:    b.insertions.Clone(),
		deletions:     b.deletions.Clone(),
		modifications: b.modifications.Clone(),
	}
}
