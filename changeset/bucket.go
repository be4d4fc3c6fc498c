package changeset

// ListChange tracks the changes of one collection-valued property, identified
// by the (table, column, row) triple of the object owning it. The Changes
// builder is shared with the subscriber that declared the interest, so changes
// recorded into a later bucket's copy of the record remain visible to it.
type ListChange struct {
	Table  uint32
	Column uint32
	Row    uint32

	Changes *Builder
}

// Bucket collects change information for the half-open version range between
// two consecutive notifier registration versions.
//
// Interest must be declared (RequireTable, RequireList, RequireAll) before the
// range is advanced over; the store only records changes for declared tables
// and collections.
type Bucket struct {
	// Lists holds the declared collection interests. When the pipeline
	// closes a bucket and opens the next one, the list records move to the
	// new bucket so collection tracking continues across range boundaries.
	Lists []ListChange

	tables   []*Builder
	required map[uint32]struct{}
	all      bool
}

// NewBucket creates an empty Bucket.
func NewBucket() *Bucket {
	return &Bucket{required: make(map[uint32]struct{})}
}

// RequireTable declares that changes to the given table must be tracked.
func (b *Bucket) RequireTable(table uint32) {
	b.required[table] = struct{}{}
}

// RequireAll declares interest in every table. Used by front-end handles that
// report all changes to their change callback.
func (b *Bucket) RequireAll() {
	b.all = true
}

// RequireList declares interest in one collection and returns the builder its
// changes accumulate into. Declaring the same collection twice yields distinct
// records; ReconcileLists merges them after the run.
func (b *Bucket) RequireList(table, column, row uint32) *Builder {
	lc := ListChange{Table: table, Column: column, Row: row, Changes: NewBuilder()}
	b.Lists = append(b.Lists, lc)
	return lc.Changes
}

// Requires reports whether changes to the given table must be tracked.
func (b *Bucket) Requires(table uint32) bool {
	if b.all {
		return true
	}
	_, ok := b.required[table]
	return ok
}

// Table returns the builder for the given table index, creating it if needed.
func (b *Bucket) Table(table uint32) *Builder {
	for uint32(len(b.tables)) <= table {
		b.tables = append(b.tables, nil)
	}
	if b.tables[table] == nil {
		b.tables[table] = NewBuilder()
	}
	return b.tables[table]
}

// TableIfChanged returns the builder for the given table index, or nil if no
// changes were recorded for it.
func (b *Bucket) TableIfChanged(table uint32) *Builder {
	if uint32(len(b.tables)) <= table {
		return nil
	}
	return b.tables[table]
}

// HasTableChanges reports whether any table-level changes were recorded.
func (b *Bucket) HasTableChanges() bool {
	for _, t := range b.tables {
		if t != nil && !t.Empty() {
			return true
		}
	}
	return false
}

// TakeLists removes and returns the declared collection interests, for moving
// them into the next bucket at a version-range boundary.
func (b *Bucket) TakeLists() []ListChange {
	l := b.Lists
	b.Lists = nil
	return l
}

// InheritInterest copies the declared table interests of o, so tracking
// continues across a version-range boundary. Interests only ever flow
// forward: a subscriber may receive changes recorded after its declaration,
// never before it.
func (b *Bucket) InheritInterest(o *Bucket) {
	for t := range o.required {
		b.required[t] = struct{}{}
	}
	if o.all {
		b.all = true
	}
}

// ReconcileLists merges duplicate records that refer to the same logical
// collection, so that multiple subscriptions to one collection declared at
// different attachment points end up with a single combined diff each.
func (b *Bucket) ReconcileLists() {
	id := func(lc ListChange) [3]uint32 { return [3]uint32{lc.Table, lc.Column, lc.Row} }
	for i := 1; i < len(b.Lists); i++ {
		for j := i; j > 0; j-- {
			if id(b.Lists[i]) == id(b.Lists[j-1]) {
				b.Lists[j-1].Changes.Merge(b.Lists[i].Changes)
			}
		}
	}
}

// Fold merges the table-level changes of buckets back to front, from the last
// bucket down to index 2, folding each bucket into the one before it. After
// Fold, the bucket a subscriber declared its interest into holds the union of
// changes from its own registration version through the converged version.
//
// Bucket 0 is reserved for already-active subscribers and is never folded
// into; it is populated over the full runner range directly. The fold
// direction (latest to earliest) is an invariant of the algorithm: folding
// forward would leak younger ranges into older subscribers' buckets before
// they are complete.
func Fold(buckets []*Bucket) {
	for i := len(buckets) - 1; i > 1; i-- {
		cur := buckets[i]
		if !cur.HasTableChanges() {
			continue
		}
		prev := buckets[i-1]
		if len(prev.tables) == 0 {
			prev.tables = append([]*Builder(nil), cur.tables...)
			continue
		}
		for j := 0; j < len(prev.tables) && j < len(cur.tables); j++ {
			if cur.tables[j] == nil {
				continue
			}
			if prev.tables[j] == nil {
				prev.tables[j] = cur.tables[j]
				continue
			}
			prev.tables[j].Merge(cur.tables[j])
		}
		for j := len(prev.tables); j < len(cur.tables); j++ {
			prev.tables = append(prev.tables, cur.tables[j])
		}
	}
	for _, b := range buckets {
		b.ReconcileLists()
	}
}
