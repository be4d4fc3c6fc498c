// Package core provides the small shared value types of mvgo: versions,
// configurations and schema definitions. It has no dependencies on the
// coordination or storage layers so that every other package can import it.
package core

// Version identifies a committed snapshot of a versioned store.
// It is an ordered pair of a commit sequence number and a generation index;
// versions are totally ordered, first by sequence, then by generation.
type Version struct {
	Seq uint64
	Gen uint32
}

// Unbounded is the sentinel version meaning "no constraint". Advancing to
// Unbounded means advancing to the latest committed version.
var Unbounded = Version{Seq: ^uint64(0), Gen: ^uint32(0)}

// IsUnbounded reports whether v is the unbounded sentinel.
func (v Version) IsUnbounded() bool {
	return v == Unbounded
}

// IsZero reports whether v is the zero version. The zero version is used as
// "no version yet" (for example a notifier that has not produced a handover).
func (v Version) IsZero() bool {
	return v == Version{}
}

// Less reports whether v is strictly older than o.
func (v Version) Less(o Version) bool {
	if v.Seq != o.Seq {
		return v.Seq < o.Seq
	}
	return v.Gen < o.Gen
}

// Compare returns -1 if v < o, 0 if v == o and +1 if v > o.
func (v Version) Compare(o Version) int {
	switch {
	case v.Less(o):
		return -1
	case o.Less(v):
		return 1
	default:
		return 0
	}
}
