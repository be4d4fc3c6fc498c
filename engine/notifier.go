package engine

import (
	"github.com/hupe1980/mvgo/changeset"
	"github.com/hupe1980/mvgo/core"
	"github.com/hupe1980/mvgo/store"
)

// Notifier is a long-lived subscriber advanced by the notification pipeline.
//
// A notifier is registered at a source version. The pipeline fast-forwards it
// to the converged version in a single pass over the transaction history,
// computes its diff off the pipeline lock, and hands the result over for
// pickup on the subscriber's own thread. The diff algorithm itself is the
// notifier's concern; the pipeline only drives the lifecycle below.
//
// A notifier that reports !IsAlive is removed from the pipeline and gets
// exactly one ReleaseData call.
type Notifier interface {
	// Version returns the version the notifier's pending handover is based
	// on, its source version before the first run, or the zero version if
	// no handover is available yet.
	Version() core.Version

	// AttachTo binds the notifier to a store handle for the duration of an
	// advance.
	AttachTo(h store.Handle)

	// Detach unbinds the notifier from its current handle.
	Detach()

	// AddRequiredChangeInfo declares the tables and collections the
	// notifier needs tracked into the bucket covering its version range.
	// It is always called before the range is advanced over.
	AddRequiredChangeInfo(info *changeset.Bucket)

	// Run computes the notifier's diff. It is called without the pipeline
	// lock held and may be expensive.
	Run()

	// PrepareHandover packages the result of Run for cross-thread pickup.
	PrepareHandover()

	// Deliver offers the prepared result (or the sticky pipeline error)
	// against the given handle's transaction. It returns true if the
	// result matured for this version and callbacks should fire.
	Deliver(h store.Handle, err error) bool

	// CallCallbacks invokes the subscriber's callbacks for a delivered
	// result. Called without the pipeline lock held.
	CallCallbacks()

	// IsAlive reports whether the subscriber still wants notifications.
	IsAlive() bool

	// ReleaseData drops retained data. Called exactly once when the
	// notifier is removed after reporting !IsAlive.
	ReleaseData()
}
