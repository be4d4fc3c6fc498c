// Package mvgo provides the coordination layer of an embedded,
// multi-version-concurrency object database.
//
// A process-wide registry guarantees at most one coordinator per store file.
// The coordinator hands out read/write handles across goroutines, validates
// that concurrent opens use compatible configurations, and drives an
// asynchronous notification pipeline that advances subscribed notifiers
// through committed versions without blocking readers or writers.
//
// # Quick start
//
//	db, err := mvgo.Open("/data/app.mv")
//	if err != nil { ... }
//	defer db.Close()
//
//	// Commit a write; every coordinator on the path is signaled.
//	_, err = db.Write(func(tx *store.Tx) error {
//	    tx.Insert(0, 1, 2, 3)
//	    return nil
//	})
//
//	// React to commits from any goroutine or process.
//	go func() {
//	    for range db.Notifications() {
//	        _ = db.Refresh()
//	    }
//	}()
//
// # Collaborators
//
// The transactional storage engine is consumed through the store.Storage and
// store.Handle interfaces; an in-memory reference implementation ships in the
// store package. Change subscribers implement engine.Notifier and are
// registered through DB.Watch. Cross-process commit signaling is pluggable
// via engine.CommitSignaler.
//
// # Configuration compatibility
//
// The first successful open of a path establishes its configuration. Later
// opens must match read-only, in-memory and encryption-key settings, and the
// schema version unless they leave it unversioned; a mismatch fails with
// ErrMismatchedConfig and the established configuration stays intact.
package mvgo
