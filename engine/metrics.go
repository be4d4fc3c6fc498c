package engine

import "time"

// MetricsCollector receives operational metrics from the coordination layer.
// The root mvgo package provides ready-made implementations.
type MetricsCollector interface {
	// RecordAcquire is called after each handle acquisition. cached
	// reports whether an existing handle was reused.
	RecordAcquire(cached bool, err error)

	// RecordRegister is called when a notifier is registered.
	RecordRegister()

	// RecordRun is called after each notification pipeline run. notifiers
	// is the number of notifiers processed; err is the sticky pipeline
	// error if one is set.
	RecordRun(duration time.Duration, notifiers int, err error)

	// RecordDeliver is called after results are delivered to a handle.
	RecordDeliver(delivered int)
}

type noopMetrics struct{}

func (noopMetrics) RecordAcquire(bool, error)           {}
func (noopMetrics) RecordRegister()                     {}
func (noopMetrics) RecordRun(time.Duration, int, error) {}
func (noopMetrics) RecordDeliver(int)                   {}
