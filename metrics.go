package mvgo

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/mvgo/engine"
)

// MetricsCollector receives operational metrics from the coordination layer.
// Implement this interface to integrate with monitoring systems.
type MetricsCollector = engine.MetricsCollector

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAcquire(bool, error)           {}
func (NoopMetricsCollector) RecordRegister()                     {}
func (NoopMetricsCollector) RecordRun(time.Duration, int, error) {}
func (NoopMetricsCollector) RecordDeliver(int)                   {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AcquireCount  atomic.Int64
	AcquireCached atomic.Int64
	AcquireErrors atomic.Int64
	RegisterCount atomic.Int64
	RunCount      atomic.Int64
	RunErrors     atomic.Int64
	RunNotifiers  atomic.Int64
	RunTotalNanos atomic.Int64
	DeliverCount  atomic.Int64
	DeliverTotal  atomic.Int64
}

// RecordAcquire implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAcquire(cached bool, err error) {
	b.AcquireCount.Add(1)
	if cached {
		b.AcquireCached.Add(1)
	}
	if err != nil {
		b.AcquireErrors.Add(1)
	}
}

// RecordRegister implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRegister() {
	b.RegisterCount.Add(1)
}

// RecordRun implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRun(duration time.Duration, notifiers int, err error) {
	b.RunCount.Add(1)
	b.RunNotifiers.Add(int64(notifiers))
	b.RunTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RunErrors.Add(1)
	}
}

// RecordDeliver implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDeliver(delivered int) {
	b.DeliverCount.Add(1)
	b.DeliverTotal.Add(int64(delivered))
}

// Stats is a point-in-time snapshot of a BasicMetricsCollector.
type Stats struct {
	AcquireCount  int64
	AcquireCached int64
	AcquireErrors int64
	RegisterCount int64
	RunCount      int64
	RunErrors     int64
	RunNotifiers  int64
	RunAvgNanos   int64
	DeliverCount  int64
	DeliverTotal  int64
}

// GetStats returns a snapshot of the collected metrics.
func (b *BasicMetricsCollector) GetStats() Stats {
	s := Stats{
		AcquireCount:  b.AcquireCount.Load(),
		AcquireCached: b.AcquireCached.Load(),
		AcquireErrors: b.AcquireErrors.Load(),
		RegisterCount: b.RegisterCount.Load(),
		RunCount:      b.RunCount.Load(),
		RunErrors:     b.RunErrors.Load(),
		RunNotifiers:  b.RunNotifiers.Load(),
		DeliverCount:  b.DeliverCount.Load(),
		DeliverTotal:  b.DeliverTotal.Load(),
	}
	if s.RunCount > 0 {
		s.RunAvgNanos = b.RunTotalNanos.Load() / s.RunCount
	}
	return s
}
