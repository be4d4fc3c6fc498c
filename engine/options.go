package engine

import (
	"io"
	"log/slog"

	"github.com/hupe1980/mvgo/store"
)

// Options configures a Coordinator at creation time. Only the first
// GetCoordinator call for a path applies its options; later calls join the
// existing coordinator unchanged.
type Options struct {
	// Storage opens the underlying versioned files. Defaults to
	// store.Default.
	Storage store.Storage

	// Logger receives structured logs. Defaults to a discarding logger.
	Logger *slog.Logger

	// Metrics receives operational metrics. Defaults to a no-op collector.
	Metrics MetricsCollector

	// NewSignaler constructs the commit-signal listener for a path when a
	// writable configuration with automatic change notifications is
	// established. Defaults to the in-process signaler.
	NewSignaler func(path string) CommitSignaler
}

// WithStorage sets the storage collaborator.
func WithStorage(s store.Storage) func(*Options) {
	return func(o *Options) {
		o.Storage = s
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) func(*Options) {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMetricsCollector sets the metrics collector.
func WithMetricsCollector(mc MetricsCollector) func(*Options) {
	return func(o *Options) {
		o.Metrics = mc
	}
}

// WithSignaler sets the commit-signaler factory.
func WithSignaler(fn func(path string) CommitSignaler) func(*Options) {
	return func(o *Options) {
		o.NewSignaler = fn
	}
}

func applyOptions(optFns []func(*Options)) Options {
	o := Options{}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.Storage == nil {
		o.Storage = store.Default
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Metrics == nil {
		o.Metrics = noopMetrics{}
	}
	if o.NewSignaler == nil {
		o.NewSignaler = func(path string) CommitSignaler {
			return NewInProcSignaler(path)
		}
	}
	return o
}
