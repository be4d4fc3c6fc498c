package mvgo

import (
	"log/slog"

	"github.com/hupe1980/mvgo/core"
	"github.com/hupe1980/mvgo/engine"
	"github.com/hupe1980/mvgo/store"
)

type options struct {
	cfg      core.Config
	logger   *Logger
	metrics  MetricsCollector
	storage  store.Storage
	signaler func(path string) engine.CommitSignaler
}

// Option configures Open behavior.
type Option func(*options)

// WithReadOnly opens the file without write access.
func WithReadOnly() Option {
	return func(o *options) {
		o.cfg.ReadOnly = true
	}
}

// WithInMemory keeps the file contents purely in memory; the path only serves
// as the coordinator identity.
func WithInMemory() Option {
	return func(o *options) {
		o.cfg.InMemory = true
	}
}

// WithEncryptionKey sets the key the file is encrypted with. Every open of
// the same path must use the same key.
func WithEncryptionKey(key []byte) Option {
	return func(o *options) {
		o.cfg.EncryptionKey = key
	}
}

// WithSchema sets the schema definition and its version. Without this option
// the schema version is left unversioned, which accepts whatever version the
// file already has.
func WithSchema(schema core.Schema, version uint64) Option {
	return func(o *options) {
		o.cfg.Schema = schema
		o.cfg.SchemaVersion = version
	}
}

// WithCache controls per-goroutine handle reuse. Enabled by default.
func WithCache(enabled bool) Option {
	return func(o *options) {
		o.cfg.Cache = enabled
	}
}

// WithAutomaticChangeNotifications controls whether a commit-signal listener
// is started for writable files. Enabled by default.
func WithAutomaticChangeNotifications(enabled bool) Option {
	return func(o *options) {
		o.cfg.AutomaticChangeNotifications = enabled
	}
}

// WithStorage sets the storage collaborator used to open the underlying
// versioned file. Defaults to the in-memory reference store.
func WithStorage(s store.Storage) Option {
	return func(o *options) {
		o.storage = s
	}
}

// WithCommitSignaler sets the commit-signaler factory, e.g. to use the FIFO
// signaler for cross-process notifications:
//
//	mvgo.Open(path, mvgo.WithCommitSignaler(func(p string) engine.CommitSignaler {
//	    return engine.NewFIFOSignaler(p)
//	}))
func WithCommitSignaler(fn func(path string) engine.CommitSignaler) Option {
	return func(o *options) {
		o.signaler = fn
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metrics = mc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		cfg: core.Config{
			SchemaVersion:                core.NotVersioned,
			Cache:                        true,
			AutomaticChangeNotifications: true,
		},
		logger:  NoopLogger(),
		metrics: NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metrics == nil {
		o.metrics = NoopMetricsCollector{}
	}
	return o
}

func (o options) engineOptions() []func(*engine.Options) {
	return []func(*engine.Options){
		func(eo *engine.Options) {
			eo.Storage = o.storage
			eo.Logger = o.logger.Logger
			eo.Metrics = o.metrics
			eo.NewSignaler = o.signaler
		},
	}
}
