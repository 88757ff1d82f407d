package state

import (
	"github.com/RuiFG/streaming/streaming-state/checkpoint"
	"github.com/RuiFG/streaming/streaming-state/codec"
	"github.com/RuiFG/streaming/streaming-state/config"
	"github.com/RuiFG/streaming/streaming-state/index"
	"github.com/RuiFG/streaming/streaming-state/log"
	"github.com/RuiFG/streaming/streaming-state/metrics"
	"github.com/RuiFG/streaming/streaming-state/store"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Environment owns the store, logger and metrics scope shared by every
// index of one process and hands out preconfigured index options and
// checkpoint builders.
type Environment struct {
	options *config.Options
	store   store.Store
	logger  log.Logger
	metrics *metrics.Metrics
}

// OpenStore opens the configured backend.
func OpenStore(options config.StoreOptions) (store.Store, error) {
	switch options.Backend {
	case "memory":
		return store.NewMemory(), nil
	case "nutsdb":
		return store.OpenNutsDB(store.NutsDBOptions{Dir: options.Dir, SegmentSize: options.SegmentSize, Sync: options.Sync})
	case "leveldb":
		return store.OpenLevelDB(store.LevelDBOptions{Dir: options.Dir, Sync: options.Sync})
	case "pebble":
		return store.OpenPebble(store.PebbleOptions{Dir: options.Dir, Sync: options.Sync})
	default:
		return nil, errors.Errorf("unknown store backend %q", options.Backend)
	}
}

func newLogger(options *config.Options) (log.Logger, error) {
	level, err := log.ParseLevel(options.Log.Level)
	if err != nil {
		return nil, err
	}
	return log.New(log.DefaultOptions().
		WithLevel(level).
		WithOutputEncoder(log.ParseOutputEncoder(options.Log.Encoder)).
		WithStacktrace(options.Log.Stacktrace).
		WithNamed(options.Log.Name).
		WithFields("backend", options.Store.Backend)), nil
}

// Open validates options and opens the environment, a nil options is config.Default.
func Open(options *config.Options) (*Environment, error) {
	if options == nil {
		options = config.Default()
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}
	logger, err := newLogger(options)
	if err != nil {
		return nil, err
	}
	s, err := OpenStore(options.Store)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to open %s store", options.Store.Backend)
	}
	m := metrics.New(metrics.Options{
		Prefix:         options.Metrics.Prefix,
		Prometheus:     options.Metrics.Prometheus,
		ReportInterval: options.Metrics.ReportInterval,
	})
	logger.Infow("state environment opened.", "dir", options.Store.Dir, "write_mode", options.Index.WriteMode)
	return &Environment{options: options, store: s, logger: logger, metrics: m}, nil
}

func (e *Environment) Options() *config.Options {
	return e.options
}

func (e *Environment) Store() store.Store {
	return e.store
}

func (e *Environment) Logger() log.Logger {
	return e.logger
}

func (e *Environment) Metrics() *metrics.Metrics {
	return e.metrics
}

// IndexOptions returns fresh index options carrying the configured write
// mode, the environment logger and metrics scope.
func (e *Environment) IndexOptions() *index.Options {
	return index.DefaultOptions().
		WithWriteMode(e.options.WriteMode()).
		WithLogger(e.logger).
		WithScope(e.metrics.Scope)
}

// Builder returns a checkpoint builder over the environment store with the
// configured checkpoint policy.
func (e *Environment) Builder() *checkpoint.Builder {
	return checkpoint.NewBuilder(e.store).
		WithAtomic(e.options.Checkpoint.Atomic).
		WithCompactEvery(e.options.Checkpoint.CompactEvery).
		WithTolerableFailures(e.options.Checkpoint.TolerableFailures).
		WithLogger(e.logger).
		WithScope(e.metrics.Scope)
}

// Hash creates a hash index sized by the configured capacity and load factor.
func Hash[K comparable, V any](e *Environment, name string, keyCodec codec.Codec[K], valueCodec codec.Codec[V]) (*index.HashIndex[K, V], error) {
	return index.NewHash(name, e.store, e.options.Index.HashCapacity, e.options.Index.HashFactor,
		keyCodec, valueCodec, e.IndexOptions())
}

func (e *Environment) Close() error {
	err := multierr.Append(e.store.Close(), e.metrics.Close())
	e.logger.Infow("state environment closed.", "err", err)
	return err
}
