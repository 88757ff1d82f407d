package checkpoint

import (
	"github.com/RuiFG/streaming/streaming-state/codec"
	"github.com/RuiFG/streaming/streaming-state/index"
	"github.com/RuiFG/streaming/streaming-state/log"
	"github.com/RuiFG/streaming/streaming-state/store"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
	"golang.org/x/exp/slices"
)

// EpochNamespace is reserved for the epoch counter of a coordinator.
const EpochNamespace = "__epoch"

// Builder assembles the ordered list of indexes a Coordinator checkpoints.
// Indexes are persisted in registration order.
type Builder struct {
	store             store.Store
	indexes           []index.Index
	atomic            bool
	compactEvery      int
	tolerableFailures int
	logger            log.Logger
	scope             tally.Scope
}

func NewBuilder(s store.Store) *Builder {
	return &Builder{store: s, logger: log.Global(), scope: tally.NoopScope}
}

func (b *Builder) Register(indexes ...index.Index) *Builder {
	b.indexes = append(b.indexes, indexes...)
	return b
}

// WithAtomic makes every checkpoint a single store batch spanning all
// indexes and the epoch. Without it each index commits on its own.
func (b *Builder) WithAtomic(atomic bool) *Builder {
	b.atomic = atomic
	return b
}

// WithCompactEvery compacts the store after every n successful checkpoints,
// zero disables compaction.
func (b *Builder) WithCompactEvery(n int) *Builder {
	b.compactEvery = n
	return b
}

// WithTolerableFailures stops accepting checkpoints after n consecutive
// failures until the next Restore, zero tolerates any number.
func (b *Builder) WithTolerableFailures(n int) *Builder {
	b.tolerableFailures = n
	return b
}

func (b *Builder) WithLogger(logger log.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithScope(scope tally.Scope) *Builder {
	b.scope = scope
	return b
}

func (b *Builder) Build() (*Coordinator, error) {
	if b.store == nil {
		return nil, errors.New("coordinator needs a store")
	}
	seen := map[string]struct{}{}
	for i, idx := range b.indexes {
		if idx == nil {
			return nil, errors.Errorf("index #%d is nil", i)
		}
		name := idx.Name()
		if name == EpochNamespace {
			return nil, errors.Errorf("index name %s is reserved", EpochNamespace)
		}
		if _, ok := seen[name]; ok {
			return nil, errors.Errorf("index %s registered twice", name)
		}
		seen[name] = struct{}{}
	}
	epoch := index.NewValue[uint64](EpochNamespace, b.store, codec.Uint64(),
		index.DefaultOptions().WithLogger(b.logger).WithScope(b.scope))
	return &Coordinator{
		store:             b.store,
		indexes:           slices.Clone(b.indexes),
		epoch:             epoch,
		atomic:            b.atomic,
		compactEvery:      b.compactEvery,
		tolerableFailures: b.tolerableFailures,
		logger:            b.logger.Named("coordinator"),
		metrics: coordinatorMetrics{
			checkpoints:  b.scope.Counter("checkpoint"),
			failures:     b.scope.Counter("checkpoint_failed"),
			unitsWritten: b.scope.Counter("units_written"),
			unitsDeleted: b.scope.Counter("units_deleted"),
			bytesWritten: b.scope.Counter("bytes_written"),
			compactions:  b.scope.Counter("compaction"),
			latency:      b.scope.Timer("checkpoint_latency"),
		},
	}, nil
}
