package checkpoint

import (
	"github.com/RuiFG/streaming/streaming-state/common/safe"
	"github.com/RuiFG/streaming/streaming-state/index"
	"github.com/RuiFG/streaming/streaming-state/log"
	"github.com/RuiFG/streaming/streaming-state/store"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
	"go.uber.org/multierr"
	"sync"
	"time"
)

// ErrTooManyFailures is returned once the tolerable number of consecutive
// checkpoint failures has been reached.
var ErrTooManyFailures = errors.New("too many consecutive checkpoint failures")

// Result is the outcome of one successful checkpoint.
type Result struct {
	Epoch    uint64
	Reports  []index.Report
	Duration time.Duration
}

// Noop reports whether no index wrote anything, the epoch still advanced.
func (r Result) Noop() bool {
	for _, report := range r.Reports {
		if !report.Noop() {
			return false
		}
	}
	return true
}

type coordinatorMetrics struct {
	checkpoints  tally.Counter
	failures     tally.Counter
	unitsWritten tally.Counter
	unitsDeleted tally.Counter
	bytesWritten tally.Counter
	compactions  tally.Counter
	latency      tally.Timer
}

// Coordinator checkpoints a fixed, ordered list of indexes sharing one
// store and advances the epoch only when all of them succeeded.
type Coordinator struct {
	mutex             sync.Mutex
	store             store.Store
	indexes           []index.Index
	epoch             *index.ValueIndex[uint64]
	atomic            bool
	compactEvery      int
	tolerableFailures int
	completed         int
	failures          int
	logger            log.Logger
	metrics           coordinatorMetrics
}

// Epoch returns the epoch of the last successful checkpoint, zero before the first.
func (c *Coordinator) Epoch() (uint64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.currentEpoch()
}

func (c *Coordinator) currentEpoch() (uint64, error) {
	epoch, _, err := c.epoch.Get()
	if err != nil {
		return 0, errors.WithMessage(err, "failed to read epoch")
	}
	return epoch, nil
}

func (c *Coordinator) Indexes() []index.Index {
	return c.indexes
}

// Checkpoint persists the dirty units of every index in registration order.
// On error the checkpoint is aborted and the epoch keeps its value, indexes
// persisted before the failing one stay durable in independent mode.
func (c *Coordinator) Checkpoint() (Result, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.tolerableFailures > 0 && c.failures >= c.tolerableFailures {
		return Result{}, ErrTooManyFailures
	}
	current, err := c.currentEpoch()
	if err != nil {
		return Result{}, c.fail(current+1, err)
	}
	next := current + 1
	stopwatch := c.metrics.latency.Start()
	start := time.Now()
	var reports []index.Report
	if c.atomic {
		reports, err = c.checkpointAtomic(next)
	} else {
		reports, err = c.checkpointIndependent(next)
	}
	if err != nil {
		return Result{}, c.fail(next, err)
	}
	stopwatch.Stop()
	result := Result{Epoch: next, Reports: reports, Duration: time.Since(start)}
	c.succeed(result)
	return result, nil
}

func (c *Coordinator) checkpointIndependent(next uint64) ([]index.Report, error) {
	reports := make([]index.Report, 0, len(c.indexes))
	for _, idx := range c.indexes {
		idx := idx
		report, err := safe.Call(func() (index.Report, error) {
			return idx.Persist(next)
		})
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to persist index %s", idx.Name())
		}
		reports = append(reports, report)
	}
	c.epoch.Put(next)
	if _, err := c.epoch.Persist(next); err != nil {
		_ = c.epoch.Restore()
		return nil, errors.WithMessage(err, "failed to persist epoch")
	}
	return reports, nil
}

func (c *Coordinator) checkpointAtomic(next uint64) ([]index.Report, error) {
	batch := store.NewBatch()
	reports := make([]index.Report, 0, len(c.indexes))
	for _, idx := range c.indexes {
		idx := idx
		report, err := safe.Call(func() (index.Report, error) {
			return idx.Stage(batch, next)
		})
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to stage index %s", idx.Name())
		}
		reports = append(reports, report)
	}
	c.epoch.Put(next)
	if _, err := c.epoch.Stage(batch, next); err != nil {
		_ = c.epoch.Restore()
		return nil, errors.WithMessage(err, "failed to stage epoch")
	}
	if err := c.store.WriteBatch(batch); err != nil {
		_ = c.epoch.Restore()
		return nil, errors.WithMessagef(err, "failed to write checkpoint batch of %d operations", batch.Len())
	}
	for _, idx := range c.indexes {
		idx.Commit()
	}
	c.epoch.Commit()
	return reports, nil
}

func (c *Coordinator) fail(epoch uint64, err error) error {
	c.failures++
	c.metrics.failures.Inc(1)
	c.logger.Warnw("checkpoint aborted.", "epoch", epoch, "failures", c.failures, "err", err)
	return errors.WithMessagef(err, "checkpoint %d aborted", epoch)
}

func (c *Coordinator) succeed(result Result) {
	c.failures = 0
	c.completed++
	var written, deleted, bytes int
	for _, report := range result.Reports {
		written += report.Written
		deleted += report.Deleted
		bytes += report.Bytes
	}
	c.metrics.checkpoints.Inc(1)
	c.metrics.unitsWritten.Inc(int64(written))
	c.metrics.unitsDeleted.Inc(int64(deleted))
	c.metrics.bytesWritten.Inc(int64(bytes))
	c.logger.Infow("checkpoint completed.", "epoch", result.Epoch, "indexes", len(result.Reports),
		"written", written, "deleted", deleted, "bytes", bytes, "duration", result.Duration)
	if c.compactEvery > 0 && c.completed%c.compactEvery == 0 {
		c.compact()
	}
}

func (c *Coordinator) compact() {
	compactor, ok := c.store.(store.Compactor)
	if !ok {
		return
	}
	if err := compactor.Compact(); err != nil {
		c.logger.Warnw("failed to compact store.", "err", err)
		return
	}
	c.metrics.compactions.Inc(1)
}

// Restore restores every registered index and the epoch, returning the
// epoch of the last successful checkpoint.
func (c *Coordinator) Restore() (uint64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	indexes := append([]index.Index{c.epoch}, c.indexes...)
	if err := RestoreAll(indexes...); err != nil {
		return 0, err
	}
	c.failures = 0
	epoch, err := c.currentEpoch()
	if err != nil {
		return 0, err
	}
	c.logger.Infow("restored.", "epoch", epoch, "indexes", len(c.indexes))
	return epoch, nil
}

// RestoreAll restores each index independently. Failures do not stop the
// remaining indexes from restoring, all of them are returned combined.
func RestoreAll(indexes ...index.Index) error {
	var err error
	for _, idx := range indexes {
		if restoreErr := idx.Restore(); restoreErr != nil {
			err = multierr.Append(err, errors.WithMessagef(restoreErr, "failed to restore index %s", idx.Name()))
		}
	}
	return err
}
