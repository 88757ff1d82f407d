package index

import (
	"github.com/RuiFG/streaming/streaming-state/codec"
	"github.com/RuiFG/streaming/streaming-state/store"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
	"google.golang.org/protobuf/encoding/protowire"
)

var windowMetaKey = []byte{metaTag}

// window meta record: 1 version (varint), 2 merge function id (bytes)
const metaMergerField protowire.Number = 2

// Merger folds increments into a window accumulator. Merge must be
// associative and commutative and must not mutate its arguments: restored
// accumulators may have been built from a different grouping of the same
// increments. ID names the merge function and is persisted, restoring with a
// different ID fails with a SchemaError.
type Merger[A any] struct {
	ID       string
	Identity func() A
	Merge    func(acc A, increment A) A
}

// WindowIndex maps window ids to accumulators, one unit per window.
type WindowIndex[W any, A any] struct {
	base
	windowCodec codec.Codec[W]
	accCodec    codec.Codec[A]
	merger      Merger[A]
	units       *units[A]

	metaLoaded    bool
	metaPersisted bool
	metaDirty     bool

	closedCounter tally.Counter
}

func NewWindow[W any, A any](name string, s store.Store, windowCodec codec.Codec[W], accCodec codec.Codec[A],
	merger Merger[A], options *Options) (*WindowIndex[W, A], error) {
	if merger.ID == "" || merger.Merge == nil || merger.Identity == nil {
		return nil, errors.Errorf("window index %s: merger needs an id, an identity and a merge function", name)
	}
	b := newBase(name, s, options)
	return &WindowIndex[W, A]{
		base:          b,
		windowCodec:   windowCodec,
		accCodec:      accCodec,
		merger:        merger,
		units:         newUnits[A](b.writeMode),
		closedCounter: b.scope.Counter("window_closed"),
	}, nil
}

func encodeWindowMeta(mergerID string) []byte {
	data := protowire.AppendTag(nil, metaVersionField, protowire.VarintType)
	data = protowire.AppendVarint(data, layoutVersion)
	data = protowire.AppendTag(data, metaMergerField, protowire.BytesType)
	return protowire.AppendString(data, mergerID)
}

func decodeWindowMeta(data []byte) (uint64, string, error) {
	var (
		version  uint64
		mergerID string
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return 0, "", formatError("window meta", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == metaVersionField && typ == protowire.VarintType:
			version, n = protowire.ConsumeVarint(data)
		case num == metaMergerField && typ == protowire.BytesType:
			mergerID, n = protowire.ConsumeString(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return 0, "", formatError("window meta", protowire.ParseError(n))
		}
		data = data[n:]
	}
	return version, mergerID, nil
}

func (w *WindowIndex[W, A]) ensureMeta() error {
	if w.metaLoaded {
		return nil
	}
	data, ok, err := w.read(windowMetaKey)
	if err != nil {
		return err
	}
	if ok {
		version, mergerID, err := decodeWindowMeta(data)
		if err != nil {
			return err
		}
		if version != layoutVersion {
			return &SchemaError{Index: w.name, Reason: errors.Errorf("unknown layout version %d", version).Error()}
		}
		if mergerID != w.merger.ID {
			return &SchemaError{Index: w.name, Reason: errors.Errorf(
				"persisted merge function %q, configured %q", mergerID, w.merger.ID).Error()}
		}
	}
	w.metaPersisted = ok
	w.metaLoaded = true
	return nil
}

func (w *WindowIndex[W, A]) unitKey(window W) ([]byte, error) {
	raw, err := w.windowCodec.Encode(window)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to encode window of index %s", w.name)
	}
	return unitKey(windowTag, raw), nil
}

// Add merges increment into the accumulator of window, starting from the
// identity when the window has no state.
func (w *WindowIndex[W, A]) Add(window W, increment A) error {
	if err := w.ensureMeta(); err != nil {
		return err
	}
	key, err := w.unitKey(window)
	if err != nil {
		return err
	}
	s, err := fetch(&w.base, w.units, key, w.accCodec.Decode)
	if err != nil {
		return err
	}
	acc := s.value
	if !s.present {
		acc = w.merger.Identity()
	}
	w.units.set(string(key), slot[A]{value: w.merger.Merge(acc, increment), present: true})
	w.metaDirty = !w.metaPersisted
	return nil
}

func (w *WindowIndex[W, A]) Get(window W) (A, bool, error) {
	return w.get(window, false)
}

// GetCommitted reads the accumulator as of the last successful Persist.
func (w *WindowIndex[W, A]) GetCommitted(window W) (A, bool, error) {
	return w.get(window, true)
}

func (w *WindowIndex[W, A]) get(window W, committed bool) (A, bool, error) {
	var zero A
	if err := w.ensureMeta(); err != nil {
		return zero, false, err
	}
	key, err := w.unitKey(window)
	if err != nil {
		return zero, false, err
	}
	var s slot[A]
	if committed {
		s, err = fetchCommitted(&w.base, w.units, key, w.accCodec.Decode)
	} else {
		s, err = fetch(&w.base, w.units, key, w.accCodec.Decode)
	}
	return s.value, s.present, err
}

// Close removes the window and returns its accumulator, ok is false when
// the window has no state.
func (w *WindowIndex[W, A]) Close(window W) (A, bool, error) {
	var zero A
	if err := w.ensureMeta(); err != nil {
		return zero, false, err
	}
	key, err := w.unitKey(window)
	if err != nil {
		return zero, false, err
	}
	s, err := fetch(&w.base, w.units, key, w.accCodec.Decode)
	if err != nil || !s.present {
		return zero, false, err
	}
	w.units.set(string(key), slot[A]{})
	w.closedCounter.Inc(1)
	return s.value, true, nil
}

func (w *WindowIndex[W, A]) IsDirty() bool {
	return w.metaDirty || w.units.isDirty()
}

func (w *WindowIndex[W, A]) Stage(batch *store.Batch, epoch uint64) (Report, error) {
	staged := store.NewBatch()
	if w.metaDirty {
		staged.Put(w.name, windowMetaKey, encodeWindowMeta(w.merger.ID))
	}
	if err := stageUnits(&w.base, w.units, staged, w.accCodec.Encode); err != nil {
		return Report{}, err
	}
	batch.Append(staged)
	return newReport(w.name, epoch, staged), nil
}

func (w *WindowIndex[W, A]) Commit() {
	w.units.commit()
	if w.metaDirty {
		w.metaPersisted = true
		w.metaDirty = false
	}
}

func (w *WindowIndex[W, A]) Persist(epoch uint64) (Report, error) {
	return persist(&w.base, w, epoch)
}

func (w *WindowIndex[W, A]) Restore() error {
	w.units.reset()
	w.metaLoaded = false
	w.metaDirty = false
	if err := w.ensureMeta(); err != nil {
		return err
	}
	w.logger.Debugw("restored window index.", "merger", w.merger.ID)
	return nil
}
