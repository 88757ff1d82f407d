package index

import (
	"github.com/RuiFG/streaming/streaming-state/codec"
	"github.com/RuiFG/streaming/streaming-state/store"
	"github.com/pkg/errors"
)

// RangeIndex is an ordered map laid over the key order of the store, one
// unit per entry. Keys must use an order preserving codec.
type RangeIndex[K any, V any] struct {
	base
	keyCodec   codec.OrderedCodec[K]
	valueCodec codec.Codec[V]
	units      *units[V]
}

func NewRange[K any, V any](name string, s store.Store, keyCodec codec.OrderedCodec[K], valueCodec codec.Codec[V],
	options *Options) *RangeIndex[K, V] {
	b := newBase(name, s, options)
	return &RangeIndex[K, V]{base: b, keyCodec: keyCodec, valueCodec: valueCodec, units: newUnits[V](b.writeMode)}
}

func (r *RangeIndex[K, V]) unitKey(key K) ([]byte, error) {
	raw, err := r.keyCodec.Encode(key)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to encode key of index %s", r.name)
	}
	return unitKey(rangeTag, raw), nil
}

func (r *RangeIndex[K, V]) Put(key K, value V) error {
	unit, err := r.unitKey(key)
	if err != nil {
		return err
	}
	r.units.set(string(unit), slot[V]{value: value, present: true})
	return nil
}

func (r *RangeIndex[K, V]) Get(key K) (V, bool, error) {
	unit, err := r.unitKey(key)
	if err != nil {
		var zero V
		return zero, false, err
	}
	s, err := fetch(&r.base, r.units, unit, r.valueCodec.Decode)
	return s.value, s.present, err
}

// GetCommitted reads the entry as of the last successful Persist.
func (r *RangeIndex[K, V]) GetCommitted(key K) (V, bool, error) {
	unit, err := r.unitKey(key)
	if err != nil {
		var zero V
		return zero, false, err
	}
	s, err := fetchCommitted(&r.base, r.units, unit, r.valueCodec.Decode)
	return s.value, s.present, err
}

// Delete stages a tombstone for key.
func (r *RangeIndex[K, V]) Delete(key K) error {
	unit, err := r.unitKey(key)
	if err != nil {
		return err
	}
	r.units.set(string(unit), slot[V]{})
	return nil
}

// Scan iterates the entries with lo <= key < hi in ascending key order,
// uncommitted writes included.
func (r *RangeIndex[K, V]) Scan(lo, hi K) (*RangeIterator[K, V], error) {
	loKey, err := r.unitKey(lo)
	if err != nil {
		return nil, err
	}
	hiKey, err := r.unitKey(hi)
	if err != nil {
		return nil, err
	}
	return r.scan(loKey, hiKey)
}

// ScanAll iterates every entry in ascending key order.
func (r *RangeIndex[K, V]) ScanAll() (*RangeIterator[K, V], error) {
	return r.scan([]byte{rangeTag}, []byte{rangeTag + 1})
}

func (r *RangeIndex[K, V]) scan(lo, hi []byte) (*RangeIterator[K, V], error) {
	iterator := &RangeIterator[K, V]{index: r}
	if string(lo) >= string(hi) {
		iterator.done = true
		return iterator, nil
	}
	for _, key := range r.units.dirtyKeys() {
		if key >= string(lo) && key < string(hi) {
			s, _ := r.units.get(key)
			iterator.overlay = append(iterator.overlay, overlayEntry[V]{key: key, slot: s})
		}
	}
	storeIterator, err := r.store.Scan(r.name, lo, hi)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to scan index %s", r.name)
	}
	iterator.iter = storeIterator
	return iterator, nil
}

func (r *RangeIndex[K, V]) IsDirty() bool {
	return r.units.isDirty()
}

func (r *RangeIndex[K, V]) Stage(batch *store.Batch, epoch uint64) (Report, error) {
	staged := store.NewBatch()
	if err := stageUnits(&r.base, r.units, staged, r.valueCodec.Encode); err != nil {
		return Report{}, err
	}
	batch.Append(staged)
	return newReport(r.name, epoch, staged), nil
}

func (r *RangeIndex[K, V]) Commit() {
	r.units.commit()
}

func (r *RangeIndex[K, V]) Persist(epoch uint64) (Report, error) {
	return persist(&r.base, r, epoch)
}

func (r *RangeIndex[K, V]) Restore() error {
	r.units.reset()
	return nil
}

type overlayEntry[V any] struct {
	key  string
	slot slot[V]
}

// RangeIterator merges a store cursor with the writes staged when the scan
// started. It can not be restarted.
type RangeIterator[K any, V any] struct {
	index   *RangeIndex[K, V]
	iter    store.Iterator
	overlay []overlayEntry[V]
	pos     int

	peeked     bool
	storeValid bool
	storeKey   []byte
	storeValue []byte

	key   K
	value V
	err   error
	done  bool
}

func (it *RangeIterator[K, V]) peek() {
	if it.peeked {
		return
	}
	it.peeked = true
	it.storeValid = it.iter.Next()
	if it.storeValid {
		it.storeKey = it.iter.Key()
		it.storeValue = it.iter.Value()
	} else if err := it.iter.Err(); err != nil {
		it.err = errors.WithMessagef(err, "failed to scan index %s", it.index.name)
	}
}

func (it *RangeIterator[K, V]) Next() bool {
	for !it.done {
		it.peek()
		if it.err != nil {
			break
		}
		hasOverlay := it.pos < len(it.overlay)
		if !it.storeValid && !hasOverlay {
			break
		}
		if hasOverlay && (!it.storeValid || it.overlay[it.pos].key <= string(it.storeKey)) {
			entry := it.overlay[it.pos]
			it.pos++
			if it.storeValid && entry.key == string(it.storeKey) {
				it.peeked = false
			}
			if !entry.slot.present {
				continue
			}
			if it.decodeKey([]byte(entry.key)) {
				it.value = entry.slot.value
				return true
			}
			break
		}
		it.peeked = false
		if !it.decodeKey(it.storeKey) {
			break
		}
		value, err := it.index.valueCodec.Decode(it.storeValue)
		if err != nil {
			it.err = errors.WithMessagef(err, "failed to decode entry of index %s", it.index.name)
			break
		}
		it.value = value
		return true
	}
	it.Close()
	return false
}

func (it *RangeIterator[K, V]) decodeKey(unit []byte) bool {
	key, err := it.index.keyCodec.Decode(unit[1:])
	if err != nil {
		it.err = errors.WithMessagef(err, "failed to decode key of index %s", it.index.name)
		return false
	}
	it.key = key
	return true
}

func (it *RangeIterator[K, V]) Key() K {
	return it.key
}

func (it *RangeIterator[K, V]) Value() V {
	return it.value
}

func (it *RangeIterator[K, V]) Err() error {
	return it.err
}

// Close releases the store cursor, it is called by Next once the
// iterator is exhausted.
func (it *RangeIterator[K, V]) Close() {
	it.done = true
	if it.iter != nil {
		it.iter.Release()
		it.iter = nil
	}
}
