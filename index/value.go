package index

import (
	"github.com/RuiFG/streaming/streaming-state/codec"
	"github.com/RuiFG/streaming/streaming-state/store"
)

var valueKey = []byte{valueTag}

// ValueIndex holds at most one value.
type ValueIndex[V any] struct {
	base
	codec codec.Codec[V]
	units *units[V]
}

func NewValue[V any](name string, s store.Store, c codec.Codec[V], options *Options) *ValueIndex[V] {
	b := newBase(name, s, options)
	return &ValueIndex[V]{base: b, codec: c, units: newUnits[V](b.writeMode)}
}

// Get returns the value, loading it from the store on first use.
func (v *ValueIndex[V]) Get() (V, bool, error) {
	s, err := fetch(&v.base, v.units, valueKey, v.codec.Decode)
	return s.value, s.present, err
}

// GetCommitted returns the value as of the last successful Persist.
func (v *ValueIndex[V]) GetCommitted() (V, bool, error) {
	s, err := fetchCommitted(&v.base, v.units, valueKey, v.codec.Decode)
	return s.value, s.present, err
}

func (v *ValueIndex[V]) Put(value V) {
	v.units.set(string(valueKey), slot[V]{value: value, present: true})
}

// Rmw applies fn to the current value in place. It returns false without
// calling fn when there is no value.
func (v *ValueIndex[V]) Rmw(fn func(value *V)) (bool, error) {
	s, err := fetch(&v.base, v.units, valueKey, v.codec.Decode)
	if err != nil || !s.present {
		return false, err
	}
	if v.units.cow {
		if s.value, err = clone(v.codec, s.value); err != nil {
			return false, err
		}
	}
	fn(&s.value)
	v.units.set(string(valueKey), s)
	return true, nil
}

// Clear removes the value, the next Persist deletes it from the store.
func (v *ValueIndex[V]) Clear() {
	v.units.set(string(valueKey), slot[V]{})
}

func (v *ValueIndex[V]) IsDirty() bool {
	return v.units.isDirty()
}

func (v *ValueIndex[V]) Stage(batch *store.Batch, epoch uint64) (Report, error) {
	staged := store.NewBatch()
	if err := stageUnits(&v.base, v.units, staged, v.codec.Encode); err != nil {
		return Report{}, err
	}
	batch.Append(staged)
	return newReport(v.name, epoch, staged), nil
}

func (v *ValueIndex[V]) Commit() {
	v.units.commit()
}

func (v *ValueIndex[V]) Persist(epoch uint64) (Report, error) {
	return persist(&v.base, v, epoch)
}

func (v *ValueIndex[V]) Restore() error {
	v.units.reset()
	return nil
}
