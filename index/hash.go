package index

import (
	"encoding/binary"
	"github.com/RuiFG/streaming/streaming-state/codec"
	"github.com/RuiFG/streaming/streaming-state/store"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
	"golang.org/x/exp/slices"
)

var hashMetaKey = []byte{metaTag}

// HashIndex is a bucketed hash map. A bucket is the unit of caching and
// persistence, bucket id = xxhash(key) mod capacity.
//
// When the load factor exceeds the configured factor the capacity doubles.
// Cached buckets are split right away, buckets that were never loaded keep
// their durable layout and are split lazily on the next write that reaches
// them: every bucket record carries the capacity it was laid out for, and a
// lookup walks id mod c for c = capacity, capacity/2, ... down to the base
// capacity until it meets the record that covers the key.
type HashIndex[K comparable, V any] struct {
	base
	keyCodec   codec.Codec[K]
	valueCodec codec.Codec[V]
	factor     float64
	configured uint64
	units      *units[bucket[K, V]]

	metaLoaded bool
	// meta is the writer view, stored is what the store holds and
	// committed is the layout readers of the committed view walk.
	meta      hashMeta
	stored    hashMeta
	committed hashMeta
	metaDirty bool

	resizeCounter tally.Counter
}

// NewHash creates a hash index with the given initial capacity and load
// factor threshold in (0, 1].
func NewHash[K comparable, V any](name string, s store.Store, capacity int, factor float64,
	keyCodec codec.Codec[K], valueCodec codec.Codec[V], options *Options) (*HashIndex[K, V], error) {
	if capacity < 1 {
		return nil, errors.Errorf("hash index %s: capacity must be positive, got %d", name, capacity)
	}
	if factor <= 0 || factor > 1 {
		return nil, errors.Errorf("hash index %s: factor must be in (0, 1], got %v", name, factor)
	}
	b := newBase(name, s, options)
	return &HashIndex[K, V]{
		base:          b,
		keyCodec:      keyCodec,
		valueCodec:    valueCodec,
		factor:        factor,
		configured:    uint64(capacity),
		units:         newUnits[bucket[K, V]](b.writeMode),
		resizeCounter: b.scope.Counter("hash_resize"),
	}, nil
}

func isPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

// ensureMeta reads the persisted layout once and checks it against the
// configured capacity.
func (h *HashIndex[K, V]) ensureMeta() error {
	if h.metaLoaded {
		return nil
	}
	data, ok, err := h.read(hashMetaKey)
	if err != nil {
		return err
	}
	if !ok {
		h.stored = hashMeta{}
		h.meta = hashMeta{version: layoutVersion, capacity: h.configured, base: h.configured}
	} else {
		stored, err := decodeHashMeta(data)
		if err != nil {
			return err
		}
		if stored.version != layoutVersion {
			return &SchemaError{Index: h.name, Reason: errors.Errorf("unknown layout version %d", stored.version).Error()}
		}
		if stored.capacity == 0 || stored.base == 0 || stored.capacity%stored.base != 0 {
			return &SchemaError{Index: h.name, Reason: "corrupted capacity record"}
		}
		high, low := stored.capacity, h.configured
		if low > high {
			high, low = low, high
		}
		if high%low != 0 || !isPowerOfTwo(high/low) {
			return &SchemaError{Index: h.name, Reason: errors.Errorf(
				"configured capacity %d can not be derived from persisted capacity %d", h.configured, stored.capacity).Error()}
		}
		h.stored = stored
		h.meta = hashMeta{version: layoutVersion, capacity: high, base: stored.base, entries: stored.entries}
		if h.meta.capacity != stored.capacity {
			h.logger.Debugw("hash index capacity differs from persisted layout.",
				"configured", h.configured, "persisted", stored.capacity)
		}
	}
	h.committed = h.meta
	h.metaDirty = false
	h.metaLoaded = true
	return nil
}

func (h *HashIndex[K, V]) decode(data []byte) (bucket[K, V], error) {
	return decodeBucket(data, h.keyCodec, h.valueCodec)
}

func (h *HashIndex[K, V]) encode(b bucket[K, V]) ([]byte, error) {
	return encodeBucket(b, h.valueCodec)
}

func bucketKey(id uint64) []byte {
	return uint64Key(bucketTag, id)
}

func (h *HashIndex[K, V]) bucketAt(id uint64) (bucket[K, V], bool, error) {
	s, err := fetch(&h.base, h.units, bucketKey(id), h.decode)
	return s.value, s.present, err
}

func (h *HashIndex[K, V]) committedBucketAt(id uint64) (bucket[K, V], bool, error) {
	s, err := fetchCommitted(&h.base, h.units, bucketKey(id), h.decode)
	return s.value, s.present, err
}

// locate finds the record covering hash, returning the capacity level it was found at.
func (h *HashIndex[K, V]) locate(hash uint64, layout hashMeta,
	lookup func(id uint64) (bucket[K, V], bool, error)) (bucket[K, V], uint64, bool, error) {
	for c := layout.capacity; c >= layout.base && c > 0; c /= 2 {
		b, ok, err := lookup(hash % c)
		if err != nil {
			return bucket[K, V]{}, 0, false, err
		}
		if ok && b.capacity == c {
			return b, c, true, nil
		}
		if c == layout.base || c%2 != 0 {
			break
		}
	}
	return bucket[K, V]{}, 0, false, nil
}

// writable returns a private copy of the bucket owning hash under the
// current capacity, splitting an older covering record into every current
// descendant first.
func (h *HashIndex[K, V]) writable(hash uint64) (bucket[K, V], error) {
	capacity := h.meta.capacity
	b, level, found, err := h.locate(hash, h.meta, h.bucketAt)
	if err != nil {
		return bucket[K, V]{}, err
	}
	if !found {
		return bucket[K, V]{capacity: capacity}, nil
	}
	if level < capacity {
		ancestor := hash % level
		for id := ancestor; id < capacity; id += level {
			h.units.set(string(bucketKey(id)), slot[bucket[K, V]]{value: b.split(id, capacity), present: true})
		}
		b = b.split(hash%capacity, capacity)
	}
	b.entries = slices.Clone(b.entries)
	return b, nil
}

func (h *HashIndex[K, V]) encodeKey(key K) ([]byte, uint64, error) {
	raw, err := h.keyCodec.Encode(key)
	if err != nil {
		return nil, 0, errors.WithMessagef(err, "failed to encode key of index %s", h.name)
	}
	return raw, hashKey(raw), nil
}

func (h *HashIndex[K, V]) Get(key K) (V, bool, error) {
	return h.get(key, false)
}

// GetCommitted reads the value as of the last successful Persist. Without
// Cow it is the same as Get.
func (h *HashIndex[K, V]) GetCommitted(key K) (V, bool, error) {
	return h.get(key, h.units.cow)
}

func (h *HashIndex[K, V]) get(key K, committed bool) (V, bool, error) {
	var zero V
	if err := h.ensureMeta(); err != nil {
		return zero, false, err
	}
	_, hash, err := h.encodeKey(key)
	if err != nil {
		return zero, false, err
	}
	layout, lookup := h.meta, h.bucketAt
	if committed {
		layout, lookup = h.committed, h.committedBucketAt
	}
	b, _, found, err := h.locate(hash, layout, lookup)
	if err != nil || !found {
		return zero, false, err
	}
	if i := b.find(key); i >= 0 {
		return b.entries[i].value, true, nil
	}
	return zero, false, nil
}

func (h *HashIndex[K, V]) Put(key K, value V) error {
	if err := h.ensureMeta(); err != nil {
		return err
	}
	raw, hash, err := h.encodeKey(key)
	if err != nil {
		return err
	}
	b, err := h.writable(hash)
	if err != nil {
		return err
	}
	if i := b.find(key); i >= 0 {
		b.entries[i].value = value
	} else {
		b.entries = append(b.entries, hashEntry[K, V]{key: key, raw: raw, hash: hash, value: value})
		h.meta.entries++
	}
	h.units.set(string(bucketKey(hash%h.meta.capacity)), slot[bucket[K, V]]{value: b, present: true})
	if float64(h.meta.entries)/float64(h.meta.capacity) > h.factor {
		h.resize()
	}
	h.touchMeta()
	return nil
}

// Remove deletes key, the owning bucket is marked dirty even when key is absent.
func (h *HashIndex[K, V]) Remove(key K) (bool, error) {
	if err := h.ensureMeta(); err != nil {
		return false, err
	}
	_, hash, err := h.encodeKey(key)
	if err != nil {
		return false, err
	}
	b, err := h.writable(hash)
	if err != nil {
		return false, err
	}
	i := b.find(key)
	if i >= 0 {
		b.entries = slices.Delete(b.entries, i, i+1)
		h.meta.entries--
	}
	h.units.set(string(bucketKey(hash%h.meta.capacity)), slot[bucket[K, V]]{value: b, present: true})
	h.touchMeta()
	return i >= 0, nil
}

// Rmw applies fn to the value of key in place. It returns false without
// calling fn when key is absent.
func (h *HashIndex[K, V]) Rmw(key K, fn func(value *V)) (bool, error) {
	if _, ok, err := h.Get(key); err != nil || !ok {
		return false, err
	}
	_, hash, err := h.encodeKey(key)
	if err != nil {
		return false, err
	}
	b, err := h.writable(hash)
	if err != nil {
		return false, err
	}
	i := b.find(key)
	if h.units.cow {
		if b.entries[i].value, err = clone(h.valueCodec, b.entries[i].value); err != nil {
			return false, err
		}
	}
	fn(&b.entries[i].value)
	h.units.set(string(bucketKey(hash%h.meta.capacity)), slot[bucket[K, V]]{value: b, present: true})
	h.touchMeta()
	return true, nil
}

// resize doubles the capacity and splits every cached bucket of the
// current layout.
func (h *HashIndex[K, V]) resize() {
	old := h.meta.capacity
	next := old * 2
	split := 0
	for _, key := range h.units.keys() {
		s, _ := h.units.get(key)
		if !s.present || s.value.capacity != old {
			continue
		}
		id := binary.BigEndian.Uint64([]byte(key)[1:])
		h.units.set(string(bucketKey(id)), slot[bucket[K, V]]{value: s.value.split(id, next), present: true})
		h.units.set(string(bucketKey(id+old)), slot[bucket[K, V]]{value: s.value.split(id+old, next), present: true})
		split++
	}
	h.meta.capacity = next
	h.resizeCounter.Inc(1)
	h.logger.Debugw("resized hash index.", "from", old, "to", next, "entries", h.meta.entries, "split", split)
}

// touchMeta marks the meta record dirty when the writer layout drifted from
// the stored one. Buckets written under a capacity the store does not know
// yet would otherwise be unreachable after a restart.
func (h *HashIndex[K, V]) touchMeta() {
	h.metaDirty = h.meta != h.stored
}

// Len is the number of entries in the writer view.
func (h *HashIndex[K, V]) Len() (int, error) {
	if err := h.ensureMeta(); err != nil {
		return 0, err
	}
	return int(h.meta.entries), nil
}

func (h *HashIndex[K, V]) Capacity() (int, error) {
	if err := h.ensureMeta(); err != nil {
		return 0, err
	}
	return int(h.meta.capacity), nil
}

func (h *HashIndex[K, V]) IsDirty() bool {
	return h.metaDirty || h.units.isDirty()
}

func (h *HashIndex[K, V]) Stage(batch *store.Batch, epoch uint64) (Report, error) {
	staged := store.NewBatch()
	if h.metaDirty {
		staged.Put(h.name, hashMetaKey, encodeHashMeta(h.meta))
	}
	if err := stageUnits(&h.base, h.units, staged, h.encode); err != nil {
		return Report{}, err
	}
	batch.Append(staged)
	return newReport(h.name, epoch, staged), nil
}

func (h *HashIndex[K, V]) Commit() {
	h.units.commit()
	if h.metaDirty {
		h.stored = h.meta
	}
	if h.metaLoaded {
		h.committed = h.meta
	}
	h.metaDirty = false
}

func (h *HashIndex[K, V]) Persist(epoch uint64) (Report, error) {
	return persist(&h.base, h, epoch)
}

func (h *HashIndex[K, V]) Restore() error {
	h.units.reset()
	h.metaLoaded = false
	h.metaDirty = false
	return h.ensureMeta()
}
