package index

import (
	"github.com/RuiFG/streaming/streaming-state/codec"
	"github.com/RuiFG/streaming/streaming-state/log"
	"github.com/RuiFG/streaming/streaming-state/store"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// slot is the cached state of one unit, present is false for units known to
// be absent from the store or deleted by the writer.
type slot[V any] struct {
	value   V
	present bool
}

// units is the unit cache of an index.
//
// resident always mirrors durable bytes in Cow mode, the writer's changes
// live in shadow until commit. In NCow mode the writer mutates resident and
// shadow stays empty. A key is in dirty iff the writer view of the unit
// differs from the store.
type units[V any] struct {
	cow      bool
	resident map[string]slot[V]
	shadow   map[string]slot[V]
	dirty    map[string]struct{}
}

func newUnits[V any](mode WriteMode) *units[V] {
	return &units[V]{
		cow:      mode == Cow,
		resident: map[string]slot[V]{},
		shadow:   map[string]slot[V]{},
		dirty:    map[string]struct{}{},
	}
}

// get returns the writer view of a cached unit.
func (u *units[V]) get(key string) (slot[V], bool) {
	if s, ok := u.shadow[key]; ok {
		return s, true
	}
	s, ok := u.resident[key]
	return s, ok
}

// committed returns the cached last persisted state of a unit.
func (u *units[V]) committed(key string) (slot[V], bool) {
	s, ok := u.resident[key]
	return s, ok
}

// load caches durable state, it never marks the unit dirty.
func (u *units[V]) load(key string, s slot[V]) {
	u.resident[key] = s
}

func (u *units[V]) set(key string, s slot[V]) {
	if u.cow {
		u.shadow[key] = s
	} else {
		u.resident[key] = s
	}
	u.dirty[key] = struct{}{}
}

func (u *units[V]) isDirty() bool {
	return len(u.dirty) > 0
}

func (u *units[V]) isDirtyKey(key string) bool {
	_, ok := u.dirty[key]
	return ok
}

// dirtyKeys returns the dirty unit keys in ascending order.
func (u *units[V]) dirtyKeys() []string {
	keys := maps.Keys(u.dirty)
	slices.Sort(keys)
	return keys
}

// keys returns every cached unit key of the writer view.
func (u *units[V]) keys() []string {
	keys := maps.Keys(u.resident)
	for key := range u.shadow {
		if _, ok := u.resident[key]; !ok {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}

func (u *units[V]) commit() {
	if u.cow {
		for key := range u.dirty {
			if s, ok := u.shadow[key]; ok {
				u.resident[key] = s
			}
		}
		u.shadow = map[string]slot[V]{}
	}
	u.dirty = map[string]struct{}{}
}

func (u *units[V]) reset() {
	u.resident = map[string]slot[V]{}
	u.shadow = map[string]slot[V]{}
	u.dirty = map[string]struct{}{}
}

// base carries what every index kind shares: identity, store handle,
// logger and metrics.
type base struct {
	name      string
	store     store.Store
	writeMode WriteMode
	logger    log.Logger
	scope     tally.Scope
	cacheHit  tally.Counter
	cacheMiss tally.Counter
}

func newBase(name string, s store.Store, options *Options) base {
	if options == nil {
		options = DefaultOptions()
	}
	scope := options.scope.Tagged(map[string]string{"index": name})
	return base{
		name:      name,
		store:     s,
		writeMode: options.writeMode,
		logger:    options.logger.Named(name),
		scope:     scope,
		cacheHit:  scope.Counter("cache_hit"),
		cacheMiss: scope.Counter("cache_miss"),
	}
}

func (b *base) Name() string {
	return b.name
}

// read returns the durable bytes of a unit.
func (b *base) read(key []byte) ([]byte, bool, error) {
	b.cacheMiss.Inc(1)
	value, ok, err := b.store.Get(b.name, key)
	if err != nil {
		return nil, false, errors.WithMessagef(err, "failed to load unit %q of index %s", key, b.name)
	}
	return value, ok, nil
}

// write applies a staged batch, empty batches never reach the store.
func (b *base) write(batch *store.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	if err := b.store.WriteBatch(batch); err != nil {
		return errors.WithMessagef(err, "failed to persist index %s", b.name)
	}
	return nil
}

// fetch returns the writer view of a unit, loading it from the store on a
// cache miss. Decode failures leave the unit uncached.
func fetch[V any](b *base, u *units[V], key []byte, decode func([]byte) (V, error)) (slot[V], error) {
	if s, ok := u.get(string(key)); ok {
		b.cacheHit.Inc(1)
		return s, nil
	}
	return loadUnit(b, u, key, decode)
}

// fetchCommitted is fetch for the last persisted view. Without Cow the
// resident cache is the writer view, so both views are the same.
func fetchCommitted[V any](b *base, u *units[V], key []byte, decode func([]byte) (V, error)) (slot[V], error) {
	if s, ok := u.committed(string(key)); ok {
		b.cacheHit.Inc(1)
		return s, nil
	}
	return loadUnit(b, u, key, decode)
}

func loadUnit[V any](b *base, u *units[V], key []byte, decode func([]byte) (V, error)) (slot[V], error) {
	data, ok, err := b.read(key)
	if err != nil {
		return slot[V]{}, err
	}
	if !ok {
		s := slot[V]{}
		u.load(string(key), s)
		return s, nil
	}
	value, err := decode(data)
	if err != nil {
		return slot[V]{}, errors.WithMessagef(err, "failed to decode unit %q of index %s", key, b.name)
	}
	s := slot[V]{value: value, present: true}
	u.load(string(key), s)
	return s, nil
}

// stageUnits appends a put for every present dirty unit and a delete for
// every absent one, in key order.
func stageUnits[V any](b *base, u *units[V], batch *store.Batch, encode func(V) ([]byte, error)) error {
	for _, key := range u.dirtyKeys() {
		s, _ := u.get(key)
		if !s.present {
			batch.Delete(b.name, []byte(key))
			continue
		}
		data, err := encode(s.value)
		if err != nil {
			return errors.WithMessagef(err, "failed to encode unit %q of index %s", key, b.name)
		}
		batch.Put(b.name, []byte(key), data)
	}
	return nil
}

// persist is Stage, write and Commit in one go.
func persist(b *base, idx Index, epoch uint64) (Report, error) {
	batch := store.NewBatch()
	report, err := idx.Stage(batch, epoch)
	if err != nil {
		return Report{}, err
	}
	if err = b.write(batch); err != nil {
		return Report{}, err
	}
	idx.Commit()
	if !report.Noop() {
		b.logger.Debugw("persisted index.", "epoch", epoch, "written", report.Written,
			"deleted", report.Deleted, "bytes", report.Bytes)
	}
	return report, nil
}

// clone deep copies a value through its codec, so in place mutation of a
// Cow shadow never leaks into the committed view.
func clone[V any](c codec.Codec[V], value V) (V, error) {
	data, err := c.Encode(value)
	if err != nil {
		return value, err
	}
	return c.Decode(data)
}
