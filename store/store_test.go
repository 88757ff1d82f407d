package store

import (
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

type factory struct {
	name string
	open func(t *testing.T, dir string) Store
}

func factories() []factory {
	return []factory{
		{name: "memory", open: func(t *testing.T, dir string) Store {
			return NewMemory()
		}},
		{name: "nutsdb", open: func(t *testing.T, dir string) Store {
			s, err := OpenNutsDB(NutsDBOptions{Dir: dir, SegmentSize: 8 * 1024 * 1024})
			require.Nil(t, err)
			return s
		}},
		{name: "leveldb", open: func(t *testing.T, dir string) Store {
			s, err := OpenLevelDB(LevelDBOptions{Dir: dir})
			require.Nil(t, err)
			return s
		}},
		{name: "pebble", open: func(t *testing.T, dir string) Store {
			s, err := OpenPebble(PebbleOptions{Dir: dir})
			require.Nil(t, err)
			return s
		}},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for _, f := range factories() {
		f := f
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t, t.TempDir())
			defer func() { _ = s.Close() }()
			fn(t, s)
		})
	}
}

func scanKeys(t *testing.T, s Store, namespace string, lo, hi []byte) []string {
	iter, err := s.Scan(namespace, lo, hi)
	require.Nil(t, err)
	keys, _, err := Collect(iter)
	require.Nil(t, err)
	var result []string
	for _, key := range keys {
		result = append(result, string(key))
	}
	return result
}

func TestGetPutDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		_, ok, err := s.Get("sessions", []byte("k1"))
		assert.Nil(t, err)
		assert.False(t, ok)

		assert.Nil(t, s.Put("sessions", []byte("k1"), []byte("v1")))
		value, ok, err := s.Get("sessions", []byte("k1"))
		assert.Nil(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("v1"), value)

		_, ok, err = s.Get("other", []byte("k1"))
		assert.Nil(t, err)
		assert.False(t, ok)

		assert.Nil(t, s.Delete("sessions", []byte("k1")))
		_, ok, err = s.Get("sessions", []byte("k1"))
		assert.Nil(t, err)
		assert.False(t, ok)

		assert.Nil(t, s.Delete("never-written", []byte("k1")))
	})
}

func TestWriteBatch(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		assert.Nil(t, s.Put("a", []byte("stale"), []byte("x")))
		batch := NewBatch()
		batch.Put("a", []byte("1"), []byte("one"))
		batch.Put("b", []byte("1"), []byte("uno"))
		batch.Delete("a", []byte("stale"))
		batch.Put("a", []byte("2"), []byte("first"))
		batch.Put("a", []byte("2"), []byte("second"))
		assert.Nil(t, s.WriteBatch(batch))

		value, ok, err := s.Get("a", []byte("2"))
		assert.Nil(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("second"), value)
		value, _, _ = s.Get("b", []byte("1"))
		assert.Equal(t, []byte("uno"), value)
		_, ok, _ = s.Get("a", []byte("stale"))
		assert.False(t, ok)

		assert.Nil(t, s.WriteBatch(NewBatch()))
		assert.Nil(t, s.Flush())
	})
}

func TestScan(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		batch := NewBatch()
		for _, key := range []string{"r5", "r1", "r3", "m", "s0"} {
			batch.Put("range", []byte(key), []byte("v"+key))
		}
		batch.Put("rangeX", []byte("r2"), []byte("leak"))
		require.Nil(t, s.WriteBatch(batch))

		assert.Equal(t, []string{"r1", "r3"}, scanKeys(t, s, "range", []byte("r1"), []byte("r5")))
		assert.Equal(t, []string{"m", "r1", "r3", "r5", "s0"}, scanKeys(t, s, "range", nil, nil))
		assert.Equal(t, []string{"r3", "r5", "s0"}, scanKeys(t, s, "range", []byte("r2"), nil))
		assert.Equal(t, []string{"m", "r1"}, scanKeys(t, s, "range", nil, []byte("r2")))
		assert.Empty(t, scanKeys(t, s, "range", []byte("r5"), []byte("r1")))
		assert.Empty(t, scanKeys(t, s, "missing", nil, nil))

		iter, err := s.Scan("range", []byte("r"), []byte("s"))
		require.Nil(t, err)
		keys, values, err := Collect(iter)
		assert.Nil(t, err)
		assert.Len(t, keys, 3)
		assert.Equal(t, []byte("vr1"), values[0])
	})
}

func TestPersistAcrossReopen(t *testing.T) {
	for _, f := range factories()[1:] {
		f := f
		t.Run(f.name, func(t *testing.T) {
			dir := t.TempDir()
			s := f.open(t, dir)
			require.Nil(t, s.Put("epoch", []byte("v"), []byte{7}))
			require.Nil(t, s.Flush())
			require.Nil(t, s.Close())

			s = f.open(t, dir)
			defer func() { _ = s.Close() }()
			value, ok, err := s.Get("epoch", []byte("v"))
			assert.Nil(t, err)
			assert.True(t, ok)
			assert.Equal(t, []byte{7}, value)
			assert.Equal(t, []string{"v"}, scanKeys(t, s, "epoch", nil, nil))
		})
	}
}

func TestMemoryClosed(t *testing.T) {
	s := NewMemory()
	assert.Nil(t, s.Close())
	_, _, err := s.Get("a", []byte("k"))
	var storeErr *Error
	assert.True(t, errors.As(err, &storeErr))
	assert.True(t, errors.Is(err, ErrClosed))
	assert.Equal(t, "get", storeErr.Op)
}

func TestCompactor(t *testing.T) {
	s, err := OpenLevelDB(LevelDBOptions{Dir: t.TempDir()})
	require.Nil(t, err)
	defer func() { _ = s.Close() }()
	require.Nil(t, s.Put("a", []byte("k"), []byte("v")))
	assert.Nil(t, s.(Compactor).Compact())
}

func TestBatch(t *testing.T) {
	batch := NewBatch()
	batch.Put("ns", []byte("key"), []byte("value"))
	batch.Delete("ns", []byte("gone"))
	assert.Equal(t, 2, batch.Len())
	assert.Equal(t, len("ns")*2+len("key")+len("value")+len("gone"), batch.Size())
	assert.Equal(t, DeleteOp, batch.Ops()[1].Kind)
	assert.Equal(t, "delete", batch.Ops()[1].Kind.String())

	other := NewBatch()
	other.Put("ns2", []byte("k"), nil)
	batch.Append(other)
	assert.Equal(t, 3, batch.Len())

	batch.Reset()
	assert.Equal(t, 0, batch.Len())
	assert.Equal(t, 0, batch.Size())
}
