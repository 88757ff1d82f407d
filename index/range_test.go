package index

import (
	"github.com/RuiFG/streaming/streaming-state/codec"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

type rangeEntry[K, V any] struct {
	Key   K
	Value V
}

func collectRange[K, V any](t *testing.T, iter *RangeIterator[K, V], err error) []rangeEntry[K, V] {
	require.Nil(t, err)
	var entries []rangeEntry[K, V]
	for iter.Next() {
		entries = append(entries, rangeEntry[K, V]{Key: iter.Key(), Value: iter.Value()})
	}
	require.Nil(t, iter.Err())
	return entries
}

func TestRangeScanOrdering(t *testing.T) {
	r := NewRange("orders", newMemoryStore(t), codec.Uint64(), codec.CBOR[string](), nil)
	for _, key := range []uint64{5, 1, 3} {
		require.Nil(t, r.Put(key, "v"))
	}
	iter, err := r.Scan(1, 5)
	entries := collectRange(t, iter, err)
	var keys []uint64
	for _, entry := range entries {
		keys = append(keys, entry.Key)
	}
	assert.Equal(t, []uint64{1, 3}, keys)
}

func TestRangeScanMergesUncommittedWrites(t *testing.T) {
	s := newMemoryStore(t)
	r := NewRange("orders", s, codec.Uint64(), codec.CBOR[string](), nil)
	for _, key := range []uint64{1, 3, 5, 7} {
		require.Nil(t, r.Put(key, "old"))
	}
	_, err := r.Persist(1)
	require.Nil(t, err)

	require.Nil(t, r.Delete(3))
	require.Nil(t, r.Put(4, "new"))
	require.Nil(t, r.Put(5, "new"))
	require.Nil(t, r.Delete(6))

	expected := []rangeEntry[uint64, string]{{1, "old"}, {4, "new"}, {5, "new"}, {7, "old"}}
	iter, err := r.Scan(0, 10)
	assert.Equal(t, expected, collectRange(t, iter, err))
	iter, err = r.ScanAll()
	assert.Equal(t, expected, collectRange(t, iter, err))
	iter, err = r.Scan(4, 6)
	assert.Equal(t, expected[1:3], collectRange(t, iter, err))
	iter, err = r.Scan(6, 2)
	assert.Empty(t, collectRange(t, iter, err))

	report, err := r.Persist(2)
	assert.Nil(t, err)
	assert.Equal(t, 2, report.Written)
	assert.Equal(t, 2, report.Deleted)

	restored := NewRange("orders", s, codec.Uint64(), codec.CBOR[string](), nil)
	require.Nil(t, restored.Restore())
	iter, err = restored.ScanAll()
	assert.Equal(t, expected, collectRange(t, iter, err))
	_, ok, err := restored.Get(3)
	assert.Nil(t, err)
	assert.False(t, ok)
}

func TestRangeSignedKeys(t *testing.T) {
	r := NewRange("deltas", newMemoryStore(t), codec.Int64(), codec.CBOR[int64](), nil)
	for _, key := range []int64{10, -3, 0, -100, 42} {
		require.Nil(t, r.Put(key, key*2))
	}
	_, err := r.Persist(1)
	require.Nil(t, err)
	iter, err := r.ScanAll()
	entries := collectRange(t, iter, err)
	var keys []int64
	for _, entry := range entries {
		keys = append(keys, entry.Key)
	}
	assert.Equal(t, []int64{-100, -3, 0, 10, 42}, keys)
}

func TestRangeScanDecodeError(t *testing.T) {
	s := newMemoryStore(t)
	require.Nil(t, s.Put("orders", unitKey(rangeTag, []byte{1, 2}), []byte("x")))
	r := NewRange("orders", s, codec.Uint64(), codec.CBOR[string](), nil)
	iter, err := r.ScanAll()
	require.Nil(t, err)
	assert.False(t, iter.Next())
	var codecErr *codec.Error
	assert.True(t, errors.As(iter.Err(), &codecErr))
}

func TestRangeCow(t *testing.T) {
	r := NewRange("orders", newMemoryStore(t), codec.Uint64(), codec.CBOR[string](), DefaultOptions().WithWriteMode(Cow))
	require.Nil(t, r.Put(1, "a"))
	_, err := r.Persist(1)
	require.Nil(t, err)
	require.Nil(t, r.Put(1, "b"))
	committed, _, err := r.GetCommitted(1)
	assert.Nil(t, err)
	assert.Equal(t, "a", committed)
	current, _, _ := r.Get(1)
	assert.Equal(t, "b", current)
}
