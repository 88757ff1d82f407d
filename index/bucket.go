package index

import (
	"github.com/RuiFG/streaming/streaming-state/codec"
	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// bucket record layout
//
//	1: capacity the bucket was laid out for (varint)
//	2: entry (bytes, repeated)
//	   1: encoded key (bytes)
//	   2: encoded value (bytes)
//
// meta record layout
//
//	1: version, 2: capacity, 3: base capacity, 4: entries (all varint)
const (
	bucketCapacityField protowire.Number = 1
	bucketEntryField    protowire.Number = 2
	entryKeyField       protowire.Number = 1
	entryValueField     protowire.Number = 2

	metaVersionField  protowire.Number = 1
	metaCapacityField protowire.Number = 2
	metaBaseField     protowire.Number = 3
	metaEntriesField  protowire.Number = 4
)

type hashEntry[K comparable, V any] struct {
	key   K
	raw   []byte
	hash  uint64
	value V
}

type bucket[K comparable, V any] struct {
	capacity uint64
	entries  []hashEntry[K, V]
}

func (b bucket[K, V]) find(key K) int {
	for i, entry := range b.entries {
		if entry.key == key {
			return i
		}
	}
	return -1
}

// split keeps the entries that belong to id under capacity.
func (b bucket[K, V]) split(id uint64, capacity uint64) bucket[K, V] {
	child := bucket[K, V]{capacity: capacity}
	for _, entry := range b.entries {
		if entry.hash%capacity == id {
			child.entries = append(child.entries, entry)
		}
	}
	return child
}

func hashKey(raw []byte) uint64 {
	return xxhash.Sum64(raw)
}

func formatError(record string, err error) error {
	return &codec.Error{Op: "decode", Codec: record, Err: err}
}

func encodeBucket[K comparable, V any](b bucket[K, V], valueCodec codec.Codec[V]) ([]byte, error) {
	data := protowire.AppendTag(nil, bucketCapacityField, protowire.VarintType)
	data = protowire.AppendVarint(data, b.capacity)
	var entry []byte
	for _, e := range b.entries {
		value, err := valueCodec.Encode(e.value)
		if err != nil {
			return nil, err
		}
		entry = protowire.AppendTag(entry[:0], entryKeyField, protowire.BytesType)
		entry = protowire.AppendBytes(entry, e.raw)
		entry = protowire.AppendTag(entry, entryValueField, protowire.BytesType)
		entry = protowire.AppendBytes(entry, value)
		data = protowire.AppendTag(data, bucketEntryField, protowire.BytesType)
		data = protowire.AppendBytes(data, entry)
	}
	return data, nil
}

func decodeBucket[K comparable, V any](data []byte, keyCodec codec.Codec[K], valueCodec codec.Codec[V]) (bucket[K, V], error) {
	var b bucket[K, V]
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return b, formatError("bucket", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == bucketCapacityField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return b, formatError("bucket", protowire.ParseError(n))
			}
			b.capacity = v
			data = data[n:]
		case num == bucketEntryField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return b, formatError("bucket", protowire.ParseError(n))
			}
			entry, err := decodeEntry(v, keyCodec, valueCodec)
			if err != nil {
				return b, err
			}
			b.entries = append(b.entries, entry)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return b, formatError("bucket", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	if b.capacity == 0 {
		return b, formatError("bucket", errors.New("missing capacity"))
	}
	return b, nil
}

func decodeEntry[K comparable, V any](data []byte, keyCodec codec.Codec[K], valueCodec codec.Codec[V]) (hashEntry[K, V], error) {
	var (
		entry            hashEntry[K, V]
		rawValue         []byte
		hasKey, hasValue bool
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 || typ != protowire.BytesType {
			return entry, formatError("bucket entry", errors.Errorf("unexpected field %d", num))
		}
		data = data[n:]
		v, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return entry, formatError("bucket entry", protowire.ParseError(n))
		}
		data = data[n:]
		switch num {
		case entryKeyField:
			entry.raw, hasKey = append([]byte{}, v...), true
		case entryValueField:
			rawValue, hasValue = v, true
		}
	}
	if !hasKey || !hasValue {
		return entry, formatError("bucket entry", errors.New("incomplete entry"))
	}
	var err error
	if entry.key, err = keyCodec.Decode(entry.raw); err != nil {
		return entry, err
	}
	if entry.value, err = valueCodec.Decode(rawValue); err != nil {
		return entry, err
	}
	entry.hash = hashKey(entry.raw)
	return entry, nil
}

type hashMeta struct {
	version  uint64
	capacity uint64
	base     uint64
	entries  uint64
}

func encodeHashMeta(m hashMeta) []byte {
	var data []byte
	for _, field := range []struct {
		num   protowire.Number
		value uint64
	}{
		{metaVersionField, m.version},
		{metaCapacityField, m.capacity},
		{metaBaseField, m.base},
		{metaEntriesField, m.entries},
	} {
		data = protowire.AppendTag(data, field.num, protowire.VarintType)
		data = protowire.AppendVarint(data, field.value)
	}
	return data
}

func decodeHashMeta(data []byte) (hashMeta, error) {
	var m hashMeta
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return m, formatError("hash meta", protowire.ParseError(n))
		}
		data = data[n:]
		if typ != protowire.VarintType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return m, formatError("hash meta", protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return m, formatError("hash meta", protowire.ParseError(n))
		}
		data = data[n:]
		switch num {
		case metaVersionField:
			m.version = v
		case metaCapacityField:
			m.capacity = v
		case metaBaseField:
			m.base = v
		case metaEntriesField:
			m.entries = v
		}
	}
	return m, nil
}
