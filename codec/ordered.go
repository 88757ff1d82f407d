package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

type uint64Codec struct{}

// Uint64 is the big-endian fixed width encoding of uint64.
func Uint64() OrderedCodec[uint64] {
	return uint64Codec{}
}

func (uint64Codec) ordered() {}

func (uint64Codec) Encode(v uint64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(nil, v), nil
}

func (uint64Codec) Decode(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, decodeError("uint64", fmt.Errorf("want 8 bytes, got %d", len(data)))
	}
	return binary.BigEndian.Uint64(data), nil
}

type int64Codec struct{}

// Int64 flips the sign bit so negative values sort before positive ones.
func Int64() OrderedCodec[int64] {
	return int64Codec{}
}

func (int64Codec) ordered() {}

func (int64Codec) Encode(v int64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(nil, uint64(v)^(1<<63)), nil
}

func (int64Codec) Decode(data []byte) (int64, error) {
	if len(data) != 8 {
		return 0, decodeError("int64", fmt.Errorf("want 8 bytes, got %d", len(data)))
	}
	return int64(binary.BigEndian.Uint64(data) ^ (1 << 63)), nil
}

type float64Codec struct{}

// Float64 orders IEEE 754 values numerically, NaN sorts last.
func Float64() OrderedCodec[float64] {
	return float64Codec{}
}

func (float64Codec) ordered() {}

func (float64Codec) Encode(v float64) ([]byte, error) {
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return binary.BigEndian.AppendUint64(nil, bits), nil
}

func (float64Codec) Decode(data []byte) (float64, error) {
	if len(data) != 8 {
		return 0, decodeError("float64", fmt.Errorf("want 8 bytes, got %d", len(data)))
	}
	bits := binary.BigEndian.Uint64(data)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), nil
}

type stringCodec struct{}

func String() OrderedCodec[string] {
	return stringCodec{}
}

func (stringCodec) ordered() {}

func (stringCodec) Encode(v string) ([]byte, error) {
	return []byte(v), nil
}

func (stringCodec) Decode(data []byte) (string, error) {
	return string(data), nil
}

type bytesCodec struct{}

func Bytes() OrderedCodec[[]byte] {
	return bytesCodec{}
}

func (bytesCodec) ordered() {}

func (bytesCodec) Encode(v []byte) ([]byte, error) {
	return append([]byte{}, v...), nil
}

func (bytesCodec) Decode(data []byte) ([]byte, error) {
	return append([]byte{}, data...), nil
}
