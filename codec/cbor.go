package codec

import (
	"github.com/fxamacker/cbor/v2"
)

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error
	if cborEncMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if cborDecMode, err = (cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}).DecMode(); err != nil {
		panic(err)
	}
}

type cborCodec[T any] struct{}

// CBOR encodes values with core deterministic CBOR, map keys are sorted so
// maps are safe to store.
func CBOR[T any]() Codec[T] {
	return cborCodec[T]{}
}

func (cborCodec[T]) Encode(v T) ([]byte, error) {
	data, err := cborEncMode.Marshal(v)
	if err != nil {
		return nil, encodeError("cbor", err)
	}
	return data, nil
}

func (cborCodec[T]) Decode(data []byte) (T, error) {
	var v T
	if err := cborDecMode.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, decodeError("cbor", err)
	}
	return v, nil
}
