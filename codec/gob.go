package codec

import (
	"bytes"
	"encoding/gob"
)

type gobCodec[T any] struct{}

// Gob encodes values with encoding/gob, so exported fields only. Gob is
// deterministic for values without maps.
func Gob[T any]() Codec[T] {
	return gobCodec[T]{}
}

func (gobCodec[T]) Encode(v T) ([]byte, error) {
	var buffer bytes.Buffer
	if err := gob.NewEncoder(&buffer).Encode(&v); err != nil {
		return nil, encodeError("gob", err)
	}
	return buffer.Bytes(), nil
}

func (gobCodec[T]) Decode(data []byte) (T, error) {
	vPointer := new(T)
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(vPointer); err != nil {
		var zero T
		return zero, decodeError("gob", err)
	}
	return *vPointer, nil
}
