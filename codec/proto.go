package codec

import (
	"google.golang.org/protobuf/proto"
)

type protoCodec[T proto.Message] struct {
	newFn func() T
}

// Proto encodes protobuf messages deterministically. newFn returns an empty
// message to decode into.
func Proto[T proto.Message](newFn func() T) Codec[T] {
	return protoCodec[T]{newFn: newFn}
}

func (p protoCodec[T]) Encode(v T) ([]byte, error) {
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(v)
	if err != nil {
		return nil, encodeError("proto", err)
	}
	return data, nil
}

func (p protoCodec[T]) Decode(data []byte) (T, error) {
	v := p.newFn()
	if err := proto.Unmarshal(data, v); err != nil {
		var zero T
		return zero, decodeError("proto", err)
	}
	return v, nil
}
