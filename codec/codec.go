// Package codec turns typed index entries into bytes and back.
//
// Every codec must be deterministic: encoding the same value twice yields
// identical bytes. Checkpoint digests and the hash index bucket layout rely on it.
package codec

import (
	"fmt"
)

type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// OrderedCodec is a Codec whose encoding preserves the natural order of T
// under bytewise comparison. Range and timer indexes require it for keys.
type OrderedCodec[T any] interface {
	Codec[T]
	ordered()
}

// Error is returned for malformed or version-incompatible bytes and for
// values a codec cannot encode.
type Error struct {
	Op    string
	Codec string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("codec %s: failed to %s: %v", e.Codec, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func encodeError(codec string, err error) error {
	return &Error{Op: "encode", Codec: codec, Err: err}
}

func decodeError(codec string, err error) error {
	return &Error{Op: "decode", Codec: codec, Err: err}
}
