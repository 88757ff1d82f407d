// Package index implements typed, lazily materialized views over one
// namespace of a store.Store that checkpoint only what changed.
//
// Every index caches the units it has read, remembers which units diverged
// from their durable bytes and flushes exactly those units in one atomic
// batch on Persist. Indexes are not safe for concurrent use.
package index

import (
	"encoding/binary"
	"fmt"
	"github.com/RuiFG/streaming/streaming-state/store"
	"golang.org/x/crypto/sha3"
)

// Index is the lifecycle shared by every index kind.
type Index interface {
	// Name is the namespace the index owns in the store.
	Name() string
	// IsDirty reports whether any unit diverged from its durable bytes.
	IsDirty() bool
	// Persist writes every dirty unit in one batch and clears the dirty set.
	// When it fails the cache and the dirty set are left as they were.
	Persist(epoch uint64) (Report, error)
	// Restore drops the cache and the dirty set and re-validates the
	// persisted layout. It does not load any data.
	Restore() error
	// Stage serializes the dirty units into batch without changing the index.
	Stage(batch *store.Batch, epoch uint64) (Report, error)
	// Commit marks the last staged units as durable. It must only be called
	// after the batch built by Stage has been written.
	Commit()
}

// Report describes one Persist or Stage call.
type Report struct {
	Index   string
	Epoch   uint64
	Written int
	Deleted int
	// Bytes is the number of key and value bytes written.
	Bytes int
	// Digest is the Keccak-256 of the staged operations. Deterministic codecs
	// make it stable for identical state changes.
	Digest [32]byte
}

func (r Report) Noop() bool {
	return r.Written == 0 && r.Deleted == 0
}

func (r Report) String() string {
	return fmt.Sprintf("index=%s epoch=%d written=%d deleted=%d bytes=%d digest=%x",
		r.Index, r.Epoch, r.Written, r.Deleted, r.Bytes, r.Digest[:8])
}

func newReport(name string, epoch uint64, batch *store.Batch) Report {
	report := Report{Index: name, Epoch: epoch}
	if batch.Len() == 0 {
		return report
	}
	hasher := sha3.NewLegacyKeccak256()
	var header []byte
	for _, op := range batch.Ops() {
		switch op.Kind {
		case store.PutOp:
			report.Written++
			report.Bytes += len(op.Key) + len(op.Value)
		case store.DeleteOp:
			report.Deleted++
		}
		header = append(header[:0], byte(op.Kind))
		header = binary.AppendUvarint(header, uint64(len(op.Namespace)))
		header = append(header, op.Namespace...)
		header = binary.AppendUvarint(header, uint64(len(op.Key)))
		header = append(header, op.Key...)
		header = binary.AppendUvarint(header, uint64(len(op.Value)))
		_, _ = hasher.Write(header)
		_, _ = hasher.Write(op.Value)
	}
	copy(report.Digest[:], hasher.Sum(nil))
	return report
}

// SchemaError is returned when the persisted layout of an index can not be
// read with the configured one.
type SchemaError struct {
	Index  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("index %s: incompatible persisted schema: %s", e.Index, e.Reason)
}

// unit key tags, the first byte of every key inside a namespace
const (
	metaTag      byte = 'm'
	valueTag     byte = 'v'
	bucketTag    byte = 'b'
	timerTimeTag byte = 't'
	timerIDTag   byte = 'i'
	windowTag    byte = 'w'
	rangeTag     byte = 'r'
)

// layoutVersion is written into every meta record.
const layoutVersion = 1

func unitKey(tag byte, body []byte) []byte {
	key := make([]byte, 0, len(body)+1)
	key = append(key, tag)
	return append(key, body...)
}

func uint64Key(tag byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte{tag}, v)
}
