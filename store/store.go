// Package store is the durable key-value layer indexes persist into.
//
// Keys live in namespaces. Each index owns exactly one namespace and never
// reads or writes outside of it.
package store

//go:generate mockgen -source store.go -destination store_mocks.go -package store

import (
	"fmt"
	"github.com/pkg/errors"
)

type Reader interface {
	// Get returns the value stored under key, ok is false when absent.
	Get(namespace string, key []byte) (value []byte, ok bool, err error)
	// Scan iterates keys in [lo, hi) in ascending byte order. A nil lo or hi
	// leaves that side unbounded. Keys yielded by the iterator are namespace local.
	Scan(namespace string, lo, hi []byte) (Iterator, error)
}

type Writer interface {
	Put(namespace string, key, value []byte) error
	Delete(namespace string, key []byte) error
	// WriteBatch applies every operation of the batch or none of them.
	WriteBatch(batch *Batch) error
}

type Store interface {
	Reader
	Writer
	// Flush makes all previously written data durable.
	Flush() error
	Close() error
}

// Compactor is implemented by stores that can reclaim space of overwritten
// and deleted entries.
type Compactor interface {
	Compact() error
}

type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Release()
}

// Error wraps any failure of the underlying engine.
type Error struct {
	Op        string
	Namespace string
	Err       error
}

func (e *Error) Error() string {
	if e.Namespace == "" {
		return fmt.Sprintf("store: failed to %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store: failed to %s in namespace %s: %v", e.Op, e.Namespace, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapError(op string, namespace string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Namespace: namespace, Err: err}
}

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("store is closed")

// Collect drains the iterator into key value pairs.
func Collect(iter Iterator) (keys [][]byte, values [][]byte, err error) {
	defer iter.Release()
	for iter.Next() {
		keys = append(keys, append([]byte{}, iter.Key()...))
		values = append(values, append([]byte{}, iter.Value()...))
	}
	return keys, values, iter.Err()
}
