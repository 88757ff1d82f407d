package store

import (
	"bytes"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"sync"
)

// memory keeps everything on the heap, for tests and for jobs that accept
// losing state on restart.
type memory struct {
	mutex      sync.RWMutex
	namespaces map[string]map[string][]byte
	closed     bool
}

func NewMemory() Store {
	return &memory{namespaces: map[string]map[string][]byte{}}
}

func (m *memory) Get(namespace string, key []byte) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.closed {
		return nil, false, wrapError("get", namespace, ErrClosed)
	}
	if value, ok := m.namespaces[namespace][string(key)]; ok {
		return bytes.Clone(value), true, nil
	}
	return nil, false, nil
}

func (m *memory) Put(namespace string, key, value []byte) error {
	batch := NewBatch()
	batch.Put(namespace, key, value)
	return m.WriteBatch(batch)
}

func (m *memory) Delete(namespace string, key []byte) error {
	batch := NewBatch()
	batch.Delete(namespace, key)
	return m.WriteBatch(batch)
}

func (m *memory) WriteBatch(batch *Batch) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		return wrapError("write batch", "", ErrClosed)
	}
	for _, op := range batch.Ops() {
		switch op.Kind {
		case PutOp:
			ns, ok := m.namespaces[op.Namespace]
			if !ok {
				ns = map[string][]byte{}
				m.namespaces[op.Namespace] = ns
			}
			ns[string(op.Key)] = bytes.Clone(op.Value)
		case DeleteOp:
			delete(m.namespaces[op.Namespace], string(op.Key))
		}
	}
	return nil
}

func (m *memory) Scan(namespace string, lo, hi []byte) (Iterator, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.closed {
		return nil, wrapError("scan", namespace, ErrClosed)
	}
	ns := m.namespaces[namespace]
	keys := maps.Keys(ns)
	slices.Sort(keys)
	iter := &sliceIterator{index: -1}
	for _, key := range keys {
		if lo != nil && key < string(lo) {
			continue
		}
		if hi != nil && key >= string(hi) {
			break
		}
		iter.keys = append(iter.keys, []byte(key))
		iter.values = append(iter.values, bytes.Clone(ns[key]))
	}
	return iter, nil
}

func (m *memory) Flush() error { return nil }

func (m *memory) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.closed = true
	m.namespaces = nil
	return nil
}

// sliceIterator iterates over a materialized snapshot.
type sliceIterator struct {
	keys   [][]byte
	values [][]byte
	index  int
	err    error
}

func (s *sliceIterator) Next() bool {
	if s.index+1 >= len(s.keys) {
		s.index = len(s.keys)
		return false
	}
	s.index++
	return true
}

func (s *sliceIterator) Key() []byte {
	if s.index < 0 || s.index >= len(s.keys) {
		return nil
	}
	return s.keys[s.index]
}

func (s *sliceIterator) Value() []byte {
	if s.index < 0 || s.index >= len(s.values) {
		return nil
	}
	return s.values[s.index]
}

func (s *sliceIterator) Err() error { return s.err }

func (s *sliceIterator) Release() {
	s.keys, s.values = nil, nil
}
