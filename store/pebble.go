package store

import (
	"bytes"
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
)

type PebbleOptions struct {
	Dir  string
	Sync bool
}

// pebbleDB shares the physical key layout of levelDB.
type pebbleDB struct {
	db           *pebble.DB
	writeOptions *pebble.WriteOptions
}

func OpenPebble(options PebbleOptions) (Store, error) {
	db, err := pebble.Open(options.Dir, &pebble.Options{})
	if err != nil {
		return nil, wrapError("open pebble", "", err)
	}
	writeOptions := pebble.NoSync
	if options.Sync {
		writeOptions = pebble.Sync
	}
	return &pebbleDB{db: db, writeOptions: writeOptions}, nil
}

func (p *pebbleDB) Get(namespace string, key []byte) ([]byte, bool, error) {
	value, closer, err := p.db.Get(physicalKey(namespace, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapError("get", namespace, err)
	}
	defer closer.Close()
	return bytes.Clone(value), true, nil
}

func (p *pebbleDB) Put(namespace string, key, value []byte) error {
	return wrapError("put", namespace, p.db.Set(physicalKey(namespace, key), value, p.writeOptions))
}

func (p *pebbleDB) Delete(namespace string, key []byte) error {
	return wrapError("delete", namespace, p.db.Delete(physicalKey(namespace, key), p.writeOptions))
}

func (p *pebbleDB) WriteBatch(batch *Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	pebbleBatch := p.db.NewBatch()
	defer pebbleBatch.Close()
	for _, op := range batch.Ops() {
		var err error
		switch op.Kind {
		case PutOp:
			err = pebbleBatch.Set(physicalKey(op.Namespace, op.Key), op.Value, nil)
		case DeleteOp:
			err = pebbleBatch.Delete(physicalKey(op.Namespace, op.Key), nil)
		}
		if err != nil {
			return wrapError("write batch", op.Namespace, err)
		}
	}
	return wrapError("write batch", "", pebbleBatch.Commit(p.writeOptions))
}

func (p *pebbleDB) Scan(namespace string, lo, hi []byte) (Iterator, error) {
	start, limit := physicalRange(namespace, lo, hi)
	if bytes.Compare(start, limit) >= 0 {
		return &sliceIterator{index: -1}, nil
	}
	return &pebbleIterator{
		iter:      p.db.NewIter(&pebble.IterOptions{LowerBound: start, UpperBound: limit}),
		prefixLen: len(namespacePrefix(namespace)),
		namespace: namespace,
	}, nil
}

func (p *pebbleDB) Flush() error {
	return wrapError("flush", "", p.db.Flush())
}

func (p *pebbleDB) Close() error {
	return wrapError("close", "", p.db.Close())
}

type pebbleIterator struct {
	iter      *pebble.Iterator
	started   bool
	prefixLen int
	namespace string
	released  bool
}

func (i *pebbleIterator) Next() bool {
	if i.released {
		return false
	}
	if !i.started {
		i.started = true
		return i.iter.First()
	}
	return i.iter.Next()
}

func (i *pebbleIterator) Key() []byte {
	if i.released || !i.iter.Valid() {
		return nil
	}
	return bytes.Clone(i.iter.Key()[i.prefixLen:])
}

func (i *pebbleIterator) Value() []byte {
	if i.released || !i.iter.Valid() {
		return nil
	}
	return bytes.Clone(i.iter.Value())
}

func (i *pebbleIterator) Err() error {
	if i.released {
		return nil
	}
	return wrapError("scan", i.namespace, i.iter.Error())
}

func (i *pebbleIterator) Release() {
	if !i.released {
		i.released = true
		_ = i.iter.Close()
	}
}
