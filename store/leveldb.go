package store

import (
	"bytes"
	"encoding/binary"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type LevelDBOptions struct {
	Dir  string
	Sync bool
}

// levelDB prefixes every key with the length delimited namespace, so one
// namespace can never be a prefix of another.
type levelDB struct {
	db           *leveldb.DB
	writeOptions *opt.WriteOptions
}

func OpenLevelDB(options LevelDBOptions) (Store, error) {
	db, err := leveldb.OpenFile(options.Dir, nil)
	if err != nil {
		return nil, wrapError("open leveldb", "", err)
	}
	return &levelDB{db: db, writeOptions: &opt.WriteOptions{Sync: options.Sync}}, nil
}

func namespacePrefix(namespace string) []byte {
	prefix := binary.AppendUvarint(nil, uint64(len(namespace)))
	return append(prefix, namespace...)
}

func physicalKey(namespace string, key []byte) []byte {
	return append(namespacePrefix(namespace), key...)
}

// physicalRange turns a namespace local [lo, hi) into the physical key range.
func physicalRange(namespace string, lo, hi []byte) (start, limit []byte) {
	prefix := namespacePrefix(namespace)
	start = append(bytes.Clone(prefix), lo...)
	if hi != nil {
		limit = append(bytes.Clone(prefix), hi...)
	} else {
		limit = util.BytesPrefix(prefix).Limit
	}
	return start, limit
}

func (l *levelDB) Get(namespace string, key []byte) ([]byte, bool, error) {
	value, err := l.db.Get(physicalKey(namespace, key), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapError("get", namespace, err)
	}
	return value, true, nil
}

func (l *levelDB) Put(namespace string, key, value []byte) error {
	return wrapError("put", namespace, l.db.Put(physicalKey(namespace, key), value, l.writeOptions))
}

func (l *levelDB) Delete(namespace string, key []byte) error {
	return wrapError("delete", namespace, l.db.Delete(physicalKey(namespace, key), l.writeOptions))
}

func (l *levelDB) WriteBatch(batch *Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	levelBatch := new(leveldb.Batch)
	for _, op := range batch.Ops() {
		switch op.Kind {
		case PutOp:
			levelBatch.Put(physicalKey(op.Namespace, op.Key), op.Value)
		case DeleteOp:
			levelBatch.Delete(physicalKey(op.Namespace, op.Key))
		}
	}
	return wrapError("write batch", "", l.db.Write(levelBatch, l.writeOptions))
}

func (l *levelDB) Scan(namespace string, lo, hi []byte) (Iterator, error) {
	start, limit := physicalRange(namespace, lo, hi)
	if bytes.Compare(start, limit) >= 0 {
		return &sliceIterator{index: -1}, nil
	}
	return &levelIterator{
		Iterator:  l.db.NewIterator(&util.Range{Start: start, Limit: limit}, nil),
		prefixLen: len(namespacePrefix(namespace)),
		namespace: namespace,
	}, nil
}

func (l *levelDB) Flush() error {
	return nil
}

// Compact compacts the whole key space.
func (l *levelDB) Compact() error {
	return wrapError("compact", "", l.db.CompactRange(util.Range{}))
}

func (l *levelDB) Close() error {
	return wrapError("close", "", l.db.Close())
}

type levelIterator struct {
	iterator.Iterator
	prefixLen int
	namespace string
}

func (i *levelIterator) Key() []byte {
	return bytes.Clone(i.Iterator.Key()[i.prefixLen:])
}

func (i *levelIterator) Value() []byte {
	return bytes.Clone(i.Iterator.Value())
}

func (i *levelIterator) Err() error {
	return wrapError("scan", i.namespace, i.Iterator.Error())
}
