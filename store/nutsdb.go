package store

import (
	"bytes"
	"github.com/pkg/errors"
	"github.com/xujiajun/nutsdb"
	"sort"
	"sync"
)

type NutsDBOptions struct {
	Dir         string
	SegmentSize int64
	Sync        bool
}

// nutsDB maps every namespace to one B+ tree bucket.
type nutsDB struct {
	db *nutsdb.DB
	// buckets that hold at least one written key. nutsdb reports missing
	// buckets with errors that differ between versions, so we never ask it
	// about buckets it has not seen.
	mutex   sync.RWMutex
	buckets map[string]struct{}
}

func OpenNutsDB(options NutsDBOptions) (Store, error) {
	opts := nutsdb.DefaultOptions
	opts.Dir = options.Dir
	if options.SegmentSize > 0 {
		opts.SegmentSize = options.SegmentSize
	}
	opts.SyncEnable = options.Sync
	db, err := nutsdb.Open(opts)
	if err != nil {
		return nil, wrapError("open nutsdb", "", err)
	}
	s := &nutsDB{db: db, buckets: map[string]struct{}{}}
	if err = db.View(func(tx *nutsdb.Tx) error {
		return tx.IterateBuckets(nutsdb.DataStructureBPTree, "*", func(bucket string) bool {
			s.buckets[bucket] = struct{}{}
			return true
		})
	}); err != nil {
		_ = db.Close()
		return nil, wrapError("iterate buckets", "", err)
	}
	return s, nil
}

func (n *nutsDB) hasBucket(namespace string) bool {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	_, ok := n.buckets[namespace]
	return ok
}

func isNutsNotFound(err error) bool {
	return errors.Is(err, nutsdb.ErrKeyNotFound) ||
		errors.Is(err, nutsdb.ErrNotFoundKey) ||
		errors.Is(err, nutsdb.ErrBucketEmpty) ||
		errors.Is(err, nutsdb.ErrRangeScan)
}

func (n *nutsDB) Get(namespace string, key []byte) ([]byte, bool, error) {
	if !n.hasBucket(namespace) {
		return nil, false, nil
	}
	var value []byte
	err := n.db.View(func(tx *nutsdb.Tx) error {
		entry, err := tx.Get(namespace, key)
		if err != nil {
			return err
		}
		value = bytes.Clone(entry.Value)
		return nil
	})
	if err != nil {
		if isNutsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, wrapError("get", namespace, err)
	}
	return value, true, nil
}

func (n *nutsDB) Put(namespace string, key, value []byte) error {
	batch := NewBatch()
	batch.Put(namespace, key, value)
	return n.WriteBatch(batch)
}

func (n *nutsDB) Delete(namespace string, key []byte) error {
	batch := NewBatch()
	batch.Delete(namespace, key)
	return n.WriteBatch(batch)
}

func (n *nutsDB) WriteBatch(batch *Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	created := map[string]struct{}{}
	err := n.db.Update(func(tx *nutsdb.Tx) error {
		for _, op := range batch.Ops() {
			switch op.Kind {
			case PutOp:
				if err := tx.Put(op.Namespace, op.Key, op.Value, 0); err != nil {
					return errors.WithMessagef(err, "put into %s", op.Namespace)
				}
				created[op.Namespace] = struct{}{}
			case DeleteOp:
				_, known := created[op.Namespace]
				if !known && !n.hasBucket(op.Namespace) {
					continue
				}
				if err := tx.Delete(op.Namespace, op.Key); err != nil && !isNutsNotFound(err) {
					return errors.WithMessagef(err, "delete from %s", op.Namespace)
				}
			}
		}
		return nil
	})
	if err != nil {
		return wrapError("write batch", "", err)
	}
	n.mutex.Lock()
	for bucket := range created {
		n.buckets[bucket] = struct{}{}
	}
	n.mutex.Unlock()
	return nil
}

func (n *nutsDB) Scan(namespace string, lo, hi []byte) (Iterator, error) {
	iter := &sliceIterator{index: -1}
	if !n.hasBucket(namespace) {
		return iter, nil
	}
	var entries nutsdb.Entries
	err := n.db.View(func(tx *nutsdb.Tx) error {
		var err error
		if lo != nil && hi != nil {
			if bytes.Compare(lo, hi) >= 0 {
				return nil
			}
			//range scan bounds are inclusive on both sides
			entries, err = tx.RangeScan(namespace, lo, hi)
		} else {
			entries, err = tx.GetAll(namespace)
		}
		return err
	})
	if err != nil && !isNutsNotFound(err) {
		return nil, wrapError("scan", namespace, err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Key, entries[j].Key) < 0
	})
	for _, entry := range entries {
		if lo != nil && bytes.Compare(entry.Key, lo) < 0 {
			continue
		}
		if hi != nil && bytes.Compare(entry.Key, hi) >= 0 {
			break
		}
		iter.keys = append(iter.keys, bytes.Clone(entry.Key))
		iter.values = append(iter.values, bytes.Clone(entry.Value))
	}
	return iter, nil
}

func (n *nutsDB) Flush() error {
	return nil
}

// Compact merges data files and drops overwritten entries.
func (n *nutsDB) Compact() error {
	if err := n.db.Merge(); err != nil {
		return wrapError("merge", "", err)
	}
	return nil
}

func (n *nutsDB) Close() error {
	return wrapError("close", "", n.db.Close())
}
