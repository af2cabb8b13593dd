package indexing

import (
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/tidwall/btree"

	"mit.edu/dsg/docdb/common"
	"mit.edu/dsg/docdb/storage"
)

type btreeItem struct {
	key Key
	rid common.RecordID
}

// MemBTreeIndex is a B+-Tree based index implementation.
// It is a wrapper around github.com/tidwall/btree, specialized for document keys and RecordIDs.
type MemBTreeIndex struct {
	tree    *btree.BTreeG[btreeItem]
	pattern KeyPattern
	// multikey records the key paths that crossed an array for some inserted document.
	multikey *xsync.MapOf[string, struct{}]
}

func NewMemBTreeIndex(pattern KeyPattern) *MemBTreeIndex {
	fields := pattern.Fields
	// less function defines the ordering of items in the BTree.
	// Primary order by Key, secondary order by RecordID (to support non-unique keys).
	less := func(a, b btreeItem) bool {
		cmp := a.key.Compare(b.key, fields)
		if cmp != 0 {
			return cmp < 0
		}
		// Tie-breaker: RecordID ensures uniqueness for the Set
		return a.rid < b.rid
	}

	return &MemBTreeIndex{
		tree:     btree.NewBTreeG(less),
		pattern:  pattern.WithMultikeyPaths(),
		multikey: xsync.NewMapOf[string, struct{}](),
	}
}

func (index *MemBTreeIndex) Pattern() KeyPattern {
	var paths []string
	index.multikey.Range(func(path string, _ struct{}) bool {
		paths = append(paths, path)
		return true
	})
	return index.pattern.WithMultikeyPaths(paths...)
}

func (index *MemBTreeIndex) InsertDocument(rid common.RecordID, doc *storage.Document) error {
	keys, multikey := ExtractKeys(index.pattern, doc)
	for _, path := range multikey {
		index.multikey.Store(path, struct{}{})
	}
	for _, key := range keys {
		index.tree.Set(btreeItem{key: key, rid: rid})
	}
	return nil
}

func (index *MemBTreeIndex) DeleteDocument(rid common.RecordID, doc *storage.Document) error {
	keys, _ := ExtractKeys(index.pattern, doc)
	for _, key := range keys {
		index.tree.Delete(btreeItem{key: key, rid: rid})
	}
	return nil
}

func (index *MemBTreeIndex) Len() int {
	return index.tree.Len()
}

func (index *MemBTreeIndex) Scan(interval Interval) (ScanIterator, error) {
	// Use Copy-On-Write for a consistent snapshot iterator
	snapshot := index.tree.Copy()

	it := &MemBTreeIndexIterator{
		iter:       snapshot.Iter(),
		interval:   interval,
		descending: index.pattern.Fields[0].Direction == Descending,
		firstCall:  true,
	}

	// The tree is ordered by the leading field's direction, so the near end of the interval
	// is Low for ascending indexes and High for descending ones.
	near, nearUnbounded := interval.Low, interval.LowUnbounded
	if it.descending {
		near, nearUnbounded = interval.High, interval.HighUnbounded
	}
	if nearUnbounded {
		it.hasMore = it.iter.First()
	} else {
		// A one-element key sorts before every entry that shares its leading value.
		it.hasMore = it.iter.Seek(btreeItem{key: NewKey(KeyElement{Value: near}), rid: common.InvalidRecordID})
	}
	if interval.IsEmpty() {
		it.hasMore = false
	}
	return it, nil
}

// MemBTreeIndexIterator implements ScanIterator for BTree range scans.
type MemBTreeIndexIterator struct {
	iter       btree.IterG[btreeItem]
	interval   Interval
	descending bool
	firstCall  bool
	hasMore    bool
}

func (it *MemBTreeIndexIterator) Next() bool {
	if it.firstCall {
		it.firstCall = false
	} else if it.hasMore {
		it.hasMore = it.iter.Next()
	}

	for it.hasMore {
		lead := it.iter.Item().key.Value(0)
		var pastFar, beforeNear bool
		if it.descending {
			pastFar, beforeNear = it.interval.belowLow(lead), it.interval.aboveHigh(lead)
		} else {
			pastFar, beforeNear = it.interval.aboveHigh(lead), it.interval.belowLow(lead)
		}
		if pastFar {
			it.hasMore = false
			break
		}
		if !beforeNear {
			return true
		}
		it.hasMore = it.iter.Next()
	}
	return false
}

func (it *MemBTreeIndexIterator) Key() Key {
	return it.iter.Item().key
}

func (it *MemBTreeIndexIterator) Value() common.RecordID {
	return it.iter.Item().rid
}

func (it *MemBTreeIndexIterator) Error() error {
	return nil
}

func (it *MemBTreeIndexIterator) Close() error {
	it.iter.Release()
	return nil
}
