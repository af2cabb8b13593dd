package storage

import (
	"sync/atomic"

	"github.com/tidwall/btree"

	"mit.edu/dsg/docdb/common"
)

type record struct {
	rid common.RecordID
	doc *Document
}

// RecordStore holds the documents of one collection ordered by RecordID, which is also
// insertion order. It wraps github.com/tidwall/btree, whose generic BTree is internally
// latched, so inserts and scans may run concurrently. Scans read a copy-on-write snapshot.
//
// Stored documents are read-only: the store deep-copies on insert, and executors build new
// documents instead of mutating the ones they read.
type RecordStore struct {
	tree   *btree.BTreeG[record]
	nextID atomic.Int64
}

func NewRecordStore() *RecordStore {
	return &RecordStore{
		tree: btree.NewBTreeG(func(a, b record) bool { return a.rid < b.rid }),
	}
}

// Insert stores a copy of the document and returns its new RecordID.
func (s *RecordStore) Insert(doc *Document) common.RecordID {
	rid := common.RecordID(s.nextID.Add(1))
	s.tree.Set(record{rid: rid, doc: doc.Copy()})
	return rid
}

// Get returns the document with the given RecordID.
func (s *RecordStore) Get(rid common.RecordID) (*Document, bool) {
	r, ok := s.tree.Get(record{rid: rid})
	if !ok {
		return nil, false
	}
	return r.doc, true
}

// Delete removes a document and returns it.
func (s *RecordStore) Delete(rid common.RecordID) (*Document, bool) {
	r, ok := s.tree.Delete(record{rid: rid})
	if !ok {
		return nil, false
	}
	return r.doc, true
}

func (s *RecordStore) Len() int {
	return s.tree.Len()
}

// Snapshot returns a point-in-time view of the store.
func (s *RecordStore) Snapshot() *RecordSnapshot {
	return &RecordSnapshot{tree: s.tree.Copy()}
}

// RecordSnapshot is an immutable view of a RecordStore.
type RecordSnapshot struct {
	tree *btree.BTreeG[record]
}

func (s *RecordSnapshot) Get(rid common.RecordID) (*Document, bool) {
	r, ok := s.tree.Get(record{rid: rid})
	if !ok {
		return nil, false
	}
	return r.doc, true
}

func (s *RecordSnapshot) Len() int {
	return s.tree.Len()
}

// Iterator returns a cursor over the snapshot in RecordID order.
func (s *RecordSnapshot) Iterator() *RecordIterator {
	return &RecordIterator{iter: s.tree.Iter(), first: true}
}

// RecordIterator follows the Next -> Current -> Close pattern.
type RecordIterator struct {
	iter  btree.IterG[record]
	first bool
	valid bool
}

func (it *RecordIterator) Next() bool {
	if it.first {
		it.first = false
		it.valid = it.iter.First()
	} else if it.valid {
		it.valid = it.iter.Next()
	}
	return it.valid
}

func (it *RecordIterator) RecordID() common.RecordID {
	return it.iter.Item().rid
}

func (it *RecordIterator) Document() *Document {
	return it.iter.Item().doc
}

func (it *RecordIterator) Close() {
	it.iter.Release()
}
