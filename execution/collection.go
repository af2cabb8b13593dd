package execution

import (
	"strings"
	"sync"
	"sync/atomic"

	"mit.edu/dsg/docdb/catalog"
	"mit.edu/dsg/docdb/common"
	"mit.edu/dsg/docdb/indexing"
	"mit.edu/dsg/docdb/planner"
	"mit.edu/dsg/docdb/storage"
)

// Collection holds the documents of one collection together with its runtime indexes.
// Inserts and queries may run concurrently; index DDL excludes both.
type Collection struct {
	oid  common.ObjectID
	name string

	store *storage.RecordStore
	// generatedIDs numbers the _id values assigned to documents inserted without one.
	generatedIDs atomic.Int64

	mu      sync.RWMutex
	indexes []*indexing.MemBTreeIndex
}

func NewCollection(oid common.ObjectID, name string) *Collection {
	return &Collection{
		oid:   oid,
		name:  name,
		store: storage.NewRecordStore(),
	}
}

// newCollectionFromCatalog creates an empty collection with the indexes of its catalog entry.
func newCollectionFromCatalog(meta *catalog.Collection) *Collection {
	c := NewCollection(meta.Oid, meta.Name)
	for _, idx := range meta.Indexes {
		c.indexes = append(c.indexes, indexing.NewMemBTreeIndex(idx.KeyPattern()))
	}
	return c
}

func (c *Collection) Oid() common.ObjectID {
	return c.oid
}

func (c *Collection) Name() string {
	return c.name
}

func (c *Collection) Len() int {
	return c.store.Len()
}

// Insert validates and stores a document, maintaining every index. A document without _id
// gets a generated integer _id as its first field.
func (c *Collection) Insert(doc *storage.Document) (common.RecordID, error) {
	if err := validateDocument(doc); err != nil {
		return common.InvalidRecordID, err
	}
	if !doc.Has(planner.IDField) {
		withID := storage.NewDocument(storage.Field{Name: planner.IDField, Value: storage.NewInt(c.generatedIDs.Add(1))})
		for _, f := range doc.Fields() {
			withID.Set(f.Name, f.Value)
		}
		doc = withID
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	rid := c.store.Insert(doc)
	stored, _ := c.store.Get(rid)
	for _, index := range c.indexes {
		if err := index.InsertDocument(rid, stored); err != nil {
			return rid, err
		}
	}
	return rid, nil
}

func validateDocument(doc *storage.Document) error {
	for _, f := range doc.Fields() {
		if f.Name == "" || strings.HasPrefix(f.Name, "$") {
			return common.NewError(common.InvalidDocumentError, "invalid top-level field name '%s'", f.Name)
		}
	}
	if id := doc.Get(planner.IDField); id.IsArray() {
		return common.NewError(common.InvalidDocumentError, "the '_id' value cannot be of type array")
	}
	return nil
}

// Delete removes a document and its index entries.
func (c *Collection) Delete(rid common.RecordID) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.store.Delete(rid)
	if !ok {
		return common.NewError(common.NoSuchObjectError, "no document %s in collection '%s'", rid, c.name)
	}
	for _, index := range c.indexes {
		if err := index.DeleteDocument(rid, doc); err != nil {
			return err
		}
	}
	return nil
}

// CreateIndex builds an index over the documents present and maintains it from then on.
func (c *Collection) CreateIndex(pattern indexing.KeyPattern) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, index := range c.indexes {
		if index.Pattern().Name == pattern.Name {
			return common.NewError(common.DuplicateObjectError, "index '%s' already exists on collection '%s'", pattern.Name, c.name)
		}
	}

	index := indexing.NewMemBTreeIndex(pattern)
	it := c.store.Snapshot().Iterator()
	defer it.Close()
	for it.Next() {
		if err := index.InsertDocument(it.RecordID(), it.Document()); err != nil {
			return err
		}
	}
	c.indexes = append(c.indexes, index)
	return nil
}

func (c *Collection) DropIndex(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, index := range c.indexes {
		if index.Pattern().Name == name {
			c.indexes = append(c.indexes[:i:i], c.indexes[i+1:]...)
			return nil
		}
	}
	return common.NewError(common.NoSuchObjectError, "index '%s' not found on collection '%s'", name, c.name)
}

// Index returns the runtime index with the given name.
func (c *Collection) Index(name string) (*indexing.MemBTreeIndex, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, index := range c.indexes {
		if index.Pattern().Name == name {
			return index, true
		}
	}
	return nil, false
}

// IndexSnapshot returns the key patterns of the indexes, in creation order, with the
// multikey paths observed so far. The result is owned by the caller.
func (c *Collection) IndexSnapshot() []indexing.KeyPattern {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]indexing.KeyPattern, len(c.indexes))
	for i, index := range c.indexes {
		out[i] = index.Pattern()
	}
	return out
}

// Snapshot returns a point-in-time view of the documents.
func (c *Collection) Snapshot() *storage.RecordSnapshot {
	return c.store.Snapshot()
}
