package execution

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"

	"mit.edu/dsg/docdb/catalog"
	"mit.edu/dsg/docdb/common"
)

// CollectionManager manages the lifecycle of Collection objects.
type CollectionManager struct {
	collections *xsync.MapOf[string, *Collection]
}

// NewCollectionManager eagerly creates an empty Collection, with its indexes, for every
// collection defined in the Catalog.
func NewCollectionManager(cat *catalog.Catalog) *CollectionManager {
	m := &CollectionManager{
		collections: xsync.NewMapOf[string, *Collection](),
	}
	for _, meta := range cat.Collections {
		m.collections.Store(meta.Name, newCollectionFromCatalog(meta))
	}
	return m
}

// Register creates the runtime collection for a new catalog entry.
func (m *CollectionManager) Register(meta *catalog.Collection) (*Collection, error) {
	c, loaded := m.collections.LoadOrStore(meta.Name, newCollectionFromCatalog(meta))
	if loaded {
		return nil, common.NewError(common.DuplicateObjectError, "collection '%s' already exists", meta.Name)
	}
	return c, nil
}

// GetCollection retrieves the Collection with the given name.
func (m *CollectionManager) GetCollection(name string) (*Collection, error) {
	if c, ok := m.collections.Load(name); ok {
		return c, nil
	}
	return nil, common.NewError(common.NoSuchObjectError, "collection '%s' not found", name)
}

// Names returns the collection names in sorted order.
func (m *CollectionManager) Names() []string {
	var names []string
	m.collections.Range(func(name string, _ *Collection) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}
