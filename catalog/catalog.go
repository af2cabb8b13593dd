package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"mit.edu/dsg/docdb/common"
	"mit.edu/dsg/docdb/indexing"
)

// Catalog manages collection and index definitions and provides fast lookups.
// For simplicity, the catalog is serialized as a single JSON blob through a
// PersistenceProvider after every change.
//
// The catalog holds definitions only. Documents and runtime index structures live in the
// execution layer, which rebuilds its indexes from these definitions. The catalog is not
// safe for concurrent mutation; callers serialize DDL.
type Catalog struct {
	catalogState

	// In-memory structures for fast lookups
	collectionMap map[string]*Collection // CollectionName -> Collection
}

// Index describes a secondary access path over a collection.
type Index struct {
	Oid           common.ObjectID     `json:"oid"`
	CollectionOid common.ObjectID     `json:"collection_oid"`
	Name          string              `json:"name"`
	Type          string              `json:"type"` // only "btree"
	Key           []indexing.KeyField `json:"key"`
}

// KeyPattern returns the index definition as a key pattern. Definitions were validated when
// they were added, so this cannot fail for catalog entries.
func (idx *Index) KeyPattern() indexing.KeyPattern {
	kp, err := indexing.NewKeyPattern(idx.Name, idx.Key...)
	common.Assert(err == nil, "catalog holds an invalid key pattern: %v", err)
	return kp
}

// Collection is the primary metadata structure. It groups index definitions under a unique
// ObjectID.
type Collection struct {
	Oid     common.ObjectID `json:"oid"`
	Name    string          `json:"name"`
	Indexes []Index         `json:"indexes"`
}

// PersistenceProvider abstracts how the catalog is saved to and loaded from disk.
type PersistenceProvider interface {
	LoadCatalogState() (json string, err error)
	SaveCatalogState(json string) error
}

func (c *Collection) String() string {
	b, _ := json.MarshalIndent(c, "", "  ")
	return string(b)
}

type catalogState struct {
	NextId      uint32        `json:"next_id"`
	Collections []*Collection `json:"collections"`
}

func (c *Catalog) String() string {
	b, _ := json.MarshalIndent(c, "", "  ")
	return string(b)
}

func (c *Catalog) toJSON() (string, error) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Catalog) fromJSON(jsonData string) error {
	if err := json.Unmarshal([]byte(jsonData), c); err != nil {
		return err
	}
	for _, coll := range c.Collections {
		c.collectionMap[coll.Name] = coll
		for _, idx := range coll.Indexes {
			if _, err := indexing.NewKeyPattern(idx.Name, idx.Key...); err != nil {
				return errors.Wrapf(err, "index '%s' on collection '%s'", idx.Name, coll.Name)
			}
		}
	}
	return nil
}

// NewCatalog initializes a catalog. It attempts to load existing state
// from the provider; if no state exists, it starts with an empty database.
func NewCatalog(provider PersistenceProvider) (*Catalog, error) {
	result := &Catalog{
		catalogState: catalogState{
			NextId:      0,
			Collections: make([]*Collection, 0),
		},
		collectionMap: make(map[string]*Collection),
	}

	jsonData, err := provider.LoadCatalogState()
	if errors.Is(err, os.ErrNotExist) {
		// Start from scratch
		return result, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load catalog state")
	}

	if err = result.fromJSON(jsonData); err != nil {
		// Parsing errors are fatal system errors, usually indicating corruption
		return nil, errors.Wrap(err, "failed to parse catalog state")
	}

	return result, nil
}

func (c *Catalog) persist(provider PersistenceProvider) error {
	jsonData, err := c.toJSON()
	if err != nil {
		return errors.Wrap(err, "failed to encode catalog state")
	}
	return errors.Wrap(provider.SaveCatalogState(jsonData), "failed to save catalog state")
}

// AddCollection registers a new collection in the catalog.
// It assigns a globally unique ObjectID to the collection and persists the updated state. If
// the collection already exists, it returns DuplicateObjectError.
func (c *Catalog) AddCollection(name string, provider PersistenceProvider) (*Collection, error) {
	if name == "" {
		return nil, common.NewError(common.InvalidNameError, "collection name cannot be empty")
	}
	if _, exists := c.collectionMap[name]; exists {
		return nil, common.NewError(common.DuplicateObjectError, "collection '%s' already exists", name)
	}

	// oid 0 is reserved for INVALID
	c.NextId++

	coll := &Collection{
		Oid:     common.ObjectID(c.NextId),
		Name:    name,
		Indexes: make([]Index, 0),
	}

	c.Collections = append(c.Collections, coll)
	c.collectionMap[name] = coll
	return coll, c.persist(provider)
}

// GetCollectionMetadata fetches the definition of a collection.
func (c *Catalog) GetCollectionMetadata(name string) (*Collection, error) {
	coll, exists := c.collectionMap[name]
	if !exists {
		return nil, common.NewError(common.NoSuchObjectError, "collection '%s' does not exist", name)
	}
	return coll, nil
}

// AddIndex attaches a new index definition to a collection. An empty name is replaced by
// the default name derived from the key. Duplicate names and duplicate key patterns on the
// same collection return DuplicateObjectError.
func (c *Catalog) AddIndex(indexName string, collectionName string, key []indexing.KeyField, provider PersistenceProvider) (*Index, error) {
	coll, err := c.GetCollectionMetadata(collectionName)
	if err != nil {
		return nil, err
	}
	if indexName == "" {
		indexName = indexing.DefaultIndexName(key)
	}
	pattern, err := indexing.NewKeyPattern(indexName, key...)
	if err != nil {
		return nil, err
	}

	for _, idx := range coll.Indexes {
		if idx.Name == indexName {
			return nil, common.NewError(common.DuplicateObjectError,
				"index '%s' already exists on collection '%s'", indexName, collectionName)
		}
		if idx.KeyPattern().SameKeys(pattern) {
			return nil, common.NewError(common.DuplicateObjectError,
				"index '%s' on collection '%s' already has key %s", idx.Name, collectionName, pattern)
		}
	}

	c.NextId++
	idx := Index{
		Oid:           common.ObjectID(c.NextId),
		CollectionOid: coll.Oid,
		Name:          indexName,
		Type:          "btree",
		Key:           pattern.Fields,
	}

	coll.Indexes = append(coll.Indexes, idx)
	return &idx, c.persist(provider)
}

// DropIndex removes an index definition by name.
func (c *Catalog) DropIndex(indexName string, collectionName string, provider PersistenceProvider) (*Index, error) {
	coll, err := c.GetCollectionMetadata(collectionName)
	if err != nil {
		return nil, err
	}
	for i, idx := range coll.Indexes {
		if idx.Name == indexName {
			coll.Indexes = append(coll.Indexes[:i:i], coll.Indexes[i+1:]...)
			return &idx, c.persist(provider)
		}
	}
	return nil, common.NewError(common.NoSuchObjectError,
		"index '%s' does not exist on collection '%s'", indexName, collectionName)
}

const CatalogFileName = "catalog.json"

type DiskCatalogManager struct {
	rootPath string
}

func NewDiskCatalogManager(rootPath string) *DiskCatalogManager {
	return &DiskCatalogManager{
		rootPath: rootPath,
	}
}

// LoadCatalogState implements the catalog.PersistenceProvider interface.
func (dcm *DiskCatalogManager) LoadCatalogState() (string, error) {
	path := filepath.Join(dcm.rootPath, CatalogFileName)
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err // Let the caller (Catalog) handle os.ErrNotExist
	}
	return string(content), nil
}

// SaveCatalogState implements the catalog.PersistenceProvider interface.
func (dcm *DiskCatalogManager) SaveCatalogState(jsonData string) error {
	// perform an atomic write using a temporary file.
	tmpPath := filepath.Join(dcm.rootPath, CatalogFileName+".tmp")
	finalPath := filepath.Join(dcm.rootPath, CatalogFileName)

	if err := os.WriteFile(tmpPath, []byte(jsonData), 0644); err != nil {
		return err
	}

	return os.Rename(tmpPath, finalPath)
}

// MemoryCatalogManager keeps the catalog state in memory. It is the provider used when no
// catalog directory is configured.
type MemoryCatalogManager struct {
	state string
}

func NewMemoryCatalogManager() *MemoryCatalogManager {
	return &MemoryCatalogManager{}
}

func (m *MemoryCatalogManager) LoadCatalogState() (string, error) {
	if m.state == "" {
		return "", os.ErrNotExist
	}
	return m.state, nil
}

func (m *MemoryCatalogManager) SaveCatalogState(jsonData string) error {
	m.state = jsonData
	return nil
}
