package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mit.edu/dsg/docdb/common"
	"mit.edu/dsg/docdb/indexing"
)

func keyOf(pathsAndDirections ...any) []indexing.KeyField {
	return indexing.MustKeyPattern("k", pathsAndDirections...).Fields
}

func TestCatalog_CollectionsAndIndexes(t *testing.T) {
	provider := NewMemoryCatalogManager()
	c, err := NewCatalog(provider)
	require.NoError(t, err)

	coll, err := c.AddCollection("remove_redundant_projects", provider)
	require.NoError(t, err)
	assert.Equal(t, common.ObjectID(1), coll.Oid)

	_, err = c.AddCollection("remove_redundant_projects", provider)
	assert.True(t, common.IsCode(err, common.DuplicateObjectError))
	_, err = c.AddCollection("", provider)
	assert.True(t, common.IsCode(err, common.InvalidNameError))

	idx, err := c.AddIndex("", "remove_redundant_projects", keyOf("a", 1, "c.d", 1, "e.0", 1), provider)
	require.NoError(t, err)
	assert.Equal(t, "a_1_c.d_1_e.0_1", idx.Name)
	assert.Equal(t, coll.Oid, idx.CollectionOid)

	_, err = c.AddIndex("other", "remove_redundant_projects", keyOf("a", 1, "c.d", 1, "e.0", 1), provider)
	assert.True(t, common.IsCode(err, common.DuplicateObjectError), "same key under a new name")
	_, err = c.AddIndex("a_1_c.d_1_e.0_1", "remove_redundant_projects", keyOf("b", 1), provider)
	assert.True(t, common.IsCode(err, common.DuplicateObjectError))
	_, err = c.AddIndex("bad", "remove_redundant_projects", []indexing.KeyField{{Path: "$a", Direction: 1}}, provider)
	assert.True(t, common.IsCode(err, common.InvalidIndexError))
	_, err = c.AddIndex("x", "nope", keyOf("a", 1), provider)
	assert.True(t, common.IsCode(err, common.NoSuchObjectError))

	_, err = c.DropIndex("a_1_c.d_1_e.0_1", "remove_redundant_projects", provider)
	require.NoError(t, err)
	_, err = c.DropIndex("a_1_c.d_1_e.0_1", "remove_redundant_projects", provider)
	assert.True(t, common.IsCode(err, common.NoSuchObjectError))
}

func TestCatalog_DiskPersistence(t *testing.T) {
	dir := t.TempDir()
	provider := NewDiskCatalogManager(dir)
	c, err := NewCatalog(provider)
	require.NoError(t, err)
	_, err = c.AddCollection("docs", provider)
	require.NoError(t, err)
	_, err = c.AddIndex("by_id_a", "docs", keyOf("_id.a", 1, "a", -1), provider)
	require.NoError(t, err)

	reloaded, err := NewCatalog(NewDiskCatalogManager(dir))
	require.NoError(t, err)
	coll, err := reloaded.GetCollectionMetadata("docs")
	require.NoError(t, err)
	require.Len(t, coll.Indexes, 1)
	kp := coll.Indexes[0].KeyPattern()
	assert.Equal(t, "by_id_a", kp.Name)
	assert.Equal(t, `{"_id.a":1,"a":-1}`, kp.String())

	// New ids continue after the persisted ones.
	next, err := reloaded.AddCollection("more", NewDiskCatalogManager(dir))
	require.NoError(t, err)
	assert.Equal(t, common.ObjectID(3), next.Oid)
}
