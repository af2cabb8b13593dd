package planner

import (
	"fmt"

	"mit.edu/dsg/docdb/common"
	"mit.edu/dsg/docdb/indexing"
	"mit.edu/dsg/docdb/storage"
)

// CollScanNode represents a full scan over a collection in record order.
type CollScanNode struct {
	CollectionOid common.ObjectID
	Collection    string
}

func NewCollScanNode(collectionOid common.ObjectID, collection string) *CollScanNode {
	return &CollScanNode{
		CollectionOid: collectionOid,
		Collection:    collection,
	}
}

func (n *CollScanNode) Children() []PlanNode {
	return nil
}

func (n *CollScanNode) Explain() *storage.Document {
	return explainNode("COLLSCAN", n,
		storage.Field{Name: "collection", Value: storage.NewString(n.Collection)})
}

func (n *CollScanNode) String() string {
	return fmt.Sprintf("CollScan: %s", n.Collection)
}

// IndexScanNode represents a scan over one index within bounds on its leading field.
// Without KeysOnly the scan fetches each matching document once, in index order; with
// KeysOnly it produces documents rebuilt from the index keys and never touches the record
// store.
type IndexScanNode struct {
	CollectionOid common.ObjectID
	Collection    string
	Pattern       indexing.KeyPattern
	Bounds        indexing.Interval
	KeysOnly      bool
}

func NewIndexScanNode(collectionOid common.ObjectID, collection string, pattern indexing.KeyPattern, bounds indexing.Interval, keysOnly bool) *IndexScanNode {
	return &IndexScanNode{
		CollectionOid: collectionOid,
		Collection:    collection,
		Pattern:       pattern,
		Bounds:        bounds,
		KeysOnly:      keysOnly,
	}
}

func (n *IndexScanNode) Children() []PlanNode {
	return nil
}

func (n *IndexScanNode) Explain() *storage.Document {
	multikey := make([]storage.Value, 0)
	for _, p := range n.Pattern.MultikeyPaths() {
		multikey = append(multikey, storage.NewString(p))
	}
	stage := "IXSCAN"
	if !n.KeysOnly {
		stage = "FETCH+IXSCAN"
	}
	return explainNode(stage, n,
		storage.Field{Name: "indexName", Value: storage.NewString(n.Pattern.Name)},
		storage.Field{Name: "keyPattern", Value: storage.NewDocumentValue(n.Pattern.Document())},
		storage.Field{Name: "isMultiKey", Value: storage.NewBool(n.Pattern.IsAnyMultikey())},
		storage.Field{Name: "multiKeyPaths", Value: storage.NewArray(multikey...)},
		storage.Field{Name: "bounds", Value: storage.NewString(n.Bounds.String())},
	)
}

func (n *IndexScanNode) String() string {
	return fmt.Sprintf("IndexScan: %s on %s %s", n.Pattern.Name, n.Collection, n.Bounds)
}
