package planner

import (
	"fmt"

	"mit.edu/dsg/docdb/storage"
)

// TopNNode represents a combined Sort + Limit operation (using a heap). Ties keep input
// order, as with SortNode.
type TopNNode struct {
	Child PlanNode
	Limit int64
	Keys  []SortKey
}

func NewTopNNode(child PlanNode, limit int64, keys []SortKey) *TopNNode {
	return &TopNNode{
		Child: child,
		Limit: limit,
		Keys:  keys,
	}
}

func (n *TopNNode) Children() []PlanNode {
	return []PlanNode{n.Child}
}

func (n *TopNNode) Explain() *storage.Document {
	return explainNode("SORT", n,
		storage.Field{Name: "sortPattern", Value: storage.NewDocumentValue(SortKeysDocument(n.Keys))},
		storage.Field{Name: "limitAmount", Value: storage.NewInt(n.Limit)})
}

func (n *TopNNode) String() string {
	return fmt.Sprintf("TopN: Limit %d, %s", n.Limit, sortKeysString(n.Keys))
}
