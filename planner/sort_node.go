package planner

import (
	"mit.edu/dsg/docdb/storage"
)

// SortNode sorts the input documents. The sort is stable.
type SortNode struct {
	Child PlanNode
	Keys  []SortKey
}

func NewSortNode(child PlanNode, keys []SortKey) *SortNode {
	return &SortNode{
		Child: child,
		Keys:  keys,
	}
}

func (n *SortNode) Children() []PlanNode {
	return []PlanNode{n.Child}
}

func (n *SortNode) Explain() *storage.Document {
	return explainNode("SORT", n, storage.Field{Name: "sortPattern", Value: storage.NewDocumentValue(SortKeysDocument(n.Keys))})
}

func (n *SortNode) String() string {
	return "Sort: " + sortKeysString(n.Keys)
}
