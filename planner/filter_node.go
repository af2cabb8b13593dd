package planner

import (
	"fmt"

	"mit.edu/dsg/docdb/storage"
)

// FilterNode filters documents from its child based on a predicate.
type FilterNode struct {
	Child     PlanNode
	Predicate MatchExpr
}

func NewFilterNode(child PlanNode, predicate MatchExpr) *FilterNode {
	return &FilterNode{
		Child:     child,
		Predicate: predicate,
	}
}

func (n *FilterNode) Children() []PlanNode {
	return []PlanNode{n.Child}
}

func (n *FilterNode) Explain() *storage.Document {
	return explainNode("FILTER", n, storage.Field{Name: "filter", Value: n.Predicate.Serialize()})
}

func (n *FilterNode) String() string {
	return fmt.Sprintf("Filter: %s", n.Predicate.String())
}
