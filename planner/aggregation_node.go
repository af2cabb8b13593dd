package planner

import (
	"fmt"

	"mit.edu/dsg/docdb/storage"
)

// AggregateNode represents a $group: a hash aggregation keyed by the group _id.
type AggregateNode struct {
	Child PlanNode
	Spec  *GroupSpec
}

func NewAggregateNode(child PlanNode, spec *GroupSpec) *AggregateNode {
	return &AggregateNode{
		Child: child,
		Spec:  spec,
	}
}

func (n *AggregateNode) Children() []PlanNode {
	return []PlanNode{n.Child}
}

func (n *AggregateNode) Explain() *storage.Document {
	return explainNode("GROUP", n, storage.Field{Name: "spec", Value: storage.NewDocumentValue(n.Spec.Document())})
}

func (n *AggregateNode) String() string {
	return fmt.Sprintf("Aggregate: GroupBy(%s)", n.Spec.ID)
}

// UnwindNode emits one document per element of the array at Spec.Path.
type UnwindNode struct {
	Child PlanNode
	Spec  UnwindSpec
}

func NewUnwindNode(child PlanNode, spec UnwindSpec) *UnwindNode {
	return &UnwindNode{
		Child: child,
		Spec:  spec,
	}
}

func (n *UnwindNode) Children() []PlanNode {
	return []PlanNode{n.Child}
}

func (n *UnwindNode) Explain() *storage.Document {
	return explainNode("UNWIND", n, storage.Field{Name: "path", Value: storage.NewString("$" + n.Spec.Path.String())})
}

func (n *UnwindNode) String() string {
	return "Unwind: $" + n.Spec.Path.String()
}
