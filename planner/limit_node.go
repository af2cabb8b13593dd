package planner

import (
	"fmt"

	"mit.edu/dsg/docdb/storage"
)

// LimitNode limits the number of output documents.
type LimitNode struct {
	Child PlanNode
	Limit int64
}

func NewLimitNode(child PlanNode, limit int64) *LimitNode {
	return &LimitNode{
		Child: child,
		Limit: limit,
	}
}

func (n *LimitNode) Children() []PlanNode {
	return []PlanNode{n.Child}
}

func (n *LimitNode) Explain() *storage.Document {
	return explainNode("LIMIT", n, storage.Field{Name: "limitAmount", Value: storage.NewInt(n.Limit)})
}

func (n *LimitNode) String() string {
	return fmt.Sprintf("Limit: %d", n.Limit)
}

// SkipNode drops the first Skip documents.
type SkipNode struct {
	Child PlanNode
	Skip  int64
}

func NewSkipNode(child PlanNode, skip int64) *SkipNode {
	return &SkipNode{
		Child: child,
		Skip:  skip,
	}
}

func (n *SkipNode) Children() []PlanNode {
	return []PlanNode{n.Child}
}

func (n *SkipNode) Explain() *storage.Document {
	return explainNode("SKIP", n, storage.Field{Name: "skipAmount", Value: storage.NewInt(n.Skip)})
}

func (n *SkipNode) String() string {
	return fmt.Sprintf("Skip: %d", n.Skip)
}
