package planner

import (
	"mit.edu/dsg/docdb/storage"
)

// PlanNode represents the static structure of a query plan.
// It is immutable and holds the plan tree structure; executors hold the runtime state.
type PlanNode interface {
	// Children returns the child plan nodes.
	Children() []PlanNode

	// Explain returns a document describing this node and its children.
	Explain() *storage.Document

	// String returns a string representation of the plan node.
	String() string
}

func explainNode(stage string, n PlanNode, fields ...storage.Field) *storage.Document {
	d := storage.NewDocument(storage.Field{Name: "stage", Value: storage.NewString(stage)})
	for _, f := range fields {
		d.Set(f.Name, f.Value)
	}
	switch children := n.Children(); len(children) {
	case 0:
	case 1:
		d.Set("inputStage", storage.NewDocumentValue(children[0].Explain()))
	default:
		inputs := make([]storage.Value, len(children))
		for i, c := range children {
			inputs[i] = storage.NewDocumentValue(c.Explain())
		}
		d.Set("inputStages", storage.NewArray(inputs...))
	}
	return d
}
