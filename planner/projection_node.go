package planner

import (
	"fmt"

	"mit.edu/dsg/docdb/storage"
)

// ProjectionStrategy names how the cursor applies an absorbed projection.
type ProjectionStrategy int

const (
	// StrategyNone means the cursor has no projection.
	StrategyNone ProjectionStrategy = iota
	// StrategyCovered builds output from index keys only.
	StrategyCovered
	// StrategySimpleFetch copies top-level fields from the fetched document.
	StrategySimpleFetch
	// StrategyDefaultFetch runs the full projection over the fetched document.
	StrategyDefaultFetch
)

func (s ProjectionStrategy) String() string {
	switch s {
	case StrategyCovered:
		return "Covered"
	case StrategySimpleFetch:
		return "SimpleFetch"
	case StrategyDefaultFetch:
		return "DefaultFetch"
	}
	return "None"
}

// ProjectionNode applies a ProjectionSpec to every document from its child.
type ProjectionNode struct {
	Child    PlanNode
	Spec     *ProjectionSpec
	Strategy ProjectionStrategy
}

func NewProjectionNode(child PlanNode, spec *ProjectionSpec, strategy ProjectionStrategy) *ProjectionNode {
	return &ProjectionNode{
		Child:    child,
		Spec:     spec,
		Strategy: strategy,
	}
}

func (n *ProjectionNode) Children() []PlanNode {
	return []PlanNode{n.Child}
}

func (n *ProjectionNode) Explain() *storage.Document {
	stage := "PROJECTION_DEFAULT"
	switch n.Strategy {
	case StrategyCovered:
		stage = "PROJECTION_COVERED"
	case StrategySimpleFetch:
		stage = "PROJECTION_SIMPLE"
	}
	return explainNode(stage, n, storage.Field{Name: "transformBy", Value: storage.NewDocumentValue(n.Spec.Document())})
}

func (n *ProjectionNode) String() string {
	return fmt.Sprintf("Projection(%s): %s", n.Strategy, n.Spec)
}

// CursorNode is the boundary between the query layer and the pipeline. Its child is the
// physical access plan (scan, filter, sort, projection); the remaining fields describe
// what the query layer took over from the pipeline.
type CursorNode struct {
	Child      PlanNode
	Filter     MatchExpr
	Sort       []SortKey
	Projection *ProjectionSpec
	// Covered is the optimizer's covered hint for Projection.
	Covered bool
	// Inferred is set when Projection was derived from the pipeline's field dependencies.
	Inferred bool
	Strategy ProjectionStrategy
}

func NewCursorNode(child PlanNode, filter MatchExpr, sort []SortKey, projection *ProjectionSpec, covered, inferred bool, strategy ProjectionStrategy) *CursorNode {
	return &CursorNode{
		Child:      child,
		Filter:     filter,
		Sort:       sort,
		Projection: projection,
		Covered:    covered,
		Inferred:   inferred,
		Strategy:   strategy,
	}
}

func (n *CursorNode) Children() []PlanNode {
	return []PlanNode{n.Child}
}

func (n *CursorNode) Explain() *storage.Document {
	fields := []storage.Field{{Name: "projectionStrategy", Value: storage.NewString(n.Strategy.String())}}
	if n.Filter != nil {
		fields = append(fields, storage.Field{Name: "filter", Value: n.Filter.Serialize()})
	}
	if len(n.Sort) > 0 {
		fields = append(fields, storage.Field{Name: "sort", Value: storage.NewDocumentValue(SortKeysDocument(n.Sort))})
	}
	if n.Projection != nil {
		fields = append(fields,
			storage.Field{Name: "projection", Value: storage.NewDocumentValue(n.Projection.Document())},
			storage.Field{Name: "covered", Value: storage.NewBool(n.Covered)},
			storage.Field{Name: "inferred", Value: storage.NewBool(n.Inferred)})
	}
	return explainNode("CURSOR", n, fields...)
}

func (n *CursorNode) String() string {
	return fmt.Sprintf("Cursor: %s", n.Strategy)
}
