package execution

import (
	"mit.edu/dsg/docdb/optimizer"
	"mit.edu/dsg/docdb/planner"
	"mit.edu/dsg/docdb/storage"
)

// Explain describes how a pipeline runs: the optimizer's rewrite and the physical plan.
type Explain struct {
	OptimizedAway bool
	AccessPath    string
	IndexName     string
	Strategy      planner.ProjectionStrategy
	// Optimizer is optimizer.Explain of the rewrite.
	Optimizer *storage.Document
	// QueryPlan is the cursor subtree, ExecutionPlan the whole tree.
	QueryPlan     *storage.Document
	ExecutionPlan *storage.Document
}

func NewExplain(plan *optimizer.Plan, physical *PhysicalPlan) *Explain {
	return &Explain{
		OptimizedAway: plan.OptimizedAway,
		AccessPath:    physical.AccessPath,
		IndexName:     physical.IndexName,
		Strategy:      physical.Cursor.Strategy,
		Optimizer:     optimizer.Explain(plan),
		QueryPlan:     physical.Cursor.Explain(),
		ExecutionPlan: physical.Root.Explain(),
	}
}

// Document renders the explain output. A pipeline that was optimized away is reported as a
// plain query with no pipeline stages.
func (e *Explain) Document() *storage.Document {
	d := storage.NewDocument(
		storage.Field{Name: "optimizedAway", Value: storage.NewBool(e.OptimizedAway)},
		storage.Field{Name: "accessPath", Value: storage.NewString(e.AccessPath)},
	)
	if e.IndexName != "" {
		d.Set("indexName", storage.NewString(e.IndexName))
	}
	d.Set("projectionStrategy", storage.NewString(e.Strategy.String()))
	d.Set("optimizer", storage.NewDocumentValue(e.Optimizer))
	d.Set("queryPlanner", storage.NewDocumentValue(storage.NewDocument(
		storage.Field{Name: "winningPlan", Value: storage.NewDocumentValue(e.QueryPlan)})))
	if !e.OptimizedAway {
		d.Set("executionPlan", storage.NewDocumentValue(e.ExecutionPlan))
	}
	return d
}

func (e *Explain) String() string {
	return e.Document().String()
}
