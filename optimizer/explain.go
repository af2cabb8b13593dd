package optimizer

import (
	"mit.edu/dsg/docdb/planner"
	"mit.edu/dsg/docdb/storage"
)

// Explain describes the rewrite: whether a projection was absorbed, the absorbed spec and
// its covered hint, what else the cursor took over, and the remaining stages.
func Explain(plan *Plan) *storage.Document {
	d := storage.NewDocument(
		storage.Field{Name: "optimizedAway", Value: storage.NewBool(plan.OptimizedAway)},
		storage.Field{Name: "projectionAbsorbed", Value: storage.NewBool(plan.Absorbed != nil)},
	)

	if a := plan.Absorbed; a != nil {
		names := make([]storage.Value, len(a.CoveringIndexes))
		for i, n := range a.CoveringIndexes {
			names[i] = storage.NewString(n)
		}
		d.Set("absorbedProjection", storage.NewDocumentValue(storage.NewDocument(
			storage.Field{Name: "spec", Value: storage.NewDocumentValue(a.Spec.Document())},
			storage.Field{Name: "covered", Value: storage.NewBool(a.Covered)},
			storage.Field{Name: "coveringIndexes", Value: storage.NewArray(names...)},
			storage.Field{Name: "inferred", Value: storage.NewBool(a.Inferred)},
		)))
	}

	cursor := storage.NewDocument()
	if plan.CursorFilter != nil {
		cursor.Set("filter", plan.CursorFilter.Serialize())
	}
	if len(plan.CursorSort) > 0 {
		cursor.Set("sort", storage.NewDocumentValue(planner.SortKeysDocument(plan.CursorSort)))
	}
	d.Set("cursor", storage.NewDocumentValue(cursor))
	d.Set("stages", storage.NewArray(planner.PipelineDocuments(plan.Remaining)...))
	return d
}
