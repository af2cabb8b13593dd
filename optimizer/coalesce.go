package optimizer

import (
	"mit.edu/dsg/docdb/indexing"
	"mit.edu/dsg/docdb/planner"
)

// AbsorbedProjection describes a projection the cursor executes on behalf of the pipeline.
type AbsorbedProjection struct {
	Spec *planner.ProjectionSpec
	// Covered is a hint: some candidate index covers Spec.
	Covered bool
	// CoveringIndexes names the candidates that cover Spec, in candidate order.
	CoveringIndexes []string
	// Inferred is set when Spec was derived from the fields the pipeline reads, rather than
	// taken from a Project stage.
	Inferred bool
}

// Coalescer removes the pushdown candidate from a pipeline.
type Coalescer struct {
	eligibility *EligibilityChecker
}

func NewCoalescer(eligibility *EligibilityChecker) *Coalescer {
	return &Coalescer{eligibility: eligibility}
}

// Coalesce removes the first eligible Project stage and reports it as absorbed, marking it
// covered when any of indexCandidates covers it. Without a candidate the stages are returned
// unchanged with a nil descriptor. The input is never modified.
func (c *Coalescer) Coalesce(stages []planner.Stage, indexCandidates []indexing.KeyPattern) ([]planner.Stage, *AbsorbedProjection) {
	remaining, absorbed, _ := c.coalesce(stages, indexCandidates)
	return remaining, absorbed
}

// coalesce is Coalesce that also returns the position the projection was removed from.
func (c *Coalescer) coalesce(stages []planner.Stage, indexCandidates []indexing.KeyPattern) ([]planner.Stage, *AbsorbedProjection, int) {
	pos, ok := c.eligibility.Candidate(stages)
	if !ok {
		return append([]planner.Stage(nil), stages...), nil, -1
	}

	spec := stages[pos].(*planner.ProjectStage).Spec
	remaining := make([]planner.Stage, 0, len(stages)-1)
	remaining = append(remaining, stages[:pos]...)
	remaining = append(remaining, stages[pos+1:]...)

	covering := coveringIndexes(spec, indexCandidates)
	return remaining, &AbsorbedProjection{
		Spec:            spec,
		Covered:         len(covering) > 0,
		CoveringIndexes: covering,
	}, pos
}

// Coalesce runs a Coalescer that tolerates one leading Sort.
func Coalesce(stages []planner.Stage, indexCandidates []indexing.KeyPattern) ([]planner.Stage, *AbsorbedProjection) {
	return NewCoalescer(NewEligibilityChecker(true)).Coalesce(stages, indexCandidates)
}
