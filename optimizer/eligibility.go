package optimizer

import (
	"mit.edu/dsg/docdb/common"
	"mit.edu/dsg/docdb/planner"
)

// EligibilityChecker finds the one Project stage of a pipeline that may be pushed down to
// the cursor. Scanning from the front, Match stages are passed over (a query-layer filter
// composes with a query-layer projection), as is a single Sort when absorbLeadingSort is
// set, because the cursor applies filter, sort and projection in pipeline order. Any other
// stage ends the scan.
type EligibilityChecker struct {
	absorbLeadingSort bool
}

func NewEligibilityChecker(absorbLeadingSort bool) *EligibilityChecker {
	return &EligibilityChecker{absorbLeadingSort: absorbLeadingSort}
}

// Candidate returns the position of the pushdown candidate, if any.
func (c *EligibilityChecker) Candidate(stages []planner.Stage) (int, bool) {
	sortSeen := false
	for i, s := range stages {
		switch s.Kind() {
		case planner.KindMatch:
			continue
		case planner.KindSort:
			if !c.absorbLeadingSort || sortSeen {
				return -1, false
			}
			sortSeen = true
		case planner.KindProject:
			spec := s.(*planner.ProjectStage).Spec
			common.Assert(spec != nil, "project stage at %d has no specification", i)
			return i, true
		case planner.KindGroup, planner.KindLimit, planner.KindSkip, planner.KindOther:
			return -1, false
		default:
			panic("unknown stage kind " + s.Kind().String())
		}
	}
	return -1, false
}

// IsEligible reports whether the stage at position is the pushdown candidate. Renames and
// computed fields never affect the answer.
func (c *EligibilityChecker) IsEligible(stages []planner.Stage, position int) bool {
	p, ok := c.Candidate(stages)
	return ok && p == position
}

// cursorPrefix returns the length of the leading run of stages the cursor can execute
// itself: Match stages and at most one Sort (when enabled).
func (c *EligibilityChecker) cursorPrefix(stages []planner.Stage) int {
	sortSeen := false
	for i, s := range stages {
		switch s.Kind() {
		case planner.KindMatch:
		case planner.KindSort:
			if !c.absorbLeadingSort || sortSeen {
				return i
			}
			sortSeen = true
		default:
			return i
		}
	}
	return len(stages)
}
