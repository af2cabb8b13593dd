package optimizer

import (
	"mit.edu/dsg/docdb/indexing"
	"mit.edu/dsg/docdb/planner"
)

type CoverageResult int

const (
	NotCovered CoverageResult = iota
	Covered
)

func (r CoverageResult) String() string {
	if r == Covered {
		return "Covered"
	}
	return "NotCovered"
}

// Analyze decides whether the index keys alone can produce the projection's output.
//
// The spec must be an inclusion projection of plain paths: renames and computed fields
// need the document to evaluate. Every included path, and _id when it is kept implicitly,
// must be a key path of the index. An included path along which the index saw an array
// cannot be covered either, since multikey entries hold array elements rather than the
// array.
func Analyze(spec *planner.ProjectionSpec, index indexing.KeyPattern) CoverageResult {
	if spec.Mode() != planner.InclusionMode || spec.HasRenameOrComputed() {
		return NotCovered
	}
	paths := spec.IncludedPaths()
	if spec.IncludesImplicitID() {
		paths = append(paths, planner.IDField)
	}
	for _, path := range paths {
		if !index.HasPath(path) || index.IsMultikey(path) {
			return NotCovered
		}
	}
	return Covered
}

// coveringIndexes returns the names of the candidates that cover spec, in candidate order.
func coveringIndexes(spec *planner.ProjectionSpec, candidates []indexing.KeyPattern) []string {
	var names []string
	for _, index := range candidates {
		if Analyze(spec, index) == Covered {
			names = append(names, index.Name)
		}
	}
	return names
}
