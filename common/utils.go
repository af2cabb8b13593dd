package common

import "fmt"

// Assert checks a condition and panics if it is false.
//
// Assertions guard internal invariants: truths about the planner or executor state that
// must hold when the upstream validators did their job (e.g., a projection that mixes
// inclusion and exclusion never reaches the optimizer). A violated invariant is a bug, and
// the panic's stack trace points straight at it.
//
// WHEN TO USE:
// - Checking for "impossible" conditions (e.g., switch default cases that shouldn't be reached).
// - Verifying a precondition that a validator upstream already enforces.
//
// WHEN NOT TO USE:
// - Validating user input such as pipelines, projections or index specs (return an error instead).
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
