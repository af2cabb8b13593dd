package execution

import (
	"mit.edu/dsg/docdb/planner"
	"mit.edu/dsg/docdb/storage"
)

// ProjectionExecutor reshapes each document of its child according to a ProjectionSpec.
type ProjectionExecutor struct {
	plan  *planner.ProjectionNode
	child Executor

	current *storage.Document
	err     error
}

func NewProjectionExecutor(plan *planner.ProjectionNode, child Executor) *ProjectionExecutor {
	return &ProjectionExecutor{
		plan:  plan,
		child: child,
	}
}

func (e *ProjectionExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *ProjectionExecutor) Init(ctx *ExecutorContext) error {
	e.current = nil
	e.err = nil
	return e.child.Init(ctx)
}

func (e *ProjectionExecutor) Next() bool {
	if e.err != nil || !e.child.Next() {
		return false
	}
	in := e.child.Current()
	if e.plan.Strategy == planner.StrategySimpleFetch {
		e.current = simpleProject(e.plan.Spec, in)
		return true
	}
	e.current, e.err = e.plan.Spec.Apply(in)
	return e.err == nil
}

// simpleProject applies an inclusion of top-level fields by copying them, _id first.
func simpleProject(spec *planner.ProjectionSpec, in *storage.Document) *storage.Document {
	out := storage.NewDocument()
	if spec.IncludesImplicitID() {
		if id := in.Get(planner.IDField); !id.IsMissing() {
			out.Set(planner.IDField, id)
		}
	}
	paths := spec.IncludedPaths()
	for _, name := range paths {
		if name == planner.IDField {
			if id := in.Get(name); !id.IsMissing() {
				out.Set(name, id)
			}
		}
	}
	for _, name := range paths {
		if name == planner.IDField {
			continue
		}
		if v := in.Get(name); !v.IsMissing() {
			out.Set(name, v)
		}
	}
	return out
}

func (e *ProjectionExecutor) Current() *storage.Document {
	return e.current
}

func (e *ProjectionExecutor) Error() error {
	if e.err != nil {
		return e.err
	}
	return e.child.Error()
}

func (e *ProjectionExecutor) Close() error {
	return e.child.Close()
}
