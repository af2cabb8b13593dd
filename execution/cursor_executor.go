package execution

import (
	"mit.edu/dsg/docdb/planner"
	"mit.edu/dsg/docdb/storage"
)

// CursorExecutor hands the output of the query layer to the pipeline.
type CursorExecutor struct {
	plan  *planner.CursorNode
	child Executor

	ctx *ExecutorContext
}

func NewCursorExecutor(plan *planner.CursorNode, child Executor) *CursorExecutor {
	return &CursorExecutor{
		plan:  plan,
		child: child,
	}
}

func (e *CursorExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *CursorExecutor) Init(ctx *ExecutorContext) error {
	e.ctx = ctx
	return e.child.Init(ctx)
}

func (e *CursorExecutor) Next() bool {
	if !e.child.Next() {
		return false
	}
	e.ctx.metrics.docsReturned.Inc()
	return true
}

func (e *CursorExecutor) Current() *storage.Document {
	return e.child.Current()
}

func (e *CursorExecutor) Error() error {
	return e.child.Error()
}

func (e *CursorExecutor) Close() error {
	return e.child.Close()
}
