package execution

import (
	"mit.edu/dsg/docdb/planner"
	"mit.edu/dsg/docdb/storage"
)

// LimitExecutor limits the number of documents returned by the child executor.
type LimitExecutor struct {
	plan  *planner.LimitNode
	child Executor

	numEmitted int64
}

func NewLimitExecutor(plan *planner.LimitNode, child Executor) *LimitExecutor {
	return &LimitExecutor{
		plan:  plan,
		child: child,
	}
}

func (e *LimitExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *LimitExecutor) Init(ctx *ExecutorContext) error {
	e.numEmitted = 0
	return e.child.Init(ctx)
}

func (e *LimitExecutor) Next() bool {
	if e.numEmitted >= e.plan.Limit {
		return false
	}

	if e.child.Next() {
		e.numEmitted++
		return true
	}
	return false
}

func (e *LimitExecutor) Current() *storage.Document {
	return e.child.Current()
}

func (e *LimitExecutor) Error() error {
	return e.child.Error()
}

func (e *LimitExecutor) Close() error {
	return e.child.Close()
}

// SkipExecutor drops the first documents of its child.
type SkipExecutor struct {
	plan  *planner.SkipNode
	child Executor

	skipped bool
}

func NewSkipExecutor(plan *planner.SkipNode, child Executor) *SkipExecutor {
	return &SkipExecutor{
		plan:  plan,
		child: child,
	}
}

func (e *SkipExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *SkipExecutor) Init(ctx *ExecutorContext) error {
	e.skipped = false
	return e.child.Init(ctx)
}

func (e *SkipExecutor) Next() bool {
	if !e.skipped {
		e.skipped = true
		for i := int64(0); i < e.plan.Skip; i++ {
			if !e.child.Next() {
				return false
			}
		}
	}
	return e.child.Next()
}

func (e *SkipExecutor) Current() *storage.Document {
	return e.child.Current()
}

func (e *SkipExecutor) Error() error {
	return e.child.Error()
}

func (e *SkipExecutor) Close() error {
	return e.child.Close()
}
