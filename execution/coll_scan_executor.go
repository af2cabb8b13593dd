package execution

import (
	"mit.edu/dsg/docdb/common"
	"mit.edu/dsg/docdb/planner"
	"mit.edu/dsg/docdb/storage"
)

// CollScanExecutor reads every document of a collection snapshot in RecordID order.
type CollScanExecutor struct {
	plan       *planner.CollScanNode
	collection *Collection

	iter    *storage.RecordIterator
	current *storage.Document
	ctx     *ExecutorContext
	err     error
}

func NewCollScanExecutor(plan *planner.CollScanNode, collection *Collection) *CollScanExecutor {
	return &CollScanExecutor{
		plan:       plan,
		collection: collection,
	}
}

func (e *CollScanExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *CollScanExecutor) Init(ctx *ExecutorContext) error {
	if e.iter != nil {
		e.iter.Close()
	}
	e.ctx = ctx
	e.err = nil
	e.current = nil
	e.iter = e.collection.Snapshot().Iterator()
	return nil
}

func (e *CollScanExecutor) Next() bool {
	common.Assert(e.iter != nil, "CollScanExecutor.Init() must be called before calling Next()")
	if e.err != nil {
		return false
	}
	if !e.iter.Next() {
		return false
	}
	if e.err = e.ctx.checkCancelled(); e.err != nil {
		return false
	}
	e.ctx.metrics.docsExamined.Inc()
	e.current = e.iter.Document()
	return true
}

func (e *CollScanExecutor) Current() *storage.Document {
	return e.current
}

func (e *CollScanExecutor) Error() error {
	return e.err
}

func (e *CollScanExecutor) Close() error {
	if e.iter != nil {
		e.iter.Close()
		e.iter = nil
	}
	return nil
}
