package execution

import (
	"sort"

	"mit.edu/dsg/docdb/planner"
	"mit.edu/dsg/docdb/storage"
)

// SortExecutor buffers its input and emits it in sort order. Documents with equal sort keys
// keep their input order.
type SortExecutor struct {
	plan  *planner.SortNode
	child Executor

	docs         []*storage.Document
	computed     bool
	currentIndex int
	ctx          *ExecutorContext
	err          error
}

func NewSortExecutor(plan *planner.SortNode, child Executor) *SortExecutor {
	return &SortExecutor{
		plan:  plan,
		child: child,
	}
}

func (e *SortExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *SortExecutor) Init(ctx *ExecutorContext) error {
	e.docs = nil
	e.computed = false
	e.currentIndex = -1
	e.ctx = ctx
	e.err = nil
	return e.child.Init(ctx)
}

func (e *SortExecutor) buffer() error {
	for e.child.Next() {
		e.docs = append(e.docs, e.child.Current())
		if err := e.ctx.checkBuffered("$sort", len(e.docs)); err != nil {
			return err
		}
	}
	if err := e.child.Error(); err != nil {
		return err
	}
	sort.SliceStable(e.docs, func(i, j int) bool {
		return planner.CompareForSort(e.docs[i], e.docs[j], e.plan.Keys) < 0
	})
	return nil
}

func (e *SortExecutor) Next() bool {
	if e.err != nil {
		return false
	}
	if !e.computed {
		e.computed = true
		if e.err = e.buffer(); e.err != nil {
			return false
		}
	}
	e.currentIndex++
	return e.currentIndex < len(e.docs)
}

func (e *SortExecutor) Current() *storage.Document {
	return e.docs[e.currentIndex]
}

func (e *SortExecutor) Error() error {
	return e.err
}

func (e *SortExecutor) Close() error {
	e.docs = nil
	return e.child.Close()
}
