package execution

import (
	"container/heap"
	"sort"

	"mit.edu/dsg/docdb/planner"
	"mit.edu/dsg/docdb/storage"
)

// TopNExecutor uses a heap to keep the first N documents in sort order.
type TopNExecutor struct {
	plan  *planner.TopNNode
	child Executor

	sortedDocs   []*storage.Document
	computed     bool
	currentIndex int
	ctx          *ExecutorContext
	err          error
}

func NewTopNExecutor(plan *planner.TopNNode, child Executor) *TopNExecutor {
	return &TopNExecutor{
		plan:  plan,
		child: child,
	}
}

func (e *TopNExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *TopNExecutor) Init(ctx *ExecutorContext) error {
	e.sortedDocs = nil
	e.computed = false
	e.currentIndex = -1
	e.ctx = ctx
	e.err = nil
	return e.child.Init(ctx)
}

// rankedDoc remembers the input position so that ties keep their input order, as in a
// full stable sort followed by a limit.
type rankedDoc struct {
	doc *storage.Document
	seq int
}

func compareRanked(a, b rankedDoc, keys []planner.SortKey) int {
	if c := planner.CompareForSort(a.doc, b.doc, keys); c != 0 {
		return c
	}
	switch {
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	}
	return 0
}

// docHeap implements heap.Interface
type docHeap struct {
	docs []rankedDoc
	keys []planner.SortKey
}

func (h *docHeap) Len() int { return len(h.docs) }

func (h *docHeap) Swap(i, j int) { h.docs[i], h.docs[j] = h.docs[j], h.docs[i] }

func (h *docHeap) Less(i, j int) bool {
	// Heap logic is backwards from normal -- to keep smallest elements, use a max heap
	return compareRanked(h.docs[i], h.docs[j], h.keys) > 0
}

func (h *docHeap) Push(x any) {
	h.docs = append(h.docs, x.(rankedDoc))
}

func (h *docHeap) Pop() any {
	old := h.docs
	n := len(old)
	x := old[n-1]
	h.docs = old[0 : n-1]
	return x
}

func (e *TopNExecutor) computeTopN() error {
	h := &docHeap{
		docs: make([]rankedDoc, 0, min(e.plan.Limit+1, 1024)),
		keys: e.plan.Keys,
	}

	seq := 0
	for e.child.Next() {
		heap.Push(h, rankedDoc{doc: e.child.Current(), seq: seq})
		seq++
		if int64(h.Len()) > e.plan.Limit {
			heap.Pop(h)
		}
		if err := e.ctx.checkBuffered("top-n sort", h.Len()); err != nil {
			return err
		}
	}
	if err := e.child.Error(); err != nil {
		return err
	}

	// heap is in tree order -- sort it in the correct order, which is the reverse of the heap order
	sort.Slice(h.docs, func(i, j int) bool {
		return compareRanked(h.docs[i], h.docs[j], e.plan.Keys) < 0
	})
	e.sortedDocs = make([]*storage.Document, len(h.docs))
	for i, r := range h.docs {
		e.sortedDocs[i] = r.doc
	}
	return nil
}

func (e *TopNExecutor) Next() bool {
	if e.err != nil {
		return false
	}
	if !e.computed {
		e.err = e.computeTopN()
		e.computed = true
		if e.err != nil {
			return false
		}
	}
	e.currentIndex++
	return e.currentIndex < len(e.sortedDocs)
}

func (e *TopNExecutor) Current() *storage.Document {
	return e.sortedDocs[e.currentIndex]
}

func (e *TopNExecutor) Error() error {
	return e.err
}

func (e *TopNExecutor) Close() error {
	e.sortedDocs = nil
	return e.child.Close()
}
