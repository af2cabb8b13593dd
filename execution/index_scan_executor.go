package execution

import (
	"mit.edu/dsg/docdb/common"
	"mit.edu/dsg/docdb/indexing"
	"mit.edu/dsg/docdb/planner"
	"mit.edu/dsg/docdb/storage"
)

// IndexScanExecutor scans an index within the plan's bounds. With KeysOnly it rebuilds each
// document from its index key; otherwise it fetches each matching document once.
type IndexScanExecutor struct {
	plan       *planner.IndexScanNode
	index      indexing.Index
	collection *Collection

	// Runtime state
	iter    indexing.ScanIterator
	records *storage.RecordSnapshot
	seen    map[common.RecordID]struct{}
	current *storage.Document
	ctx     *ExecutorContext
	err     error
}

func NewIndexScanExecutor(plan *planner.IndexScanNode, index indexing.Index, collection *Collection) *IndexScanExecutor {
	return &IndexScanExecutor{
		plan:       plan,
		index:      index,
		collection: collection,
	}
}

func (e *IndexScanExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *IndexScanExecutor) Init(ctx *ExecutorContext) error {
	if err := e.Close(); err != nil {
		return err
	}
	e.ctx = ctx
	e.err = nil
	e.current = nil
	e.seen = make(map[common.RecordID]struct{})
	if !e.plan.KeysOnly {
		e.records = e.collection.Snapshot()
	}
	e.iter, e.err = e.index.Scan(e.plan.Bounds)
	return e.err
}

func (e *IndexScanExecutor) Next() bool {
	common.Assert(e.iter != nil, "IndexScanExecutor.Init() must be called before calling Next()")
	if e.err != nil {
		return false
	}
	for {
		if !e.iter.Next() {
			e.err = e.iter.Error()
			return false
		}
		if e.err = e.ctx.checkCancelled(); e.err != nil {
			return false
		}
		e.ctx.metrics.keysExamined.Inc()

		rid := e.iter.Value()
		// A multikey document has one entry per distinct key.
		if _, dup := e.seen[rid]; dup {
			continue
		}
		e.seen[rid] = struct{}{}

		if e.plan.KeysOnly {
			e.current = indexing.RebuildDocument(e.plan.Pattern, e.iter.Key())
			return true
		}
		doc, ok := e.records.Get(rid)
		// The document was inserted after the record snapshot was taken, or deleted after the
		// index snapshot was; either way it is not part of this query.
		if !ok {
			continue
		}
		e.ctx.metrics.docsExamined.Inc()
		e.current = doc
		return true
	}
}

func (e *IndexScanExecutor) Current() *storage.Document {
	return e.current
}

func (e *IndexScanExecutor) Error() error {
	return e.err
}

func (e *IndexScanExecutor) Close() error {
	if e.iter == nil {
		return nil
	}
	err := e.iter.Close()
	e.iter = nil
	e.records = nil
	return err
}
