package execution

import (
	"mit.edu/dsg/docdb/planner"
	"mit.edu/dsg/docdb/storage"
)

// UnwindExecutor emits one document per element of the array at the unwound path.
type UnwindExecutor struct {
	plan  *planner.UnwindNode
	child Executor

	pending []*storage.Document
	current *storage.Document
}

func NewUnwindExecutor(plan *planner.UnwindNode, child Executor) *UnwindExecutor {
	return &UnwindExecutor{
		plan:  plan,
		child: child,
	}
}

func (e *UnwindExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *UnwindExecutor) Init(ctx *ExecutorContext) error {
	e.pending = nil
	e.current = nil
	return e.child.Init(ctx)
}

func (e *UnwindExecutor) Next() bool {
	for len(e.pending) == 0 {
		if !e.child.Next() {
			return false
		}
		e.pending = e.unwind(e.child.Current())
	}
	e.current, e.pending = e.pending[0], e.pending[1:]
	return true
}

func (e *UnwindExecutor) unwind(doc *storage.Document) []*storage.Document {
	spec := e.plan.Spec
	v := documentPathValue(doc, spec.Path)
	switch {
	case v.IsArray() && len(v.Array()) > 0:
		out := make([]*storage.Document, len(v.Array()))
		for i, elem := range v.Array() {
			out[i] = e.withElement(doc, elem, storage.NewInt(int64(i)))
		}
		return out
	case !v.IsNullish() && !v.IsArray():
		return []*storage.Document{e.withElement(doc, v, storage.Null())}
	case spec.PreserveNullAndEmptyArrays:
		if v.IsArray() {
			// An empty array is removed from the output document.
			v = storage.Missing()
		}
		return []*storage.Document{e.withElement(doc, v, storage.Null())}
	}
	return nil
}

func (e *UnwindExecutor) withElement(doc *storage.Document, elem, index storage.Value) *storage.Document {
	spec := e.plan.Spec
	out := doc.Copy()
	setDocumentPath(out, spec.Path, elem)
	if spec.IncludeArrayIndex != "" {
		out.Set(spec.IncludeArrayIndex, index)
	}
	return out
}

// documentPathValue follows path through embedded documents only.
func documentPathValue(doc *storage.Document, path storage.FieldPath) storage.Value {
	v := storage.NewDocumentValue(doc)
	for _, component := range path {
		if !v.IsDocument() {
			return storage.Missing()
		}
		v = v.Document().Get(component)
	}
	return v
}

// setDocumentPath replaces the value at a path that documentPathValue resolved.
func setDocumentPath(doc *storage.Document, path storage.FieldPath, v storage.Value) {
	cur := doc
	for _, component := range path[:len(path)-1] {
		next := cur.Get(component)
		if !next.IsDocument() {
			return
		}
		cur = next.Document()
	}
	cur.Set(path[len(path)-1], v)
}

func (e *UnwindExecutor) Current() *storage.Document {
	return e.current
}

func (e *UnwindExecutor) Error() error {
	return e.child.Error()
}

func (e *UnwindExecutor) Close() error {
	e.pending = nil
	return e.child.Close()
}
