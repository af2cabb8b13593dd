package execution

import (
	"mit.edu/dsg/docdb/planner"
	"mit.edu/dsg/docdb/storage"
)

// AggregateExecutor implements hash-based $group. Groups are emitted in the order their
// first document arrived.
type AggregateExecutor struct {
	plan  *planner.AggregateNode
	child Executor

	// Runtime state
	docs         []*storage.Document
	currentIndex int
	ctx          *ExecutorContext
	err          error
}

func NewAggregateExecutor(plan *planner.AggregateNode, child Executor) *AggregateExecutor {
	return &AggregateExecutor{
		child:        child,
		plan:         plan,
		currentIndex: -1,
	}
}

func (e *AggregateExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

func (e *AggregateExecutor) Init(ctx *ExecutorContext) error {
	e.docs = nil
	e.currentIndex = -1
	e.ctx = ctx
	e.err = nil
	return e.child.Init(ctx)
}

type groupState struct {
	id           storage.Value
	accumulators []accumulator
}

func (e *AggregateExecutor) newGroupState(id storage.Value) *groupState {
	state := &groupState{id: id, accumulators: make([]accumulator, len(e.plan.Spec.Accumulators))}
	for i, acc := range e.plan.Spec.Accumulators {
		state.accumulators[i] = newAccumulator(acc.Op)
	}
	return state
}

func (e *AggregateExecutor) computeGroups() error {
	spec := e.plan.Spec
	groups := make(map[string]*groupState)
	var order []*groupState

	for e.child.Next() {
		doc := e.child.Current()
		vars := planner.NewVars(doc)
		id, err := spec.ID.Eval(vars)
		if err != nil {
			return err
		}
		if id.IsMissing() {
			id = storage.Null()
		}

		key := id.CanonicalKey()
		state, ok := groups[key]
		if !ok {
			state = e.newGroupState(id)
			groups[key] = state
			order = append(order, state)
			if err := e.ctx.checkBuffered("$group", len(order)); err != nil {
				return err
			}
		}

		for i, acc := range spec.Accumulators {
			v := storage.Missing()
			if acc.Expr != nil {
				if v, err = acc.Expr.Eval(vars); err != nil {
					return err
				}
			}
			state.accumulators[i].add(v)
		}
	}
	if err := e.child.Error(); err != nil {
		return err
	}

	e.docs = make([]*storage.Document, len(order))
	for i, state := range order {
		out := storage.NewDocument(storage.Field{Name: planner.IDField, Value: state.id})
		for j, acc := range spec.Accumulators {
			out.Set(acc.Field, state.accumulators[j].result())
		}
		e.docs[i] = out
	}
	return nil
}

func (e *AggregateExecutor) Next() bool {
	if e.err != nil {
		return false
	}
	if e.docs == nil {
		if e.err = e.computeGroups(); e.err != nil {
			return false
		}
	}
	e.currentIndex++
	return e.currentIndex < len(e.docs)
}

func (e *AggregateExecutor) Current() *storage.Document {
	return e.docs[e.currentIndex]
}

func (e *AggregateExecutor) Error() error {
	return e.err
}

func (e *AggregateExecutor) Close() error {
	e.docs = nil
	return e.child.Close()
}
