package planner

import (
	"strings"

	"mit.edu/dsg/docdb/common"
	"mit.edu/dsg/docdb/storage"
)

type AccumulatorOp string

const (
	AccSum      AccumulatorOp = "$sum"
	AccAvg      AccumulatorOp = "$avg"
	AccMin      AccumulatorOp = "$min"
	AccMax      AccumulatorOp = "$max"
	AccFirst    AccumulatorOp = "$first"
	AccLast     AccumulatorOp = "$last"
	AccPush     AccumulatorOp = "$push"
	AccAddToSet AccumulatorOp = "$addToSet"
	AccCount    AccumulatorOp = "$count"
)

var accumulatorOps = map[AccumulatorOp]struct{}{
	AccSum: {}, AccAvg: {}, AccMin: {}, AccMax: {}, AccFirst: {},
	AccLast: {}, AccPush: {}, AccAddToSet: {}, AccCount: {},
}

// AccumulatorSpec computes one output field of a $group stage.
type AccumulatorSpec struct {
	Field string
	Op    AccumulatorOp
	// Expr is nil for $count.
	Expr Expr
}

// GroupSpec is a parsed $group: documents are grouped by the value of ID and each group
// produces {_id: <key>, <field>: <accumulated>...}.
type GroupSpec struct {
	ID           Expr
	Accumulators []AccumulatorSpec
}

func ParseGroup(spec *storage.Document) (*GroupSpec, error) {
	g := &GroupSpec{}
	for _, f := range spec.Fields() {
		if f.Name == IDField {
			id, err := ParseExpression(f.Value)
			if err != nil {
				return nil, err
			}
			g.ID = id
			continue
		}
		if f.Name == "" || strings.HasPrefix(f.Name, "$") || strings.Contains(f.Name, ".") {
			return nil, common.NewError(common.InvalidStageError, "invalid $group field name '%s'", f.Name)
		}
		acc, err := parseAccumulator(f.Name, f.Value)
		if err != nil {
			return nil, err
		}
		g.Accumulators = append(g.Accumulators, acc)
	}
	if g.ID == nil {
		return nil, common.NewError(common.InvalidStageError, "a group specification must include an _id")
	}
	return g, nil
}

func parseAccumulator(field string, v storage.Value) (AccumulatorSpec, error) {
	if !v.IsDocument() || v.Document().Len() != 1 {
		return AccumulatorSpec{}, common.NewError(common.InvalidStageError,
			"the field '%s' must be an accumulator object", field)
	}
	f := v.Document().Field(0)
	op := AccumulatorOp(f.Name)
	if _, ok := accumulatorOps[op]; !ok {
		return AccumulatorSpec{}, common.NewError(common.InvalidStageError,
			"unknown group operator '%s'", f.Name)
	}
	if op == AccCount {
		if !f.Value.IsDocument() || f.Value.Document().Len() != 0 {
			return AccumulatorSpec{}, common.NewError(common.InvalidStageError, "$count takes no arguments, i.e. $count:{}")
		}
		return AccumulatorSpec{Field: field, Op: op}, nil
	}
	expr, err := ParseExpression(f.Value)
	if err != nil {
		return AccumulatorSpec{}, err
	}
	return AccumulatorSpec{Field: field, Op: op, Expr: expr}, nil
}

func (g *GroupSpec) AddDependencies(deps *Dependencies) {
	g.ID.AddDependencies(deps)
	for _, acc := range g.Accumulators {
		if acc.Expr != nil {
			acc.Expr.AddDependencies(deps)
		}
	}
}

func (g *GroupSpec) Document() *storage.Document {
	d := storage.NewDocument(storage.Field{Name: IDField, Value: g.ID.Serialize()})
	for _, acc := range g.Accumulators {
		arg := storage.NewDocumentValue(nil)
		if acc.Expr != nil {
			arg = acc.Expr.Serialize()
		}
		d.Set(acc.Field, storage.NewDocumentValue(storage.NewDocument(storage.Field{Name: string(acc.Op), Value: arg})))
	}
	return d
}
