package execution

import (
	"mit.edu/dsg/docdb/planner"
	"mit.edu/dsg/docdb/storage"
)

// accumulator folds the values of one $group output field.
type accumulator interface {
	add(v storage.Value)
	result() storage.Value
}

func newAccumulator(op planner.AccumulatorOp) accumulator {
	switch op {
	case planner.AccSum:
		return &sumAccumulator{sum: planner.NewNumericAccumulator()}
	case planner.AccAvg:
		return &avgAccumulator{sum: planner.NewNumericAccumulator()}
	case planner.AccMin:
		return &extremeAccumulator{sign: -1}
	case planner.AccMax:
		return &extremeAccumulator{sign: 1}
	case planner.AccFirst:
		return &positionalAccumulator{first: true}
	case planner.AccLast:
		return &positionalAccumulator{}
	case planner.AccPush:
		return &pushAccumulator{elems: []storage.Value{}}
	case planner.AccAddToSet:
		return &pushAccumulator{elems: []storage.Value{}, seen: make(map[string]struct{})}
	case planner.AccCount:
		return &countAccumulator{}
	}
	panic("unknown accumulator " + string(op))
}

// sumAccumulator ignores non-numeric values; a group without numbers sums to 0.
type sumAccumulator struct {
	sum *planner.NumericAccumulator
}

func (a *sumAccumulator) add(v storage.Value) {
	if v.IsNumber() {
		a.sum.Add(v)
	}
}

func (a *sumAccumulator) result() storage.Value {
	return a.sum.Result()
}

type avgAccumulator struct {
	sum   *planner.NumericAccumulator
	count int64
}

func (a *avgAccumulator) add(v storage.Value) {
	if v.IsNumber() {
		a.sum.Add(v)
		a.count++
	}
}

func (a *avgAccumulator) result() storage.Value {
	if a.count == 0 {
		return storage.Null()
	}
	return storage.NewDouble(a.sum.Result().Double() / float64(a.count))
}

// extremeAccumulator keeps the smallest (sign -1) or largest (sign 1) non-null value.
type extremeAccumulator struct {
	sign int
	best storage.Value
	set  bool
}

func (a *extremeAccumulator) add(v storage.Value) {
	if v.IsNullish() {
		return
	}
	if !a.set || v.Compare(a.best)*a.sign > 0 {
		a.best, a.set = v, true
	}
}

func (a *extremeAccumulator) result() storage.Value {
	if !a.set {
		return storage.Null()
	}
	return a.best
}

type positionalAccumulator struct {
	first bool
	value storage.Value
	set   bool
}

func (a *positionalAccumulator) add(v storage.Value) {
	if a.first && a.set {
		return
	}
	if v.IsMissing() {
		v = storage.Null()
	}
	a.value, a.set = v, true
}

func (a *positionalAccumulator) result() storage.Value {
	return a.value
}

// pushAccumulator collects values in arrival order; with seen set it keeps distinct values only.
type pushAccumulator struct {
	elems []storage.Value
	seen  map[string]struct{}
}

func (a *pushAccumulator) add(v storage.Value) {
	if v.IsMissing() {
		return
	}
	if a.seen != nil {
		key := v.CanonicalKey()
		if _, dup := a.seen[key]; dup {
			return
		}
		a.seen[key] = struct{}{}
	}
	a.elems = append(a.elems, v)
}

func (a *pushAccumulator) result() storage.Value {
	return storage.NewArray(a.elems...)
}

type countAccumulator struct {
	n int64
}

func (a *countAccumulator) add(storage.Value) {
	a.n++
}

func (a *countAccumulator) result() storage.Value {
	return storage.NewInt(a.n)
}
