package indexing

import (
	"fmt"
	"math"

	"mit.edu/dsg/docdb/storage"
)

// Interval bounds the leading key value of an index scan.
type Interval struct {
	Low, High                   storage.Value
	LowInclusive, HighInclusive bool
	LowUnbounded, HighUnbounded bool
}

// FullInterval matches every entry.
func FullInterval() Interval {
	return Interval{LowUnbounded: true, HighUnbounded: true}
}

// PointInterval matches entries whose leading value equals v.
func PointInterval(v storage.Value) Interval {
	return Interval{Low: v, High: v, LowInclusive: true, HighInclusive: true}
}

// typeBracket returns the range of values comparison operators may match for v. Query
// comparisons only match values of the same canonical type, so $gte 0 never matches a
// string even though strings sort after numbers.
func typeBracket(v storage.Value) (Interval, bool) {
	switch v.Kind() {
	case storage.KindInt, storage.KindDouble:
		return Interval{
			Low: storage.NewDouble(math.NaN()), LowInclusive: true,
			High: storage.NewDouble(math.Inf(1)), HighInclusive: true,
		}, true
	case storage.KindString:
		return Interval{
			Low: storage.NewString(""), LowInclusive: true,
			High: storage.NewDocumentValue(nil), HighInclusive: false,
		}, true
	case storage.KindBool:
		return Interval{
			Low: storage.NewBool(false), LowInclusive: true,
			High: storage.NewBool(true), HighInclusive: true,
		}, true
	}
	return Interval{}, false
}

// ComparisonInterval returns the interval matched by a comparison operator ("$eq", "$gt",
// "$gte", "$lt", "$lte") against a scalar value. It reports false for operators or value
// types whose matches cannot be bounded from the index alone (arrays, documents, null).
func ComparisonInterval(op string, v storage.Value) (Interval, bool) {
	bracket, ok := typeBracket(v)
	if !ok {
		return Interval{}, false
	}
	switch op {
	case "$eq":
		return PointInterval(v), true
	case "$gt", "$gte":
		bracket.Low, bracket.LowInclusive = v, op == "$gte"
		return bracket, true
	case "$lt", "$lte":
		bracket.High, bracket.HighInclusive = v, op == "$lte"
		return bracket, true
	}
	return Interval{}, false
}

// Intersect returns the tightest interval contained in both.
func (iv Interval) Intersect(other Interval) Interval {
	out := iv
	if !other.LowUnbounded {
		if out.LowUnbounded {
			out.Low, out.LowInclusive, out.LowUnbounded = other.Low, other.LowInclusive, false
		} else if c := other.Low.Compare(out.Low); c > 0 || (c == 0 && !other.LowInclusive) {
			out.Low, out.LowInclusive = other.Low, other.LowInclusive
		}
	}
	if !other.HighUnbounded {
		if out.HighUnbounded {
			out.High, out.HighInclusive, out.HighUnbounded = other.High, other.HighInclusive, false
		} else if c := other.High.Compare(out.High); c < 0 || (c == 0 && !other.HighInclusive) {
			out.High, out.HighInclusive = other.High, other.HighInclusive
		}
	}
	return out
}

// IsEmpty reports whether no value can lie in the interval.
func (iv Interval) IsEmpty() bool {
	if iv.LowUnbounded || iv.HighUnbounded {
		return false
	}
	c := iv.Low.Compare(iv.High)
	return c > 0 || (c == 0 && !(iv.LowInclusive && iv.HighInclusive))
}

func (iv Interval) belowLow(v storage.Value) bool {
	if iv.LowUnbounded {
		return false
	}
	c := v.Compare(iv.Low)
	return c < 0 || (c == 0 && !iv.LowInclusive)
}

func (iv Interval) aboveHigh(v storage.Value) bool {
	if iv.HighUnbounded {
		return false
	}
	c := v.Compare(iv.High)
	return c > 0 || (c == 0 && !iv.HighInclusive)
}

// Contains reports whether v lies in the interval.
func (iv Interval) Contains(v storage.Value) bool {
	return !iv.belowLow(v) && !iv.aboveHigh(v)
}

func (iv Interval) String() string {
	lo, hi := "[MinKey", "MaxKey]"
	if !iv.LowUnbounded {
		lo = "(" + iv.Low.String()
		if iv.LowInclusive {
			lo = "[" + iv.Low.String()
		}
	}
	if !iv.HighUnbounded {
		hi = iv.High.String() + ")"
		if iv.HighInclusive {
			hi = iv.High.String() + "]"
		}
	}
	return fmt.Sprintf("%s, %s", lo, hi)
}
