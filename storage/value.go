package storage

import (
	"math"
	"strconv"
	"strings"

	"mit.edu/dsg/docdb/common"
)

type Kind int8

const (
	// KindMissing marks the absence of a field. It never appears inside a stored document.
	KindMissing Kind = iota
	KindNull
	KindInt
	KindDouble
	KindString
	KindDocument
	KindArray
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindDocument:
		return "object"
	case KindArray:
		return "array"
	case KindBool:
		return "bool"
	}
	return "unknown"
}

// rank places kinds into the canonical cross-type order. Ints and doubles share a rank so
// that they compare by numeric value.
func (k Kind) rank() int {
	switch k {
	case KindMissing:
		return 0
	case KindNull:
		return 1
	case KindInt, KindDouble:
		return 2
	case KindString:
		return 3
	case KindDocument:
		return 4
	case KindArray:
		return 5
	case KindBool:
		return 6
	}
	panic("unknown kind")
}

// Value represents a single data item in a document: a scalar, an embedded document or an
// array. Values are immutable once constructed; Document and Array accessors return shared
// structures that callers must not modify.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    bool
	doc  *Document
	arr  []Value
}

// Missing returns the value of an absent field.
func Missing() Value {
	return Value{kind: KindMissing}
}

func Null() Value {
	return Value{kind: KindNull}
}

func NewInt(v int64) Value {
	return Value{kind: KindInt, i: v}
}

func NewDouble(v float64) Value {
	return Value{kind: KindDouble, f: v}
}

func NewString(v string) Value {
	return Value{kind: KindString, s: v}
}

func NewBool(v bool) Value {
	return Value{kind: KindBool, b: v}
}

// NewDocumentValue wraps a document. A nil document is treated as an empty one.
func NewDocumentValue(d *Document) Value {
	if d == nil {
		d = NewDocument()
	}
	return Value{kind: KindDocument, doc: d}
}

// NewArray wraps the given elements. The slice is retained, not copied.
func NewArray(elems ...Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{kind: KindArray, arr: elems}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsMissing() bool {
	return v.kind == KindMissing
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// IsNullish returns true for null and missing values.
func (v Value) IsNullish() bool {
	return v.kind == KindNull || v.kind == KindMissing
}

func (v Value) IsNumber() bool {
	return v.kind == KindInt || v.kind == KindDouble
}

func (v Value) IsDocument() bool {
	return v.kind == KindDocument
}

func (v Value) IsArray() bool {
	return v.kind == KindArray
}

// Int returns the underlying integer.
func (v Value) Int() int64 {
	common.Assert(v.kind == KindInt, "type mismatch in Int: %s", v.kind)
	return v.i
}

// Double returns the numeric value as a float64 for ints and doubles.
func (v Value) Double() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.i)
	case KindDouble:
		return v.f
	}
	panic("type mismatch in Double: " + v.kind.String())
}

func (v Value) Str() string {
	common.Assert(v.kind == KindString, "type mismatch in Str: %s", v.kind)
	return v.s
}

func (v Value) Bool() bool {
	common.Assert(v.kind == KindBool, "type mismatch in Bool: %s", v.kind)
	return v.b
}

func (v Value) Document() *Document {
	common.Assert(v.kind == KindDocument, "type mismatch in Document: %s", v.kind)
	return v.doc
}

func (v Value) Array() []Value {
	common.Assert(v.kind == KindArray, "type mismatch in Array: %s", v.kind)
	return v.arr
}

// Truthy implements expression truthiness: false, null, missing and numeric zero are false,
// everything else is true.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindMissing, KindNull:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindDouble:
		return v.f != 0
	}
	return true
}

// SameTypeClass reports whether two values are comparable by query operators, which only
// compare values of the same canonical type (numbers with numbers, strings with strings...).
func (v Value) SameTypeClass(other Value) bool {
	return v.kind.rank() == other.kind.rank()
}

// Compare compares two Values using the canonical total order.
// Returns -1 if v < other, 0 if v == other, 1 if v > other.
// Across kinds: missing < null < numbers < strings < documents < arrays < booleans.
func (v Value) Compare(other Value) int {
	if r1, r2 := v.kind.rank(), other.kind.rank(); r1 != r2 {
		return cmpInt(r1, r2)
	}

	switch v.kind {
	case KindMissing, KindNull:
		return 0
	case KindInt, KindDouble:
		return compareNumbers(v, other)
	case KindString:
		return strings.Compare(v.s, other.s)
	case KindDocument:
		return v.doc.Compare(other.doc)
	case KindArray:
		for i := 0; i < len(v.arr) && i < len(other.arr); i++ {
			if c := v.arr[i].Compare(other.arr[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(v.arr), len(other.arr))
	case KindBool:
		if v.b == other.b {
			return 0
		}
		if !v.b {
			return -1
		}
		return 1
	}
	panic("unreachable")
}

// Equal reports canonical equality (1 and 1.0 are equal).
func (v Value) Equal(other Value) bool {
	return v.Compare(other) == 0
}

// Identical reports exact equality, including the numeric kind and field order.
func (v Value) Identical(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == other.i
	case KindDouble:
		return v.f == other.f || (math.IsNaN(v.f) && math.IsNaN(other.f))
	case KindDocument:
		return v.doc.Identical(other.doc)
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Identical(other.arr[i]) {
				return false
			}
		}
		return true
	}
	return v.Compare(other) == 0
}

func compareNumbers(a, b Value) int {
	if a.kind == KindInt && b.kind == KindInt {
		return cmpInt64(a.i, b.i)
	}
	fa, fb := a.Double(), b.Double()
	// NaN sorts before every other number.
	switch {
	case math.IsNaN(fa) && math.IsNaN(fb):
		return 0
	case math.IsNaN(fa):
		return -1
	case math.IsNaN(fb):
		return 1
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	}
	return 0
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func cmpInt64(a, b int64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// CanonicalKey returns a string that is equal for two values exactly when Equal reports
// true. It is used to key hash tables (group-by, $addToSet, dedupe).
func (v Value) CanonicalKey() string {
	var sb strings.Builder
	v.writeCanonicalKey(&sb)
	return sb.String()
}

func (v Value) writeCanonicalKey(sb *strings.Builder) {
	switch v.kind {
	case KindMissing:
		sb.WriteString("m")
	case KindNull:
		sb.WriteString("z")
	case KindInt:
		sb.WriteString("n")
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case KindDouble:
		sb.WriteString("n")
		if v.f == math.Trunc(v.f) && math.Abs(v.f) < 1<<53 {
			sb.WriteString(strconv.FormatInt(int64(v.f), 10))
		} else {
			sb.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
		}
	case KindString:
		sb.WriteString("s")
		sb.WriteString(strconv.Quote(v.s))
	case KindBool:
		if v.b {
			sb.WriteString("t")
		} else {
			sb.WriteString("f")
		}
	case KindDocument:
		sb.WriteString("{")
		for i, f := range v.doc.fields {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(strconv.Quote(f.Name))
			sb.WriteString(":")
			f.Value.writeCanonicalKey(sb)
		}
		sb.WriteString("}")
	case KindArray:
		sb.WriteString("[")
		for i, e := range v.arr {
			if i > 0 {
				sb.WriteString(",")
			}
			e.writeCanonicalKey(sb)
		}
		sb.WriteString("]")
	}
}

// Copy returns a deep copy of the value, decoupled from any shared document or array.
func (v Value) Copy() Value {
	switch v.kind {
	case KindDocument:
		return NewDocumentValue(v.doc.Copy())
	case KindArray:
		elems := make([]Value, len(v.arr))
		for i, e := range v.arr {
			elems[i] = e.Copy()
		}
		return NewArray(elems...)
	}
	return v
}

func (v Value) String() string {
	b, _ := v.MarshalJSON()
	return string(b)
}
