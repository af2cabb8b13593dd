package planner

import (
	"fmt"
	"math"
	"strings"

	"mit.edu/dsg/docdb/common"
	"mit.edu/dsg/docdb/storage"
)

// Expr represents a node in an aggregation expression tree.
// Expressions are stateless and immutable plan nodes.
type Expr interface {
	// Eval evaluates the expression against the variables in scope. A Missing result means
	// the expression produced no value (for example a path that does not exist).
	Eval(vars *Vars) (storage.Value, error)

	// AddDependencies records the document fields the expression reads.
	AddDependencies(deps *Dependencies)

	// Serialize returns the query-language form of the expression.
	Serialize() storage.Value

	// String returns a string representation of the expression.
	String() string
}

// Vars is a scope of variables. ROOT and CURRENT are always bound to the input document;
// $filter and similar operators derive child scopes with Bind.
type Vars struct {
	root   *storage.Document
	parent *Vars
	name   string
	value  storage.Value
}

func NewVars(root *storage.Document) *Vars {
	return &Vars{root: root}
}

// Root returns the document being evaluated.
func (v *Vars) Root() *storage.Document {
	return v.root
}

// Bind returns a child scope with one more variable.
func (v *Vars) Bind(name string, value storage.Value) *Vars {
	return &Vars{root: v.root, parent: v, name: name, value: value}
}

// Get looks up a variable by name.
func (v *Vars) Get(name string) (storage.Value, bool) {
	if name == "ROOT" || name == "CURRENT" {
		return storage.NewDocumentValue(v.root), true
	}
	for s := v; s != nil; s = s.parent {
		if s.parent != nil && s.name == name {
			return s.value, true
		}
	}
	return storage.Value{}, false
}

func stringify(v storage.Value) string {
	return v.String()
}

// FieldPathExpr reads a dotted path from the current document ("$a.b").
type FieldPathExpr struct {
	path storage.FieldPath
}

func NewFieldPathExpr(path storage.FieldPath) *FieldPathExpr {
	return &FieldPathExpr{path: path}
}

func (e *FieldPathExpr) Path() storage.FieldPath {
	return e.path
}

func (e *FieldPathExpr) Eval(vars *Vars) (storage.Value, error) {
	return storage.Lookup(vars.Root(), e.path), nil
}

func (e *FieldPathExpr) AddDependencies(deps *Dependencies) {
	deps.AddPath(e.path.String())
}

func (e *FieldPathExpr) Serialize() storage.Value {
	return storage.NewString("$" + e.path.String())
}

func (e *FieldPathExpr) String() string {
	return "$" + e.path.String()
}

// VariableExpr reads a variable, optionally followed by a path ("$$item.x", "$$ROOT").
type VariableExpr struct {
	name string
	path storage.FieldPath
}

func NewVariableExpr(name string, path storage.FieldPath) *VariableExpr {
	return &VariableExpr{name: name, path: path}
}

func (e *VariableExpr) Eval(vars *Vars) (storage.Value, error) {
	v, ok := vars.Get(e.name)
	if !ok {
		return storage.Value{}, common.NewError(common.InvalidExpressionError, "use of undefined variable: %s", e.name)
	}
	return storage.LookupValue(v, e.path), nil
}

func (e *VariableExpr) AddDependencies(deps *Dependencies) {
	if e.name != "ROOT" && e.name != "CURRENT" {
		return
	}
	if len(e.path) == 0 {
		deps.NeedsWholeDocument = true
		return
	}
	deps.AddPath(e.path.String())
}

func (e *VariableExpr) Serialize() storage.Value {
	return storage.NewString(e.String())
}

func (e *VariableExpr) String() string {
	if len(e.path) == 0 {
		return "$$" + e.name
	}
	return "$$" + e.name + "." + e.path.String()
}

type ConstantValueExpr struct {
	val storage.Value
}

func NewConstantValueExpression(val storage.Value) *ConstantValueExpr {
	return &ConstantValueExpr{val: val}
}

func (e *ConstantValueExpr) Eval(*Vars) (storage.Value, error) {
	return e.val, nil
}

func (e *ConstantValueExpr) AddDependencies(*Dependencies) {}

func (e *ConstantValueExpr) Serialize() storage.Value {
	return storage.NewDocumentValue(storage.NewDocument(storage.Field{Name: "$const", Value: e.val}))
}

func (e *ConstantValueExpr) String() string {
	return stringify(e.val)
}

// ArrayExpr builds an array; elements that evaluate to Missing become null.
type ArrayExpr struct {
	elems []Expr
}

func NewArrayExpr(elems ...Expr) *ArrayExpr {
	return &ArrayExpr{elems: elems}
}

func (e *ArrayExpr) Eval(vars *Vars) (storage.Value, error) {
	out := make([]storage.Value, len(e.elems))
	for i, el := range e.elems {
		v, err := el.Eval(vars)
		if err != nil {
			return storage.Value{}, err
		}
		if v.IsMissing() {
			v = storage.Null()
		}
		out[i] = v
	}
	return storage.NewArray(out...), nil
}

func (e *ArrayExpr) AddDependencies(deps *Dependencies) {
	for _, el := range e.elems {
		el.AddDependencies(deps)
	}
}

func (e *ArrayExpr) Serialize() storage.Value {
	out := make([]storage.Value, len(e.elems))
	for i, el := range e.elems {
		out[i] = el.Serialize()
	}
	return storage.NewArray(out...)
}

func (e *ArrayExpr) String() string {
	parts := make([]string, len(e.elems))
	for i, el := range e.elems {
		parts[i] = el.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

type namedExpr struct {
	name string
	expr Expr
}

// ObjectExpr builds a document; fields that evaluate to Missing are omitted.
type ObjectExpr struct {
	fields []namedExpr
}

func NewObjectExpr() *ObjectExpr {
	return &ObjectExpr{}
}

// With returns the object extended by one field.
func (e *ObjectExpr) With(name string, expr Expr) *ObjectExpr {
	fields := append(e.fields[:len(e.fields):len(e.fields)], namedExpr{name: name, expr: expr})
	return &ObjectExpr{fields: fields}
}

func (e *ObjectExpr) Eval(vars *Vars) (storage.Value, error) {
	doc := storage.NewDocument()
	for _, f := range e.fields {
		v, err := f.expr.Eval(vars)
		if err != nil {
			return storage.Value{}, err
		}
		doc.Set(f.name, v)
	}
	return storage.NewDocumentValue(doc), nil
}

func (e *ObjectExpr) AddDependencies(deps *Dependencies) {
	for _, f := range e.fields {
		f.expr.AddDependencies(deps)
	}
}

func (e *ObjectExpr) Serialize() storage.Value {
	doc := storage.NewDocument()
	for _, f := range e.fields {
		doc.Set(f.name, f.expr.Serialize())
	}
	return storage.NewDocumentValue(doc)
}

func (e *ObjectExpr) String() string {
	parts := make([]string, len(e.fields))
	for i, f := range e.fields {
		parts[i] = f.name + ": " + f.expr.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// operatorExpr holds the arguments shared by every "$op: [args]" expression.
type operatorExpr struct {
	op   string
	args []Expr
}

func (e *operatorExpr) evalArgs(vars *Vars) ([]storage.Value, error) {
	out := make([]storage.Value, len(e.args))
	for i, a := range e.args {
		v, err := a.Eval(vars)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *operatorExpr) AddDependencies(deps *Dependencies) {
	for _, a := range e.args {
		a.AddDependencies(deps)
	}
}

func (e *operatorExpr) Serialize() storage.Value {
	args := make([]storage.Value, len(e.args))
	for i, a := range e.args {
		args[i] = a.Serialize()
	}
	return storage.NewDocumentValue(storage.NewDocument(storage.Field{Name: e.op, Value: storage.NewArray(args...)}))
}

func (e *operatorExpr) String() string {
	parts := make([]string, len(e.args))
	for i, a := range e.args {
		parts[i] = a.String()
	}
	return e.op + "(" + strings.Join(parts, ", ") + ")"
}

type ComparisonType int

const (
	Equal ComparisonType = iota
	NotEqual
	GreaterThan
	LessThan
	GreaterThanOrEqual
	LessThanOrEqual
	// Compare3Way produces -1, 0 or 1 instead of a boolean.
	Compare3Way
)

var comparisonOps = map[string]ComparisonType{
	"$eq":  Equal,
	"$ne":  NotEqual,
	"$gt":  GreaterThan,
	"$lt":  LessThan,
	"$gte": GreaterThanOrEqual,
	"$lte": LessThanOrEqual,
	"$cmp": Compare3Way,
}

// ComparisonExpression compares two values in the canonical total order. Unlike query
// predicates, aggregation comparisons are defined across types.
type ComparisonExpression struct {
	operatorExpr
	compType ComparisonType
}

func NewComparisonExpression(op string, left Expr, right Expr) *ComparisonExpression {
	compType, ok := comparisonOps[op]
	common.Assert(ok, "unknown comparison operator %s", op)
	return &ComparisonExpression{operatorExpr: operatorExpr{op: op, args: []Expr{left, right}}, compType: compType}
}

func (e *ComparisonExpression) Eval(vars *Vars) (storage.Value, error) {
	vals, err := e.evalArgs(vars)
	if err != nil {
		return storage.Value{}, err
	}
	cmp := vals[0].Compare(vals[1])

	var result bool
	switch e.compType {
	case Equal:
		result = cmp == 0
	case NotEqual:
		result = cmp != 0
	case GreaterThan:
		result = cmp > 0
	case LessThan:
		result = cmp < 0
	case GreaterThanOrEqual:
		result = cmp >= 0
	case LessThanOrEqual:
		result = cmp <= 0
	case Compare3Way:
		return storage.NewInt(int64(cmp)), nil
	}
	return storage.NewBool(result), nil
}

type BinaryLogicType int

const (
	And BinaryLogicType = iota
	Or
)

// LogicExpression is an n-ary $and or $or over truthiness.
type LogicExpression struct {
	operatorExpr
	logicType BinaryLogicType
}

func NewLogicExpression(logicType BinaryLogicType, args ...Expr) *LogicExpression {
	op := "$and"
	if logicType == Or {
		op = "$or"
	}
	return &LogicExpression{operatorExpr: operatorExpr{op: op, args: args}, logicType: logicType}
}

func (e *LogicExpression) Eval(vars *Vars) (storage.Value, error) {
	for _, a := range e.args {
		v, err := a.Eval(vars)
		if err != nil {
			return storage.Value{}, err
		}
		if e.logicType == And && !v.Truthy() {
			return storage.NewBool(false), nil
		}
		if e.logicType == Or && v.Truthy() {
			return storage.NewBool(true), nil
		}
	}
	return storage.NewBool(e.logicType == And), nil
}

type NegationExpression struct {
	operatorExpr
}

func NewNegationExpression(child Expr) *NegationExpression {
	return &NegationExpression{operatorExpr: operatorExpr{op: "$not", args: []Expr{child}}}
}

func (e *NegationExpression) Eval(vars *Vars) (storage.Value, error) {
	v, err := e.args[0].Eval(vars)
	if err != nil {
		return storage.Value{}, err
	}
	return storage.NewBool(!v.Truthy()), nil
}

type ArithmeticType int

const (
	Add ArithmeticType = iota
	Sub
	Mult
	// Sum is $sum used as an expression: non-numeric operands are ignored and a single
	// array operand is summed element-wise.
	Sum
)

var arithmeticOps = map[string]ArithmeticType{
	"$add":      Add,
	"$subtract": Sub,
	"$multiply": Mult,
	"$sum":      Sum,
}

type ArithmeticExpression struct {
	operatorExpr
	arithType ArithmeticType
}

func NewArithmeticExpression(op string, args ...Expr) *ArithmeticExpression {
	arithType, ok := arithmeticOps[op]
	common.Assert(ok, "unknown arithmetic operator %s", op)
	return &ArithmeticExpression{operatorExpr: operatorExpr{op: op, args: args}, arithType: arithType}
}

func (e *ArithmeticExpression) Eval(vars *Vars) (storage.Value, error) {
	vals, err := e.evalArgs(vars)
	if err != nil {
		return storage.Value{}, err
	}

	if e.arithType == Sum {
		if len(vals) == 1 && vals[0].IsArray() {
			vals = vals[0].Array()
		}
		acc := NewNumericAccumulator()
		for _, v := range vals {
			if v.IsNumber() {
				acc.Add(v)
			}
		}
		return acc.Result(), nil
	}

	for _, v := range vals {
		if v.IsNullish() {
			return storage.Null(), nil
		}
		if !v.IsNumber() {
			return storage.Value{}, common.NewError(common.InvalidExpressionError,
				"%s only supports numeric types, not %s", e.op, v.Kind())
		}
	}

	switch e.arithType {
	case Add:
		acc := NewNumericAccumulator()
		for _, v := range vals {
			acc.Add(v)
		}
		return acc.Result(), nil
	case Sub:
		return subtractValues(vals[0], vals[1]), nil
	case Mult:
		result := storage.NewInt(1)
		for _, v := range vals {
			result = multiplyValues(result, v)
		}
		return result, nil
	}
	panic("unknown arithmetic type")
}

func subtractValues(a, b storage.Value) storage.Value {
	if a.Kind() == storage.KindInt && b.Kind() == storage.KindInt {
		x, y := a.Int(), b.Int()
		if r := x - y; (r < x) == (y > 0) {
			return storage.NewInt(r)
		}
	}
	return storage.NewDouble(a.Double() - b.Double())
}

func multiplyValues(a, b storage.Value) storage.Value {
	if a.Kind() == storage.KindInt && b.Kind() == storage.KindInt {
		x, y := a.Int(), b.Int()
		if x == 0 || y == 0 {
			return storage.NewInt(0)
		}
		if r := x * y; r/y == x && !(x == -1 && y == math.MinInt64) && !(y == -1 && x == math.MinInt64) {
			return storage.NewInt(r)
		}
	}
	return storage.NewDouble(a.Double() * b.Double())
}

// NumericAccumulator sums numbers, staying integral until a double is added or the sum
// overflows.
type NumericAccumulator struct {
	isDouble bool
	i        int64
	f        float64
}

func NewNumericAccumulator() *NumericAccumulator {
	return &NumericAccumulator{}
}

func (a *NumericAccumulator) Add(v storage.Value) {
	if !a.isDouble && v.Kind() == storage.KindInt {
		x := v.Int()
		if r := a.i + x; (r > a.i) == (x > 0) || x == 0 {
			a.i = r
			return
		}
	}
	if !a.isDouble {
		a.isDouble = true
		a.f = float64(a.i)
	}
	a.f += v.Double()
}

func (a *NumericAccumulator) Result() storage.Value {
	if a.isDouble {
		return storage.NewDouble(a.f)
	}
	return storage.NewInt(a.i)
}

// StringConcatExpression handles $concat.
type StringConcatExpression struct {
	operatorExpr
}

func NewStringConcatenation(args ...Expr) *StringConcatExpression {
	return &StringConcatExpression{operatorExpr: operatorExpr{op: "$concat", args: args}}
}

func (e *StringConcatExpression) Eval(vars *Vars) (storage.Value, error) {
	vals, err := e.evalArgs(vars)
	if err != nil {
		return storage.Value{}, err
	}
	var sb strings.Builder
	for _, v := range vals {
		if v.IsNullish() {
			return storage.Null(), nil
		}
		if v.Kind() != storage.KindString {
			return storage.Value{}, common.NewError(common.InvalidExpressionError,
				"$concat only supports strings, not %s", v.Kind())
		}
		sb.WriteString(v.Str())
	}
	return storage.NewString(sb.String()), nil
}

type SizeExpression struct {
	operatorExpr
}

func NewSizeExpression(arg Expr) *SizeExpression {
	return &SizeExpression{operatorExpr: operatorExpr{op: "$size", args: []Expr{arg}}}
}

func (e *SizeExpression) Eval(vars *Vars) (storage.Value, error) {
	v, err := e.args[0].Eval(vars)
	if err != nil {
		return storage.Value{}, err
	}
	if !v.IsArray() {
		return storage.Value{}, common.NewError(common.InvalidExpressionError,
			"the argument to $size must be an array, but was of type: %s", v.Kind())
	}
	return storage.NewInt(int64(len(v.Array()))), nil
}

// IfNullExpression returns the first argument that is neither null nor missing, or the
// last argument.
type IfNullExpression struct {
	operatorExpr
}

func NewIfNullExpression(args ...Expr) *IfNullExpression {
	return &IfNullExpression{operatorExpr: operatorExpr{op: "$ifNull", args: args}}
}

func (e *IfNullExpression) Eval(vars *Vars) (storage.Value, error) {
	for i, a := range e.args {
		v, err := a.Eval(vars)
		if err != nil {
			return storage.Value{}, err
		}
		if !v.IsNullish() || i == len(e.args)-1 {
			return v, nil
		}
	}
	return storage.Null(), nil
}

// FilterExpression implements $filter: {input, as, cond}.
type FilterExpression struct {
	input Expr
	as    string
	cond  Expr
}

func NewFilterExpression(input Expr, as string, cond Expr) *FilterExpression {
	if as == "" {
		as = "this"
	}
	return &FilterExpression{input: input, as: as, cond: cond}
}

func (e *FilterExpression) Eval(vars *Vars) (storage.Value, error) {
	in, err := e.input.Eval(vars)
	if err != nil {
		return storage.Value{}, err
	}
	if in.IsNullish() {
		return storage.Null(), nil
	}
	if !in.IsArray() {
		return storage.Value{}, common.NewError(common.InvalidExpressionError,
			"input to $filter must be an array not %s", in.Kind())
	}
	out := make([]storage.Value, 0)
	for _, elem := range in.Array() {
		keep, err := e.cond.Eval(vars.Bind(e.as, elem))
		if err != nil {
			return storage.Value{}, err
		}
		if keep.Truthy() {
			out = append(out, elem)
		}
	}
	return storage.NewArray(out...), nil
}

func (e *FilterExpression) AddDependencies(deps *Dependencies) {
	e.input.AddDependencies(deps)
	e.cond.AddDependencies(deps)
}

func (e *FilterExpression) Serialize() storage.Value {
	return storage.NewDocumentValue(storage.NewDocument(storage.Field{
		Name: "$filter",
		Value: storage.NewDocumentValue(storage.NewDocument(
			storage.Field{Name: "input", Value: e.input.Serialize()},
			storage.Field{Name: "as", Value: storage.NewString(e.as)},
			storage.Field{Name: "cond", Value: e.cond.Serialize()},
		)),
	}))
}

func (e *FilterExpression) String() string {
	return fmt.Sprintf("$filter(%s as %s, %s)", e.input, e.as, e.cond)
}
