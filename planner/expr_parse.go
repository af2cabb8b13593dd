package planner

import (
	"strings"

	"mit.edu/dsg/docdb/common"
	"mit.edu/dsg/docdb/storage"
)

// ParseExpression parses the query-language form of an aggregation expression:
// "$path" reads a field, "$$name.path" reads a variable, {"$op": args} applies an
// operator, arrays and non-operator objects build values, and any other value is a
// constant.
func ParseExpression(v storage.Value) (Expr, error) {
	switch v.Kind() {
	case storage.KindString:
		return parseStringExpr(v.Str())
	case storage.KindArray:
		elems := make([]Expr, 0, len(v.Array()))
		for _, el := range v.Array() {
			e, err := ParseExpression(el)
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
		}
		return NewArrayExpr(elems...), nil
	case storage.KindDocument:
		doc := v.Document()
		if IsOperatorDocument(doc) {
			return parseOperator(doc)
		}
		obj := NewObjectExpr()
		for _, f := range doc.Fields() {
			if strings.HasPrefix(f.Name, "$") || strings.Contains(f.Name, ".") || f.Name == "" {
				return nil, common.NewError(common.InvalidExpressionError,
					"invalid field name '%s' in object expression", f.Name)
			}
			e, err := ParseExpression(f.Value)
			if err != nil {
				return nil, err
			}
			obj = obj.With(f.Name, e)
		}
		return obj, nil
	}
	return NewConstantValueExpression(v), nil
}

// IsOperatorDocument reports whether the document's first field names an operator.
func IsOperatorDocument(doc *storage.Document) bool {
	return doc.Len() > 0 && strings.HasPrefix(doc.Field(0).Name, "$")
}

func parseStringExpr(s string) (Expr, error) {
	if strings.HasPrefix(s, "$$") {
		name, rest, _ := strings.Cut(s[2:], ".")
		if name == "" {
			return nil, common.NewError(common.InvalidExpressionError, "empty variable name in '%s'", s)
		}
		var path storage.FieldPath
		if rest != "" {
			p, err := storage.ParsePath(rest)
			if err != nil {
				return nil, err
			}
			path = p
		}
		return NewVariableExpr(name, path), nil
	}
	if strings.HasPrefix(s, "$") {
		p, err := storage.ParsePath(s[1:])
		if err != nil {
			return nil, err
		}
		return NewFieldPathExpr(p), nil
	}
	return NewConstantValueExpression(storage.NewString(s)), nil
}

func operatorArgs(v storage.Value) ([]Expr, error) {
	raw := []storage.Value{v}
	if v.IsArray() {
		raw = v.Array()
	}
	args := make([]Expr, 0, len(raw))
	for _, r := range raw {
		e, err := ParseExpression(r)
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	return args, nil
}

func expectArgs(op string, args []Expr, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		if min == max {
			return common.NewError(common.InvalidExpressionError, "expression %s takes exactly %d arguments. %d were passed in.", op, min, len(args))
		}
		return common.NewError(common.InvalidExpressionError, "expression %s takes at least %d arguments, got %d", op, min, len(args))
	}
	return nil
}

func parseOperator(doc *storage.Document) (Expr, error) {
	if doc.Len() != 1 {
		return nil, common.NewError(common.InvalidExpressionError,
			"an object representing an expression must have exactly one field: %s", doc)
	}
	op, arg := doc.Field(0).Name, doc.Field(0).Value

	switch op {
	case "$literal":
		return NewConstantValueExpression(arg), nil
	case "$filter":
		return parseFilter(arg)
	}

	args, err := operatorArgs(arg)
	if err != nil {
		return nil, err
	}

	if _, ok := comparisonOps[op]; ok {
		if err := expectArgs(op, args, 2, 2); err != nil {
			return nil, err
		}
		return NewComparisonExpression(op, args[0], args[1]), nil
	}
	if t, ok := arithmeticOps[op]; ok {
		switch t {
		case Sub:
			if err := expectArgs(op, args, 2, 2); err != nil {
				return nil, err
			}
		case Sum:
		default:
			if err := expectArgs(op, args, 1, -1); err != nil {
				return nil, err
			}
		}
		return NewArithmeticExpression(op, args...), nil
	}

	switch op {
	case "$and":
		return NewLogicExpression(And, args...), nil
	case "$or":
		return NewLogicExpression(Or, args...), nil
	case "$not":
		if err := expectArgs(op, args, 1, 1); err != nil {
			return nil, err
		}
		return NewNegationExpression(args[0]), nil
	case "$concat":
		return NewStringConcatenation(args...), nil
	case "$size":
		if err := expectArgs(op, args, 1, 1); err != nil {
			return nil, err
		}
		return NewSizeExpression(args[0]), nil
	case "$ifNull":
		if err := expectArgs(op, args, 2, -1); err != nil {
			return nil, err
		}
		return NewIfNullExpression(args...), nil
	}
	return nil, common.NewError(common.InvalidExpressionError, "unrecognized expression '%s'", op)
}

func parseFilter(arg storage.Value) (Expr, error) {
	if !arg.IsDocument() {
		return nil, common.NewError(common.InvalidExpressionError, "$filter only supports an object as its argument")
	}
	spec := arg.Document()
	var input, cond Expr
	as := ""
	for _, f := range spec.Fields() {
		var err error
		switch f.Name {
		case "input":
			input, err = ParseExpression(f.Value)
		case "cond":
			cond, err = ParseExpression(f.Value)
		case "as":
			if f.Value.Kind() != storage.KindString || f.Value.Str() == "" {
				return nil, common.NewError(common.InvalidExpressionError, "$filter 'as' must be a non-empty string")
			}
			as = f.Value.Str()
		default:
			return nil, common.NewError(common.InvalidExpressionError, "unrecognized parameter to $filter: %s", f.Name)
		}
		if err != nil {
			return nil, err
		}
	}
	if input == nil {
		return nil, common.NewError(common.InvalidExpressionError, "missing 'input' parameter to $filter")
	}
	if cond == nil {
		return nil, common.NewError(common.InvalidExpressionError, "missing 'cond' parameter to $filter")
	}
	return NewFilterExpression(input, as, cond), nil
}
