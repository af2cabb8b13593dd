package planner

import (
	"strings"

	"mit.edu/dsg/docdb/common"
	"mit.edu/dsg/docdb/storage"
)

// Operator represents a query comparison operator (e.g., $eq, $gt, $in).
type Operator string

const (
	OpEq     Operator = "$eq"
	OpNe     Operator = "$ne"
	OpGt     Operator = "$gt"
	OpGte    Operator = "$gte"
	OpLt     Operator = "$lt"
	OpLte    Operator = "$lte"
	OpIn     Operator = "$in"
	OpNin    Operator = "$nin"
	OpExists Operator = "$exists"
)

// MatchExpr is a query-language filter, as found in $match.
type MatchExpr interface {
	Matches(doc *storage.Document) bool
	AddDependencies(deps *Dependencies)
	Serialize() storage.Value
	String() string
}

// FieldNode represents a predicate on a specific field path.
type FieldNode struct {
	Path     storage.FieldPath
	Operator Operator
	Value    storage.Value
}

// LogicalNode represents $and, $or and $nor.
type LogicalNode struct {
	Operator string
	Children []MatchExpr
}

// ParseMatch converts a filter document into a MatchExpr.
// filter: { "a": { "$gte": 0 }, "status": "active", "$or": [...] }
func ParseMatch(filter *storage.Document) (MatchExpr, error) {
	nodes := make([]MatchExpr, 0, filter.Len())
	for _, f := range filter.Fields() {
		key, val := f.Name, f.Value
		switch {
		case key == "$and" || key == "$or" || key == "$nor":
			if !val.IsArray() || len(val.Array()) == 0 {
				return nil, common.NewError(common.InvalidExpressionError, "%s must be a nonempty array", key)
			}
			children := make([]MatchExpr, 0, len(val.Array()))
			for _, item := range val.Array() {
				if !item.IsDocument() {
					return nil, common.NewError(common.InvalidExpressionError, "element of %s must be an object", key)
				}
				sub, err := ParseMatch(item.Document())
				if err != nil {
					return nil, err
				}
				children = append(children, sub)
			}
			nodes = append(nodes, &LogicalNode{Operator: key, Children: children})
		case strings.HasPrefix(key, "$"):
			return nil, common.NewError(common.InvalidExpressionError, "unknown top level operator: %s", key)
		default:
			path, err := storage.ParsePath(key)
			if err != nil {
				return nil, err
			}
			fieldNodes, err := parseFieldPredicates(path, val)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, fieldNodes...)
		}
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return &LogicalNode{Operator: "$and", Children: nodes}, nil
}

// MustParseMatch is ParseMatch for filter literals known to be valid.
func MustParseMatch(filter string) MatchExpr {
	m, err := ParseMatch(storage.MustParseDocument(filter))
	common.Assert(err == nil, "invalid filter %s: %v", filter, err)
	return m
}

func parseFieldPredicates(path storage.FieldPath, val storage.Value) ([]MatchExpr, error) {
	if !val.IsDocument() || !IsOperatorDocument(val.Document()) {
		// Implicit $eq
		return []MatchExpr{&FieldNode{Path: path, Operator: OpEq, Value: val}}, nil
	}
	var nodes []MatchExpr
	for _, opField := range val.Document().Fields() {
		op := Operator(opField.Name)
		switch op {
		case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		case OpIn, OpNin:
			if !opField.Value.IsArray() {
				return nil, common.NewError(common.InvalidExpressionError, "%s needs an array", op)
			}
		case OpExists:
		default:
			return nil, common.NewError(common.InvalidExpressionError, "unknown operator: %s", op)
		}
		nodes = append(nodes, &FieldNode{Path: path, Operator: op, Value: opField.Value})
	}
	return nodes, nil
}

// Matches checks if a document matches the node. Array fields match when the array itself
// or any of its elements matches.
func (n *FieldNode) Matches(doc *storage.Document) bool {
	values := storage.ResolveQueryPath(doc, n.Path)
	switch n.Operator {
	case OpNe:
		return !anyMatches(values, OpEq, n.Value)
	case OpIn:
		for _, candidate := range n.Value.Array() {
			if anyMatches(values, OpEq, candidate) {
				return true
			}
		}
		return false
	case OpNin:
		return !(&FieldNode{Path: n.Path, Operator: OpIn, Value: n.Value}).Matches(doc)
	case OpExists:
		exists := !(len(values) == 1 && values[0].IsMissing())
		return exists == n.Value.Truthy()
	}
	return anyMatches(values, n.Operator, n.Value)
}

func anyMatches(values []storage.Value, op Operator, expected storage.Value) bool {
	for _, actual := range values {
		if compare(actual, op, expected) {
			return true
		}
	}
	return false
}

// compare applies a comparison operator with query semantics: only values of the same
// canonical type compare, and null also matches missing.
func compare(actual storage.Value, op Operator, expected storage.Value) bool {
	if expected.IsNull() {
		switch op {
		case OpEq, OpGte, OpLte:
			return actual.IsNullish()
		default:
			return false
		}
	}
	if !actual.SameTypeClass(expected) {
		return false
	}
	c := actual.Compare(expected)
	switch op {
	case OpEq:
		return c == 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	}
	return false
}

func (n *FieldNode) AddDependencies(deps *Dependencies) {
	deps.AddPath(n.Path.String())
}

func (n *FieldNode) Serialize() storage.Value {
	return storage.NewDocumentValue(storage.NewDocument(storage.Field{
		Name:  n.Path.String(),
		Value: storage.NewDocumentValue(storage.NewDocument(storage.Field{Name: string(n.Operator), Value: n.Value})),
	}))
}

func (n *FieldNode) String() string {
	return n.Serialize().String()
}

func (n *LogicalNode) Matches(doc *storage.Document) bool {
	switch n.Operator {
	case "$and":
		for _, child := range n.Children {
			if !child.Matches(doc) {
				return false
			}
		}
		return true
	case "$or", "$nor":
		matched := false
		for _, child := range n.Children {
			if child.Matches(doc) {
				matched = true
				break
			}
		}
		return matched == (n.Operator == "$or")
	}
	return false
}

func (n *LogicalNode) AddDependencies(deps *Dependencies) {
	for _, child := range n.Children {
		child.AddDependencies(deps)
	}
}

func (n *LogicalNode) Serialize() storage.Value {
	children := make([]storage.Value, len(n.Children))
	for i, child := range n.Children {
		children[i] = child.Serialize()
	}
	return storage.NewDocumentValue(storage.NewDocument(storage.Field{Name: n.Operator, Value: storage.NewArray(children...)}))
}

func (n *LogicalNode) String() string {
	return n.Serialize().String()
}

// NewConjunction combines filters with $and, flattening nested conjunctions. Nil filters
// are skipped; it returns nil when nothing remains.
func NewConjunction(filters ...MatchExpr) MatchExpr {
	var children []MatchExpr
	for _, f := range filters {
		if f == nil {
			continue
		}
		if l, ok := f.(*LogicalNode); ok && l.Operator == "$and" {
			children = append(children, l.Children...)
			continue
		}
		children = append(children, f)
	}
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return &LogicalNode{Operator: "$and", Children: children}
}

// ConjunctivePredicates returns the field predicates that every matching document must
// satisfy: the filter itself if it is a FieldNode, or the FieldNodes reachable through
// nested $and nodes.
func ConjunctivePredicates(m MatchExpr) []*FieldNode {
	switch n := m.(type) {
	case *FieldNode:
		return []*FieldNode{n}
	case *LogicalNode:
		if n.Operator != "$and" {
			return nil
		}
		var out []*FieldNode
		for _, child := range n.Children {
			out = append(out, ConjunctivePredicates(child)...)
		}
		return out
	}
	return nil
}
