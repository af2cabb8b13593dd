package storage

import (
	"strconv"
	"strings"

	"mit.edu/dsg/docdb/common"
)

// FieldPath is a parsed dotted path such as "c.d" or "e.0".
type FieldPath []string

// ParsePath parses a dotted path. Empty components and '$' prefixes are rejected.
func ParsePath(s string) (FieldPath, error) {
	if s == "" {
		return nil, common.NewError(common.InvalidExpressionError, "field path cannot be empty")
	}
	if strings.HasPrefix(s, "$") {
		return nil, common.NewError(common.InvalidExpressionError, "field path '%s' cannot start with '$'", s)
	}
	parts := strings.Split(s, ".")
	for _, p := range parts {
		if p == "" {
			return nil, common.NewError(common.InvalidExpressionError, "field path '%s' has an empty component", s)
		}
	}
	return FieldPath(parts), nil
}

// MustParsePath is ParsePath for paths known to be valid.
func MustParsePath(s string) FieldPath {
	p, err := ParsePath(s)
	common.Assert(err == nil, "invalid path %q: %v", s, err)
	return p
}

func (p FieldPath) String() string {
	return strings.Join(p, ".")
}

// IsPrefixOf reports whether p is a strict or equal component-wise prefix of q.
func (p FieldPath) IsPrefixOf(q FieldPath) bool {
	if len(p) > len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// Equal compares two paths component-wise.
func (p FieldPath) Equal(q FieldPath) bool {
	return len(p) == len(q) && p.IsPrefixOf(q)
}

// Positional returns the array index addressed by a path component, if it is one.
func Positional(component string) (int, bool) {
	if component == "" || (len(component) > 1 && component[0] == '0') {
		return 0, false
	}
	for _, c := range component {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(component)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsPositional reports whether the component can address an array position.
func IsPositional(component string) bool {
	_, ok := Positional(component)
	return ok
}

// Lookup resolves a path with expression semantics ("$a.b"): a document is descended by
// field name, and an array maps the remaining path over its elements, keeping only the
// elements that produced a value. Numeric components are field names, never positions.
func Lookup(doc *Document, path FieldPath) Value {
	return LookupValue(NewDocumentValue(doc), path)
}

// LookupValue is Lookup starting at an arbitrary value.
func LookupValue(v Value, path FieldPath) Value {
	if len(path) == 0 {
		return v
	}
	switch v.kind {
	case KindDocument:
		return LookupValue(v.doc.Get(path[0]), path[1:])
	case KindArray:
		out := make([]Value, 0, len(v.arr))
		for _, elem := range v.arr {
			if elem.kind != KindDocument && elem.kind != KindArray {
				continue
			}
			if r := LookupValue(elem, path); !r.IsMissing() {
				out = append(out, r)
			}
		}
		return NewArray(out...)
	}
	return Missing()
}

// ResolveQueryPath resolves a path with query semantics, used by match predicates and sort
// keys. Arrays are traversed: a numeric component addresses an array position, and any
// component is also looked up in every document element. A terminal array contributes
// itself and each of its elements. If nothing resolves, the result is a single Missing.
func ResolveQueryPath(doc *Document, path FieldPath) []Value {
	var out []Value
	resolveQuery(NewDocumentValue(doc), path, &out)
	if len(out) == 0 {
		return []Value{Missing()}
	}
	return out
}

func resolveQuery(v Value, path FieldPath, out *[]Value) {
	if len(path) == 0 {
		if v.IsMissing() {
			return
		}
		*out = append(*out, v)
		if v.kind == KindArray {
			*out = append(*out, v.arr...)
		}
		return
	}
	switch v.kind {
	case KindDocument:
		resolveQuery(v.doc.Get(path[0]), path[1:], out)
	case KindArray:
		if idx, ok := Positional(path[0]); ok && idx < len(v.arr) {
			resolveQuery(v.arr[idx], path[1:], out)
		}
		for _, elem := range v.arr {
			if elem.kind == KindDocument {
				resolveQuery(elem, path, out)
			}
		}
	}
}
