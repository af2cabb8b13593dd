package indexing

import (
	"strings"

	"mit.edu/dsg/docdb/storage"
)

// KeyElement is the value of one key path for one index entry.
type KeyElement struct {
	Value storage.Value
	// Depth is how many leading path components resolved to embedded documents. For path
	// "c.d" it is 1 when c is a document, and 0 when c is a scalar or absent. Together with
	// Value it is enough to rebuild the shape of a non-multikey path exactly.
	Depth int
}

// Key represents a search key in an index: one element per key path, in pattern order.
type Key struct {
	elems []KeyElement
}

// NilKey represents an empty or uninitialized key.
// It is used as an open bound in range scans.
var NilKey = Key{}

func NewKey(elems ...KeyElement) Key {
	return Key{elems: elems}
}

// IsNil checks if the key is the NilKey (sentinel value).
func (k Key) IsNil() bool {
	return len(k.elems) == 0
}

func (k Key) Len() int {
	return len(k.elems)
}

func (k Key) Element(i int) KeyElement {
	return k.elems[i]
}

// Value returns the value of the i-th key path.
func (k Key) Value(i int) storage.Value {
	return k.elems[i].Value
}

// Compare compares this key with another key, applying the per-field directions. A key
// that is a prefix of the other sorts first, which lets a one-element key act as the seek
// pivot for every entry sharing its leading value.
func (k Key) Compare(other Key, fields []KeyField) int {
	for i := 0; i < len(k.elems) && i < len(other.elems); i++ {
		c := k.elems[i].Value.Compare(other.elems[i].Value)
		if i < len(fields) && fields[i].Direction == Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	switch {
	case len(k.elems) < len(other.elems):
		return -1
	case len(k.elems) > len(other.elems):
		return 1
	}
	return 0
}

func (k Key) String() string {
	parts := make([]string, len(k.elems))
	for i, e := range k.elems {
		parts[i] = e.Value.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// ExtractKeys computes the index keys for a document. Each key path is resolved with query
// semantics: a numeric component addresses an array position, and any array in the way
// expands into one value per element. The result is the cartesian product over paths.
// It also returns the key paths along which an array was encountered.
func ExtractKeys(pattern KeyPattern, doc *storage.Document) ([]Key, []string) {
	perPath := make([][]KeyElement, len(pattern.Fields))
	var multikey []string
	for i, f := range pattern.Fields {
		var elems []KeyElement
		isMultikey := extractPath(doc.Get(firstComponent(f.Path)), restComponents(f.Path), 0, &elems)
		if isMultikey {
			multikey = append(multikey, f.Path)
			elems = dedupe(elems)
		}
		perPath[i] = elems
	}

	keys := []Key{{}}
	for _, elems := range perPath {
		next := make([]Key, 0, len(keys)*len(elems))
		for _, prefix := range keys {
			for _, e := range elems {
				combined := make([]KeyElement, len(prefix.elems), len(prefix.elems)+1)
				copy(combined, prefix.elems)
				next = append(next, Key{elems: append(combined, e)})
			}
		}
		keys = next
	}
	return keys, multikey
}

func firstComponent(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}

func restComponents(path string) storage.FieldPath {
	i := strings.IndexByte(path, '.')
	if i < 0 {
		return nil
	}
	return storage.FieldPath(strings.Split(path[i+1:], "."))
}

// extractPath appends the key elements for v along rest and reports whether an array was
// traversed.
func extractPath(v storage.Value, rest storage.FieldPath, depth int, out *[]KeyElement) bool {
	if v.IsArray() {
		return extractArray(v.Array(), rest, depth, out)
	}
	if len(rest) == 0 {
		*out = append(*out, KeyElement{Value: v, Depth: depth})
		return false
	}
	if v.IsDocument() {
		return extractPath(v.Document().Get(rest[0]), rest[1:], depth+1, out)
	}
	*out = append(*out, KeyElement{Value: storage.Missing(), Depth: depth})
	return false
}

func extractArray(arr []storage.Value, rest storage.FieldPath, depth int, out *[]KeyElement) bool {
	before := len(*out)
	if len(rest) == 0 {
		for _, e := range arr {
			*out = append(*out, KeyElement{Value: e, Depth: depth})
		}
	} else {
		if idx, ok := storage.Positional(rest[0]); ok && idx < len(arr) {
			extractPath(arr[idx], rest[1:], depth, out)
		}
		for _, e := range arr {
			if e.IsDocument() {
				extractPath(e.Document().Get(rest[0]), rest[1:], depth+1, out)
			}
		}
	}
	if len(*out) == before {
		*out = append(*out, KeyElement{Value: storage.Missing(), Depth: depth})
	}
	return true
}

func dedupe(elems []KeyElement) []KeyElement {
	seen := make(map[string]bool, len(elems))
	out := elems[:0]
	for _, e := range elems {
		k := e.Value.Kind().String() + e.Value.CanonicalKey()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}

// RebuildDocument reconstructs, from a key of a non-multikey index, the sparse document
// made of just the key paths. A projection, filter or sort over those paths evaluates on
// it exactly as on the original document.
func RebuildDocument(pattern KeyPattern, key Key) *storage.Document {
	doc := storage.NewDocument()
	for i, f := range pattern.Fields {
		e := key.elems[i]
		path := strings.Split(f.Path, ".")
		cur := doc
		for j := 0; j < e.Depth && j < len(path)-1; j++ {
			child := cur.Get(path[j])
			if !child.IsDocument() {
				child = storage.NewDocumentValue(storage.NewDocument())
				cur.Set(path[j], child)
			}
			cur = child.Document()
		}
		if e.Depth == len(path)-1 && !e.Value.IsMissing() {
			cur.Set(path[len(path)-1], e.Value.Copy())
		}
	}
	return doc
}
