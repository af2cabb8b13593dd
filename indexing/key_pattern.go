package indexing

import (
	"slices"
	"strings"

	"mit.edu/dsg/docdb/common"
	"mit.edu/dsg/docdb/storage"
)

const (
	Ascending  = 1
	Descending = -1
)

// KeyField is one (path, direction) component of an index key pattern.
type KeyField struct {
	Path      string `json:"path"`
	Direction int    `json:"direction"`
}

// KeyPattern describes an index's ordered key paths, e.g. {a: 1, "c.d": 1, "e.0": 1}.
// Paths are stored verbatim, so positional paths such as "e.0" are ordinary members.
//
// A KeyPattern is a value: the runtime index hands out a fresh copy (with the multikey
// paths it has observed so far) every time it is asked, and the optimizer only reads it.
type KeyPattern struct {
	Name   string
	Fields []KeyField
	// multikeyPaths is sorted. A path is multikey once key extraction for any document
	// walked through an array on it; the flag is never cleared.
	multikeyPaths []string
}

// NewKeyPattern validates the key fields and builds a pattern.
func NewKeyPattern(name string, fields ...KeyField) (KeyPattern, error) {
	if len(fields) == 0 {
		return KeyPattern{}, common.NewError(common.InvalidIndexError, "index '%s' has an empty key pattern", name)
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if _, err := storage.ParsePath(f.Path); err != nil {
			return KeyPattern{}, common.NewError(common.InvalidIndexError, "index '%s': %v", name, err)
		}
		if f.Direction != Ascending && f.Direction != Descending {
			return KeyPattern{}, common.NewError(common.InvalidIndexError,
				"index '%s': direction for '%s' must be 1 or -1, got %d", name, f.Path, f.Direction)
		}
		if seen[f.Path] {
			return KeyPattern{}, common.NewError(common.InvalidIndexError, "index '%s' repeats path '%s'", name, f.Path)
		}
		seen[f.Path] = true
	}
	return KeyPattern{Name: name, Fields: slices.Clone(fields)}, nil
}

// MustKeyPattern builds a pattern from alternating path/direction pairs, for literals.
func MustKeyPattern(name string, pathsAndDirections ...any) KeyPattern {
	common.Assert(len(pathsAndDirections)%2 == 0, "expected path/direction pairs")
	fields := make([]KeyField, 0, len(pathsAndDirections)/2)
	for i := 0; i < len(pathsAndDirections); i += 2 {
		fields = append(fields, KeyField{Path: pathsAndDirections[i].(string), Direction: pathsAndDirections[i+1].(int)})
	}
	kp, err := NewKeyPattern(name, fields...)
	common.Assert(err == nil, "invalid key pattern: %v", err)
	return kp
}

// ParseKeyPattern reads the query-language form {path: 1 | -1, ...}.
func ParseKeyPattern(name string, spec *storage.Document) (KeyPattern, error) {
	fields := make([]KeyField, 0, spec.Len())
	for _, f := range spec.Fields() {
		if !f.Value.IsNumber() {
			return KeyPattern{}, common.NewError(common.InvalidIndexError,
				"index '%s': direction for '%s' must be a number, got %s", name, f.Name, f.Value.Kind())
		}
		dir := Ascending
		if f.Value.Double() < 0 {
			dir = Descending
		}
		fields = append(fields, KeyField{Path: f.Name, Direction: dir})
	}
	return NewKeyPattern(name, fields...)
}

// DefaultIndexName derives a name like "a_1_c.d_-1" from the key fields.
func DefaultIndexName(fields []KeyField) string {
	var sb strings.Builder
	for i, f := range fields {
		if i > 0 {
			sb.WriteByte('_')
		}
		sb.WriteString(f.Path)
		if f.Direction == Descending {
			sb.WriteString("_-1")
		} else {
			sb.WriteString("_1")
		}
	}
	return sb.String()
}

func (kp KeyPattern) NumFields() int {
	return len(kp.Fields)
}

// Paths returns the key paths in pattern order.
func (kp KeyPattern) Paths() []string {
	out := make([]string, len(kp.Fields))
	for i, f := range kp.Fields {
		out[i] = f.Path
	}
	return out
}

// HasPath reports whether the path is one of the key paths, compared verbatim.
func (kp KeyPattern) HasPath(path string) bool {
	return kp.PathIndex(path) >= 0
}

// PathIndex returns the position of the path in the pattern, or -1.
func (kp KeyPattern) PathIndex(path string) int {
	for i, f := range kp.Fields {
		if f.Path == path {
			return i
		}
	}
	return -1
}

// IsMultikey reports whether the index has seen an array along the path.
func (kp KeyPattern) IsMultikey(path string) bool {
	_, found := slices.BinarySearch(kp.multikeyPaths, path)
	return found
}

// IsAnyMultikey reports whether any key path is multikey.
func (kp KeyPattern) IsAnyMultikey() bool {
	return len(kp.multikeyPaths) > 0
}

func (kp KeyPattern) MultikeyPaths() []string {
	return slices.Clone(kp.multikeyPaths)
}

// WithMultikeyPaths returns a copy of the pattern carrying the given multikey paths.
func (kp KeyPattern) WithMultikeyPaths(paths ...string) KeyPattern {
	out := KeyPattern{Name: kp.Name, Fields: slices.Clone(kp.Fields)}
	for _, p := range paths {
		if kp.HasPath(p) && !slices.Contains(out.multikeyPaths, p) {
			out.multikeyPaths = append(out.multikeyPaths, p)
		}
	}
	slices.Sort(out.multikeyPaths)
	return out
}

// SameKeys reports whether two patterns have the same fields in the same order, ignoring
// names and multikey state.
func (kp KeyPattern) SameKeys(other KeyPattern) bool {
	return slices.Equal(kp.Fields, other.Fields)
}

// Document returns the query-language form of the pattern.
func (kp KeyPattern) Document() *storage.Document {
	d := storage.NewDocument()
	for _, f := range kp.Fields {
		d.Set(f.Path, storage.NewInt(int64(f.Direction)))
	}
	return d
}

func (kp KeyPattern) String() string {
	return kp.Document().String()
}
