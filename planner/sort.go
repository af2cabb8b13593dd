package planner

import (
	"fmt"
	"strings"

	"mit.edu/dsg/docdb/common"
	"mit.edu/dsg/docdb/storage"
)

type SortDirection int

const (
	SortOrderAscending  SortDirection = 1
	SortOrderDescending SortDirection = -1
)

// SortKey is one component of a $sort specification.
type SortKey struct {
	Path      storage.FieldPath
	Direction SortDirection
}

// ParseSortKeys parses {path: 1|-1, ...}.
func ParseSortKeys(spec *storage.Document) ([]SortKey, error) {
	if spec.Len() == 0 {
		return nil, common.NewError(common.InvalidStageError, "$sort stage must have at least one sort key")
	}
	keys := make([]SortKey, 0, spec.Len())
	for _, f := range spec.Fields() {
		path, err := storage.ParsePath(f.Name)
		if err != nil {
			return nil, err
		}
		dir := SortDirection(0)
		if f.Value.IsNumber() {
			switch f.Value.Double() {
			case 1:
				dir = SortOrderAscending
			case -1:
				dir = SortOrderDescending
			}
		}
		if dir == 0 {
			return nil, common.NewError(common.InvalidStageError,
				"$sort key ordering must be 1 (for ascending) or -1 (for descending), got %s for %s", f.Value, f.Name)
		}
		keys = append(keys, SortKey{Path: path, Direction: dir})
	}
	return keys, nil
}

// SortValue returns the value a document sorts by for one key. When the path reaches
// array elements, ascending sorts use the smallest element and descending sorts the largest.
// Missing sorts as null.
func SortValue(doc *storage.Document, key SortKey) storage.Value {
	values := storage.ResolveQueryPath(doc, key.Path)
	candidates := make([]storage.Value, 0, len(values))
	if len(values) > 1 {
		for _, v := range values {
			if !v.IsArray() {
				candidates = append(candidates, v)
			}
		}
	}
	if len(candidates) == 0 {
		candidates = values
	}

	best := candidates[0]
	for _, v := range candidates[1:] {
		c := v.Compare(best)
		if (key.Direction == SortOrderAscending && c < 0) || (key.Direction == SortOrderDescending && c > 0) {
			best = v
		}
	}
	if best.IsMissing() {
		return storage.Null()
	}
	return best
}

// CompareForSort orders two documents by the sort keys.
func CompareForSort(a, b *storage.Document, keys []SortKey) int {
	for _, k := range keys {
		c := SortValue(a, k).Compare(SortValue(b, k))
		if c != 0 {
			if k.Direction == SortOrderDescending {
				return -c
			}
			return c
		}
	}
	return 0
}

func SortKeysDocument(keys []SortKey) *storage.Document {
	d := storage.NewDocument()
	for _, k := range keys {
		d.Set(k.Path.String(), storage.NewInt(int64(k.Direction)))
	}
	return d
}

func sortKeysString(keys []SortKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s:%d", k.Path, k.Direction)
	}
	return strings.Join(parts, ", ")
}
