package planner

import (
	"slices"
	"strings"
)

// Dependencies collects the document fields an expression, filter or stage reads.
type Dependencies struct {
	paths map[string]struct{}
	// NeedsWholeDocument is set by $$ROOT/$$CURRENT references and by stages whose
	// requirements cannot be enumerated.
	NeedsWholeDocument bool
}

func NewDependencies() *Dependencies {
	return &Dependencies{paths: make(map[string]struct{})}
}

func (d *Dependencies) AddPath(path string) {
	d.paths[path] = struct{}{}
}

// Merge adds every dependency of other.
func (d *Dependencies) Merge(other *Dependencies) {
	for p := range other.paths {
		d.paths[p] = struct{}{}
	}
	d.NeedsWholeDocument = d.NeedsWholeDocument || other.NeedsWholeDocument
}

// Paths returns the minimal sorted set of paths: a path is dropped when one of its
// prefixes is also needed, since including the prefix includes everything below it.
func (d *Dependencies) Paths() []string {
	all := make([]string, 0, len(d.paths))
	for p := range d.paths {
		all = append(all, p)
	}
	slices.Sort(all)

	var out []string
	for _, p := range all {
		if i := strings.LastIndexByte(p, '.'); i >= 0 && d.NeedsPath(p[:i]) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// NeedsPath reports whether the path, or any prefix of it, was added.
func (d *Dependencies) NeedsPath(path string) bool {
	for {
		if _, ok := d.paths[path]; ok {
			return true
		}
		i := strings.LastIndexByte(path, '.')
		if i < 0 {
			return false
		}
		path = path[:i]
	}
}

// NeedsAnyUnder reports whether path itself, a prefix of it, or anything below it is needed.
func (d *Dependencies) NeedsAnyUnder(path string) bool {
	if d.NeedsPath(path) {
		return true
	}
	for p := range d.paths {
		if strings.HasPrefix(p, path+".") {
			return true
		}
	}
	return false
}
