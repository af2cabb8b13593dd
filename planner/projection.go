package planner

import (
	"slices"
	"strings"

	"mit.edu/dsg/docdb/common"
	"mit.edu/dsg/docdb/storage"
)

const IDField = "_id"

type RuleKind int

const (
	RuleInclude RuleKind = iota
	RuleExclude
	// RuleRename copies the value of another input path.
	RuleRename
	// RuleComputed evaluates an expression over the input document.
	RuleComputed
)

func (k RuleKind) String() string {
	switch k {
	case RuleInclude:
		return "include"
	case RuleExclude:
		return "exclude"
	case RuleRename:
		return "rename"
	case RuleComputed:
		return "computed"
	}
	return "unknown"
}

// FieldRule says what a projection does with one output path.
type FieldRule struct {
	Kind RuleKind
	// Source is the input path of a RuleRename.
	Source storage.FieldPath
	// Expr is the expression of a RuleComputed.
	Expr Expr
}

func Include() FieldRule {
	return FieldRule{Kind: RuleInclude}
}

func Exclude() FieldRule {
	return FieldRule{Kind: RuleExclude}
}

func Rename(source storage.FieldPath) FieldRule {
	return FieldRule{Kind: RuleRename, Source: source}
}

func Computed(expr Expr) FieldRule {
	return FieldRule{Kind: RuleComputed, Expr: expr}
}

// expr returns the expression producing the value of a rename or computed rule.
func (r FieldRule) expr() Expr {
	if r.Kind == RuleRename {
		return NewFieldPathExpr(r.Source)
	}
	return r.Expr
}

// ProjectionRule binds a FieldRule to a dotted output path.
type ProjectionRule struct {
	Path string
	Rule FieldRule
}

type ProjectionMode int

const (
	InclusionMode ProjectionMode = iota
	ExclusionMode
)

func (m ProjectionMode) String() string {
	if m == ExclusionMode {
		return "exclusion"
	}
	return "inclusion"
}

// ProjectionSpec is a validated projection: an ordered mapping from dotted path to rule.
// It is either inclusion-mode (Include, Rename and Computed rules, with _id optionally
// excluded) or exclusion-mode (only Exclude rules). ProjectionSpecs are immutable.
type ProjectionSpec struct {
	rules []ProjectionRule
	mode  ProjectionMode
	tree  *projNode
}

// projNode is one level of the projection tree. Leaves carry a rule; interior nodes carry
// ordered children.
type projNode struct {
	rule     *FieldRule
	names    []string
	children map[string]*projNode
	// computed is set when a Rename or Computed rule lies at or below the node.
	computed bool
}

func newProjNode() *projNode {
	return &projNode{children: make(map[string]*projNode)}
}

func (n *projNode) child(name string) *projNode {
	c, ok := n.children[name]
	if !ok {
		c = newProjNode()
		n.children[name] = c
		n.names = append(n.names, name)
	}
	return c
}

// NewProjectionSpec validates the rules and builds a spec. Mixed inclusion and exclusion,
// path collisions, invalid paths and empty specs return InvalidProjectionError.
func NewProjectionSpec(rules ...ProjectionRule) (*ProjectionSpec, error) {
	if len(rules) == 0 {
		return nil, common.NewError(common.InvalidProjectionError, "projection specification must have at least one field")
	}

	excludes, others := 0, 0
	for _, r := range rules {
		if _, err := storage.ParsePath(r.Path); err != nil {
			return nil, common.NewError(common.InvalidProjectionError, "invalid projection path '%s': %v", r.Path, err)
		}
		switch r.Rule.Kind {
		case RuleExclude:
			excludes++
		case RuleRename:
			if len(r.Rule.Source) == 0 {
				return nil, common.NewError(common.InvalidProjectionError, "rename of '%s' needs a source path", r.Path)
			}
			others++
		case RuleComputed:
			if r.Rule.Expr == nil {
				return nil, common.NewError(common.InvalidProjectionError, "computed field '%s' needs an expression", r.Path)
			}
			others++
		default:
			others++
		}
	}

	mode := ExclusionMode
	if others > 0 {
		mode = InclusionMode
		for _, r := range rules {
			if r.Rule.Kind == RuleExclude && r.Path != IDField {
				return nil, common.NewError(common.InvalidProjectionError,
					"invalid projection: cannot do exclusion on field %s in inclusion projection", r.Path)
			}
		}
	}

	spec := &ProjectionSpec{rules: slices.Clone(rules), mode: mode, tree: newProjNode()}
	for _, r := range rules {
		if err := spec.insert(r); err != nil {
			return nil, err
		}
	}
	return spec, nil
}

// MustProjection parses a projection literal known to be valid.
func MustProjection(spec string) *ProjectionSpec {
	p, err := ParseProjection(storage.MustParseDocument(spec))
	common.Assert(err == nil, "invalid projection %s: %v", spec, err)
	return p
}

func (s *ProjectionSpec) insert(r ProjectionRule) error {
	parts := strings.Split(r.Path, ".")
	node := s.tree
	for i, part := range parts {
		if node.rule != nil {
			return common.NewError(common.InvalidProjectionError,
				"invalid projection: path collision at %s", strings.Join(parts[:i], "."))
		}
		if r.Rule.Kind == RuleRename || r.Rule.Kind == RuleComputed {
			node.computed = true
		}
		node = node.child(part)
	}
	if node.rule != nil || len(node.children) > 0 {
		return common.NewError(common.InvalidProjectionError, "invalid projection: path collision at %s", r.Path)
	}
	rule := r.Rule
	node.rule = &rule
	node.computed = rule.Kind == RuleRename || rule.Kind == RuleComputed
	return nil
}

// ParseProjection parses the query-language form of a $project specification.
func ParseProjection(spec *storage.Document) (*ProjectionSpec, error) {
	var rules []ProjectionRule
	if err := parseProjectionLevel("", spec, &rules); err != nil {
		return nil, err
	}
	return NewProjectionSpec(rules...)
}

func parseProjectionLevel(prefix string, spec *storage.Document, rules *[]ProjectionRule) error {
	for _, f := range spec.Fields() {
		if strings.HasPrefix(f.Name, "$") {
			return common.NewError(common.InvalidProjectionError, "field path '%s' cannot start with '$' in a projection", f.Name)
		}
		path := f.Name
		if prefix != "" {
			path = prefix + "." + f.Name
		}
		v := f.Value
		switch {
		case v.Kind() == storage.KindBool || v.IsNumber():
			if v.Truthy() {
				*rules = append(*rules, ProjectionRule{Path: path, Rule: Include()})
			} else {
				*rules = append(*rules, ProjectionRule{Path: path, Rule: Exclude()})
			}
		case v.Kind() == storage.KindString && strings.HasPrefix(v.Str(), "$") && !strings.HasPrefix(v.Str(), "$$"):
			source, err := storage.ParsePath(v.Str()[1:])
			if err != nil {
				return err
			}
			*rules = append(*rules, ProjectionRule{Path: path, Rule: Rename(source)})
		case v.IsDocument() && !IsOperatorDocument(v.Document()):
			if v.Document().Len() == 0 {
				return common.NewError(common.InvalidProjectionError, "an empty sub-projection is not a valid value. Found empty object at path %s", path)
			}
			if err := parseProjectionLevel(path, v.Document(), rules); err != nil {
				return err
			}
		default:
			expr, err := ParseExpression(v)
			if err != nil {
				return err
			}
			*rules = append(*rules, ProjectionRule{Path: path, Rule: Computed(expr)})
		}
	}
	return nil
}

func (s *ProjectionSpec) Mode() ProjectionMode {
	return s.mode
}

// Rules returns a copy of the rules in spec order.
func (s *ProjectionSpec) Rules() []ProjectionRule {
	return slices.Clone(s.rules)
}

// HasRenameOrComputed reports whether any rule needs expression evaluation.
func (s *ProjectionSpec) HasRenameOrComputed() bool {
	return s.tree.computed
}

// IncludesImplicitID reports whether an inclusion projection keeps the whole _id without
// naming it: nothing in the spec mentions _id or a path below it.
func (s *ProjectionSpec) IncludesImplicitID() bool {
	if s.mode != InclusionMode {
		return false
	}
	_, mentioned := s.tree.children[IDField]
	return !mentioned
}

// IncludedPaths returns the paths of the Include rules in spec order.
func (s *ProjectionSpec) IncludedPaths() []string {
	var out []string
	for _, r := range s.rules {
		if r.Rule.Kind == RuleInclude {
			out = append(out, r.Path)
		}
	}
	return out
}

// IsSimpleInclusion reports whether the spec only includes top-level fields (besides an
// optional _id exclusion). Such projections can be applied by copying fields.
func (s *ProjectionSpec) IsSimpleInclusion() bool {
	if s.mode != InclusionMode || s.HasRenameOrComputed() {
		return false
	}
	for _, r := range s.rules {
		if strings.Contains(r.Path, ".") {
			return false
		}
	}
	return true
}

// AddDependencies records the input fields the projection reads. Exclusion projections
// pass every other field through and so need the whole document.
func (s *ProjectionSpec) AddDependencies(deps *Dependencies) {
	if s.mode == ExclusionMode {
		deps.NeedsWholeDocument = true
		return
	}
	if s.IncludesImplicitID() {
		deps.AddPath(IDField)
	}
	for _, r := range s.rules {
		switch r.Rule.Kind {
		case RuleInclude:
			deps.AddPath(r.Path)
		case RuleRename, RuleComputed:
			r.Rule.expr().AddDependencies(deps)
		}
	}
}

// Document returns the query-language form of the spec, with dotted paths.
func (s *ProjectionSpec) Document() *storage.Document {
	d := storage.NewDocument()
	for _, r := range s.rules {
		switch r.Rule.Kind {
		case RuleInclude:
			d.Set(r.Path, storage.NewBool(true))
		case RuleExclude:
			d.Set(r.Path, storage.NewBool(false))
		case RuleRename:
			d.Set(r.Path, storage.NewString("$"+r.Rule.Source.String()))
		case RuleComputed:
			d.Set(r.Path, r.Rule.Expr.Serialize())
		}
	}
	return d
}

func (s *ProjectionSpec) String() string {
	return s.Document().String()
}

// Apply runs the projection over one document and returns a new document.
//
// Inclusion output holds _id first (when kept), then the projected fields in spec order.
// Exclusion output keeps the input field order.
func (s *ProjectionSpec) Apply(doc *storage.Document) (*storage.Document, error) {
	if s.mode == ExclusionMode {
		return s.tree.applyExclusion(doc), nil
	}
	vars := NewVars(doc)
	out := storage.NewDocument()
	if s.IncludesImplicitID() {
		if id := doc.Get(IDField); !id.IsMissing() {
			out.Set(IDField, id)
		}
	}
	if err := s.tree.applyInclusion(doc, vars, out, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (n *projNode) orderedNames(root bool) []string {
	if !root {
		return n.names
	}
	if i := slices.Index(n.names, IDField); i > 0 {
		names := make([]string, 0, len(n.names))
		names = append(names, IDField)
		names = append(names, n.names[:i]...)
		return append(names, n.names[i+1:]...)
	}
	return n.names
}

func (n *projNode) applyInclusion(in *storage.Document, vars *Vars, out *storage.Document, root bool) error {
	for _, name := range n.orderedNames(root) {
		c := n.children[name]
		if c.rule != nil {
			switch c.rule.Kind {
			case RuleInclude:
				out.Set(name, in.Get(name))
			case RuleRename, RuleComputed:
				v, err := c.rule.expr().Eval(vars)
				if err != nil {
					return err
				}
				out.Set(name, v)
			}
			continue
		}
		v, keep, err := c.applyInclusionToValue(in.Get(name), vars)
		if err != nil {
			return err
		}
		if keep {
			out.Set(name, v)
		}
	}
	return nil
}

// applyInclusionToValue applies an interior node to the value found at its path. Documents
// recurse, arrays map over their elements, and other values are dropped unless the subtree
// computes fields, in which case they are treated as empty documents.
func (n *projNode) applyInclusionToValue(v storage.Value, vars *Vars) (storage.Value, bool, error) {
	switch v.Kind() {
	case storage.KindDocument:
		sub := storage.NewDocument()
		if err := n.applyInclusion(v.Document(), vars, sub, false); err != nil {
			return storage.Value{}, false, err
		}
		return storage.NewDocumentValue(sub), true, nil
	case storage.KindArray:
		elems := make([]storage.Value, 0, len(v.Array()))
		for _, e := range v.Array() {
			if !e.IsDocument() && !e.IsArray() && !n.computed {
				continue
			}
			r, keep, err := n.applyInclusionToValue(e, vars)
			if err != nil {
				return storage.Value{}, false, err
			}
			if keep {
				elems = append(elems, r)
			}
		}
		return storage.NewArray(elems...), true, nil
	}
	if !n.computed {
		return storage.Value{}, false, nil
	}
	return n.applyInclusionToValue(storage.NewDocumentValue(nil), vars)
}

func (n *projNode) applyExclusion(in *storage.Document) *storage.Document {
	out := storage.NewDocument()
	for _, f := range in.Fields() {
		c, ok := n.children[f.Name]
		switch {
		case !ok:
			out.Set(f.Name, f.Value)
		case c.rule != nil:
			// excluded
		default:
			out.Set(f.Name, c.applyExclusionToValue(f.Value))
		}
	}
	return out
}

func (n *projNode) applyExclusionToValue(v storage.Value) storage.Value {
	switch v.Kind() {
	case storage.KindDocument:
		return storage.NewDocumentValue(n.applyExclusion(v.Document()))
	case storage.KindArray:
		elems := make([]storage.Value, len(v.Array()))
		for i, e := range v.Array() {
			elems[i] = n.applyExclusionToValue(e)
		}
		return storage.NewArray(elems...)
	}
	return v
}
