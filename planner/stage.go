package planner

import (
	"fmt"
	"math"

	"mit.edu/dsg/docdb/common"
	"mit.edu/dsg/docdb/storage"
)

type StageKind int

const (
	KindMatch StageKind = iota
	KindProject
	KindSort
	KindGroup
	KindLimit
	KindSkip
	KindOther
)

func (k StageKind) String() string {
	switch k {
	case KindMatch:
		return "$match"
	case KindProject:
		return "$project"
	case KindSort:
		return "$sort"
	case KindGroup:
		return "$group"
	case KindLimit:
		return "$limit"
	case KindSkip:
		return "$skip"
	}
	return "other"
}

// Stage is one validated pipeline stage. The set of implementations is closed; switch on
// Kind() to handle each variant.
type Stage interface {
	Kind() StageKind

	// Document returns the query-language form of the stage, e.g. {$match: {...}}.
	Document() *storage.Document

	String() string

	stage()
}

type MatchStage struct {
	Filter MatchExpr
}

type ProjectStage struct {
	Spec *ProjectionSpec
}

type SortStage struct {
	Keys []SortKey
}

type GroupStage struct {
	Spec *GroupSpec
}

type LimitStage struct {
	N int64
}

type SkipStage struct {
	N int64
}

// OtherStage is any stage the optimizer does not look into.
type OtherStage struct {
	Name string
	Spec storage.Value
}

func NewMatchStage(filter MatchExpr) *MatchStage {
	return &MatchStage{Filter: filter}
}

func NewProjectStage(spec *ProjectionSpec) *ProjectStage {
	return &ProjectStage{Spec: spec}
}

func NewSortStage(keys ...SortKey) *SortStage {
	return &SortStage{Keys: keys}
}

func (*MatchStage) Kind() StageKind {
	return KindMatch
}

func (*ProjectStage) Kind() StageKind {
	return KindProject
}

func (*SortStage) Kind() StageKind {
	return KindSort
}

func (*GroupStage) Kind() StageKind {
	return KindGroup
}

func (*LimitStage) Kind() StageKind {
	return KindLimit
}

func (*SkipStage) Kind() StageKind {
	return KindSkip
}

func (*OtherStage) Kind() StageKind {
	return KindOther
}

func (*MatchStage) stage() {}

func (*ProjectStage) stage() {}

func (*SortStage) stage() {}

func (*GroupStage) stage() {}

func (*LimitStage) stage() {}

func (*SkipStage) stage() {}

func (*OtherStage) stage() {}

func stageDocument(name string, v storage.Value) *storage.Document {
	return storage.NewDocument(storage.Field{Name: name, Value: v})
}

func (s *MatchStage) Document() *storage.Document {
	return stageDocument("$match", s.Filter.Serialize())
}

func (s *ProjectStage) Document() *storage.Document {
	return stageDocument("$project", storage.NewDocumentValue(s.Spec.Document()))
}

func (s *SortStage) Document() *storage.Document {
	return stageDocument("$sort", storage.NewDocumentValue(SortKeysDocument(s.Keys)))
}

func (s *GroupStage) Document() *storage.Document {
	return stageDocument("$group", storage.NewDocumentValue(s.Spec.Document()))
}

func (s *LimitStage) Document() *storage.Document {
	return stageDocument("$limit", storage.NewInt(s.N))
}

func (s *SkipStage) Document() *storage.Document {
	return stageDocument("$skip", storage.NewInt(s.N))
}

func (s *OtherStage) Document() *storage.Document {
	return stageDocument(s.Name, s.Spec)
}

func (s *MatchStage) String() string {
	return "$match " + s.Filter.String()
}

func (s *ProjectStage) String() string {
	return "$project " + s.Spec.String()
}

func (s *SortStage) String() string {
	return "$sort " + sortKeysString(s.Keys)
}

func (s *GroupStage) String() string {
	return "$group " + s.Spec.Document().String()
}

func (s *LimitStage) String() string {
	return fmt.Sprintf("$limit %d", s.N)
}

func (s *SkipStage) String() string {
	return fmt.Sprintf("$skip %d", s.N)
}

func (s *OtherStage) String() string {
	return s.Name + " " + s.Spec.String()
}

// otherStages are accepted by the parser but only $unwind is executed.
var otherStages = map[string]struct{}{
	"$unwind":      {},
	"$addFields":   {},
	"$set":         {},
	"$unset":       {},
	"$replaceRoot": {},
	"$lookup":      {},
	"$facet":       {},
	"$count":       {},
	"$sample":      {},
}

// ParseStage parses one stage document, e.g. {$match: {a: 1}}.
func ParseStage(doc *storage.Document) (Stage, error) {
	if doc.Len() != 1 {
		return nil, common.NewError(common.InvalidStageError,
			"a pipeline stage specification object must contain exactly one field: %s", doc)
	}
	name, arg := doc.Field(0).Name, doc.Field(0).Value

	switch name {
	case "$match":
		if !arg.IsDocument() {
			return nil, common.NewError(common.InvalidStageError, "the match filter must be an expression in an object")
		}
		filter, err := ParseMatch(arg.Document())
		if err != nil {
			return nil, err
		}
		return &MatchStage{Filter: filter}, nil
	case "$project":
		if !arg.IsDocument() {
			return nil, common.NewError(common.InvalidProjectionError, "$project specification must be an object")
		}
		spec, err := ParseProjection(arg.Document())
		if err != nil {
			return nil, err
		}
		return &ProjectStage{Spec: spec}, nil
	case "$sort":
		if !arg.IsDocument() {
			return nil, common.NewError(common.InvalidStageError, "the $sort key specification must be an object")
		}
		keys, err := ParseSortKeys(arg.Document())
		if err != nil {
			return nil, err
		}
		return &SortStage{Keys: keys}, nil
	case "$group":
		if !arg.IsDocument() {
			return nil, common.NewError(common.InvalidStageError, "a group's fields must be specified in an object")
		}
		spec, err := ParseGroup(arg.Document())
		if err != nil {
			return nil, err
		}
		return &GroupStage{Spec: spec}, nil
	case "$limit":
		n, err := stageCount(name, arg)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, common.NewError(common.InvalidStageError, "the limit must be positive")
		}
		return &LimitStage{N: n}, nil
	case "$skip":
		n, err := stageCount(name, arg)
		if err != nil {
			return nil, err
		}
		return &SkipStage{N: n}, nil
	}

	if _, ok := otherStages[name]; !ok {
		return nil, common.NewError(common.InvalidStageError, "unrecognized pipeline stage name: '%s'", name)
	}
	if name == "$unwind" {
		if _, err := ParseUnwind(arg); err != nil {
			return nil, err
		}
	}
	return &OtherStage{Name: name, Spec: arg}, nil
}

func stageCount(name string, v storage.Value) (int64, error) {
	if !v.IsNumber() {
		return 0, common.NewError(common.InvalidStageError, "%s requires a number, got %s", name, v.Kind())
	}
	f := v.Double()
	if f != math.Trunc(f) || f < 0 || f > math.MaxInt64 {
		return 0, common.NewError(common.InvalidStageError, "%s must be a non-negative 64-bit integer, got %s", name, v)
	}
	if v.Kind() == storage.KindInt {
		return v.Int(), nil
	}
	return int64(f), nil
}

// ParsePipeline parses an array of stage documents.
func ParsePipeline(stages []storage.Value) ([]Stage, error) {
	out := make([]Stage, 0, len(stages))
	for i, v := range stages {
		if !v.IsDocument() {
			return nil, common.NewError(common.InvalidStageError, "pipeline element %d is not an object", i)
		}
		s, err := ParseStage(v.Document())
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ParsePipelineJSON parses a JSON array of stages.
func ParsePipelineJSON(data []byte) ([]Stage, error) {
	v, err := storage.ParseValue(data)
	if err != nil {
		return nil, err
	}
	if !v.IsArray() {
		return nil, common.NewError(common.InvalidStageError, "a pipeline must be an array of stages, got %s", v.Kind())
	}
	return ParsePipeline(v.Array())
}

// MustParsePipeline parses a pipeline literal known to be valid.
func MustParsePipeline(pipeline string) []Stage {
	stages, err := ParsePipelineJSON([]byte(pipeline))
	common.Assert(err == nil, "invalid pipeline %s: %v", pipeline, err)
	return stages
}

// PipelineDocuments returns the query-language form of each stage.
func PipelineDocuments(stages []Stage) []storage.Value {
	out := make([]storage.Value, len(stages))
	for i, s := range stages {
		out[i] = storage.NewDocumentValue(s.Document())
	}
	return out
}

// UnwindSpec is a parsed $unwind.
type UnwindSpec struct {
	Path                       storage.FieldPath
	IncludeArrayIndex          string
	PreserveNullAndEmptyArrays bool
}

// ParseUnwind accepts "$path" or {path: "$path", includeArrayIndex, preserveNullAndEmptyArrays}.
func ParseUnwind(v storage.Value) (UnwindSpec, error) {
	var spec UnwindSpec
	pathValue := v
	if v.IsDocument() {
		pathValue = storage.Missing()
		for _, f := range v.Document().Fields() {
			switch f.Name {
			case "path":
				pathValue = f.Value
			case "includeArrayIndex":
				if f.Value.Kind() != storage.KindString || f.Value.Str() == "" || f.Value.Str()[0] == '$' {
					return spec, common.NewError(common.InvalidStageError, "includeArrayIndex must be a non-empty string not starting with '$'")
				}
				spec.IncludeArrayIndex = f.Value.Str()
			case "preserveNullAndEmptyArrays":
				if f.Value.Kind() != storage.KindBool {
					return spec, common.NewError(common.InvalidStageError, "preserveNullAndEmptyArrays must be a boolean")
				}
				spec.PreserveNullAndEmptyArrays = f.Value.Bool()
			default:
				return spec, common.NewError(common.InvalidStageError, "unrecognized option to $unwind: %s", f.Name)
			}
		}
	}
	if pathValue.Kind() != storage.KindString || len(pathValue.Str()) < 2 || pathValue.Str()[0] != '$' {
		return spec, common.NewError(common.InvalidStageError, "$unwind path must be a field path prefixed by '$'")
	}
	path, err := storage.ParsePath(pathValue.Str()[1:])
	if err != nil {
		return spec, err
	}
	spec.Path = path
	return spec, nil
}
