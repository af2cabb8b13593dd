package optimizer

import (
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"mit.edu/dsg/docdb/indexing"
	"mit.edu/dsg/docdb/planner"
)

const testIndexName = "a_1_c.d_1_e.0_1"

// testIndexes is the catalog snapshot after inserting {_id:{a:1,b:1}, a:1, c:{d:1}, e:["elem1"]}
// into a collection indexed on {a:1, 'c.d':1, 'e.0':1}.
func testIndexes() []indexing.KeyPattern {
	return []indexing.KeyPattern{
		indexing.MustKeyPattern(testIndexName, "a", 1, "c.d", 1, "e.0", 1).WithMultikeyPaths("e.0"),
	}
}

func setupOptimizer(t *testing.T, mutate func(*Config)) (*Optimizer, *Metrics) {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	metrics := NewMetrics(prometheus.NewPedanticRegistry())
	return New(cfg, log.NewNopLogger(), metrics), metrics
}

func stageKinds(stages []planner.Stage) []planner.StageKind {
	kinds := make([]planner.StageKind, len(stages))
	for i, s := range stages {
		kinds[i] = s.Kind()
	}
	return kinds
}

func TestDefaultConfig(t *testing.T) {
	assert.Equal(t, Config{
		EnableProjectionPushdown:  true,
		EnableCoveredProjections:  true,
		AbsorbLeadingSort:         true,
		InferDependencyProjection: true,
	}, DefaultConfig())
}

func TestEligibility(t *testing.T) {
	tests := []struct {
		pipeline string
		strict   int
		withSort int
	}{
		{`[{"$project": {"a": 1}}]`, 0, 0},
		{`[{"$match": {"a": 1}}, {"$match": {"b": 1}}, {"$project": {"a": 1}}]`, 2, 2},
		{`[{"$sort": {"a": 1}}, {"$project": {"a": 1}}]`, -1, 1},
		{`[{"$match": {"a": 1}}, {"$sort": {"a": 1}}, {"$match": {"b": 1}}, {"$project": {"a": 1}}]`, -1, 3},
		{`[{"$sort": {"a": 1}}, {"$sort": {"b": 1}}, {"$project": {"a": 1}}]`, -1, -1},
		{`[{"$group": {"_id": null}}, {"$project": {"a": 1}}]`, -1, -1},
		{`[{"$limit": 1}, {"$project": {"a": 1}}]`, -1, -1},
		{`[{"$skip": 1}, {"$project": {"a": 1}}]`, -1, -1},
		{`[{"$unwind": "$a"}, {"$project": {"a": 1}}]`, -1, -1},
		{`[{"$match": {"a": 1}}]`, -1, -1},
		// Renames, computed fields and exclusions are all eligible.
		{`[{"$project": {"f": "$a", "s": {"$sum": "$a"}}}]`, 0, 0},
		{`[{"$project": {"a": 0}}, {"$project": {"b": 1}}]`, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.pipeline, func(t *testing.T) {
			stages := planner.MustParsePipeline(tt.pipeline)
			for _, c := range []struct {
				checker *EligibilityChecker
				want    int
			}{
				{NewEligibilityChecker(false), tt.strict},
				{NewEligibilityChecker(true), tt.withSort},
			} {
				pos, ok := c.checker.Candidate(stages)
				assert.Equal(t, c.want >= 0, ok)
				if ok {
					assert.Equal(t, c.want, pos)
				}
				for i := range stages {
					assert.Equal(t, i == c.want, c.checker.IsEligible(stages, i))
				}
			}
		})
	}
}

func TestAnalyzeCoverage(t *testing.T) {
	index := testIndexes()[0]
	idIndex := indexing.MustKeyPattern("_id.a_1_a_1", "_id.a", 1, "a", 1)
	plainIndex := indexing.MustKeyPattern("e.0_1_a_1", "e.0", 1, "a", 1)
	wholeIDIndex := indexing.MustKeyPattern("_id_1_a_1", "_id", 1, "a", 1)

	tests := []struct {
		spec     string
		index    indexing.KeyPattern
		expected CoverageResult
	}{
		{`{"_id": 0, "a": 1}`, index, Covered},
		{`{"_id": 0, "c": {"d": 1}}`, index, Covered},
		{`{"_id": 0, "a": 1, "c.d": 1}`, index, Covered},
		{`{"a": 1}`, index, NotCovered},
		{`{"_id": 0, "c": 1}`, index, NotCovered},
		{`{"_id": 0, "b": 1}`, index, NotCovered},
		{`{"_id": 0, "f": "$a"}`, index, NotCovered},
		{`{"_id": 0, "a": 1, "f": "$a"}`, index, NotCovered},
		{`{"computedField": {"$sum": "$a"}}`, index, NotCovered},
		{`{"_id": 0, "a": ["$a", "$b"]}`, index, NotCovered},
		{`{"_id": 0}`, index, NotCovered},
		{`{"c.d": 0}`, index, NotCovered},
		{`{"_id": 1, "b": 1}`, index, NotCovered},
		// A multikey path cannot be rebuilt from its keys.
		{`{"_id": 0, "e.0": 1}`, index, NotCovered},
		{`{"_id": 0, "e.0": 1}`, plainIndex, Covered},
		{`{"_id.a": 1}`, idIndex, Covered},
		{`{"_id.a": 1, "a": 1}`, idIndex, Covered},
		{`{"_id": 1}`, idIndex, NotCovered},
		{`{"a": 1}`, wholeIDIndex, Covered},
		{`{"_id": 1, "a": 1}`, wholeIDIndex, Covered},
	}
	for _, tt := range tests {
		t.Run(tt.spec+" on "+tt.index.Name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Analyze(planner.MustProjection(tt.spec), tt.index))
		})
	}
}

func TestCoalesce(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		remaining, absorbed := Coalesce(nil, testIndexes())
		assert.Empty(t, remaining)
		assert.Nil(t, absorbed)
	})

	t.Run("no candidate", func(t *testing.T) {
		stages := planner.MustParsePipeline(`[{"$group": {"_id": null}}, {"$project": {"a": 1}}]`)
		remaining, absorbed := Coalesce(stages, testIndexes())
		assert.Nil(t, absorbed)
		assert.Equal(t, stages, remaining)
	})

	t.Run("covered", func(t *testing.T) {
		stages := planner.MustParsePipeline(`[{"$match": {"a": {"$gte": 0}}}, {"$project": {"_id": 0, "a": 1}}]`)
		remaining, absorbed := Coalesce(stages, testIndexes())
		require.NotNil(t, absorbed)
		assert.Same(t, stages[1].(*planner.ProjectStage).Spec, absorbed.Spec)
		assert.True(t, absorbed.Covered)
		assert.Equal(t, []string{testIndexName}, absorbed.CoveringIndexes)
		assert.False(t, absorbed.Inferred)
		assert.Equal(t, []planner.Stage{stages[0]}, remaining)
	})

	t.Run("no indexes", func(t *testing.T) {
		stages := planner.MustParsePipeline(`[{"$project": {"_id": 0, "a": 1}}]`)
		remaining, absorbed := Coalesce(stages, nil)
		require.NotNil(t, absorbed)
		assert.False(t, absorbed.Covered)
		assert.Empty(t, absorbed.CoveringIndexes)
		assert.Empty(t, remaining)
	})

	t.Run("first project only", func(t *testing.T) {
		stages := planner.MustParsePipeline(`[
			{"$match": {"a": {"$gte": 0}}},
			{"$project": {"_id": 0, "a": 1}},
			{"$group": {"_id": "$a", "arr": {"$push": "$a"}, "a": {"$sum": "$a"}}},
			{"$project": {"_id": 0, "a": 1}}
		]`)
		before := append([]planner.Stage(nil), stages...)

		remaining, absorbed := Coalesce(stages, testIndexes())
		require.NotNil(t, absorbed)
		assert.Same(t, stages[1].(*planner.ProjectStage).Spec, absorbed.Spec)
		assert.Equal(t, []planner.Stage{stages[0], stages[2], stages[3]}, remaining)

		// The input is untouched and does not share a backing array with the output.
		assert.Equal(t, before, stages)
		remaining[0] = stages[3]
		assert.Equal(t, before, stages)
	})

	t.Run("rename is absorbed but not covered", func(t *testing.T) {
		stages := planner.MustParsePipeline(`[{"$match": {"a": {"$gte": 0}}}, {"$project": {"_id": 0, "a": 1, "f": "$a"}}]`)
		_, absorbed := Coalesce(stages, testIndexes())
		require.NotNil(t, absorbed)
		assert.False(t, absorbed.Covered)
	})

	t.Run("several covering indexes", func(t *testing.T) {
		indexes := append(testIndexes(),
			indexing.MustKeyPattern("b_1", "b", 1),
			indexing.MustKeyPattern("a_-1", "a", -1))
		stages := planner.MustParsePipeline(`[{"$project": {"_id": 0, "a": 1}}]`)
		_, absorbed := Coalesce(stages, indexes)
		require.NotNil(t, absorbed)
		assert.Equal(t, []string{testIndexName, "a_-1"}, absorbed.CoveringIndexes)
	})
}

func TestOptimize(t *testing.T) {
	tests := []struct {
		name          string
		config        func(*Config)
		pipeline      string
		optimizedAway bool
		remaining     []planner.StageKind
		filter        bool
		sort          bool
		// absorbed is the explain form of the absorbed spec, empty when nothing is absorbed.
		absorbed string
		covered  bool
		inferred bool
	}{
		{
			name:          "covered projection optimized away",
			pipeline:      `[{"$match": {"a": {"$gte": 0}}}, {"$project": {"_id": 0, "a": 1}}]`,
			optimizedAway: true, remaining: []planner.StageKind{}, filter: true,
			absorbed: `{"_id":false,"a":true}`, covered: true,
		},
		{
			name:      "project removed before group",
			pipeline:  `[{"$match": {"a": {"$gte": 0}}}, {"$project": {"_id": 0, "a": 1}}, {"$group": {"_id": null, "a": {"$sum": "$a"}}}]`,
			remaining: []planner.StageKind{planner.KindGroup}, filter: true,
			absorbed: `{"_id":false,"a":true}`, covered: true,
		},
		{
			name:          "rename",
			pipeline:      `[{"$match": {"a": {"$gte": 0}}}, {"$project": {"_id": 0, "f": "$a"}}]`,
			optimizedAway: true, remaining: []planner.StageKind{}, filter: true,
			absorbed: `{"_id":false,"f":"$a"}`,
		},
		{
			name:          "computed",
			pipeline:      `[{"$match": {"a": {"$gte": 0}}}, {"$project": {"computedField": {"$sum": "$a"}}}]`,
			optimizedAway: true, remaining: []planner.StageKind{}, filter: true,
			absorbed: `{"computedField":{"$sum":["$a"]}}`,
		},
		{
			name:          "sort absorbed ahead of projection",
			pipeline:      `[{"$match": {"a": {"$gte": 0}}}, {"$sort": {"a": 1}}, {"$project": {"_id": 1, "b": 1}}]`,
			optimizedAway: true, remaining: []planner.StageKind{}, filter: true, sort: true,
			absorbed: `{"_id":true,"b":true}`,
		},
		{
			name:      "strict sort rule infers a projection instead",
			config:    func(c *Config) { c.AbsorbLeadingSort = false },
			pipeline:  `[{"$match": {"a": {"$gte": 0}}}, {"$sort": {"a": 1}}, {"$project": {"_id": 1, "b": 1}}]`,
			remaining: []planner.StageKind{planner.KindSort, planner.KindProject}, filter: true,
			absorbed: `{"_id":true,"a":true,"b":true}`, inferred: true,
		},
		{
			name: "dependency projection before group",
			pipeline: `[{"$match": {"a": {"$gte": 0}}}, {"$sort": {"a": 1}},
				{"$group": {"_id": "$_id", "arr": {"$push": "$a"}}}, {"$project": {"arr": 1}}]`,
			remaining: []planner.StageKind{planner.KindGroup, planner.KindProject}, filter: true, sort: true,
			absorbed: `{"_id":true,"a":true}`, inferred: true,
		},
		{
			name:      "covered dependency projection",
			pipeline:  `[{"$match": {"a": {"$gte": 0}}}, {"$group": {"_id": null, "a": {"$sum": "$a"}}}]`,
			remaining: []planner.StageKind{planner.KindGroup}, filter: true,
			absorbed: `{"_id":false,"a":true}`, covered: true, inferred: true,
		},
		{
			name:      "positional dependency keeps the array",
			pipeline:  `[{"$group": {"_id": "$e.0", "n": {"$count": {}}}}]`,
			remaining: []planner.StageKind{planner.KindGroup},
			absorbed:  `{"_id":false,"e":true}`, inferred: true,
		},
		{
			name:      "no dependency projection without a terminal stage",
			pipeline:  `[{"$match": {"a": {"$gte": 0}}}, {"$limit": 1}]`,
			remaining: []planner.StageKind{planner.KindLimit}, filter: true,
		},
		{
			name:      "no dependency projection for whole documents",
			pipeline:  `[{"$group": {"_id": null, "docs": {"$push": "$$ROOT"}}}]`,
			remaining: []planner.StageKind{planner.KindGroup},
		},
		{
			name:      "no dependency projection through other stages",
			pipeline:  `[{"$unset": "a"}, {"$group": {"_id": "$b"}}]`,
			remaining: []planner.StageKind{planner.KindOther, planner.KindGroup},
		},
		{
			name:      "no dependency projection when nothing is read",
			pipeline:  `[{"$group": {"_id": null, "n": {"$count": {}}}}]`,
			remaining: []planner.StageKind{planner.KindGroup},
		},
		{
			name:      "dependencies through unwind",
			pipeline:  `[{"$unwind": "$e"}, {"$group": {"_id": "$e", "n": {"$sum": "$a"}}}]`,
			remaining: []planner.StageKind{planner.KindOther, planner.KindGroup},
			absorbed:  `{"_id":false,"a":true,"e":true}`, inferred: true,
		},
		{
			name:      "pushdown disabled",
			config:    func(c *Config) { c.EnableProjectionPushdown = false },
			pipeline:  `[{"$match": {"a": {"$gte": 0}}}, {"$project": {"_id": 0, "a": 1}}]`,
			remaining: []planner.StageKind{planner.KindProject}, filter: true,
			absorbed: `{"_id":false,"a":true}`, covered: true, inferred: true,
		},
		{
			name: "pushdown and inference disabled",
			config: func(c *Config) {
				c.EnableProjectionPushdown = false
				c.InferDependencyProjection = false
			},
			pipeline:  `[{"$match": {"a": {"$gte": 0}}}, {"$project": {"_id": 0, "a": 1}}]`,
			remaining: []planner.StageKind{planner.KindProject}, filter: true,
		},
		{
			name:          "covered projections disabled",
			config:        func(c *Config) { c.EnableCoveredProjections = false },
			pipeline:      `[{"$match": {"a": {"$gte": 0}}}, {"$project": {"_id": 0, "a": 1}}]`,
			optimizedAway: true, remaining: []planner.StageKind{}, filter: true,
			absorbed: `{"_id":false,"a":true}`,
		},
		{
			name:          "match after projection stays in the pipeline",
			pipeline:      `[{"$match": {"a": {"$gte": 0}}}, {"$project": {"_id": 0, "f": "$a"}}, {"$match": {"f": 1}}]`,
			remaining: []planner.StageKind{planner.KindMatch}, filter: true,
			absorbed: `{"_id":false,"f":"$a"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := setupOptimizer(t, tt.config)
			plan := o.Optimize(planner.MustParsePipeline(tt.pipeline), testIndexes())

			assert.Equal(t, tt.optimizedAway, plan.OptimizedAway)
			assert.Equal(t, tt.remaining, stageKinds(plan.Remaining))
			assert.Equal(t, tt.filter, plan.CursorFilter != nil)
			assert.Equal(t, tt.sort, len(plan.CursorSort) > 0)
			if tt.absorbed == "" {
				assert.Nil(t, plan.Absorbed)
				return
			}
			require.NotNil(t, plan.Absorbed)
			assert.Equal(t, tt.absorbed, plan.Absorbed.Spec.Document().String())
			assert.Equal(t, tt.covered, plan.Absorbed.Covered)
			assert.Equal(t, tt.inferred, plan.Absorbed.Inferred)
		})
	}
}

func TestOptimize_MergesCursorFilters(t *testing.T) {
	o, _ := setupOptimizer(t, nil)
	plan := o.Optimize(planner.MustParsePipeline(`[
		{"$match": {"a": {"$gte": 0}}},
		{"$sort": {"a": -1}},
		{"$match": {"b": 1, "c": 2}},
		{"$project": {"_id": 0, "a": 1}}
	]`), testIndexes())

	assert.Equal(t, `{"$and":[{"a":{"$gte":0}},{"b":{"$eq":1}},{"c":{"$eq":2}}]}`, plan.CursorFilter.Serialize().String())
	require.Len(t, plan.CursorSort, 1)
	assert.Equal(t, planner.SortOrderDescending, plan.CursorSort[0].Direction)
	assert.True(t, plan.OptimizedAway)
}

func TestOptimize_Metrics(t *testing.T) {
	o, metrics := setupOptimizer(t, nil)
	o.Optimize(planner.MustParsePipeline(`[{"$match": {"a": {"$gte": 0}}}, {"$project": {"_id": 0, "a": 1}}]`), testIndexes())
	o.Optimize(planner.MustParsePipeline(`[{"$group": {"_id": null, "a": {"$sum": "$a"}}}]`), testIndexes())
	o.Optimize(planner.MustParsePipeline(`[{"$limit": 1}]`), testIndexes())

	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.passes))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.optimizedAway))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.absorbed.WithLabelValues("true", "false")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.absorbed.WithLabelValues("true", "true")))
}

func TestExplain(t *testing.T) {
	o, _ := setupOptimizer(t, nil)
	plan := o.Optimize(planner.MustParsePipeline(`[
		{"$match": {"a": {"$gte": 0}}},
		{"$project": {"_id": 0, "a": 1}},
		{"$group": {"_id": null, "a": {"$sum": "$a"}}}
	]`), testIndexes())

	assert.Equal(t, `{"optimizedAway":false,"projectionAbsorbed":true,`+
		`"absorbedProjection":{"spec":{"_id":false,"a":true},"covered":true,"coveringIndexes":["a_1_c.d_1_e.0_1"],"inferred":false},`+
		`"cursor":{"filter":{"a":{"$gte":0}}},`+
		`"stages":[{"$group":{"_id":{"$const":null},"a":{"$sum":"$a"}}}]}`, Explain(plan).String())

	plan = o.Optimize(planner.MustParsePipeline(`[{"$limit": 2}]`), nil)
	assert.Equal(t, `{"optimizedAway":false,"projectionAbsorbed":false,"cursor":{},"stages":[{"$limit":2}]}`, Explain(plan).String())
}

func TestOptimize_Concurrent(t *testing.T) {
	o, metrics := setupOptimizer(t, nil)
	stages := planner.MustParsePipeline(`[{"$match": {"a": {"$gte": 0}}}, {"$project": {"_id": 0, "a": 1}}, {"$limit": 3}]`)
	indexes := testIndexes()
	want := Explain(o.Optimize(stages, indexes)).String()

	var g errgroup.Group
	results := make([]string, 32)
	for i := range results {
		g.Go(func() error {
			results[i] = Explain(o.Optimize(stages, indexes)).String()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, got := range results {
		assert.Equal(t, want, got)
	}
	assert.Equal(t, float64(33), testutil.ToFloat64(metrics.passes))
}
