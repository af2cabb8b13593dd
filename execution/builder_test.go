package execution

import (
	"context"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mit.edu/dsg/docdb/common"
	"mit.edu/dsg/docdb/indexing"
	"mit.edu/dsg/docdb/optimizer"
	"mit.edu/dsg/docdb/planner"
	"mit.edu/dsg/docdb/storage"
)

const builderTestDoc = `{"_id": {"a": 1, "b": 1}, "a": 1, "c": {"d": 1}, "e": ["elem1"]}`

func setupBuilderCollection(t *testing.T, patterns ...indexing.KeyPattern) *Collection {
	t.Helper()
	coll := setupTestCollection(t, builderTestDoc)
	for _, p := range patterns {
		require.NoError(t, coll.CreateIndex(p))
	}
	return coll
}

func testIndexPattern() indexing.KeyPattern {
	return indexing.MustKeyPattern("a_1_c.d_1_e.0_1", "a", 1, "c.d", 1, "e.0", 1)
}

type pipelineRun struct {
	docs     []*storage.Document
	plan     *optimizer.Plan
	physical *PhysicalPlan
	explain  *Explain
}

// runPipeline optimizes, builds and executes a pipeline over coll.
func runPipeline(t *testing.T, coll *Collection, cfg optimizer.Config, pipeline string) *pipelineRun {
	t.Helper()
	plan := optimizer.New(cfg, log.NewNopLogger(), optimizer.NewMetrics(nil)).
		Optimize(planner.MustParsePipeline(pipeline), coll.IndexSnapshot())
	b := NewBuilder(log.NewNopLogger(), NewMetrics(nil))
	physical, err := b.Build(plan, coll)
	require.NoError(t, err)
	exec, err := b.NewExecutor(physical.Root, coll)
	require.NoError(t, err)
	docs, err := Collect(newTestContext(), exec)
	require.NoError(t, err)
	return &pipelineRun{docs: docs, plan: plan, physical: physical, explain: NewExplain(plan, physical)}
}

func (r *pipelineRun) strings() []string {
	out := make([]string, len(r.docs))
	for i, d := range r.docs {
		out[i] = d.String()
	}
	return out
}

func TestBuilder_AccessPaths(t *testing.T) {
	tests := []struct {
		name       string
		patterns   []indexing.KeyPattern
		pipeline   string
		accessPath string
		strategy   planner.ProjectionStrategy
		expected   []string
	}{
		{
			name:       "covered with bounds",
			patterns:   []indexing.KeyPattern{testIndexPattern()},
			pipeline:   `[{"$match": {"a": {"$gte": 0}}}, {"$project": {"_id": 0, "a": 1}}]`,
			accessPath: "IXSCAN",
			strategy:   planner.StrategyCovered,
			expected:   []string{`{"a":1}`},
		},
		{
			name:       "covered nested path",
			patterns:   []indexing.KeyPattern{testIndexPattern()},
			pipeline:   `[{"$match": {"a": {"$gte": 0}}}, {"$project": {"_id": 0, "c": {"d": 1}}}]`,
			accessPath: "IXSCAN",
			strategy:   planner.StrategyCovered,
			expected:   []string{`{"c":{"d":1}}`},
		},
		{
			name:       "covered full index scan with sort",
			patterns:   []indexing.KeyPattern{testIndexPattern()},
			pipeline:   `[{"$sort": {"a": -1}}, {"$project": {"_id": 0, "a": 1}}]`,
			accessPath: "IXSCAN",
			strategy:   planner.StrategyCovered,
			expected:   []string{`{"a":1}`},
		},
		{
			name:       "rename fetches",
			patterns:   []indexing.KeyPattern{testIndexPattern()},
			pipeline:   `[{"$match": {"a": {"$gte": 0}}}, {"$project": {"_id": 0, "f": "$a"}}]`,
			accessPath: "FETCH+IXSCAN",
			strategy:   planner.StrategyDefaultFetch,
			expected:   []string{`{"f":1}`},
		},
		{
			name:       "uncovered simple inclusion",
			patterns:   []indexing.KeyPattern{testIndexPattern()},
			pipeline:   `[{"$match": {"a": {"$gte": 0}}}, {"$sort": {"a": 1}}, {"$project": {"_id": 1, "b": 1}}]`,
			accessPath: "FETCH+IXSCAN",
			strategy:   planner.StrategySimpleFetch,
			expected:   []string{`{"_id":{"a":1,"b":1}}`},
		},
		{
			name:       "filter outside the index",
			patterns:   []indexing.KeyPattern{testIndexPattern()},
			pipeline:   `[{"$match": {"e": "elem1"}}, {"$project": {"_id": 0, "a": 1}}]`,
			accessPath: "COLLSCAN",
			strategy:   planner.StrategySimpleFetch,
			expected:   []string{`{"a":1}`},
		},
		{
			name:       "filter on a multikey key path",
			patterns:   []indexing.KeyPattern{testIndexPattern()},
			pipeline:   `[{"$match": {"e.0": "elem1"}}, {"$project": {"_id": 0, "a": 1}}]`,
			accessPath: "COLLSCAN",
			strategy:   planner.StrategySimpleFetch,
			expected:   []string{`{"a":1}`},
		},
		{
			name:       "no index",
			pipeline:   `[{"$match": {"a": {"$gte": 0}}}, {"$project": {"_id": 0, "a": 1}}]`,
			accessPath: "COLLSCAN",
			strategy:   planner.StrategySimpleFetch,
			expected:   []string{`{"a":1}`},
		},
		{
			name:       "id subfield",
			patterns:   []indexing.KeyPattern{indexing.MustKeyPattern("_id.a_1_a_1", "_id.a", 1, "a", 1)},
			pipeline:   `[{"$match": {"_id.a": 1}}, {"$project": {"_id.a": 1}}]`,
			accessPath: "IXSCAN",
			strategy:   planner.StrategyCovered,
			expected:   []string{`{"_id":{"a":1}}`},
		},
		{
			name:       "inferred covered projection",
			patterns:   []indexing.KeyPattern{testIndexPattern()},
			pipeline:   `[{"$match": {"a": {"$gte": 0}}}, {"$group": {"_id": null, "a": {"$sum": "$a"}}}]`,
			accessPath: "IXSCAN",
			strategy:   planner.StrategyCovered,
			expected:   []string{`{"_id":null,"a":1}`},
		},
		{
			name:       "no projection",
			patterns:   []indexing.KeyPattern{testIndexPattern()},
			pipeline:   `[{"$match": {"a": 1}}]`,
			accessPath: "FETCH+IXSCAN",
			strategy:   planner.StrategyNone,
			expected:   []string{`{"_id":{"a":1,"b":1},"a":1,"c":{"d":1},"e":["elem1"]}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coll := setupBuilderCollection(t, tt.patterns...)
			run := runPipeline(t, coll, optimizer.DefaultConfig(), tt.pipeline)
			assert.Equal(t, tt.accessPath, run.physical.AccessPath)
			assert.Equal(t, tt.strategy, run.physical.Cursor.Strategy)
			assert.Equal(t, tt.expected, run.strings())
		})
	}
}

func TestBuilder_MultikeyAfterOptimization(t *testing.T) {
	coll := setupTestCollection(t, `{"_id": 1, "a": 1}`)
	require.NoError(t, coll.CreateIndex(indexing.MustKeyPattern("a_1", "a", 1)))

	stages := planner.MustParsePipeline(`[{"$project": {"_id": 0, "a": 1}}]`)
	plan := optimizer.New(optimizer.DefaultConfig(), log.NewNopLogger(), optimizer.NewMetrics(nil)).Optimize(stages, coll.IndexSnapshot())
	require.True(t, plan.Absorbed.Covered)

	// The index turns multikey between optimization and execution.
	_, err := coll.Insert(storage.MustParseDocument(`{"_id": 2, "a": [1, 2]}`))
	require.NoError(t, err)

	b := NewBuilder(log.NewNopLogger(), NewMetrics(nil))
	physical, err := b.Build(plan, coll)
	require.NoError(t, err)
	assert.Equal(t, planner.StrategySimpleFetch, physical.Cursor.Strategy)
	assert.True(t, physical.Cursor.Covered, "the optimizer's hint is still reported")

	exec, err := b.NewExecutor(physical.Root, coll)
	require.NoError(t, err)
	docs, err := Collect(newTestContext(), exec)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, `{"a":[1,2]}`, docs[1].String())
}

func TestBuilder_Stages(t *testing.T) {
	coll := setupNumberedCollection(t, 10)
	run := runPipeline(t, coll, optimizer.DefaultConfig(), `[
		{"$group": {"_id": "$n", "ids": {"$push": "$_id"}}},
		{"$unwind": "$ids"},
		{"$sort": {"ids": -1}},
		{"$limit": 3},
		{"$skip": 1},
		{"$match": {"_id": {"$gt": 0}}},
		{"$project": {"_id": 0, "ids": 1}}
	]`)
	assert.Equal(t, []string{`{"ids":8}`, `{"ids":7}`}, run.strings())

	var kinds []string
	for node := run.physical.Root; node != nil; {
		kinds = append(kinds, node.Explain().Get("stage").Str())
		children := node.Children()
		if len(children) == 0 {
			break
		}
		node = children[0]
	}
	assert.Equal(t, []string{"PROJECTION_SIMPLE", "FILTER", "SKIP", "SORT", "UNWIND", "GROUP",
		"CURSOR", "PROJECTION_SIMPLE", "COLLSCAN"}, kinds)
}

func TestBuilder_Errors(t *testing.T) {
	coll := setupNumberedCollection(t, 1)
	b := NewBuilder(log.NewNopLogger(), NewMetrics(nil))
	o := optimizer.New(optimizer.DefaultConfig(), log.NewNopLogger(), optimizer.NewMetrics(nil))

	plan := o.Optimize(planner.MustParsePipeline(`[{"$addFields": {"x": 1}}]`), nil)
	_, err := b.Build(plan, coll)
	assert.True(t, common.IsCode(err, common.UnsupportedStageError), "got %v", err)

	require.NoError(t, coll.CreateIndex(indexing.MustKeyPattern("n_1", "n", 1)))
	plan = o.Optimize(planner.MustParsePipeline(`[{"$match": {"n": 0}}]`), coll.IndexSnapshot())
	physical, err := b.Build(plan, coll)
	require.NoError(t, err)
	require.NoError(t, coll.DropIndex("n_1"))
	_, err = b.NewExecutor(physical.Root, coll)
	assert.True(t, common.IsCode(err, common.NoSuchObjectError), "got %v", err)
}

func TestBuilder_Metrics(t *testing.T) {
	coll := setupBuilderCollection(t, testIndexPattern())
	metrics := NewMetrics(nil)
	b := NewBuilder(log.NewNopLogger(), metrics)
	o := optimizer.New(optimizer.DefaultConfig(), log.NewNopLogger(), optimizer.NewMetrics(nil))

	plan := o.Optimize(planner.MustParsePipeline(`[{"$match": {"a": {"$gte": 0}}}, {"$project": {"_id": 0, "a": 1}}]`), coll.IndexSnapshot())
	physical, err := b.Build(plan, coll)
	require.NoError(t, err)
	exec, err := b.NewExecutor(physical.Root, coll)
	require.NoError(t, err)
	_, err = Collect(NewExecutorContext(context.Background(), DefaultConfig(), metrics), exec)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.queries.WithLabelValues("IXSCAN", "Covered")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.keysExamined))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.docsExamined))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.docsReturned))
}

func TestExplain(t *testing.T) {
	coll := setupBuilderCollection(t, testIndexPattern())

	run := runPipeline(t, coll, optimizer.DefaultConfig(), `[{"$match": {"a": {"$gte": 0}}}, {"$project": {"_id": 0, "a": 1}}]`)
	d := run.explain.Document()
	assert.True(t, d.Get("optimizedAway").Bool())
	assert.Equal(t, "IXSCAN", d.Get("accessPath").Str())
	assert.Equal(t, "a_1_c.d_1_e.0_1", d.Get("indexName").Str())
	assert.Equal(t, "Covered", d.Get("projectionStrategy").Str())
	assert.False(t, d.Has("executionPlan"))
	winning := d.Get("queryPlanner").Document().Get("winningPlan").Document()
	assert.Equal(t, "CURSOR", winning.Get("stage").Str())
	assert.Equal(t, `{"_id":false,"a":true}`, winning.Get("projection").String())
	assert.Equal(t, "PROJECTION_COVERED", winning.Get("inputStage").Document().Get("stage").Str())

	run = runPipeline(t, coll, optimizer.DefaultConfig(), `[{"$match": {"a": {"$gte": 0}}}, {"$project": {"_id": 0, "a": 1}}, {"$group": {"_id": null, "a": {"$sum": "$a"}}}]`)
	d = run.explain.Document()
	assert.False(t, d.Get("optimizedAway").Bool())
	require.True(t, d.Has("executionPlan"))
	assert.Equal(t, "GROUP", d.Get("executionPlan").Document().Get("stage").Str())
	assert.Equal(t, `[{"$group":{"_id":{"$const":null},"a":{"$sum":"$a"}}}]`, d.Get("optimizer").Document().Get("stages").String())
}
