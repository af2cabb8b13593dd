package execution

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mit.edu/dsg/docdb/indexing"
	"mit.edu/dsg/docdb/optimizer"
	"mit.edu/dsg/docdb/planner"
)

// equivalencePipelines avoid stages whose output depends on input order ($limit without a
// total sort, $push, $first), since access paths return documents in different orders.
var equivalencePipelines = []string{
	`[{"$match": {"a": {"$gte": 2}}}, {"$project": {"_id": 0, "a": 1}}]`,
	`[{"$match": {"a": {"$in": [1, 3]}}}, {"$project": {"_id": 0, "a": 1, "c.d": 1}}]`,
	`[{"$match": {"a": null}}, {"$project": {"a": 1}}]`,
	`[{"$project": {"_id": 0, "c.d": 1}}]`,
	`[{"$project": {"_id": 0, "c": {"d": 1}, "b": 1}}]`,
	`[{"$sort": {"c.d": -1}}, {"$project": {"_id": 0, "c.d": 1, "b": 1}}]`,
	`[{"$match": {"c.d": {"$gte": 2}}}, {"$match": {"b": {"$lt": 7}}}, {"$project": {"_id": 0, "b": 1, "c": {"d": 1}}}]`,
	`[{"$match": {"b": {"$lt": 5}}}, {"$group": {"_id": "$a", "n": {"$sum": 1}, "total": {"$sum": "$b"}}}]`,
	`[{"$group": {"_id": null, "max": {"$max": "$c.d"}, "min": {"$min": "$a"}, "avg": {"$avg": "$b"}}}]`,
	`[{"$group": {"_id": {"a": "$a", "d": "$c.d"}, "n": {"$count": {}}}}]`,
	`[{"$project": {"_id": 0, "x": "$a", "y": {"$add": ["$b", 1]}}}]`,
	`[{"$match": {"c.d": {"$gt": 3}}}, {"$unwind": "$tags"}, {"$group": {"_id": "$tags", "n": {"$sum": 1}}}]`,
	`[{"$match": {"a": {"$gt": 1}}}, {"$sort": {"_id": -1}}, {"$skip": 3}, {"$project": {"_id": 1, "name": 1}}]`,
	`[{"$sort": {"b": 1, "_id": 1}}, {"$limit": 5}, {"$project": {"_id": 0, "b": 1, "a": 1}}]`,
	`[{"$project": {"tags": 0, "name": 0}}]`,
	`[{"$match": {"$or": [{"a": 1}, {"b": 2}]}}, {"$project": {"_id": 0, "a": 1, "b": 1}}]`,
	`[{"$match": {"a": {"$gte": 1, "$lt": 4}}}, {"$sort": {"a": 1}}, {"$project": {"a": 1}}, {"$match": {"_id": {"$gt": 10}}}]`,
	`[{"$match": {"b": 3}}, {"$project": {"_id": 0, "b": 1}}, {"$group": {"_id": "$b", "n": {"$sum": 1}}}]`,
}

// generateDocuments produces documents whose fields are sometimes missing, null or of an
// unexpected shape. Indexed fields never hold arrays.
func generateDocuments(r *rand.Rand, n int) []string {
	docs := make([]string, n)
	for i := range docs {
		fields := []string{fmt.Sprintf(`"_id": %d`, i)}
		switch x := r.Intn(10); {
		case x == 0:
		case x == 1:
			fields = append(fields, `"a": null`)
		default:
			fields = append(fields, fmt.Sprintf(`"a": %d`, r.Intn(6)))
		}
		fields = append(fields, fmt.Sprintf(`"b": %d`, r.Intn(10)))
		switch x := r.Intn(20); {
		case x < 3:
		case x < 6:
			fields = append(fields, `"c": "scalar"`)
		case x < 8:
			fields = append(fields, `"c": {"e": 1}`)
		default:
			fields = append(fields, fmt.Sprintf(`"c": {"d": %d}`, r.Intn(6)))
		}
		tags := make([]string, r.Intn(4))
		for j := range tags {
			tags[j] = fmt.Sprintf(`"%c"`, 'x'+r.Intn(3))
		}
		fields = append(fields, `"tags": [`+strings.Join(tags, ", ")+`]`)
		fields = append(fields, fmt.Sprintf(`"name": "doc-%d"`, i))
		docs[i] = "{" + strings.Join(fields, ", ") + "}"
	}
	return docs
}

func sortedStrings(run *pipelineRun) []string {
	out := run.strings()
	sort.Strings(out)
	return out
}

// TestPushdownEquivalence checks that every optimization yields the same multiset of
// results as running the pipeline stage by stage over a collection scan.
func TestPushdownEquivalence(t *testing.T) {
	docs := generateDocuments(rand.New(rand.NewSource(42)), 200)

	indexed := setupTestCollection(t, docs...)
	for _, p := range []indexing.KeyPattern{
		indexing.MustKeyPattern("a_1", "a", 1),
		indexing.MustKeyPattern("a_1_c.d_1", "a", 1, "c.d", 1),
		indexing.MustKeyPattern("c.d_-1_b_1", "c.d", -1, "b", 1),
		indexing.MustKeyPattern("b_1", "b", 1),
	} {
		require.NoError(t, indexed.CreateIndex(p))
	}
	plain := setupTestCollection(t, docs...)

	unoptimized := optimizer.DefaultConfig()
	unoptimized.EnableProjectionPushdown = false
	unoptimized.InferDependencyProjection = false
	uncovered := optimizer.DefaultConfig()
	uncovered.EnableCoveredProjections = false
	noSort := optimizer.DefaultConfig()
	noSort.AbsorbLeadingSort = false

	strategies := make(map[planner.ProjectionStrategy]int)
	for _, pipeline := range equivalencePipelines {
		t.Run(pipeline, func(t *testing.T) {
			want := sortedStrings(runPipeline(t, plain, unoptimized, pipeline))

			for name, run := range map[string]*pipelineRun{
				"default":          runPipeline(t, indexed, optimizer.DefaultConfig(), pipeline),
				"no covering":      runPipeline(t, indexed, uncovered, pipeline),
				"no sort":          runPipeline(t, indexed, noSort, pipeline),
				"no index":         runPipeline(t, plain, optimizer.DefaultConfig(), pipeline),
				"indexed baseline": runPipeline(t, indexed, unoptimized, pipeline),
			} {
				if diff := cmp.Diff(want, sortedStrings(run)); diff != "" {
					t.Errorf("%s: results differ (-want +got):\n%s\nexplain: %s", name, diff, run.explain)
				}
				strategies[run.physical.Cursor.Strategy]++
			}
		})
	}

	assert.Positive(t, strategies[planner.StrategyCovered])
	assert.Positive(t, strategies[planner.StrategySimpleFetch])
	assert.Positive(t, strategies[planner.StrategyDefaultFetch])
}

func TestPushdownEquivalence_Multikey(t *testing.T) {
	docs := []string{
		`{"_id": 1, "a": [1, 2], "b": 1}`,
		`{"_id": 2, "a": 2, "b": [3]}`,
		`{"_id": 3, "a": [], "b": 2}`,
		`{"_id": 4, "a": [0, 3], "b": 4}`,
		`{"_id": 5, "b": null}`,
	}
	indexed := setupTestCollection(t, docs...)
	require.NoError(t, indexed.CreateIndex(indexing.MustKeyPattern("a_1_b_1", "a", 1, "b", 1)))
	plain := setupTestCollection(t, docs...)

	unoptimized := optimizer.DefaultConfig()
	unoptimized.EnableProjectionPushdown = false
	unoptimized.InferDependencyProjection = false

	for _, pipeline := range []string{
		`[{"$match": {"a": {"$gte": 2}}}, {"$project": {"_id": 0, "a": 1}}]`,
		`[{"$match": {"a": {"$gt": 1, "$lt": 2}}}, {"$project": {"_id": 0, "a": 1, "b": 1}}]`,
		`[{"$match": {"a": 1}}, {"$project": {"_id": 0, "b": 1}}]`,
		`[{"$project": {"_id": 0, "b": 1}}]`,
		`[{"$group": {"_id": null, "n": {"$sum": "$b"}}}]`,
	} {
		t.Run(pipeline, func(t *testing.T) {
			want := sortedStrings(runPipeline(t, plain, unoptimized, pipeline))
			run := runPipeline(t, indexed, optimizer.DefaultConfig(), pipeline)
			assert.Empty(t, cmp.Diff(want, sortedStrings(run)), "explain: %s", run.explain)
			assert.NotEqual(t, planner.StrategyCovered, run.physical.Cursor.Strategy)
		})
	}
}
