package execution

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"mit.edu/dsg/docdb/common"
	"mit.edu/dsg/docdb/indexing"
	"mit.edu/dsg/docdb/optimizer"
	"mit.edu/dsg/docdb/planner"
	"mit.edu/dsg/docdb/storage"
)

// PhysicalPlan is the executable form of an optimizer Plan.
type PhysicalPlan struct {
	Root   planner.PlanNode
	Cursor *planner.CursorNode
	// AccessPath is the explain stage of the scan: COLLSCAN, IXSCAN or FETCH+IXSCAN.
	AccessPath string
	// IndexName is set when the cursor scans an index.
	IndexName string
}

// Builder turns optimizer plans into physical plans and physical plans into executors.
type Builder struct {
	logger  log.Logger
	metrics *Metrics
}

func NewBuilder(logger log.Logger, metrics *Metrics) *Builder {
	return &Builder{
		logger:  logger,
		metrics: metrics,
	}
}

// Build chooses the cursor's access path and projection strategy and appends the remaining
// pipeline stages. The access path is, in order of preference:
//  1. an index-only scan of an index that covers the projection, the cursor filter and the
//     cursor sort;
//  2. a fetching scan of the first index whose leading key path the filter bounds;
//  3. a collection scan.
//
// The filter is always evaluated on the scanned documents, so bounds only have to be loose.
func (b *Builder) Build(plan *optimizer.Plan, collection *Collection) (*PhysicalPlan, error) {
	var scan planner.PlanNode
	strategy := planner.StrategyNone
	physical := &PhysicalPlan{}

	if index, ok := b.coveringIndex(plan, collection); ok {
		bounds, _ := boundsFor(plan.CursorFilter, index)
		scan = planner.NewIndexScanNode(collection.Oid(), collection.Name(), index, bounds, true)
		strategy = planner.StrategyCovered
		physical.IndexName = index.Name
	} else {
		for _, index := range collection.IndexSnapshot() {
			if bounds, ok := boundsFor(plan.CursorFilter, index); ok {
				scan = planner.NewIndexScanNode(collection.Oid(), collection.Name(), index, bounds, false)
				physical.IndexName = index.Name
				break
			}
		}
		if scan == nil {
			scan = planner.NewCollScanNode(collection.Oid(), collection.Name())
		}
		if plan.Absorbed != nil {
			strategy = fetchStrategy(plan.Absorbed.Spec)
		}
	}
	physical.AccessPath = accessPathName(scan)

	node := scan
	if plan.CursorFilter != nil {
		node = planner.NewFilterNode(node, plan.CursorFilter)
	}
	if len(plan.CursorSort) > 0 {
		node = planner.NewSortNode(node, plan.CursorSort)
	}
	var projection *planner.ProjectionSpec
	var covered, inferred bool
	if a := plan.Absorbed; a != nil {
		projection, covered, inferred = a.Spec, a.Covered, a.Inferred
		node = planner.NewProjectionNode(node, a.Spec, strategy)
	}
	physical.Cursor = planner.NewCursorNode(node, plan.CursorFilter, plan.CursorSort, projection, covered, inferred, strategy)

	root, err := buildStages(physical.Cursor, plan.Remaining)
	if err != nil {
		return nil, err
	}
	physical.Root = root

	b.metrics.queries.WithLabelValues(physical.AccessPath, strategy.String()).Inc()
	level.Debug(b.logger).Log(
		"msg", "physical plan built",
		"collection", collection.Name(),
		"access_path", physical.AccessPath,
		"index", physical.IndexName,
		"strategy", strategy,
	)
	return physical, nil
}

// coveringIndex returns an index, among those the optimizer found covering, from whose keys
// the whole cursor can be evaluated. Multikey state is re-read from the live index, which
// may have seen arrays since the optimizer's snapshot.
func (b *Builder) coveringIndex(plan *optimizer.Plan, collection *Collection) (indexing.KeyPattern, bool) {
	if plan.Absorbed == nil || !plan.Absorbed.Covered {
		return indexing.KeyPattern{}, false
	}
	deps := planner.NewDependencies()
	if plan.CursorFilter != nil {
		plan.CursorFilter.AddDependencies(deps)
	}
	for _, k := range plan.CursorSort {
		deps.AddPath(k.Path.String())
	}

	for _, name := range plan.Absorbed.CoveringIndexes {
		index, ok := collection.Index(name)
		if !ok {
			continue
		}
		pattern := index.Pattern()
		if optimizer.Analyze(plan.Absorbed.Spec, pattern) != optimizer.Covered {
			continue
		}
		if keysResolve(pattern, deps.Paths()) {
			return pattern, true
		}
	}
	return indexing.KeyPattern{}, false
}

// keysResolve reports whether every path resolves identically on a document rebuilt from
// the index keys: it must lie at or below a key path that never held an array.
func keysResolve(pattern indexing.KeyPattern, paths []string) bool {
	for _, p := range paths {
		path := storage.MustParsePath(p)
		found := false
		for _, k := range pattern.Paths() {
			if storage.MustParsePath(k).IsPrefixOf(path) && !pattern.IsMultikey(k) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// boundsFor derives bounds on the leading key path from the filter's conjunctive
// predicates. On a multikey path two predicates may be satisfied by different array
// elements, so only the first one is used there.
func boundsFor(filter planner.MatchExpr, index indexing.KeyPattern) (indexing.Interval, bool) {
	bounds := indexing.FullInterval()
	if filter == nil {
		return bounds, false
	}
	lead := index.Fields[0].Path
	bounded := false
	for _, p := range planner.ConjunctivePredicates(filter) {
		if p.Path.String() != lead {
			continue
		}
		interval, ok := indexing.ComparisonInterval(string(p.Operator), p.Value)
		if !ok {
			continue
		}
		bounds = bounds.Intersect(interval)
		bounded = true
		if index.IsMultikey(lead) {
			break
		}
	}
	return bounds, bounded
}

func accessPathName(scan planner.PlanNode) string {
	if n, ok := scan.(*planner.IndexScanNode); ok {
		if n.KeysOnly {
			return "IXSCAN"
		}
		return "FETCH+IXSCAN"
	}
	return "COLLSCAN"
}

func fetchStrategy(spec *planner.ProjectionSpec) planner.ProjectionStrategy {
	if spec.IsSimpleInclusion() {
		return planner.StrategySimpleFetch
	}
	return planner.StrategyDefaultFetch
}

// buildStages stacks plan nodes for the pipeline stages the cursor did not take over. A
// $sort directly followed by $limit runs as a top-n sort.
func buildStages(node planner.PlanNode, stages []planner.Stage) (planner.PlanNode, error) {
	for i := 0; i < len(stages); i++ {
		switch s := stages[i].(type) {
		case *planner.MatchStage:
			node = planner.NewFilterNode(node, s.Filter)
		case *planner.ProjectStage:
			node = planner.NewProjectionNode(node, s.Spec, fetchStrategy(s.Spec))
		case *planner.SortStage:
			if i+1 < len(stages) {
				if limit, ok := stages[i+1].(*planner.LimitStage); ok {
					node = planner.NewTopNNode(node, limit.N, s.Keys)
					i++
					continue
				}
			}
			node = planner.NewSortNode(node, s.Keys)
		case *planner.GroupStage:
			node = planner.NewAggregateNode(node, s.Spec)
		case *planner.LimitStage:
			node = planner.NewLimitNode(node, s.N)
		case *planner.SkipStage:
			node = planner.NewSkipNode(node, s.N)
		case *planner.OtherStage:
			if s.Name != "$unwind" {
				return nil, common.NewError(common.UnsupportedStageError, "%s is not supported by this engine", s.Name)
			}
			spec, err := planner.ParseUnwind(s.Spec)
			if err != nil {
				return nil, err
			}
			node = planner.NewUnwindNode(node, spec)
		default:
			panic(fmt.Sprintf("unknown stage %T", s))
		}
	}
	return node, nil
}

// NewExecutor creates the executor tree for a physical plan over the given collection.
func (b *Builder) NewExecutor(node planner.PlanNode, collection *Collection) (Executor, error) {
	switch n := node.(type) {
	case *planner.CollScanNode:
		common.Assert(n.CollectionOid == collection.Oid(), "plan for collection %d run on %d", n.CollectionOid, collection.Oid())
		return NewCollScanExecutor(n, collection), nil
	case *planner.IndexScanNode:
		common.Assert(n.CollectionOid == collection.Oid(), "plan for collection %d run on %d", n.CollectionOid, collection.Oid())
		index, ok := collection.Index(n.Pattern.Name)
		if !ok {
			return nil, common.NewError(common.NoSuchObjectError, "index '%s' not found on collection '%s'", n.Pattern.Name, collection.Name())
		}
		return NewIndexScanExecutor(n, index, collection), nil
	}

	children := node.Children()
	common.Assert(len(children) == 1, "%T should have one child", node)
	child, err := b.NewExecutor(children[0], collection)
	if err != nil {
		return nil, err
	}
	switch n := node.(type) {
	case *planner.FilterNode:
		return NewFilter(n, child), nil
	case *planner.SortNode:
		return NewSortExecutor(n, child), nil
	case *planner.TopNNode:
		return NewTopNExecutor(n, child), nil
	case *planner.LimitNode:
		return NewLimitExecutor(n, child), nil
	case *planner.SkipNode:
		return NewSkipExecutor(n, child), nil
	case *planner.ProjectionNode:
		return NewProjectionExecutor(n, child), nil
	case *planner.AggregateNode:
		return NewAggregateExecutor(n, child), nil
	case *planner.UnwindNode:
		return NewUnwindExecutor(n, child), nil
	case *planner.CursorNode:
		return NewCursorExecutor(n, child), nil
	}
	panic(fmt.Sprintf("unknown plan node %T", node))
}
