package optimizer

import (
	"flag"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"mit.edu/dsg/docdb/indexing"
	"mit.edu/dsg/docdb/planner"
	"mit.edu/dsg/docdb/storage"
)

type Config struct {
	EnableProjectionPushdown  bool `yaml:"enable_projection_pushdown"`
	EnableCoveredProjections  bool `yaml:"enable_covered_projections"`
	AbsorbLeadingSort         bool `yaml:"absorb_leading_sort"`
	InferDependencyProjection bool `yaml:"infer_dependency_projection"`
}

// RegisterFlags registers flags for the optimizer.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("optimizer.", f)
}

// RegisterFlagsWithPrefix registers flags for the optimizer with the given prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.BoolVar(&cfg.EnableProjectionPushdown, prefix+"enable-projection-pushdown", true, "Push a leading $project stage down to the cursor.")
	f.BoolVar(&cfg.EnableCoveredProjections, prefix+"enable-covered-projections", true, "Answer pushed down projections from index keys when an index covers them.")
	f.BoolVar(&cfg.AbsorbLeadingSort, prefix+"absorb-leading-sort", true, "Let the cursor execute a $sort that precedes the pushed down projection.")
	f.BoolVar(&cfg.InferDependencyProjection, prefix+"infer-dependency-projection", true, "Give the cursor a projection of the fields the pipeline reads when no $project is pushed down.")
}

// DefaultConfig returns the flag defaults.
func DefaultConfig() Config {
	var cfg Config
	cfg.RegisterFlags(flag.NewFlagSet("", flag.PanicOnError))
	return cfg
}

// Plan is the result of optimizing one pipeline. The cursor evaluates CursorFilter, then
// CursorSort, then Absorbed; the Remaining stages run over its output.
type Plan struct {
	CursorFilter planner.MatchExpr
	CursorSort   []planner.SortKey
	Absorbed     *AbsorbedProjection
	Remaining    []planner.Stage
	// OptimizedAway is set when no pipeline stage remains and the query runs as a find.
	OptimizedAway bool
}

// Optimizer turns a parsed pipeline into a Plan. It holds no per-query state and may be
// used concurrently.
type Optimizer struct {
	cfg         Config
	eligibility *EligibilityChecker
	coalescer   *Coalescer
	logger      log.Logger
	metrics     *Metrics
}

func New(cfg Config, logger log.Logger, metrics *Metrics) *Optimizer {
	eligibility := NewEligibilityChecker(cfg.AbsorbLeadingSort)
	return &Optimizer{
		cfg:         cfg,
		eligibility: eligibility,
		coalescer:   NewCoalescer(eligibility),
		logger:      logger,
		metrics:     metrics,
	}
}

// Optimize plans stages against a read-only snapshot of the collection's indexes.
func (o *Optimizer) Optimize(stages []planner.Stage, indexes []indexing.KeyPattern) *Plan {
	remaining := append([]planner.Stage(nil), stages...)
	var absorbed *AbsorbedProjection
	prefix := -1
	if o.cfg.EnableProjectionPushdown {
		remaining, absorbed, prefix = o.coalescer.coalesce(stages, indexes)
	}
	if prefix < 0 {
		prefix = o.eligibility.cursorPrefix(remaining)
	}

	plan := &Plan{Absorbed: absorbed}
	var filters []planner.MatchExpr
	for _, s := range remaining[:prefix] {
		switch s := s.(type) {
		case *planner.MatchStage:
			filters = append(filters, s.Filter)
		case *planner.SortStage:
			plan.CursorSort = s.Keys
		}
	}
	plan.CursorFilter = planner.NewConjunction(filters...)
	plan.Remaining = remaining[prefix:]

	if plan.Absorbed == nil && o.cfg.InferDependencyProjection {
		plan.Absorbed = o.inferProjection(plan.Remaining, indexes)
	}
	if plan.Absorbed != nil && !o.cfg.EnableCoveredProjections {
		plan.Absorbed.Covered = false
		plan.Absorbed.CoveringIndexes = nil
	}
	plan.OptimizedAway = len(plan.Remaining) == 0

	o.observe(plan)
	return plan
}

// inferProjection derives an inclusion projection of the fields the stages read. It gives
// up when some stage needs whole documents, or when the pipeline ends before a stage that
// fully determines its output.
func (o *Optimizer) inferProjection(stages []planner.Stage, indexes []indexing.KeyPattern) *AbsorbedProjection {
	deps, ok := pipelineDependencies(stages)
	if !ok || deps.NeedsWholeDocument {
		return nil
	}
	paths := projectablePaths(deps)
	if len(paths) == 0 {
		return nil
	}

	rules := make([]planner.ProjectionRule, 0, len(paths)+1)
	if !deps.NeedsAnyUnder(planner.IDField) {
		rules = append(rules, planner.ProjectionRule{Path: planner.IDField, Rule: planner.Exclude()})
	}
	for _, p := range paths {
		rules = append(rules, planner.ProjectionRule{Path: p, Rule: planner.Include()})
	}
	spec, err := planner.NewProjectionSpec(rules...)
	if err != nil {
		level.Warn(o.logger).Log("msg", "could not build dependency projection", "err", err)
		return nil
	}
	covering := coveringIndexes(spec, indexes)
	return &AbsorbedProjection{Spec: spec, Covered: len(covering) > 0, CoveringIndexes: covering, Inferred: true}
}

// projectablePaths returns the dependency paths cut before their first positional
// component. Query paths like "a.0" address array positions, which an inclusion projection
// of "a.0" would not keep, so the whole of "a" is kept instead.
func projectablePaths(deps *planner.Dependencies) []string {
	cut := planner.NewDependencies()
	for _, p := range deps.Paths() {
		path := storage.MustParsePath(p)
		for i := 1; i < len(path); i++ {
			if storage.IsPositional(path[i]) {
				path = path[:i]
				break
			}
		}
		cut.AddPath(path.String())
	}
	return cut.Paths()
}

// pipelineDependencies collects field dependencies up to the first stage whose output does
// not depend on unlisted input fields. It reports false if there is no such stage.
func pipelineDependencies(stages []planner.Stage) (*planner.Dependencies, bool) {
	deps := planner.NewDependencies()
	for _, s := range stages {
		switch s := s.(type) {
		case *planner.MatchStage:
			s.Filter.AddDependencies(deps)
		case *planner.SortStage:
			for _, k := range s.Keys {
				deps.AddPath(k.Path.String())
			}
		case *planner.LimitStage, *planner.SkipStage:
		case *planner.GroupStage:
			s.Spec.AddDependencies(deps)
			return deps, true
		case *planner.ProjectStage:
			s.Spec.AddDependencies(deps)
			if s.Spec.Mode() == planner.InclusionMode {
				return deps, true
			}
			return deps, false
		case *planner.OtherStage:
			if s.Name != "$unwind" {
				return deps, false
			}
			spec, err := planner.ParseUnwind(s.Spec)
			if err != nil {
				return deps, false
			}
			deps.AddPath(spec.Path.String())
		}
	}
	return deps, false
}

func (o *Optimizer) observe(plan *Plan) {
	o.metrics.passes.Inc()
	if plan.OptimizedAway {
		o.metrics.optimizedAway.Inc()
	}
	if plan.Absorbed == nil {
		level.Debug(o.logger).Log("msg", "no projection absorbed", "remaining_stages", len(plan.Remaining))
		return
	}
	o.metrics.absorbed.WithLabelValues(strconv.FormatBool(plan.Absorbed.Covered), strconv.FormatBool(plan.Absorbed.Inferred)).Inc()
	level.Debug(o.logger).Log(
		"msg", "projection absorbed",
		"projection", plan.Absorbed.Spec,
		"covered", plan.Absorbed.Covered,
		"inferred", plan.Absorbed.Inferred,
		"optimized_away", plan.OptimizedAway,
		"remaining_stages", len(plan.Remaining),
	)
}
