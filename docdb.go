package docdb

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	// Imports all sub-components
	"mit.edu/dsg/docdb/catalog"
	"mit.edu/dsg/docdb/config"
	"mit.edu/dsg/docdb/execution"
	"mit.edu/dsg/docdb/indexing"
	"mit.edu/dsg/docdb/optimizer"
	"mit.edu/dsg/docdb/planner"
	"mit.edu/dsg/docdb/storage"
)

// DB is the top-level container for the database system.
type DB struct {
	cfg    config.Config
	logger log.Logger

	// ddl serializes catalog changes. The catalog itself is not safe for concurrent mutation.
	ddl         sync.Mutex
	Catalog     *catalog.Catalog
	provider    catalog.PersistenceProvider
	Collections *execution.CollectionManager

	optimizer *optimizer.Optimizer
	builder   *execution.Builder
	metrics   *execution.Metrics
}

// Open creates an engine. With cfg.CatalogDir set the catalog is loaded from and saved to
// that directory; documents are always held in memory.
func Open(cfg config.Config, logger log.Logger, reg prometheus.Registerer) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var provider catalog.PersistenceProvider = catalog.NewMemoryCatalogManager()
	if cfg.CatalogDir != "" {
		if err := os.MkdirAll(cfg.CatalogDir, 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create catalog directory")
		}
		provider = catalog.NewDiskCatalogManager(cfg.CatalogDir)
	}
	cat, err := catalog.NewCatalog(provider)
	if err != nil {
		return nil, err
	}

	metrics := execution.NewMetrics(reg)
	db := &DB{
		cfg:         cfg,
		logger:      logger,
		Catalog:     cat,
		provider:    provider,
		Collections: execution.NewCollectionManager(cat),
		optimizer:   optimizer.New(cfg.Optimizer, log.With(logger, "component", "optimizer"), optimizer.NewMetrics(reg)),
		builder:     execution.NewBuilder(log.With(logger, "component", "builder"), metrics),
		metrics:     metrics,
	}
	level.Info(logger).Log("msg", "database opened", "catalog_dir", cfg.CatalogDir, "collections", len(cat.Collections))
	return db, nil
}

// CreateCollection adds an empty collection.
func (db *DB) CreateCollection(name string) error {
	db.ddl.Lock()
	defer db.ddl.Unlock()
	meta, err := db.Catalog.AddCollection(name, db.provider)
	if err != nil {
		return err
	}
	_, err = db.Collections.Register(meta)
	return err
}

// CreateIndex defines an index with the key pattern spec, e.g. {a: 1, "c.d": -1}, and
// builds it over the documents already present. An empty name is replaced by the default
// name derived from the key, which is returned.
func (db *DB) CreateIndex(collection, name string, spec *storage.Document) (string, error) {
	pattern, err := indexing.ParseKeyPattern(name, spec)
	if err != nil {
		return "", err
	}

	db.ddl.Lock()
	defer db.ddl.Unlock()
	coll, err := db.Collections.GetCollection(collection)
	if err != nil {
		return "", err
	}
	idx, err := db.Catalog.AddIndex(name, collection, pattern.Fields, db.provider)
	if err != nil {
		return "", err
	}
	if err := coll.CreateIndex(idx.KeyPattern()); err != nil {
		return "", err
	}
	level.Info(db.logger).Log("msg", "index created", "collection", collection, "index", idx.Name, "key", idx.KeyPattern())
	return idx.Name, nil
}

// DropIndex removes an index definition and its runtime structure.
func (db *DB) DropIndex(collection, name string) error {
	db.ddl.Lock()
	defer db.ddl.Unlock()
	coll, err := db.Collections.GetCollection(collection)
	if err != nil {
		return err
	}
	if _, err := db.Catalog.DropIndex(name, collection, db.provider); err != nil {
		return err
	}
	return coll.DropIndex(name)
}

// Insert stores documents in a collection. It stops at the first invalid document; the
// ones before it stay inserted.
func (db *DB) Insert(collection string, docs ...*storage.Document) error {
	coll, err := db.Collections.GetCollection(collection)
	if err != nil {
		return err
	}
	for i, doc := range docs {
		if _, err := coll.Insert(doc); err != nil {
			return errors.Wrapf(err, "document %d", i)
		}
	}
	return nil
}

func (db *DB) plan(collection string, stages []planner.Stage) (*execution.Collection, *optimizer.Plan, *execution.PhysicalPlan, error) {
	coll, err := db.Collections.GetCollection(collection)
	if err != nil {
		return nil, nil, nil, err
	}
	plan := db.optimizer.Optimize(stages, coll.IndexSnapshot())
	physical, err := db.builder.Build(plan, coll)
	if err != nil {
		return nil, nil, nil, err
	}
	return coll, plan, physical, nil
}

// Aggregate runs a pipeline over a collection and returns its output documents.
func (db *DB) Aggregate(ctx context.Context, collection string, stages []planner.Stage) ([]*storage.Document, error) {
	start := time.Now()
	coll, _, physical, err := db.plan(collection, stages)
	if err != nil {
		return nil, err
	}
	exec, err := db.builder.NewExecutor(physical.Root, coll)
	if err != nil {
		return nil, err
	}
	docs, err := execution.Collect(execution.NewExecutorContext(ctx, db.cfg.Execution, db.metrics), exec)
	if err != nil {
		return nil, err
	}
	level.Info(db.logger).Log(
		"msg", "aggregate",
		"collection", collection,
		"stages", len(stages),
		"access_path", physical.AccessPath,
		"strategy", physical.Cursor.Strategy,
		"returned", len(docs),
		"duration", time.Since(start),
	)
	return docs, nil
}

// AggregateJSON parses a JSON array of stages and runs it like Aggregate.
func (db *DB) AggregateJSON(ctx context.Context, collection string, pipeline []byte) ([]*storage.Document, error) {
	stages, err := planner.ParsePipelineJSON(pipeline)
	if err != nil {
		return nil, err
	}
	return db.Aggregate(ctx, collection, stages)
}

// Explain plans a pipeline without running it.
func (db *DB) Explain(collection string, stages []planner.Stage) (*execution.Explain, error) {
	_, plan, physical, err := db.plan(collection, stages)
	if err != nil {
		return nil, err
	}
	return execution.NewExplain(plan, physical), nil
}
