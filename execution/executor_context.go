package execution

import (
	"context"
	"flag"

	"mit.edu/dsg/docdb/common"
)

type Config struct {
	// MaxSortDocuments bounds the documents a blocking stage ($sort, $group, top-n) may
	// buffer. Zero disables the check.
	MaxSortDocuments          int `yaml:"max_sort_documents"`
	CancellationCheckInterval int `yaml:"cancellation_check_interval"`
}

// RegisterFlags registers flags for query execution.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("execution.", f)
}

// RegisterFlagsWithPrefix registers flags for query execution with the given prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.MaxSortDocuments, prefix+"max-sort-documents", 100000, "Maximum number of documents a blocking stage may hold in memory. 0 to disable.")
	f.IntVar(&cfg.CancellationCheckInterval, prefix+"cancellation-check-interval", 128, "Number of documents read between checks for query cancellation.")
}

// DefaultConfig returns the flag defaults.
func DefaultConfig() Config {
	var cfg Config
	cfg.RegisterFlags(flag.NewFlagSet("", flag.PanicOnError))
	return cfg
}

func (cfg *Config) Validate() error {
	if cfg.MaxSortDocuments < 0 {
		return common.NewError(common.InvalidConfigError, "max_sort_documents must not be negative")
	}
	if cfg.CancellationCheckInterval < 1 {
		return common.NewError(common.InvalidConfigError, "cancellation_check_interval must be positive")
	}
	return nil
}

// ExecutorContext holds all the state and resources required for running one query.
// It is passed to every Executor in the tree through Init and is not shared between queries.
type ExecutorContext struct {
	ctx     context.Context
	cfg     Config
	metrics *Metrics

	polled int
}

func NewExecutorContext(ctx context.Context, cfg Config, metrics *Metrics) *ExecutorContext {
	return &ExecutorContext{
		ctx:     ctx,
		cfg:     cfg,
		metrics: metrics,
	}
}

func (c *ExecutorContext) Context() context.Context {
	return c.ctx
}

// checkCancelled is called by leaf executors for every document or key they read.
func (c *ExecutorContext) checkCancelled() error {
	c.polled++
	if c.cfg.CancellationCheckInterval > 1 && c.polled%c.cfg.CancellationCheckInterval != 0 {
		return nil
	}
	return c.ctx.Err()
}

// checkBuffered fails once a blocking stage holds more than the configured number of documents.
func (c *ExecutorContext) checkBuffered(stage string, n int) error {
	if c.cfg.MaxSortDocuments > 0 && n > c.cfg.MaxSortDocuments {
		return common.NewError(common.ResourceLimitError,
			"%s exceeded the memory limit of %d documents", stage, c.cfg.MaxSortDocuments)
	}
	return nil
}
