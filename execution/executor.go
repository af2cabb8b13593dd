package execution

import (
	"mit.edu/dsg/docdb/planner"
	"mit.edu/dsg/docdb/storage"
)

// Executor is the interface that all physical execution nodes must implement.
type Executor interface {
	PlanNode() planner.PlanNode

	// Init initializes the executor with a specific execution context.
	// Calling Init again restarts the executor from the beginning.
	Init(ctx *ExecutorContext) error

	// Next retrieves the next document from the executor.
	Next() bool

	// Current returns the document most recently read by Next(). Executors never modify
	// documents they return; a caller that wants to change one copies it first.
	Current() *storage.Document

	// Error returns the last error encountered by the executor, if any.
	Error() error

	// Close cleans up any resources held by the executor.
	Close() error
}

// Collect runs an executor to completion and returns every document it produces.
func Collect(ctx *ExecutorContext, exec Executor) ([]*storage.Document, error) {
	if err := exec.Init(ctx); err != nil {
		_ = exec.Close()
		return nil, err
	}
	var out []*storage.Document
	for exec.Next() {
		out = append(out, exec.Current())
	}
	err := exec.Error()
	if closeErr := exec.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
