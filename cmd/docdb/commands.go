package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"mit.edu/dsg/docdb/storage"
)

// aggregateCommand prints the pipeline output, one JSON document per line.
type aggregateCommand struct {
	opts *engineOptions
}

func (cmd *aggregateCommand) run(_ *kingpin.ParseContext) error {
	db, stages, err := cmd.opts.open()
	if err != nil {
		exitWithErr(err)
	}
	docs, err := db.Aggregate(context.Background(), cmd.opts.collection, stages)
	if err != nil {
		exitWithErr(err)
	}
	return writeDocuments(os.Stdout, docs)
}

func writeDocuments(w io.Writer, docs []*storage.Document) error {
	for _, d := range docs {
		if _, err := fmt.Fprintln(w, d.String()); err != nil {
			return err
		}
	}
	return nil
}

func addAggregateCommand(app *kingpin.Application, opts *engineOptions) {
	cmd := &aggregateCommand{opts: opts}
	app.Command("aggregate", "Run the pipeline and print its output.").Action(cmd.run)
}

// explainCommand prints how the pipeline would run without running it.
type explainCommand struct {
	opts *engineOptions
}

func (cmd *explainCommand) run(_ *kingpin.ParseContext) error {
	db, stages, err := cmd.opts.open()
	if err != nil {
		exitWithErr(err)
	}
	explain, err := db.Explain(cmd.opts.collection, stages)
	if err != nil {
		exitWithErr(err)
	}
	_, err = fmt.Fprintln(os.Stdout, explain)
	return err
}

func addExplainCommand(app *kingpin.Application, opts *engineOptions) {
	cmd := &explainCommand{opts: opts}
	app.Command("explain", "Print the optimized plan of the pipeline.").Action(cmd.run)
}
