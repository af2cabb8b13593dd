package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
)

func main() {
	app := kingpin.New("docdb", "Run aggregation pipelines over JSON documents with an in-memory document engine.")
	app.HelpFlag.Short('h')

	opts := &engineOptions{}
	opts.register(app)
	addAggregateCommand(app, opts)
	addExplainCommand(app, opts)

	kingpin.MustParse(app.Parse(os.Args[1:]))
}

func exitWithErr(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
