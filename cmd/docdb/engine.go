package main

import (
	"os"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"mit.edu/dsg/docdb"
	"mit.edu/dsg/docdb/config"
	"mit.edu/dsg/docdb/logging"
	"mit.edu/dsg/docdb/planner"
	"mit.edu/dsg/docdb/storage"
)

// engineOptions are the flags shared by every command: they describe the collection a
// pipeline runs over.
type engineOptions struct {
	configFile string
	data       string
	collection string
	indexes    []string
	pipeline   string
	logLevel   string
}

func (o *engineOptions) register(app *kingpin.Application) {
	app.Flag("config.file", "YAML configuration file.").StringVar(&o.configFile)
	app.Flag("data", "File of documents, as a JSON array or one JSON document per line.").ExistingFileVar(&o.data)
	app.Flag("collection", "Name of the collection the documents are loaded into.").Default("data").StringVar(&o.collection)
	app.Flag("index", "Index to create before running, as name=<key pattern JSON> or just the key pattern. Repeatable.").StringsVar(&o.indexes)
	app.Flag("pipeline", "Pipeline as a JSON array of stages, or @file to read it from a file.").Required().StringVar(&o.pipeline)
	app.Flag("log.level", "Overrides the configured log level.").StringVar(&o.logLevel)
}

// parseIndexFlag splits an --index value into its name and key pattern. The name is empty
// when the value is only a key pattern.
func parseIndexFlag(value string) (string, *storage.Document, error) {
	name, spec := "", value
	if !strings.HasPrefix(strings.TrimSpace(value), "{") {
		var ok bool
		name, spec, ok = strings.Cut(value, "=")
		if !ok {
			return "", nil, errors.Errorf("index %q: expected name=<key pattern>", value)
		}
	}
	doc, err := storage.ParseDocument([]byte(spec))
	if err != nil {
		return "", nil, errors.Wrapf(err, "index %q", value)
	}
	return name, doc, nil
}

func readArgument(value string) ([]byte, error) {
	if path, ok := strings.CutPrefix(value, "@"); ok {
		b, err := os.ReadFile(path)
		return b, errors.Wrap(err, "failed to read pipeline file")
	}
	return []byte(value), nil
}

// open loads the configuration and the documents and creates the indexes.
func (o *engineOptions) open() (*docdb.DB, []planner.Stage, error) {
	cfg := config.Default()
	if o.configFile != "" {
		var err error
		if cfg, err = config.Load(o.configFile); err != nil {
			return nil, nil, err
		}
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	logger, err := logging.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	logger = log.With(logger, "collection", o.collection)

	db, err := docdb.Open(cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return nil, nil, err
	}
	if err := db.CreateCollection(o.collection); err != nil {
		return nil, nil, err
	}
	if o.data != "" {
		content, err := os.ReadFile(o.data)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to read data file")
		}
		docs, err := storage.ParseDocuments(content)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to parse %s", o.data)
		}
		if err := db.Insert(o.collection, docs...); err != nil {
			return nil, nil, err
		}
	}
	for _, value := range o.indexes {
		name, spec, err := parseIndexFlag(value)
		if err != nil {
			return nil, nil, err
		}
		if _, err := db.CreateIndex(o.collection, name, spec); err != nil {
			return nil, nil, err
		}
	}

	pipeline, err := readArgument(o.pipeline)
	if err != nil {
		return nil, nil, err
	}
	stages, err := planner.ParsePipelineJSON(pipeline)
	if err != nil {
		return nil, nil, err
	}
	return db, stages, nil
}
