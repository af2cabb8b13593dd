package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIndexFlag(t *testing.T) {
	tests := []struct {
		value string
		name  string
		spec  string
		fails bool
	}{
		{value: `by_a={"a": 1}`, name: "by_a", spec: `{"a":1}`},
		{value: `{"a": 1, "c.d": -1}`, spec: `{"a":1,"c.d":-1}`},
		{value: `by_a`, fails: true},
		{value: `by_a={"a"`, fails: true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			name, spec, err := parseIndexFlag(tt.value)
			if tt.fails {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.spec, spec.String())
		})
	}
}

func TestEngineOptions(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "docs.ndjson")
	require.NoError(t, os.WriteFile(data, []byte("{\"_id\": 1, \"a\": 2}\n{\"_id\": 2, \"a\": 1}\n"), 0644))
	pipeline := filepath.Join(dir, "pipeline.json")
	require.NoError(t, os.WriteFile(pipeline, []byte(`[{"$sort": {"a": 1}}, {"$project": {"_id": 0, "a": 1}}]`), 0644))
	cfg := filepath.Join(dir, "docdb.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("log:\n  level: error\n"), 0644))

	opts := &engineOptions{
		configFile: cfg,
		data:       data,
		collection: "data",
		indexes:    []string{`{"a": 1}`},
		pipeline:   "@" + pipeline,
	}
	db, stages, err := opts.open()
	require.NoError(t, err)
	require.Len(t, stages, 2)

	docs, err := db.Aggregate(context.Background(), opts.collection, stages)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, writeDocuments(&buf, docs))
	assert.Equal(t, "{\"a\":1}\n{\"a\":2}\n", buf.String())

	explain, err := db.Explain(opts.collection, stages)
	require.NoError(t, err)
	assert.Equal(t, "IXSCAN", explain.AccessPath)
	assert.Equal(t, "a_1", explain.IndexName)
}
