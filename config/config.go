package config

import (
	"bytes"
	"flag"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"mit.edu/dsg/docdb/execution"
	"mit.edu/dsg/docdb/logging"
	"mit.edu/dsg/docdb/optimizer"
)

// Config is the root configuration of a docdb engine.
type Config struct {
	Optimizer optimizer.Config `yaml:"optimizer"`
	Execution execution.Config `yaml:"execution"`
	Log       logging.Config   `yaml:"log"`
	// CatalogDir is where collection and index definitions persist. Empty keeps the catalog
	// in memory.
	CatalogDir string `yaml:"catalog_dir"`
}

// RegisterFlags registers the flags of every component, setting their defaults.
func (c *Config) RegisterFlags(f *flag.FlagSet) {
	c.Optimizer.RegisterFlags(f)
	c.Execution.RegisterFlags(f)
	c.Log.RegisterFlags(f)
	f.StringVar(&c.CatalogDir, "catalog-dir", "", "Directory holding the persisted catalog. Empty keeps the catalog in memory.")
}

// Default returns the configuration with every flag at its default.
func Default() Config {
	var c Config
	c.RegisterFlags(flag.NewFlagSet("", flag.PanicOnError))
	return c
}

// Validate checks every component configuration.
func (c *Config) Validate() error {
	if err := c.Execution.Validate(); err != nil {
		return errors.Wrap(err, "invalid execution config")
	}
	if err := c.Log.Validate(); err != nil {
		return errors.Wrap(err, "invalid log config")
	}
	return nil
}

// Load reads a YAML configuration file over the defaults. Unknown fields are errors.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to open config file")
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes YAML from r over the defaults and validates the result.
func Parse(r io.Reader) (Config, error) {
	c := Default()
	content, err := io.ReadAll(r)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read config")
	}

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "failed to parse config")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
