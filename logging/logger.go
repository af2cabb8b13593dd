package logging

import (
	"flag"
	"io"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"mit.edu/dsg/docdb/common"
)

const (
	FormatLogfmt = "logfmt"
	FormatJSON   = "json"
)

// Config selects the log level and output format.
type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RegisterFlags registers flags for the logger.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("log.", f)
}

// RegisterFlagsWithPrefix registers flags for the logger with the given prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Level, prefix+"level", "info", "Only log messages with the given severity or above. Valid levels: [debug, info, warn, error]")
	f.StringVar(&cfg.Format, prefix+"format", FormatLogfmt, "Output log messages in the given format. Valid formats: [logfmt, json]")
}

// DefaultConfig returns the flag defaults.
func DefaultConfig() Config {
	var cfg Config
	cfg.RegisterFlags(flag.NewFlagSet("", flag.PanicOnError))
	return cfg
}

func (cfg *Config) Validate() error {
	if _, err := levelOption(cfg.Level); err != nil {
		return err
	}
	switch cfg.Format {
	case FormatLogfmt, FormatJSON:
		return nil
	}
	return common.NewError(common.InvalidConfigError, "unknown log format '%s'", cfg.Format)
}

func levelOption(name string) (level.Option, error) {
	switch strings.ToLower(name) {
	case "debug":
		return level.AllowDebug(), nil
	case "info", "":
		return level.AllowInfo(), nil
	case "warn":
		return level.AllowWarn(), nil
	case "error":
		return level.AllowError(), nil
	}
	return nil, common.NewError(common.InvalidConfigError, "unknown log level '%s'", name)
}

// NewLogger creates a leveled logger writing to w, with timestamp and caller fields.
func NewLogger(cfg Config, w io.Writer) (log.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	allow, _ := levelOption(cfg.Level)

	var logger log.Logger
	if cfg.Format == FormatJSON {
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	}
	logger = level.NewFilter(logger, allow)
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.Caller(3)), nil
}
