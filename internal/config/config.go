// Package config defines the configuration model for the audience service and
// CLI. Files are YAML (JSON is accepted as well, being a YAML subset) and are
// decoded onto Default(), so a file only needs the keys it changes.
//
// Example:
//
//	job: web
//	upload:
//	  max_rows: 500
//	  vocabulary: customer
//	storage:
//	  kind: sqlite
//	  dsn: file:audience.db
//	metrics:
//	  backend: prometheus
//	  pushgateway_url: http://pushgateway:9091
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"audience/internal/parser"
	"audience/internal/schema"
	"audience/internal/upload"
)

// EnvPath names the environment variable holding the default config file.
const EnvPath = "AUDIENCE_CONFIG"

// Config is the top-level configuration object.
type Config struct {
	// Job labels metrics and log lines.
	Job     string  `yaml:"job"`
	Upload  Upload  `yaml:"upload"`
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
	Metrics Metrics `yaml:"metrics"`
	Log     Log     `yaml:"log"`
}

// Upload configures validation of uploaded files.
type Upload struct {
	MaxRows int `yaml:"max_rows"`
	// MaxBytes caps payload size; 0 disables the cap.
	MaxBytes int64 `yaml:"max_bytes"`
	// Vocabulary names a built-in required column set ("customer", "legacy").
	Vocabulary string `yaml:"vocabulary"`
	// RequiredColumns, when set, replaces the vocabulary.
	RequiredColumns []string `yaml:"required_columns"`
	// Delimiter is a single-character CSV delimiter.
	Delimiter string `yaml:"delimiter"`
	TrimSpace bool   `yaml:"trim_space"`
	// LazyQuotes accepts stray double quotes in CSV cells. On by default.
	LazyQuotes bool `yaml:"lazy_quotes"`
}

// Server configures the HTTP API.
type Server struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// MaxConcurrent bounds uploads parsed at the same time.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// Storage selects where accepted uploads are persisted. An empty Kind
// disables persistence.
type Storage struct {
	Kind string `yaml:"kind"`
	DSN  string `yaml:"dsn"`
	// Table holds one row per data row; upload metadata goes to "uploads".
	Table           string `yaml:"table"`
	BatchSize       int    `yaml:"batch_size"`
	AutoCreateTable bool   `yaml:"auto_create_table"`
}

// Metrics selects the metrics backend: "", "none", "prometheus" or "datadog".
type Metrics struct {
	Backend        string `yaml:"backend"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	DatadogAddr    string `yaml:"datadog_addr"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Job: "audience",
		Upload: Upload{
			MaxRows:    upload.DefaultMaxRows,
			Vocabulary: schema.VocabularyCustomer,
			Delimiter:  ",",
			LazyQuotes: true,
		},
		Server: Server{
			Addr:          ":8080",
			MaxConcurrent: 4,
		},
		Storage: Storage{
			Table:     "upload_rows",
			BatchSize: 500,
		},
		Log: Log{Level: "info"},
	}
}

// Parse decodes data onto Default(). Unknown keys are an error.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault loads path, or the file named by $AUDIENCE_CONFIG when path is
// empty, or returns Default() when neither is set.
func LoadDefault(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// ColumnSet resolves the required columns.
func (u Upload) ColumnSet() (schema.ColumnSet, error) {
	if len(u.RequiredColumns) > 0 {
		return schema.NewColumnSet(u.RequiredColumns...)
	}
	return schema.ByName(u.Vocabulary)
}

// ParserOptions returns the decoding options.
func (u Upload) ParserOptions() parser.Options {
	opt := parser.Options{TrimSpace: u.TrimSpace, LazyQuotes: u.LazyQuotes}
	if r := []rune(u.Delimiter); len(r) > 0 {
		opt.Comma = r[0]
	}
	return opt
}

// UploadOptions builds the options for upload.Validate.
func (c Config) UploadOptions(log *zap.Logger) (upload.Options, error) {
	cols, err := c.Upload.ColumnSet()
	if err != nil {
		return upload.Options{}, fmt.Errorf("config: upload: %w", err)
	}
	return upload.Options{
		MaxRows:  c.Upload.MaxRows,
		MaxBytes: c.Upload.MaxBytes,
		Required: cols,
		Parser:   c.Upload.ParserOptions(),
		Logger:   log,
		Job:      c.Job,
	}, nil
}
