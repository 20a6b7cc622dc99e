// Package config loads project settings from .strata/config.yaml,
// falling back to defaults when the file is absent.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the complete project configuration.
type Config struct {
	Index     IndexConfig     `yaml:"index" mapstructure:"index"`
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Query     QueryConfig     `yaml:"query" mapstructure:"query"`
	Watch     WatchConfig     `yaml:"watch" mapstructure:"watch"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// IndexConfig controls scanning and extraction.
type IndexConfig struct {
	// Workers is the extraction parallelism; 0 means one per CPU.
	Workers int `yaml:"workers" mapstructure:"workers"`
	// Exclude lists gitignore-style patterns skipped in addition to the
	// built-in directory skip list.
	Exclude []string `yaml:"exclude" mapstructure:"exclude"`
	// MaxFileSizeKB skips source files above this size. Generated
	// bundles and minified assets parse slowly and embed poorly; 0
	// disables the cap.
	MaxFileSizeKB int `yaml:"maxFileSizeKb" mapstructure:"maxFileSizeKb"`
}

// EmbeddingConfig selects the embedding backend for the semantic index.
type EmbeddingConfig struct {
	// Provider is "hash" (offline, default), "openai" (any compatible
	// endpoint), or "off".
	Provider string `yaml:"provider" mapstructure:"provider"`
	BaseURL  string `yaml:"baseUrl" mapstructure:"baseUrl"`
	Model    string `yaml:"model" mapstructure:"model"`
	// APIKeyEnv names the environment variable holding the key; the key
	// itself never lives in the config file.
	APIKeyEnv string `yaml:"apiKeyEnv" mapstructure:"apiKeyEnv"`
	// Dim sizes hash-provider vectors.
	Dim int `yaml:"dim" mapstructure:"dim"`
}

// QueryConfig controls planning and ranking.
type QueryConfig struct {
	Limit          int     `yaml:"limit" mapstructure:"limit"`
	MinScore       float64 `yaml:"minScore" mapstructure:"minScore"`
	TimeoutMs      int     `yaml:"timeoutMs" mapstructure:"timeoutMs"`
	GraphWeight    float64 `yaml:"graphWeight" mapstructure:"graphWeight"`
	SemanticWeight float64 `yaml:"semanticWeight" mapstructure:"semanticWeight"`
}

// WatchConfig controls the file watcher.
type WatchConfig struct {
	DebounceMs int `yaml:"debounceMs" mapstructure:"debounceMs"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" mapstructure:"level"`
	// Format is text or json.
	Format string `yaml:"format" mapstructure:"format"`
}

// Default returns the configuration used when no file exists. The
// hash embedding provider keeps indexing fully offline out of the box.
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			Workers:       0,
			Exclude:       []string{},
			MaxFileSizeKB: 1024,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			Dim:       256,
		},
		Query: QueryConfig{
			Limit:          10,
			MinScore:       0.25,
			TimeoutMs:      5000,
			GraphWeight:    0.5,
			SemanticWeight: 0.5,
		},
		Watch: WatchConfig{
			DebounceMs: 300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Database file names inside the index directory.
const (
	GraphDB   = "graph.db"
	VectorsDB = "vectors.db"
)

// Dir returns the project's index directory.
func Dir(root string) string { return filepath.Join(root, ".strata") }

// GraphPath returns the knowledge graph database path.
func GraphPath(root string) string { return filepath.Join(Dir(root), GraphDB) }

// VectorsPath returns the semantic index database path.
func VectorsPath(root string) string { return filepath.Join(Dir(root), VectorsDB) }

// Load reads .strata/config.yaml under root. A missing file yields the
// defaults; a malformed or invalid file is an error.
func Load(root string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(Dir(root))

	cfg := Default()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, &Error{Field: "file", Message: err.Error()}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, &Error{Field: "file", Message: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to .strata/config.yaml, creating the
// directory if needed.
func (c *Config) Save(root string) error {
	if err := os.MkdirAll(Dir(root), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(Dir(root), "config.yaml"), data, 0o644)
}

// Validate checks field ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "hash", "openai", "off":
	default:
		return &Error{Field: "embedding.provider", Message: "must be hash, openai or off"}
	}
	if c.Query.Limit <= 0 {
		return &Error{Field: "query.limit", Message: "must be positive"}
	}
	if c.Query.GraphWeight < 0 || c.Query.SemanticWeight < 0 {
		return &Error{Field: "query", Message: "weights must not be negative"}
	}
	if c.Query.GraphWeight == 0 && c.Query.SemanticWeight == 0 {
		return &Error{Field: "query", Message: "at least one weight must be positive"}
	}
	if c.Index.MaxFileSizeKB < 0 {
		return &Error{Field: "index.maxFileSizeKb", Message: "must not be negative"}
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return &Error{Field: "logging.level", Message: "must be debug, info, warn or error"}
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return &Error{Field: "logging.format", Message: "must be text or json"}
	}
	return nil
}

// Error describes an invalid configuration field.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
