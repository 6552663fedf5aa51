// Package config loads and validates mindgraph configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"mindgraph/internal/paths"
)

// Config represents the complete mindgraph configuration (v2 schema)
type Config struct {
	Version     int    `json:"version" mapstructure:"version"`
	ProjectRoot string `json:"projectRoot" mapstructure:"projectRoot"`

	Storage    StorageConfig    `json:"storage" mapstructure:"storage"`
	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	Query      QueryConfig      `json:"query" mapstructure:"query"`
	Search     SearchConfig     `json:"search" mapstructure:"search"`
	Activation ActivationConfig `json:"activation" mapstructure:"activation"`
	Tasks      TasksConfig      `json:"tasks" mapstructure:"tasks"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`
}

// StorageConfig controls graph persistence and pruning.
type StorageConfig struct {
	// Path overrides the default .mindgraph/graph.json location.
	// Must resolve inside the project root or the OS temp directory.
	Path string `json:"path,omitempty" mapstructure:"path"`
	// Snapshot enables a zstd-compressed copy next to the document.
	Snapshot bool `json:"snapshot" mapstructure:"snapshot"`
	// MaxEdges is the soft edge budget that triggers pruning.
	MaxEdges int `json:"maxEdges" mapstructure:"maxEdges"`
	// PruneFraction caps how much of the weakest edges one prune pass removes.
	PruneFraction float64 `json:"pruneFraction" mapstructure:"pruneFraction"`
	// MetadataHistoryLimit bounds per-node task history kept in metadata.
	MetadataHistoryLimit int `json:"metadataHistoryLimit" mapstructure:"metadataHistoryLimit"`
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	MaxEntries          int     `json:"maxEntries" mapstructure:"maxEntries"`
	MaxMemoryMB         int     `json:"maxMemoryMB" mapstructure:"maxMemoryMB"`
	TTLSeconds          int     `json:"ttlSeconds" mapstructure:"ttlSeconds"`
	SimilarityThreshold float64 `json:"similarityThreshold" mapstructure:"similarityThreshold"`
}

// QueryConfig controls query admission.
type QueryConfig struct {
	MaxLength    int `json:"maxLength" mapstructure:"maxLength"`
	DefaultLimit int `json:"defaultLimit" mapstructure:"defaultLimit"`
}

// SearchConfig controls semantic ranking.
type SearchConfig struct {
	// RecencyHalfLifeDays halves the recency signal per elapsed period.
	RecencyHalfLifeDays float64 `json:"recencyHalfLifeDays" mapstructure:"recencyHalfLifeDays"`
}

// ActivationConfig controls spreading activation. The constants are
// empirically chosen defaults, kept configurable.
type ActivationConfig struct {
	Decay   float64 `json:"decay" mapstructure:"decay"`
	Cutoff  float64 `json:"cutoff" mapstructure:"cutoff"`
	MaxHops int     `json:"maxHops" mapstructure:"maxHops"`
}

// TasksConfig controls the background task runner.
type TasksConfig struct {
	Workers      int `json:"workers" mapstructure:"workers"`
	ChunkSize    int `json:"chunkSize" mapstructure:"chunkSize"`
	MaxRetries   int `json:"maxRetries" mapstructure:"maxRetries"`
	RetryBaseMs  int `json:"retryBaseMs" mapstructure:"retryBaseMs"`
	QueueSize    int `json:"queueSize" mapstructure:"queueSize"`
	StopWaitSecs int `json:"stopWaitSecs" mapstructure:"stopWaitSecs"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// CurrentVersion is the config schema version.
const CurrentVersion = 2

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version:     CurrentVersion,
		ProjectRoot: ".",
		Storage: StorageConfig{
			Snapshot:             true,
			MaxEdges:             200000,
			PruneFraction:        0.10,
			MetadataHistoryLimit: 20,
		},
		Cache: CacheConfig{
			MaxEntries:          500,
			MaxMemoryMB:         64,
			TTLSeconds:          300,
			SimilarityThreshold: 0.8,
		},
		Query: QueryConfig{
			MaxLength:    1000,
			DefaultLimit: 20,
		},
		Search: SearchConfig{
			RecencyHalfLifeDays: 14,
		},
		Activation: ActivationConfig{
			Decay:   0.7,
			Cutoff:  0.1,
			MaxHops: 3,
		},
		Tasks: TasksConfig{
			Workers:      2,
			ChunkSize:    500,
			MaxRetries:   3,
			RetryBaseMs:  100,
			QueueSize:    64,
			StopWaitSecs: 10,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// Load reads configuration from <root>/.mindgraph/config.json. A missing
// file yields the defaults; a malformed file is an error. MINDGRAPH_*
// environment variables override file values.
func Load(root string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(root, paths.StoreDirName))
	v.SetEnvPrefix("MINDGRAPH")
	v.AutomaticEnv()

	cfg := DefaultConfig()
	cfg.ProjectRoot = root

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.ProjectRoot == "" || cfg.ProjectRoot == "." {
		cfg.ProjectRoot = root
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to <root>/.mindgraph/config.json.
func (c *Config) Save(root string) error {
	dir, err := paths.EnsureStoreDir(root)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("cache.similarityThreshold must be in [0,1], got %v", c.Cache.SimilarityThreshold)
	}
	if c.Activation.Decay <= 0 || c.Activation.Decay >= 1 {
		return fmt.Errorf("activation.decay must be in (0,1), got %v", c.Activation.Decay)
	}
	if c.Activation.Cutoff < 0 || c.Activation.Cutoff >= 1 {
		return fmt.Errorf("activation.cutoff must be in [0,1), got %v", c.Activation.Cutoff)
	}
	if c.Storage.PruneFraction <= 0 || c.Storage.PruneFraction > 0.5 {
		return fmt.Errorf("storage.pruneFraction must be in (0,0.5], got %v", c.Storage.PruneFraction)
	}
	if c.Query.MaxLength <= 0 {
		return fmt.Errorf("query.maxLength must be positive, got %d", c.Query.MaxLength)
	}
	return nil
}
