package covergraph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the CoverGraph engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.covergraph/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "covergraph". The file will be <DBName>.db inside the
	// storage directory (~/.covergraph/ or working dir).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.covergraph/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// Retrieval weights for RRF
	WeightVector float64 `json:"weight_vector" yaml:"weight_vector"`
	WeightFTS    float64 `json:"weight_fts" yaml:"weight_fts"`
	WeightGraph  float64 `json:"weight_graph" yaml:"weight_graph"`

	// MaxResults caps how many fused chunks back an answer.
	MaxResults int `json:"max_results" yaml:"max_results"`

	// Chunking
	MaxChunkTokens int `json:"max_chunk_tokens" yaml:"max_chunk_tokens"`
	ChunkOverlap   int `json:"chunk_overlap" yaml:"chunk_overlap"`

	// Graph building
	SkipGraph        bool `json:"skip_graph" yaml:"skip_graph"`               // Skip entity extraction during ingest
	GraphConcurrency int  `json:"graph_concurrency" yaml:"graph_concurrency"` // Max parallel chunk extractions (default 16)

	// ConfidenceThreshold is the floor under which Query returns
	// ErrLowConfidence alongside the answer.
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`

	// EvolveThreshold is the minimum proposal confidence applied during
	// schema evolution. Bootstrap passes use a looser 0.6.
	EvolveThreshold float64 `json:"evolve_threshold" yaml:"evolve_threshold"`

	// AutomationDefault is the automation threshold for intents without an
	// entry in AutomationThresholds.
	AutomationDefault float64 `json:"automation_default" yaml:"automation_default"`

	// AutomationThresholds overrides the automation threshold per intent.
	AutomationThresholds map[string]float64 `json:"automation_thresholds,omitempty" yaml:"automation_thresholds,omitempty"`

	// EmbeddingDim is the width of the lexical embedding vectors.
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`
}

// DefaultConfig returns a Config with sensible defaults for local use.
// Database is stored in ~/.covergraph/covergraph.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:              "covergraph",
		StorageDir:          "home",
		WeightVector:        1.0,
		WeightFTS:           1.0,
		WeightGraph:         0.5,
		MaxResults:          10,
		MaxChunkTokens:      1024,
		ChunkOverlap:        128,
		ConfidenceThreshold: 0.7,
		EvolveThreshold:     0.7,
		AutomationDefault:   0.8,
		EmbeddingDim:        256,
	}
}

// LoadConfig reads a JSON or YAML config file and applies COVERGRAPH_* env
// overrides on top of the defaults. An empty path loads defaults plus env.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COVERGRAPH_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("COVERGRAPH_DB_NAME"); v != "" {
		cfg.DBName = v
	}
	if v := os.Getenv("COVERGRAPH_STORAGE_DIR"); v != "" {
		cfg.StorageDir = v
	}
	if v := os.Getenv("COVERGRAPH_EMBEDDING_DIM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EmbeddingDim = n
		}
	}
	if v := os.Getenv("COVERGRAPH_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxResults = n
		}
	}
	if v := os.Getenv("COVERGRAPH_SKIP_GRAPH"); v != "" {
		cfg.SkipGraph = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("COVERGRAPH_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ConfidenceThreshold = f
		}
	}
}

// validate rejects configurations the engine cannot run with.
func (c *Config) validate() error {
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("%w: embedding_dim must be positive", ErrInvalidConfig)
	}
	if c.MaxChunkTokens <= 0 {
		return fmt.Errorf("%w: max_chunk_tokens must be positive", ErrInvalidConfig)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.MaxChunkTokens {
		return fmt.Errorf("%w: chunk_overlap must be in [0, max_chunk_tokens)", ErrInvalidConfig)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence_threshold must be in [0,1]", ErrInvalidConfig)
	}
	return nil
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "covergraph"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		dir := filepath.Join(home, ".covergraph")
		return filepath.Join(dir, name+".db")
	}
}
