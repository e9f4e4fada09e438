package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete ragcore configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Chunk     ChunkConfig     `yaml:"chunk" json:"chunk"`
	ANN       ANNConfig       `yaml:"ann" json:"ann"`
	BM25      BM25Config      `yaml:"bm25" json:"bm25"`
	Retrieve  RetrieveConfig  `yaml:"retrieve" json:"retrieve"`
	Tokenizer TokenizerConfig `yaml:"tokenizer" json:"tokenizer"`
	Buffer    BufferConfig    `yaml:"buffer" json:"buffer"`
	Log       LogConfig       `yaml:"log" json:"log"`
}

// StoreConfig configures the authoritative SQLite store.
type StoreConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" json:"path"`
	// PoolSize is the number of pooled connections (SetMaxOpenConns).
	PoolSize int `yaml:"pool_size" json:"pool_size"`
	// AcquireTimeoutMS bounds how long a caller waits to acquire a pooled
	// connection before the operation fails as a DatabaseError.
	AcquireTimeoutMS int `yaml:"acquire_timeout_ms" json:"acquire_timeout_ms"`
	// CacheSizeKB is the SQLite page cache size in KB; the store passes it
	// negated to the `cache_size` pragma, which SQLite reads as KB.
	CacheSizeKB int `yaml:"cache_size_kb" json:"cache_size_kb"`
}

// ChunkConfig configures the chunkers (markdown and paragraph-first).
type ChunkConfig struct {
	// MaxChars is the target maximum chunk size in characters.
	MaxChars int `yaml:"max_chars" json:"max_chars"`
	// OverlapChars is checked by Validate against MaxChars but is not read
	// by the engine; the paragraph-first chunker's overlap variant ignores
	// its overlap argument.
	OverlapChars int `yaml:"overlap_chars" json:"overlap_chars"`
	// MinChars is not read by the engine or either chunker; no minimum
	// fragment length is applied.
	MinChars int `yaml:"min_chars" json:"min_chars"`
}

// ANNConfig configures the HNSW approximate nearest-neighbor index.
type ANNConfig struct {
	// Dimensions is the embedding vector width; fixed per store lifetime.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// Metric is the distance metric. Only "cosine" is currently supported.
	Metric string `yaml:"metric" json:"metric"`
}

// BM25Config configures the hand-rolled Okapi-BM25 scorer.
type BM25Config struct {
	// K1 controls term-frequency saturation.
	K1 float64 `yaml:"k1" json:"k1"`
	// B controls document-length normalization strength.
	B float64 `yaml:"b" json:"b"`
}

// RetrieveConfig configures the hybrid retriever and rank fusion.
type RetrieveConfig struct {
	// RRFConstant is the reciprocal-rank-fusion smoothing parameter (k).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
	// BM25Weight weights the keyword candidate list in fusion.
	BM25Weight float64 `yaml:"bm25_weight" json:"bm25_weight"`
	// VectorWeight weights the ANN candidate list in fusion.
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`
	// CandidateMultiplier is not passed to the retriever, which requests
	// topK*4 candidates per generator when a filter is active and topK*2
	// otherwise.
	CandidateMultiplier int `yaml:"candidate_multiplier" json:"candidate_multiplier"`
	// DefaultTopK is not passed to the retriever, which applies its own
	// default of 10 when a caller does not specify a result count.
	DefaultTopK int `yaml:"default_top_k" json:"default_top_k"`
}

// TokenizerConfig configures the sub-word tokenizer.
type TokenizerConfig struct {
	// ModelPath is the path to the HuggingFace tokenizer.json artifact.
	ModelPath string `yaml:"model_path" json:"model_path"`
	// CacheSize bounds the LRU cache of recent Encode results.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// BufferConfig configures the recent-insert buffer.
type BufferConfig struct {
	// Threshold is the entry count at which the buffer is merged into the
	// ANN index via a full rebuild.
	Threshold int `yaml:"threshold" json:"threshold"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level         string `yaml:"level" json:"level"`
	FilePath      string `yaml:"file_path" json:"file_path"`
	WriteToStderr bool   `yaml:"write_to_stderr" json:"write_to_stderr"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Store: StoreConfig{
			Path:             "ragcore.db",
			PoolSize:         4,
			AcquireTimeoutMS: 5000,
			CacheSizeKB:      65536, // 64MB, matches cache_size=-65536 pragma
		},
		Chunk: ChunkConfig{
			MaxChars:     1500,
			OverlapChars: 200,
			MinChars:     40,
		},
		ANN: ANNConfig{
			Dimensions: 0, // 0 triggers auto-detect from the first inserted vector
			Metric:     "cosine",
		},
		BM25: BM25Config{
			K1: 1.2,
			B:  0.75,
		},
		Retrieve: RetrieveConfig{
			RRFConstant:         60,
			BM25Weight:          0.5,
			VectorWeight:        0.5,
			CandidateMultiplier: 4,
			DefaultTopK:         10,
		},
		Tokenizer: TokenizerConfig{
			ModelPath: "",
			CacheSize: 256,
		},
		Buffer: BufferConfig{
			Threshold: 100,
		},
		Log: LogConfig{
			Level:         "info",
			FilePath:      DefaultLogPath(),
			WriteToStderr: true,
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file,
// following the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/ragcore/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/ragcore/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ragcore", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "ragcore", "config.yaml")
	}
	return filepath.Join(home, ".config", "ragcore", "config.yaml")
}

// DefaultLogPath returns the default log file path used by Config.
func DefaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ragcore", "logs", "ragcore.log")
	}
	return filepath.Join(home, ".ragcore", "logs", "ragcore.log")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration from the specified directory, applying
// configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/ragcore/config.yaml)
//  3. Project config (.ragcore.yaml in dir)
//  4. Environment variables (RAGCORE_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .ragcore.yaml or .ragcore.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".ragcore.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".ragcore.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}
	if other.Store.PoolSize != 0 {
		c.Store.PoolSize = other.Store.PoolSize
	}
	if other.Store.AcquireTimeoutMS != 0 {
		c.Store.AcquireTimeoutMS = other.Store.AcquireTimeoutMS
	}
	if other.Store.CacheSizeKB != 0 {
		c.Store.CacheSizeKB = other.Store.CacheSizeKB
	}

	if other.Chunk.MaxChars != 0 {
		c.Chunk.MaxChars = other.Chunk.MaxChars
	}
	if other.Chunk.OverlapChars != 0 {
		c.Chunk.OverlapChars = other.Chunk.OverlapChars
	}
	if other.Chunk.MinChars != 0 {
		c.Chunk.MinChars = other.Chunk.MinChars
	}

	if other.ANN.Dimensions != 0 {
		c.ANN.Dimensions = other.ANN.Dimensions
	}
	if other.ANN.Metric != "" {
		c.ANN.Metric = other.ANN.Metric
	}

	if other.BM25.K1 != 0 {
		c.BM25.K1 = other.BM25.K1
	}
	if other.BM25.B != 0 {
		c.BM25.B = other.BM25.B
	}

	if other.Retrieve.RRFConstant != 0 {
		c.Retrieve.RRFConstant = other.Retrieve.RRFConstant
	}
	if other.Retrieve.BM25Weight != 0 {
		c.Retrieve.BM25Weight = other.Retrieve.BM25Weight
	}
	if other.Retrieve.VectorWeight != 0 {
		c.Retrieve.VectorWeight = other.Retrieve.VectorWeight
	}
	if other.Retrieve.CandidateMultiplier != 0 {
		c.Retrieve.CandidateMultiplier = other.Retrieve.CandidateMultiplier
	}
	if other.Retrieve.DefaultTopK != 0 {
		c.Retrieve.DefaultTopK = other.Retrieve.DefaultTopK
	}

	if other.Tokenizer.ModelPath != "" {
		c.Tokenizer.ModelPath = other.Tokenizer.ModelPath
	}
	if other.Tokenizer.CacheSize != 0 {
		c.Tokenizer.CacheSize = other.Tokenizer.CacheSize
	}

	if other.Buffer.Threshold != 0 {
		c.Buffer.Threshold = other.Buffer.Threshold
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.FilePath != "" {
		c.Log.FilePath = other.Log.FilePath
	}
}

// applyEnvOverrides applies RAGCORE_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RAGCORE_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("RAGCORE_BM25_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Retrieve.BM25Weight = w
		}
	}
	if v := os.Getenv("RAGCORE_VECTOR_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Retrieve.VectorWeight = w
		}
	}
	if v := os.Getenv("RAGCORE_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Retrieve.RRFConstant = k
		}
	}
	if v := os.Getenv("RAGCORE_TOKENIZER_MODEL_PATH"); v != "" {
		c.Tokenizer.ModelPath = v
	}
	if v := os.Getenv("RAGCORE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// parseFloat64 parses a string to float64.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Retrieve.BM25Weight < 0 || c.Retrieve.BM25Weight > 1 {
		return fmt.Errorf("retrieve.bm25_weight must be between 0 and 1, got %f", c.Retrieve.BM25Weight)
	}
	if c.Retrieve.VectorWeight < 0 || c.Retrieve.VectorWeight > 1 {
		return fmt.Errorf("retrieve.vector_weight must be between 0 and 1, got %f", c.Retrieve.VectorWeight)
	}
	sum := c.Retrieve.BM25Weight + c.Retrieve.VectorWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("retrieve.bm25_weight + retrieve.vector_weight must equal 1.0, got %.2f", sum)
	}
	if c.Retrieve.RRFConstant <= 0 {
		return fmt.Errorf("retrieve.rrf_constant must be positive, got %d", c.Retrieve.RRFConstant)
	}
	if c.Chunk.MaxChars <= 0 {
		return fmt.Errorf("chunk.max_chars must be positive, got %d", c.Chunk.MaxChars)
	}
	if c.Chunk.OverlapChars < 0 || c.Chunk.OverlapChars >= c.Chunk.MaxChars {
		return fmt.Errorf("chunk.overlap_chars must be non-negative and less than max_chars, got %d", c.Chunk.OverlapChars)
	}
	if c.BM25.K1 <= 0 {
		return fmt.Errorf("bm25.k1 must be positive, got %f", c.BM25.K1)
	}
	if c.BM25.B < 0 || c.BM25.B > 1 {
		return fmt.Errorf("bm25.b must be between 0 and 1, got %f", c.BM25.B)
	}
	if c.ANN.Metric != "cosine" {
		return fmt.Errorf("ann.metric must be 'cosine', got %s", c.ANN.Metric)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Log.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user configuration file. Returns nil config and
// nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}
