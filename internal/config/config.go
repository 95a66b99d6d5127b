package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt instructs the generation backend to stay grounded on the context block.
const DefaultSystemPrompt = "You are a professional document assistant. Answer using only the context below. " +
	"Cite sources by file name for every claim; if sources disagree, compare their viewpoints; " +
	"if the context cannot answer the question, say so and explain what is missing.\n\nContext:\n{context}"

// Config holds the docrag configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Cache      CacheConfig      `yaml:"cache"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider            string       `yaml:"provider"`
	APIKey              string       `yaml:"api_key"`
	BaseURL             string       `yaml:"base_url"`
	Model               string       `yaml:"model"`
	Dimensions          int          `yaml:"dimensions"` // 0 = provider default
	BatchSize           int          `yaml:"batch_size"`
	Concurrency         int          `yaml:"concurrency"`
	DocumentInstruction string       `yaml:"document_instruction"`
	QueryInstruction    string       `yaml:"query_instruction"`
	Budget              BudgetConfig `yaml:"budget"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// GenerationConfig holds chat completion backend settings.
type GenerationConfig struct {
	APIKey       string  `yaml:"api_key"`
	BaseURL      string  `yaml:"base_url"`
	Model        string  `yaml:"model"`
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	TimeoutSec   int     `yaml:"timeout_sec"`
	SystemPrompt string  `yaml:"system_prompt"`
}

// IngestConfig holds loader and filter settings.
type IngestConfig struct {
	MinContentChars int      `yaml:"min_content_chars"`
	Workers         int      `yaml:"workers"`
	Extensions      []string `yaml:"extensions"`
	// InitialPath, when set, is ingested at server startup.
	InitialPath string `yaml:"initial_path"`
}

// ChunkingConfig holds chunk geometry.
type ChunkingConfig struct {
	Strategy string `yaml:"strategy"` // window | recursive
	Size     int    `yaml:"size"`
	Overlap  int    `yaml:"overlap"`
}

// RetrievalConfig holds MMR and context assembly settings.
type RetrievalConfig struct {
	K                   int     `yaml:"k"`
	FetchK              int     `yaml:"fetch_k"`
	Lambda              float64 `yaml:"lambda"`
	ContextBudgetTokens int     `yaml:"context_budget_tokens"` // 0 = unlimited
	TokenEstimator      string  `yaml:"token_estimator"`       // rune | tiktoken
	TokenizerModel      string  `yaml:"tokenizer_model"`
	// TokenizerCacheDir holds pre-fetched tiktoken BPE files. Without it the
	// tiktoken estimator downloads them on first use, so offline starts fail.
	TokenizerCacheDir string `yaml:"tokenizer_cache_dir"`
	RebuildPolicy       string  `yaml:"rebuild_policy"` // block | fail_fast
}

// CacheConfig holds the Redis-protocol store backing the embedding cache and budget counters.
type CacheConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	// EmbeddingTTLHours expires cached vectors; 0 keeps them forever.
	EmbeddingTTLHours int `yaml:"embedding_ttl_hours"`
}

// Load reads configuration from a YAML file by environment name (local, docker, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML, expanding ${VAR} references first, then applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	cfg := presets()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// presets seeds fields whose zero value is meaningful, so an explicit 0 in
// YAML survives ApplyDefaults.
func presets() Config {
	return Config{
		Generation: GenerationConfig{Temperature: 0.3},
		Retrieval:  RetrievalConfig{Lambda: 0.5},
	}
}

// Default returns a configuration with every default applied.
func Default() Config {
	cfg := presets()
	cfg.ApplyDefaults()
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	// ingest and generation run inside the request
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 64
	}
	if c.Embedding.Concurrency <= 0 {
		c.Embedding.Concurrency = 4
	}

	if c.Generation.Model == "" {
		c.Generation.Model = "mimo-v2-flash"
	}
	if c.Generation.TimeoutSec <= 0 {
		c.Generation.TimeoutSec = 60
	}
	if c.Generation.SystemPrompt == "" {
		c.Generation.SystemPrompt = DefaultSystemPrompt
	}
	if c.Generation.APIKey == "" {
		c.Generation.APIKey = c.Embedding.APIKey
	}
	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = c.Embedding.BaseURL
	}

	if c.Ingest.MinContentChars <= 0 {
		c.Ingest.MinContentChars = 50
	}
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 4
	}
	if len(c.Ingest.Extensions) == 0 {
		c.Ingest.Extensions = []string{".pdf", ".txt", ".docx", ".md"}
	}

	if c.Chunking.Strategy == "" {
		c.Chunking.Strategy = "window"
	}
	if c.Chunking.Size <= 0 {
		c.Chunking.Size = 600
		if c.Chunking.Overlap == 0 {
			c.Chunking.Overlap = 150
		}
	}

	if c.Retrieval.K <= 0 {
		c.Retrieval.K = 10
	}
	if c.Retrieval.FetchK <= 0 {
		c.Retrieval.FetchK = max(30, c.Retrieval.K)
	}
	if c.Retrieval.TokenEstimator == "" {
		c.Retrieval.TokenEstimator = "rune"
	}
	if c.Retrieval.TokenizerModel == "" {
		c.Retrieval.TokenizerModel = "cl100k_base"
	}
	if c.Retrieval.RebuildPolicy == "" {
		c.Retrieval.RebuildPolicy = "block"
	}

	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 5
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Embedding.Budget.Action {
	case "", "warn", "reject":
	default:
		return fmt.Errorf("embedding.budget.action must be \"warn\" or \"reject\", got %q", c.Embedding.Budget.Action)
	}
	if !strings.Contains(c.Generation.SystemPrompt, "{context}") {
		return fmt.Errorf("generation.system_prompt must contain {context}")
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("generation.temperature must be in [0, 2], got %v", c.Generation.Temperature)
	}
	switch c.Chunking.Strategy {
	case "window", "recursive":
	default:
		return fmt.Errorf("chunking.strategy must be \"window\" or \"recursive\", got %q", c.Chunking.Strategy)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, size), got %d with size %d",
			c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.Retrieval.FetchK < c.Retrieval.K {
		return fmt.Errorf("retrieval.fetch_k (%d) must be >= retrieval.k (%d)", c.Retrieval.FetchK, c.Retrieval.K)
	}
	if c.Retrieval.Lambda < 0 || c.Retrieval.Lambda > 1 {
		return fmt.Errorf("retrieval.lambda must be in [0, 1], got %v", c.Retrieval.Lambda)
	}
	if c.Retrieval.ContextBudgetTokens < 0 {
		return fmt.Errorf("retrieval.context_budget_tokens must be >= 0")
	}
	switch c.Retrieval.TokenEstimator {
	case "rune", "tiktoken":
	default:
		return fmt.Errorf("retrieval.token_estimator must be \"rune\" or \"tiktoken\", got %q", c.Retrieval.TokenEstimator)
	}
	switch c.Retrieval.RebuildPolicy {
	case "block", "fail_fast":
	default:
		return fmt.Errorf("retrieval.rebuild_policy must be \"block\" or \"fail_fast\", got %q", c.Retrieval.RebuildPolicy)
	}
	if c.Cache.Enabled && len(c.Cache.Addrs) == 0 {
		return fmt.Errorf("cache.addrs is required when cache is enabled")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
