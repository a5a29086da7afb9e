package core

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/halldyll/recall-go/pkg/model"
)

// Extractor modes.
const (
	ExtractorModeHeuristic      = "heuristic"
	ExtractorModeHeuristicModel = "heuristic+model"
)

// Config contains the complete configuration of a memory engine.
//
// Keys mirror the documented option names (short_term.window,
// retrieval.top_k, ...). Start from DefaultConfig and override what you need.
//
// Example:
//
//	cfg := core.DefaultConfig()
//	cfg.Storage.Provider = "sqlite"
//	cfg.Storage.SQLitePath = "./memory.sqlite"
//	cfg.Retention.TTLSecondsByKind = map[string]int64{"event": 86400}
type Config struct {
	ShortTerm   ShortTermConfig   `json:"short_term" yaml:"short_term"`
	Summary     SummaryConfig     `json:"summary" yaml:"summary"`
	Retrieval   RetrievalConfig   `json:"retrieval" yaml:"retrieval"`
	Scoring     ScoringConfig     `json:"scoring" yaml:"scoring"`
	Extractor   ExtractorConfig   `json:"extractor" yaml:"extractor"`
	Storage     StorageConfig     `json:"storage" yaml:"storage"`
	Embedding   EmbeddingConfig   `json:"embedding" yaml:"embedding"`
	LLM         LLMConfig         `json:"llm" yaml:"llm"`
	Prompt      PromptConfig      `json:"prompt" yaml:"prompt"`
	Retention   RetentionConfig   `json:"retention" yaml:"retention"`
	Maintenance MaintenanceConfig `json:"maintenance" yaml:"maintenance"`
}

// ShortTermConfig controls the verbatim recent-dialogue window.
type ShortTermConfig struct {
	// Window is the number of most recent transcript events included.
	Window int `json:"window" yaml:"window"`

	// CacheCapacity bounds the dedupe cache (entries across all sessions).
	CacheCapacity int `json:"cache_capacity" yaml:"cache_capacity"`
}

// SummaryConfig controls rolling summary regeneration.
type SummaryConfig struct {
	// IntervalTurns regenerates the summary every N turns.
	IntervalTurns int64 `json:"interval_turns" yaml:"interval_turns"`

	// MaxChars bounds the stored summary text.
	MaxChars int `json:"max_chars" yaml:"max_chars"`
}

// RetrievalConfig controls vector search.
type RetrievalConfig struct {
	TopK          int     `json:"top_k" yaml:"top_k"`
	MinSimilarity float64 `json:"min_similarity" yaml:"min_similarity"`

	// Scoped restricts search to the caller's session. When false, memories
	// from every session are candidates.
	Scoped bool `json:"scoped" yaml:"scoped"`

	TimeoutSeconds float64 `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// ScoringConfig holds the ranker weights.
//
// The similarity weight is 1 - AlphaRecency - BetaSalience.
type ScoringConfig struct {
	AlphaRecency           float64 `json:"alpha_recency" yaml:"alpha_recency"`
	BetaSalience           float64 `json:"beta_salience" yaml:"beta_salience"`
	RecencyHalfLifeSeconds float64 `json:"recency_half_life_seconds" yaml:"recency_half_life_seconds"`
}

// ExtractorConfig controls candidate extraction.
type ExtractorConfig struct {
	// Mode is "heuristic" or "heuristic+model".
	Mode string `json:"mode" yaml:"mode"`

	LLMEveryNTurns  int64 `json:"llm_every_n_turns" yaml:"llm_every_n_turns"`
	LLMMaxItems     int   `json:"llm_max_items" yaml:"llm_max_items"`
	MinContentChars int   `json:"min_content_chars" yaml:"min_content_chars"`

	// SemanticDedupeThreshold merges a draft into a live memory of the same
	// session whose cosine similarity is at least this value. 0 disables it.
	SemanticDedupeThreshold float64 `json:"semantic_dedupe_threshold" yaml:"semantic_dedupe_threshold"`
}

// StorageConfig selects and configures the durable store.
//
// Supported providers: sqlite, postgres, oceanbase, memory.
type StorageConfig struct {
	Provider string `json:"provider" yaml:"provider"`

	// Driver selects the SQLite driver: "sqlite3" (cgo) or "sqlite" (pure Go).
	Driver     string `json:"driver,omitempty" yaml:"driver,omitempty"`
	SQLitePath string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`

	Host     string `json:"host,omitempty" yaml:"host,omitempty"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	User     string `json:"user,omitempty" yaml:"user,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DBName   string `json:"db_name,omitempty" yaml:"db_name,omitempty"`
	SSLMode  string `json:"ssl_mode,omitempty" yaml:"ssl_mode,omitempty"`

	TranscriptTable string `json:"transcript_table" yaml:"transcript_table"`
	SummaryTable    string `json:"summary_table" yaml:"summary_table"`
	MemoryTable     string `json:"memory_table" yaml:"memory_table"`
}

// EmbeddingConfig configures the embedding backend.
//
// Supported providers: openai, ollama, hashing.
type EmbeddingConfig struct {
	Provider       string  `json:"provider" yaml:"provider"`
	Model          string  `json:"model" yaml:"model"`
	NDims          int     `json:"ndims" yaml:"ndims"`
	BaseURL        string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKey         string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	TimeoutSeconds float64 `json:"timeout_seconds" yaml:"timeout_seconds"`

	// CacheEntries enables an in-process embedding cache when > 0.
	CacheEntries int64 `json:"cache_entries,omitempty" yaml:"cache_entries,omitempty"`
}

// LLMConfig configures the language-model backend used for model-assisted
// extraction and summaries.
//
// Supported providers: openai, anthropic, ollama, none.
type LLMConfig struct {
	Provider       string  `json:"provider" yaml:"provider"`
	Model          string  `json:"model" yaml:"model"`
	BaseURL        string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKey         string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Temperature    float64 `json:"temperature" yaml:"temperature"`
	MaxTokens      int     `json:"max_tokens" yaml:"max_tokens"`
	TimeoutSeconds float64 `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// PromptConfig bounds the assembled context.
type PromptConfig struct {
	MaxChars       int `json:"max_chars" yaml:"max_chars"`
	MaxMemoryChars int `json:"max_memory_chars" yaml:"max_memory_chars"`
}

// RetentionConfig holds per-kind time-to-live values. Kinds not listed never
// expire.
type RetentionConfig struct {
	TTLSecondsByKind map[string]int64 `json:"ttl_seconds_by_kind" yaml:"ttl_seconds_by_kind"`
}

// MaintenanceConfig controls the background expiry sweep.
type MaintenanceConfig struct {
	// SweepSpec is a cron spec such as "@every 1h". Empty disables the sweep.
	SweepSpec string `json:"sweep_spec" yaml:"sweep_spec"`
}

// DefaultConfig returns a configuration with every option set to its
// default value.
func DefaultConfig() *Config {
	return &Config{
		ShortTerm: ShortTermConfig{Window: 6, CacheCapacity: 256},
		Summary:   SummaryConfig{IntervalTurns: 8, MaxChars: 1200},
		Retrieval: RetrievalConfig{
			TopK:           6,
			MinSimilarity:  0.2,
			Scoped:         true,
			TimeoutSeconds: 5,
		},
		Scoring: ScoringConfig{
			AlphaRecency:           0.15,
			BetaSalience:           0.35,
			RecencyHalfLifeSeconds: 604800,
		},
		Extractor: ExtractorConfig{
			Mode:            ExtractorModeHeuristic,
			LLMEveryNTurns:  6,
			LLMMaxItems:     6,
			MinContentChars: 10,

			SemanticDedupeThreshold: 0.92,
		},
		Storage: StorageConfig{
			Provider:        "sqlite",
			Driver:          "sqlite3",
			SQLitePath:      "memory.sqlite",
			TranscriptTable: "memory_transcript",
			SummaryTable:    "memory_summary",
			MemoryTable:     "memory_items",
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			Model:          "nomic-embed-text",
			NDims:          768,
			BaseURL:        "http://localhost:11434",
			TimeoutSeconds: 10,
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			Model:          "llama3.1:8b",
			BaseURL:        "http://localhost:11434",
			Temperature:    0.4,
			MaxTokens:      512,
			TimeoutSeconds: 30,
		},
		Prompt:      PromptConfig{MaxChars: 3600, MaxMemoryChars: 1200},
		Retention:   RetentionConfig{TTLSecondsByKind: map[string]int64{}},
		Maintenance: MaintenanceConfig{SweepSpec: "@every 1h"},
	}
}

// LoadConfigFromEnv loads configuration from environment variables on top of
// DefaultConfig.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Overrides defaults with whatever variables are set
//
// Supported environment variables:
//   - DATABASE_PROVIDER (sqlite, postgres, oceanbase, memory)
//   - SQLITE_PATH, SQLITE_DRIVER
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, POSTGRES_DATABASE, POSTGRES_SSLMODE
//   - OCEANBASE_HOST, OCEANBASE_PORT, OCEANBASE_USER, OCEANBASE_PASSWORD, OCEANBASE_DATABASE
//   - LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_BASE_URL
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL, EMBEDDING_BASE_URL, EMBEDDING_DIMS
//   - MEMORY_WINDOW, MEMORY_TOP_K, MEMORY_EXTRACTOR_MODE, MEMORY_PROMPT_MAX_CHARS
//
// Example:
//
//	config, err := core.LoadConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()
	cfg.Storage.Provider = getEnvOrDefault("DATABASE_PROVIDER", cfg.Storage.Provider)

	switch cfg.Storage.Provider {
	case "sqlite":
		cfg.Storage.SQLitePath = getEnvOrDefault("SQLITE_PATH", cfg.Storage.SQLitePath)
		cfg.Storage.Driver = getEnvOrDefault("SQLITE_DRIVER", cfg.Storage.Driver)
	case "postgres":
		cfg.Storage.Host = getEnvOrDefault("POSTGRES_HOST", "localhost")
		cfg.Storage.Port = getEnvInt("POSTGRES_PORT", 5432)
		cfg.Storage.User = getEnvOrDefault("POSTGRES_USER", "postgres")
		cfg.Storage.Password = os.Getenv("POSTGRES_PASSWORD")
		cfg.Storage.DBName = getEnvOrDefault("POSTGRES_DATABASE", "recall")
		cfg.Storage.SSLMode = getEnvOrDefault("POSTGRES_SSLMODE", "disable")
	case "oceanbase":
		cfg.Storage.Host = getEnvOrDefault("OCEANBASE_HOST", "127.0.0.1")
		cfg.Storage.Port = getEnvInt("OCEANBASE_PORT", 2881)
		cfg.Storage.User = getEnvOrDefault("OCEANBASE_USER", "root@sys")
		cfg.Storage.Password = os.Getenv("OCEANBASE_PASSWORD")
		cfg.Storage.DBName = getEnvOrDefault("OCEANBASE_DATABASE", "recall")
	}

	cfg.LLM.Provider = getEnvOrDefault("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.APIKey = os.Getenv("LLM_API_KEY")
	switch cfg.LLM.Provider {
	case "openai":
		cfg.LLM.Model = "gpt-4o-mini"
		cfg.LLM.BaseURL = ""
	case "anthropic":
		cfg.LLM.Model = "claude-3-5-haiku-latest"
		cfg.LLM.BaseURL = ""
	}
	cfg.LLM.Model = getEnvOrDefault("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.BaseURL = getEnvOrDefault("LLM_BASE_URL", cfg.LLM.BaseURL)

	cfg.Embedding.Provider = getEnvOrDefault("EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.APIKey = os.Getenv("EMBEDDING_API_KEY")
	if cfg.Embedding.Provider == "openai" {
		cfg.Embedding.Model = "text-embedding-ada-002"
		cfg.Embedding.NDims = 1536
		cfg.Embedding.BaseURL = ""
	}
	cfg.Embedding.Model = getEnvOrDefault("EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.BaseURL = getEnvOrDefault("EMBEDDING_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.NDims = getEnvInt("EMBEDDING_DIMS", cfg.Embedding.NDims)

	cfg.ShortTerm.Window = getEnvInt("MEMORY_WINDOW", cfg.ShortTerm.Window)
	cfg.Retrieval.TopK = getEnvInt("MEMORY_TOP_K", cfg.Retrieval.TopK)
	cfg.Extractor.Mode = getEnvOrDefault("MEMORY_EXTRACTOR_MODE", cfg.Extractor.Mode)
	cfg.Prompt.MaxChars = getEnvInt("MEMORY_PROMPT_MAX_CHARS", cfg.Prompt.MaxChars)

	return cfg, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, NewMemoryError("LoadConfigFromEnvFile", ErrInvalidConfig, err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file. Missing keys keep
// their default values.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", ErrInvalidConfig, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// LoadConfigFromYAML loads configuration from a YAML file. Missing keys keep
// their default values.
func LoadConfigFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromYAML", ErrInvalidConfig, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, NewMemoryError("LoadConfigFromYAML", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Validate validates the configuration.
//
// Checks that:
//   - window, cache capacity, summary interval and bounds, top_k and ndims are positive
//   - alpha and beta lie in [0,1] and sum to at most 1
//   - min_similarity lies in [-1,1]
//   - every TTL names a known kind and is positive
//   - the extractor mode and providers are known
//   - base URLs parse
//
// Returns an error matching ErrInvalidConfig on the first violation.
func (c *Config) Validate() error {
	switch {
	case c.ShortTerm.Window <= 0:
		return configError("short_term.window must be > 0")
	case c.ShortTerm.CacheCapacity <= 0:
		return configError("short_term.cache_capacity must be > 0")
	case c.Summary.IntervalTurns <= 0:
		return configError("summary.interval_turns must be > 0")
	case c.Summary.MaxChars <= 0:
		return configError("summary.max_chars must be > 0")
	case c.Retrieval.TopK <= 0:
		return configError("retrieval.top_k must be > 0")
	case c.Retrieval.MinSimilarity < -1 || c.Retrieval.MinSimilarity > 1:
		return configError("retrieval.min_similarity must be within [-1, 1]")
	case c.Scoring.AlphaRecency < 0 || c.Scoring.AlphaRecency > 1:
		return configError("scoring.alpha_recency must be within [0, 1]")
	case c.Scoring.BetaSalience < 0 || c.Scoring.BetaSalience > 1:
		return configError("scoring.beta_salience must be within [0, 1]")
	case c.Scoring.AlphaRecency+c.Scoring.BetaSalience > 1:
		return configError("scoring.alpha_recency + scoring.beta_salience must be <= 1")
	case c.Scoring.RecencyHalfLifeSeconds <= 0:
		return configError("scoring.recency_half_life_seconds must be > 0")
	case c.Extractor.Mode != ExtractorModeHeuristic && c.Extractor.Mode != ExtractorModeHeuristicModel:
		return configError("extractor.mode %q is not supported", c.Extractor.Mode)
	case c.Extractor.LLMEveryNTurns <= 0:
		return configError("extractor.llm_every_n_turns must be > 0")
	case c.Extractor.LLMMaxItems <= 0:
		return configError("extractor.llm_max_items must be > 0")
	case c.Extractor.MinContentChars < 0:
		return configError("extractor.min_content_chars must be >= 0")
	case c.Extractor.SemanticDedupeThreshold < 0 || c.Extractor.SemanticDedupeThreshold > 1:
		return configError("extractor.semantic_dedupe_threshold must be within [0, 1]")
	case c.Embedding.NDims <= 0:
		return configError("embedding.ndims must be > 0")
	case c.Prompt.MaxChars <= 0:
		return configError("prompt.max_chars must be > 0")
	case c.Prompt.MaxMemoryChars <= 0:
		return configError("prompt.max_memory_chars must be > 0")
	}

	for kind, ttl := range c.Retention.TTLSecondsByKind {
		if _, err := model.ParseMemoryKind(kind); err != nil {
			return configError("retention.ttl_seconds_by_kind: %v", err)
		}
		if ttl <= 0 {
			return configError("retention.ttl_seconds_by_kind[%s] must be > 0", kind)
		}
	}

	for name, raw := range map[string]string{
		"embedding.base_url": c.Embedding.BaseURL,
		"llm.base_url":       c.LLM.BaseURL,
	} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			return configError("%s %q is not a valid URL", name, raw)
		}
	}
	return nil
}

// TTLs converts the retention table into typed durations.
func (c *Config) TTLs() map[model.MemoryKind]time.Duration {
	out := make(map[model.MemoryKind]time.Duration, len(c.Retention.TTLSecondsByKind))
	for kind, secs := range c.Retention.TTLSecondsByKind {
		if k, err := model.ParseMemoryKind(kind); err == nil {
			out[k] = time.Duration(secs) * time.Second
		}
	}
	return out
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return defaultValue
	}
	return v
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
