package core_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halldyll/recall-go/pkg/core"
	"github.com/halldyll/recall-go/pkg/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 6, cfg.ShortTerm.Window)
	assert.Equal(t, 256, cfg.ShortTerm.CacheCapacity)
	assert.Equal(t, int64(8), cfg.Summary.IntervalTurns)
	assert.Equal(t, 1200, cfg.Summary.MaxChars)
	assert.Equal(t, 6, cfg.Retrieval.TopK)
	assert.Equal(t, 0.2, cfg.Retrieval.MinSimilarity)
	assert.Equal(t, 0.15, cfg.Scoring.AlphaRecency)
	assert.Equal(t, 0.35, cfg.Scoring.BetaSalience)
	assert.Equal(t, 604800.0, cfg.Scoring.RecencyHalfLifeSeconds)
	assert.Equal(t, core.ExtractorModeHeuristic, cfg.Extractor.Mode)
	assert.Equal(t, 0.92, cfg.Extractor.SemanticDedupeThreshold)
	assert.Equal(t, 768, cfg.Embedding.NDims)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, 3600, cfg.Prompt.MaxChars)
	assert.Equal(t, 1200, cfg.Prompt.MaxMemoryChars)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*core.Config)
	}{
		{"zero window", func(c *core.Config) { c.ShortTerm.Window = 0 }},
		{"zero cache capacity", func(c *core.Config) { c.ShortTerm.CacheCapacity = 0 }},
		{"zero summary interval", func(c *core.Config) { c.Summary.IntervalTurns = 0 }},
		{"zero top_k", func(c *core.Config) { c.Retrieval.TopK = 0 }},
		{"min similarity above one", func(c *core.Config) { c.Retrieval.MinSimilarity = 1.5 }},
		{"negative alpha", func(c *core.Config) { c.Scoring.AlphaRecency = -0.1 }},
		{"alpha plus beta above one", func(c *core.Config) {
			c.Scoring.AlphaRecency = 0.6
			c.Scoring.BetaSalience = 0.5
		}},
		{"zero half-life", func(c *core.Config) { c.Scoring.RecencyHalfLifeSeconds = 0 }},
		{"unknown extractor mode", func(c *core.Config) { c.Extractor.Mode = "model-only" }},
		{"semantic threshold above one", func(c *core.Config) { c.Extractor.SemanticDedupeThreshold = 1.2 }},
		{"zero ndims", func(c *core.Config) { c.Embedding.NDims = 0 }},
		{"zero prompt budget", func(c *core.Config) { c.Prompt.MaxChars = 0 }},
		{"unknown ttl kind", func(c *core.Config) { c.Retention.TTLSecondsByKind = map[string]int64{"mood": 60} }},
		{"non-positive ttl", func(c *core.Config) { c.Retention.TTLSecondsByKind = map[string]int64{"event": 0} }},
		{"bad embedding url", func(c *core.Config) { c.Embedding.BaseURL = "localhost" }},
		{"bad llm url", func(c *core.Config) { c.LLM.BaseURL = "://nope" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := core.DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrInvalidConfig))
		})
	}
}

func TestConfigTTLs(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Retention.TTLSecondsByKind = map[string]int64{"event": 60, "Task": 3600}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, map[model.MemoryKind]time.Duration{
		model.KindEvent: time.Minute,
		model.KindTask:  time.Hour,
	}, cfg.TTLs())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DATABASE_PROVIDER", "postgres")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("POSTGRES_USER", "recall")
	t.Setenv("POSTGRES_DATABASE", "memories")
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_MODEL", "")
	t.Setenv("EMBEDDING_DIMS", "")
	t.Setenv("MEMORY_WINDOW", "10")
	t.Setenv("MEMORY_TOP_K", "")

	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Provider)
	assert.Equal(t, "db.internal", cfg.Storage.Host)
	assert.Equal(t, 6543, cfg.Storage.Port)
	assert.Equal(t, "memories", cfg.Storage.DBName)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-3-5-haiku-latest", cfg.LLM.Model)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, 1536, cfg.Embedding.NDims)
	assert.Equal(t, 10, cfg.ShortTerm.Window)
	assert.Equal(t, 6, cfg.Retrieval.TopK)
}

func TestLoadConfigFromFiles(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "recall.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
		"short_term": {"window": 3},
		"retention": {"ttl_seconds_by_kind": {"event": 86400}}
	}`), 0o600))

	yamlPath := filepath.Join(dir, "recall.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
short_term:
  window: 3
retention:
  ttl_seconds_by_kind:
    event: 86400
`), 0o600))

	for _, load := range []struct {
		name string
		fn   func(string) (*core.Config, error)
		path string
	}{
		{"json", core.LoadConfigFromJSON, jsonPath},
		{"yaml", core.LoadConfigFromYAML, yamlPath},
	} {
		t.Run(load.name, func(t *testing.T) {
			cfg, err := load.fn(load.path)
			require.NoError(t, err)
			require.NoError(t, cfg.Validate())
			assert.Equal(t, 3, cfg.ShortTerm.Window)
			assert.Equal(t, 256, cfg.ShortTerm.CacheCapacity, "unset keys keep defaults")
			assert.Equal(t, int64(86400), cfg.Retention.TTLSecondsByKind["event"])
		})
	}

	_, err := core.LoadConfigFromJSON(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}
