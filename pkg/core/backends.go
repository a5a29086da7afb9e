package core

import (
	"errors"
	"fmt"

	"github.com/halldyll/recall-go/pkg/embedder"
	"github.com/halldyll/recall-go/pkg/embedder/cached"
	"github.com/halldyll/recall-go/pkg/embedder/hashing"
	ollamaEmbedder "github.com/halldyll/recall-go/pkg/embedder/ollama"
	openaiEmbedder "github.com/halldyll/recall-go/pkg/embedder/openai"
	"github.com/halldyll/recall-go/pkg/llm"
	anthropicLLM "github.com/halldyll/recall-go/pkg/llm/anthropic"
	ollamaLLM "github.com/halldyll/recall-go/pkg/llm/ollama"
	openaiLLM "github.com/halldyll/recall-go/pkg/llm/openai"
	chromemStore "github.com/halldyll/recall-go/pkg/storage/chromem"
	"github.com/halldyll/recall-go/pkg/storage/inmem"
	"github.com/halldyll/recall-go/pkg/storage/oceanbase"
	postgresStore "github.com/halldyll/recall-go/pkg/storage/postgres"
	sqliteStore "github.com/halldyll/recall-go/pkg/storage/sqlite"
)

// NewEngineFromConfig builds the backends named by cfg and creates an
// engine over them.
//
// Storage providers:
//   - sqlite, postgres, oceanbase: every store in one database
//   - memory: everything in process (chromem vectors)
//
// Embedding providers are openai, ollama and hashing; embedding.cache_entries
// wraps any of them in an in-process cache. LLM providers are openai,
// anthropic, ollama and none.
//
// Example:
//
//	cfg := core.DefaultConfig()
//	cfg.Storage.Provider = "memory"
//	cfg.Embedding.Provider = "hashing"
//	cfg.LLM.Provider = "none"
//	engine, err := core.NewEngineFromConfig(cfg)
func NewEngineFromConfig(cfg *Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, NewMemoryError("NewEngineFromConfig", ErrInvalidConfig, errors.New("nil config"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var b Backends
	fail := func(err error) (*Engine, error) {
		closeBackends(b)
		return nil, err
	}

	var err error
	if err = initStorage(cfg, &b); err != nil {
		return fail(err)
	}
	if b.Embedder, err = initEmbedder(cfg.Embedding); err != nil {
		return fail(err)
	}
	if b.LLM, err = initLLM(cfg.LLM); err != nil {
		return fail(err)
	}

	engine, err := NewEngine(cfg, b, opts...)
	if err != nil {
		return fail(err)
	}
	return engine, nil
}

// initStorage opens the stores for cfg.Storage.
func initStorage(cfg *Config, b *Backends) error {
	sc := cfg.Storage
	switch sc.Provider {
	case "sqlite":
		client, err := sqliteStore.NewClient(&sqliteStore.Config{
			DBPath:             sc.SQLitePath,
			Driver:             sc.Driver,
			TranscriptTable:    sc.TranscriptTable,
			SummaryTable:       sc.SummaryTable,
			MemoryTable:        sc.MemoryTable,
			EmbeddingModelDims: cfg.Embedding.NDims,
		})
		if err != nil {
			return NewMemoryError("initStorage", ErrStorage, err)
		}
		b.Transcripts, b.Summaries, b.Vectors = client.Transcripts(), client.Summaries(), client.Vectors()
	case "postgres":
		client, err := postgresStore.NewClient(&postgresStore.Config{
			Host:               sc.Host,
			Port:               sc.Port,
			User:               sc.User,
			Password:           sc.Password,
			DBName:             sc.DBName,
			SSLMode:            sc.SSLMode,
			TranscriptTable:    sc.TranscriptTable,
			SummaryTable:       sc.SummaryTable,
			MemoryTable:        sc.MemoryTable,
			EmbeddingModelDims: cfg.Embedding.NDims,
		})
		if err != nil {
			return NewMemoryError("initStorage", ErrStorage, err)
		}
		b.Transcripts, b.Summaries, b.Vectors = client.Transcripts(), client.Summaries(), client.Vectors()
	case "oceanbase":
		client, err := oceanbase.NewClient(&oceanbase.Config{
			Host:               sc.Host,
			Port:               sc.Port,
			User:               sc.User,
			Password:           sc.Password,
			DBName:             sc.DBName,
			CollectionName:     sc.MemoryTable,
			TranscriptTable:    sc.TranscriptTable,
			SummaryTable:       sc.SummaryTable,
			EmbeddingModelDims: cfg.Embedding.NDims,
		})
		if err != nil {
			return NewMemoryError("initStorage", ErrStorage, err)
		}
		b.Transcripts, b.Summaries, b.Vectors = client.Transcripts(), client.Summaries(), client
	case "memory":
		b.Vectors = chromemStore.New(&chromemStore.Config{EmbeddingModelDims: cfg.Embedding.NDims})
		return initLocalLogs(b)
	default:
		return NewMemoryError("initStorage", ErrInvalidConfig,
			fmt.Errorf("storage.provider %q is not supported", sc.Provider))
	}
	return nil
}

func initLocalLogs(b *Backends) error {
	transcripts, err := inmem.NewTranscriptStore()
	if err != nil {
		return NewMemoryError("initStorage", ErrStorage, err)
	}
	b.Transcripts = transcripts
	b.Summaries = inmem.NewSummaryStore()
	return nil
}

// initEmbedder initializes the embedding provider.
func initEmbedder(cfg EmbeddingConfig) (embedder.Provider, error) {
	var (
		p   embedder.Provider
		err error
	)
	switch cfg.Provider {
	case "openai":
		p, err = openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.NDims,
		})
	case "ollama":
		p, err = ollamaEmbedder.NewClient(&ollamaEmbedder.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.NDims,
			Timeout:    seconds(cfg.TimeoutSeconds),
		})
	case "hashing":
		p = hashing.New(&hashing.Config{Dimensions: cfg.NDims})
	default:
		return nil, NewMemoryError("initEmbedder", ErrInvalidConfig,
			fmt.Errorf("embedding.provider %q is not supported", cfg.Provider))
	}
	if err != nil {
		return nil, NewMemoryError("initEmbedder", ErrInvalidConfig, err)
	}

	if cfg.CacheEntries > 0 {
		c, err := cached.New(p, cfg.CacheEntries)
		if err != nil {
			_ = p.Close()
			return nil, NewMemoryError("initEmbedder", ErrInvalidConfig, err)
		}
		p = c
	}
	return p, nil
}

// initLLM initializes the LLM provider. "none" and "" return nil.
func initLLM(cfg LLMConfig) (llm.Provider, error) {
	var (
		p   llm.Provider
		err error
	)
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		p, err = openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "anthropic":
		p, err = anthropicLLM.NewClient(&anthropicLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "ollama":
		p, err = ollamaLLM.NewClient(&ollamaLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: seconds(cfg.TimeoutSeconds),
		})
	default:
		return nil, NewMemoryError("initLLM", ErrInvalidConfig,
			fmt.Errorf("llm.provider %q is not supported", cfg.Provider))
	}
	if err != nil {
		return nil, NewMemoryError("initLLM", ErrInvalidConfig, err)
	}
	return p, nil
}

func closeBackends(b Backends) {
	if b.Transcripts != nil {
		_ = b.Transcripts.Close()
	}
	if b.Summaries != nil {
		_ = b.Summaries.Close()
	}
	if b.Vectors != nil {
		_ = b.Vectors.Close()
	}
	if b.Embedder != nil {
		_ = b.Embedder.Close()
	}
	if b.LLM != nil {
		_ = b.LLM.Close()
	}
}
