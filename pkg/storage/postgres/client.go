// Package postgres provides PostgreSQL implementations of the transcript,
// summary and vector stores. Vector search uses the pgvector extension.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/lib/pq"

	"github.com/halldyll/recall-go/pkg/model"
	"github.com/halldyll/recall-go/pkg/storage"
)

// Client is a PostgreSQL + pgvector client shared by the three stores.
type Client struct {
	db        *sql.DB
	cfg       Config
	seq       *model.Sequencer
	closeOnce sync.Once
	closeErr  error
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	SSLMode            string
	TranscriptTable    string
	SummaryTable       string
	MemoryTable        string
	EmbeddingModelDims int
}

// NewClient creates a new PostgreSQL client.
func NewClient(cfg *Config) (*Client, error) {
	c := *cfg
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.TranscriptTable == "" {
		c.TranscriptTable = "memory_transcript"
	}
	if c.SummaryTable == "" {
		c.SummaryTable = "memory_summary"
	}
	if c.MemoryTable == "" {
		c.MemoryTable = "memory_items"
	}
	for _, name := range []string{c.TranscriptTable, c.SummaryTable, c.MemoryTable} {
		if err := storage.CheckIdentifier(name); err != nil {
			return nil, fmt.Errorf("NewPostgresClient: %w", err)
		}
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	seq, err := model.NewInstanceSequencer()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	client := &Client{db: db, cfg: c, seq: seq}

	// Initialize pgvector extension and table structure
	if err := client.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return client, nil
}

// initTables initializes the database tables.
func (c *Client) initTables(ctx context.Context) error {
	// Enable pgvector extension
	if _, err := c.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("initTables: create extension: %w", err)
	}

	stmts := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				seq BIGINT NOT NULL,
				turn_id VARCHAR(26) NOT NULL,
				session_id UUID NOT NULL,
				role VARCHAR(16) NOT NULL,
				content TEXT NOT NULL,
				tool_name VARCHAR(255) NOT NULL DEFAULT '',
				ts TIMESTAMPTZ NOT NULL
			)`, c.cfg.TranscriptTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_session ON %s(session_id, ts, seq, id)`,
			c.cfg.TranscriptTable, c.cfg.TranscriptTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				session_id UUID PRIMARY KEY,
				text TEXT NOT NULL,
				turn_count BIGINT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`, c.cfg.SummaryTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id UUID PRIMARY KEY,
				session_id UUID NOT NULL,
				kind VARCHAR(32) NOT NULL,
				content TEXT NOT NULL,
				hash CHAR(32) NOT NULL,
				embedding vector(%d) NOT NULL,
				salience DOUBLE PRECISION NOT NULL,
				source VARCHAR(16) NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				last_accessed_at TIMESTAMPTZ
			)`, c.cfg.MemoryTable, c.cfg.EmbeddingModelDims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_session_hash ON %s(session_id, hash)`,
			c.cfg.MemoryTable, c.cfg.MemoryTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_kind_created ON %s(kind, created_at)`,
			c.cfg.MemoryTable, c.cfg.MemoryTable),
	}

	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}
	return nil
}

// Transcripts returns the transcript store backed by this client.
func (c *Client) Transcripts() *TranscriptStore {
	return &TranscriptStore{client: c, table: c.cfg.TranscriptTable}
}

// Summaries returns the summary store backed by this client.
func (c *Client) Summaries() *SummaryStore {
	return &SummaryStore{client: c, table: c.cfg.SummaryTable}
}

// Vectors returns the vector store backed by this client.
func (c *Client) Vectors() *VectorStore {
	return &VectorStore{client: c, table: c.cfg.MemoryTable, dimensions: c.cfg.EmbeddingModelDims}
}

// Close closes the database connection once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.db.Close()
	})
	return c.closeErr
}
