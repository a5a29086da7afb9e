// Package sqlite provides SQLite implementations of the transcript, summary
// and vector stores.
//
// SQLite is a lightweight, file-based database suitable for local agents.
// Vectors are stored as JSON strings in TEXT fields, and similarity search
// uses in-memory cosine similarity calculation. Timestamps are stored as
// Unix nanoseconds so that both supported drivers read them identically.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/halldyll/recall-go/pkg/model"
	"github.com/halldyll/recall-go/pkg/storage"
)

// Supported drivers.
const (
	// DriverCGO is github.com/mattn/go-sqlite3.
	DriverCGO = "sqlite3"

	// DriverPureGo is modernc.org/sqlite.
	DriverPureGo = "sqlite"
)

// Client owns the SQLite connection shared by the three stores.
type Client struct {
	db        *sql.DB
	cfg       Config
	seq       *model.Sequencer
	closeOnce sync.Once
	closeErr  error
}

// Config contains configuration for opening a SQLite database.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// Driver is DriverCGO (default) or DriverPureGo.
	Driver string

	TranscriptTable string
	SummaryTable    string
	MemoryTable     string

	// EmbeddingModelDims is the dimension of embedding vectors.
	EmbeddingModelDims int
}

// NewClient opens (creating if needed) the database and its tables.
//
// Parameters:
//   - cfg: Configuration containing database path, driver, table names and embedding dimensions
//
// Returns:
//   - *Client: The SQLite client instance
//   - error: Error if database connection or table creation fails
func NewClient(cfg *Config) (*Client, error) {
	c := *cfg
	if c.Driver == "" {
		c.Driver = DriverCGO
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
			return nil, fmt.Errorf("NewSQLiteClient: %w", err)
		}
	}

	dbDir := filepath.Dir(c.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
		}
	}

	var dsn string
	switch c.Driver {
	case DriverCGO:
		dsn = c.DBPath + "?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000"
	case DriverPureGo:
		dsn = c.DBPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	default:
		return nil, fmt.Errorf("NewSQLiteClient: unsupported driver %q", c.Driver)
	}

	db, err := sql.Open(c.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	seq, err := model.NewInstanceSequencer()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	client := &Client{db: db, cfg: c, seq: seq}
	if err := client.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return client, nil
}

// initTables initializes the database table structure.
func (c *Client) initTables(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				seq INTEGER NOT NULL,
				turn_id TEXT NOT NULL,
				session_id TEXT NOT NULL,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				tool_name TEXT NOT NULL DEFAULT '',
				ts INTEGER NOT NULL
			)`, c.cfg.TranscriptTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_session ON %s(session_id, ts, seq, id)`,
			c.cfg.TranscriptTable, c.cfg.TranscriptTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				session_id TEXT PRIMARY KEY,
				text TEXT NOT NULL,
				turn_count INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`, c.cfg.SummaryTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				content TEXT NOT NULL,
				hash TEXT NOT NULL,
				embedding TEXT NOT NULL,
				salience REAL NOT NULL,
				source TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				last_accessed_at INTEGER NOT NULL DEFAULT 0
			)`, c.cfg.MemoryTable),
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

// Close closes the database connection. It is safe to call more than once,
// so each store may close the shared client.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.db.Close()
	})
	return c.closeErr
}
