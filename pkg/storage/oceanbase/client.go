// Package oceanbase provides OceanBase implementations of the transcript,
// summary and vector stores.
//
// OceanBase speaks the MySQL protocol and adds a native VECTOR column type
// with cosine_distance, so similarity search runs in the database.
package oceanbase

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/halldyll/recall-go/pkg/model"
	"github.com/halldyll/recall-go/pkg/storage"
)

// Client is an OceanBase client implementing storage.VectorStore. The
// transcript and summary stores share its connection pool.
type Client struct {
	db             *sql.DB
	config         *Config
	collectionName string
	seq            *model.Sequencer

	closeOnce sync.Once
	closeErr  error
}

// Config contains OceanBase configuration.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	CollectionName     string
	TranscriptTable    string
	SummaryTable       string
	EmbeddingModelDims int

	// HNSW, when set, creates an HNSW vector index on first open.
	HNSW *HNSWParams
}

// HNSWParams configures the HNSW vector index.
type HNSWParams struct {
	M              int
	EfConstruction int
}

// NewClient creates a new OceanBase client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.CollectionName == "" {
		cfg.CollectionName = "memory_items"
	}
	if cfg.TranscriptTable == "" {
		cfg.TranscriptTable = "memory_transcript"
	}
	if cfg.SummaryTable == "" {
		cfg.SummaryTable = "memory_summary"
	}
	for _, name := range []string{cfg.CollectionName, cfg.TranscriptTable, cfg.SummaryTable} {
		if err := storage.CheckIdentifier(name); err != nil {
			return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
	}

	seq, err := model.NewInstanceSequencer()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
	}

	client := &Client{
		db:             db,
		config:         cfg,
		collectionName: cfg.CollectionName,
		seq:            seq,
	}

	// Initialize table structure
	if err := client.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	if cfg.HNSW != nil {
		if err := client.CreateIndex(context.Background(), *cfg.HNSW); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return client, nil
}

// initTables initializes the database tables.
func (c *Client) initTables(ctx context.Context) error {
	transcript := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			seq BIGINT NOT NULL,
			turn_id VARCHAR(26) NOT NULL,
			session_id VARCHAR(36) NOT NULL,
			role VARCHAR(16) NOT NULL,
			content LONGTEXT NOT NULL,
			tool_name VARCHAR(255) NOT NULL DEFAULT '',
			ts BIGINT NOT NULL,
			INDEX idx_session_ts (session_id, ts, seq, id)
		)
	`, c.config.TranscriptTable)

	summary := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			session_id VARCHAR(36) PRIMARY KEY,
			text LONGTEXT NOT NULL,
			turn_count BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)
	`, c.config.SummaryTable)

	items := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			session_id VARCHAR(36) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			document LONGTEXT NOT NULL,
			hash VARCHAR(32) NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			salience DOUBLE NOT NULL,
			source VARCHAR(16) NOT NULL,
			created_at BIGINT NOT NULL,
			last_accessed_at BIGINT NOT NULL DEFAULT 0,
			INDEX idx_session_hash (session_id, hash),
			INDEX idx_kind_created (kind, created_at)
		)
	`, c.collectionName, c.config.EmbeddingModelDims)

	for _, stmt := range []string{transcript, summary, items} {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}
	return nil
}

// Transcripts returns the transcript store backed by this client.
func (c *Client) Transcripts() *TranscriptStore {
	return &TranscriptStore{client: c, table: c.config.TranscriptTable}
}

// Summaries returns the summary store backed by this client.
func (c *Client) Summaries() *SummaryStore {
	return &SummaryStore{client: c, table: c.config.SummaryTable}
}

// CreateIndex creates an HNSW vector index using cosine distance.
func (c *Client) CreateIndex(ctx context.Context, params HNSWParams) error {
	if params.M <= 0 {
		params.M = 16
	}
	if params.EfConstruction <= 0 {
		params.EfConstruction = 200
	}
	query := fmt.Sprintf(`
		CREATE VECTOR INDEX idx_%s_embedding ON %s (embedding) WITH (
			distance = cosine,
			type = hnsw,
			lib = vsag,
			m = %d,
			ef_construction = %d
		)`,
		c.collectionName, c.collectionName, params.M, params.EfConstruction,
	)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("CreateIndex: %w", err)
	}
	return nil
}

// Insert inserts a memory item.
func (c *Client) Insert(ctx context.Context, item *model.MemoryItem) error {
	if err := item.Validate(c.config.EmbeddingModelDims, 0); err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.collectionName, itemColumns)

	_, err := c.db.ExecContext(ctx, query,
		item.ID.String(),
		item.SessionID.String(),
		string(item.Kind),
		item.Content,
		item.Hash,
		vectorToString(item.Embedding),
		item.Salience,
		string(item.Source),
		item.CreatedAt.UnixNano(),
		unixNanoOrZero(item.LastAccessedAt),
	)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}
	return nil
}

// Search performs vector search with cosine_distance.
func (c *Client) Search(ctx context.Context, query []float64, opts *storage.SearchOptions) ([]model.RankedMemory, error) {
	if len(query) != c.config.EmbeddingModelDims {
		return nil, fmt.Errorf("Search: got %d, want %d: %w", len(query), c.config.EmbeddingModelDims, model.ErrDimensionMismatch)
	}
	sqlQuery, args := buildSearchQuery(c.collectionName, vectorToString(query), opts)
	rows, err := c.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ranked, err := scanItems(rows, true)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	return ranked, nil
}

// Delete removes items by id.
func (c *Client) Delete(ctx context.Context, ids ...model.MemoryID) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id IN (%s)`, c.collectionName, placeholders(len(ids)))
	if _, err := c.db.ExecContext(ctx, query, idArgs(ids)...); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// FindByHash returns the session's item with the given content hash.
func (c *Client) FindByHash(ctx context.Context, session model.SessionID, hash string) (*model.MemoryItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE session_id = ? AND hash = ? LIMIT 1`, itemColumns, c.collectionName)
	rows, err := c.db.QueryContext(ctx, query, session.String(), hash)
	if err != nil {
		return nil, fmt.Errorf("FindByHash: %w", err)
	}
	defer func() { _ = rows.Close() }()

	found, err := scanItems(rows, false)
	if err != nil {
		return nil, fmt.Errorf("FindByHash: %w", err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return found[0].Item, nil
}

// Touch records an access time on the given items.
func (c *Client) Touch(ctx context.Context, at time.Time, ids ...model.MemoryID) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`UPDATE %s SET last_accessed_at = ? WHERE id IN (%s)`, c.collectionName, placeholders(len(ids)))
	args := append([]interface{}{at.UnixNano()}, idArgs(ids)...)
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("Touch: %w", err)
	}
	return nil
}

// ListOlderThan returns items of a kind created before cutoff.
func (c *Client) ListOlderThan(ctx context.Context, kind model.MemoryKind, cutoff time.Time) ([]*model.MemoryItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE kind = ? AND created_at < ?`, itemColumns, c.collectionName)
	rows, err := c.db.QueryContext(ctx, query, string(kind), cutoff.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("ListOlderThan: %w", err)
	}
	defer func() { _ = rows.Close() }()

	found, err := scanItems(rows, false)
	if err != nil {
		return nil, fmt.Errorf("ListOlderThan: %w", err)
	}
	return itemsOf(found), nil
}

// GetAll retrieves items newest first with optional pagination.
func (c *Client) GetAll(ctx context.Context, opts *storage.GetAllOptions) ([]*model.MemoryItem, error) {
	if opts == nil {
		opts = &storage.GetAllOptions{}
	}
	whereClause, args := buildWhereClause(opts.SessionID)

	limit := opts.Limit
	if limit <= 0 {
		limit = maxRows
	}
	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		itemColumns, c.collectionName, whereClause)
	args = append(args, limit, opts.Offset)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}
	defer func() { _ = rows.Close() }()

	found, err := scanItems(rows, false)
	if err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}
	return itemsOf(found), nil
}

// Close closes the database connection once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.db.Close()
	})
	return c.closeErr
}
