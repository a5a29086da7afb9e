package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/halldyll/recall-go/pkg/model"
	"github.com/halldyll/recall-go/pkg/storage"
)

// VectorStore implements storage.VectorStore.
type VectorStore struct {
	client     *Client
	table      string
	dimensions int
}

// Insert inserts a new memory item into the database.
//
// The embedding vector is stored as a JSON string in a TEXT field.
//
// Parameters:
//   - ctx: Context for cancellation
//   - item: The memory item to insert (must have ID and Embedding set)
//
// Returns an error if validation, serialization or insertion fails.
func (s *VectorStore) Insert(ctx context.Context, item *model.MemoryItem) error {
	if err := item.Validate(s.dimensions, 0); err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	embeddingJSON, err := json.Marshal(item.Embedding)
	if err != nil {
		return fmt.Errorf("Insert: failed to marshal embedding: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table, itemColumns)

	_, err = s.client.db.ExecContext(ctx, query,
		item.ID.String(),
		item.SessionID.String(),
		string(item.Kind),
		item.Content,
		item.Hash,
		string(embeddingJSON),
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

// Search performs vector similarity search using in-memory cosine similarity.
//
// SQLite has no vector index, so every candidate row in scope is loaded and
// scored. Suitable for the small per-session corpora of a local agent.
func (s *VectorStore) Search(ctx context.Context, query []float64, opts *storage.SearchOptions) ([]model.RankedMemory, error) {
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("Search: got %d, want %d: %w", len(query), s.dimensions, model.ErrDimensionMismatch)
	}

	where, args := buildWhereClause(opts.SessionID)
	rows, err := s.client.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s %s`, itemColumns, s.table, where), args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items, err := scanItems(rows)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	results := make([]model.RankedMemory, 0, len(items))
	for _, item := range items {
		sim := storage.CosineSimilarity(query, item.Embedding)
		if sim < opts.MinScore {
			continue
		}
		results = append(results, model.RankedMemory{Item: item, Similarity: sim})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Delete removes items by id.
func (s *VectorStore) Delete(ctx context.Context, ids ...model.MemoryID) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id IN (%s)`, s.table, placeholders(len(ids)))
	if _, err := s.client.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// FindByHash returns the session's item with the given content hash.
func (s *VectorStore) FindByHash(ctx context.Context, session model.SessionID, hash string) (*model.MemoryItem, error) {
	where, args := buildWhereClause(session, "hash = ?")
	args = append(args, hash)
	rows, err := s.client.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s %s LIMIT 1`, itemColumns, s.table, where), args...)
	if err != nil {
		return nil, fmt.Errorf("FindByHash: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items, err := scanItems(rows)
	if err != nil {
		return nil, fmt.Errorf("FindByHash: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// Touch records an access time on the given items.
func (s *VectorStore) Touch(ctx context.Context, at time.Time, ids ...model.MemoryID) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, at.UnixNano())
	for _, id := range ids {
		args = append(args, id.String())
	}
	query := fmt.Sprintf(`UPDATE %s SET last_accessed_at = ? WHERE id IN (%s)`, s.table, placeholders(len(ids)))
	if _, err := s.client.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("Touch: %w", err)
	}
	return nil
}

// ListOlderThan returns items of a kind created before cutoff.
func (s *VectorStore) ListOlderThan(ctx context.Context, kind model.MemoryKind, cutoff time.Time) ([]*model.MemoryItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE kind = ? AND created_at < ?`, itemColumns, s.table)
	rows, err := s.client.db.QueryContext(ctx, query, string(kind), cutoff.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("ListOlderThan: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items, err := scanItems(rows)
	if err != nil {
		return nil, fmt.Errorf("ListOlderThan: %w", err)
	}
	return items, nil
}

// GetAll retrieves items newest first with optional pagination.
func (s *VectorStore) GetAll(ctx context.Context, opts *storage.GetAllOptions) ([]*model.MemoryItem, error) {
	if opts == nil {
		opts = &storage.GetAllOptions{}
	}
	where, args := buildWhereClause(opts.SessionID)
	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY created_at DESC, id`, itemColumns, s.table, where)

	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.client.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items, err := scanItems(rows)
	if err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}
	return items, nil
}

// Close closes the shared client.
func (s *VectorStore) Close() error {
	return s.client.Close()
}
