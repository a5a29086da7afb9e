package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/halldyll/recall-go/pkg/model"
	"github.com/halldyll/recall-go/pkg/storage"
)

// VectorStore implements storage.VectorStore on pgvector.
type VectorStore struct {
	client     *Client
	table      string
	dimensions int
}

// Insert inserts a memory item.
func (s *VectorStore) Insert(ctx context.Context, item *model.MemoryItem) error {
	if err := item.Validate(s.dimensions, 0); err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, s.table, itemColumns)

	var lastAccessed interface{}
	if !item.LastAccessedAt.IsZero() {
		lastAccessed = item.LastAccessedAt.UTC()
	}

	// Convert vector to PostgreSQL vector format: "[0.1,0.2,0.3,...]"
	_, err := s.client.db.ExecContext(ctx, query,
		item.ID.String(),
		item.SessionID.String(),
		string(item.Kind),
		item.Content,
		item.Hash,
		vectorToString(item.Embedding),
		item.Salience,
		string(item.Source),
		item.CreatedAt.UTC(),
		lastAccessed,
	)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}
	return nil
}

// Search performs vector search using pgvector's cosine similarity.
func (s *VectorStore) Search(ctx context.Context, query []float64, opts *storage.SearchOptions) ([]model.RankedMemory, error) {
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("Search: got %d, want %d: %w", len(query), s.dimensions, model.ErrDimensionMismatch)
	}

	// $1 is the query vector, $2 the minimum score.
	whereClause, filterArgs := buildWhereClauseWithOffset(opts.SessionID, 3)
	if whereClause == "" {
		whereClause = "WHERE 1 - (embedding <=> $1) >= $2"
	} else {
		whereClause += " AND 1 - (embedding <=> $1) >= $2"
	}

	limit := interface{}(nil)
	if opts.Limit > 0 {
		limit = opts.Limit
	}

	// Use pgvector's <=> operator (cosine distance, 1 - cosine similarity)
	sqlQuery := fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> $1) AS similarity
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT $%d
	`, itemColumns, s.table, whereClause, len(filterArgs)+3)

	allArgs := []interface{}{vectorToString(query), opts.MinScore}
	allArgs = append(allArgs, filterArgs...)
	allArgs = append(allArgs, limit)

	rows, err := s.client.db.QueryContext(ctx, sqlQuery, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results, err := scanItems(rows, true)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	return results, nil
}

// Delete removes items by id.
func (s *VectorStore) Delete(ctx context.Context, ids ...model.MemoryID) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.table)
	if _, err := s.client.db.ExecContext(ctx, query, pq.Array(idStrings(ids))); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// FindByHash returns the session's item with the given content hash.
func (s *VectorStore) FindByHash(ctx context.Context, session model.SessionID, hash string) (*model.MemoryItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE session_id = $1 AND hash = $2 LIMIT 1`, itemColumns, s.table)
	rows, err := s.client.db.QueryContext(ctx, query, session.String(), hash)
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
func (s *VectorStore) Touch(ctx context.Context, at time.Time, ids ...model.MemoryID) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`UPDATE %s SET last_accessed_at = $1 WHERE id = ANY($2)`, s.table)
	if _, err := s.client.db.ExecContext(ctx, query, at.UTC(), pq.Array(idStrings(ids))); err != nil {
		return fmt.Errorf("Touch: %w", err)
	}
	return nil
}

// ListOlderThan returns items of a kind created before cutoff.
func (s *VectorStore) ListOlderThan(ctx context.Context, kind model.MemoryKind, cutoff time.Time) ([]*model.MemoryItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE kind = $1 AND created_at < $2`, itemColumns, s.table)
	rows, err := s.client.db.QueryContext(ctx, query, string(kind), cutoff.UTC())
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
func (s *VectorStore) GetAll(ctx context.Context, opts *storage.GetAllOptions) ([]*model.MemoryItem, error) {
	if opts == nil {
		opts = &storage.GetAllOptions{}
	}
	whereClause, args := buildWhereClauseWithOffset(opts.SessionID, 1)

	var limit interface{}
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		itemColumns, s.table, whereClause, len(args)+1, len(args)+2)
	args = append(args, limit, opts.Offset)

	rows, err := s.client.db.QueryContext(ctx, query, args...)
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

// Close closes the shared client.
func (s *VectorStore) Close() error {
	return s.client.Close()
}

func idStrings(ids []model.MemoryID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
