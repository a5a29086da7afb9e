package postgres

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/halldyll/recall-go/pkg/model"
)

const itemColumns = "id, session_id, kind, content, hash, embedding, salience, source, created_at, last_accessed_at"

// buildWhereClauseWithOffset builds a WHERE clause starting from a specific
// parameter index.
func buildWhereClauseWithOffset(session model.SessionID, startIndex int) (string, []interface{}) {
	if session.IsZero() {
		return "", nil
	}
	return fmt.Sprintf("WHERE session_id = $%d", startIndex), []interface{}{session.String()}
}

// vectorToString converts a vector to PostgreSQL vector format.
func vectorToString(vector []float64) string {
	if len(vector) == 0 {
		return "[]"
	}

	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}

	return "[" + strings.Join(parts, ",") + "]"
}

// parseVectorString parses pgvector's text output.
func parseVectorString(s string) ([]float64, error) {
	// Remove leading and trailing square brackets
	s = strings.Trim(s, "[]")
	if s == "" {
		return []float64{}, nil
	}

	parts := strings.Split(s, ",")
	result := make([]float64, len(parts))

	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		result[i] = val
	}

	return result, nil
}

// scanItems reads rows selected with itemColumns, plus a trailing
// similarity column when hasScore is set.
func scanItems(rows *sql.Rows, hasScore bool) ([]model.RankedMemory, error) {
	var out []model.RankedMemory
	for rows.Next() {
		var item model.MemoryItem
		var id, session, kind, src, embeddingStr string
		var lastAccessed sql.NullTime
		var similarity float64

		dest := []interface{}{&id, &session, &kind, &item.Content, &item.Hash, &embeddingStr,
			&item.Salience, &src, &item.CreatedAt, &lastAccessed}
		if hasScore {
			dest = append(dest, &similarity)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		var err error
		if item.ID, err = model.ParseMemoryID(id); err != nil {
			return nil, err
		}
		if item.SessionID, err = model.ParseSessionID(session); err != nil {
			return nil, err
		}
		if item.Kind, err = model.ParseMemoryKind(kind); err != nil {
			return nil, err
		}
		if item.Embedding, err = parseVectorString(embeddingStr); err != nil {
			return nil, fmt.Errorf("failed to parse embedding: %w", err)
		}
		item.Source = model.Source(src)
		item.CreatedAt = item.CreatedAt.UTC()
		if lastAccessed.Valid {
			item.LastAccessedAt = lastAccessed.Time.UTC()
		}
		out = append(out, model.RankedMemory{Item: &item, Similarity: similarity})
	}
	return out, rows.Err()
}

func itemsOf(ranked []model.RankedMemory) []*model.MemoryItem {
	items := make([]*model.MemoryItem, len(ranked))
	for i := range ranked {
		items[i] = ranked[i].Item
	}
	return items
}
