package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/halldyll/recall-go/pkg/model"
)

const itemColumns = "id, session_id, kind, content, hash, embedding, salience, source, created_at, last_accessed_at"

// buildWhereClause builds a WHERE clause from the optional session filter
// and any extra conditions.
func buildWhereClause(session model.SessionID, extra ...string) (string, []interface{}) {
	conditions := []string{}
	args := []interface{}{}

	if !session.IsZero() {
		conditions = append(conditions, "session_id = ?")
		args = append(args, session.String())
	}
	conditions = append(conditions, extra...)

	if len(conditions) == 0 {
		return "", args
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

// scanItems reads memory item rows selected with itemColumns.
func scanItems(rows *sql.Rows) ([]*model.MemoryItem, error) {
	var items []*model.MemoryItem
	for rows.Next() {
		var item model.MemoryItem
		var id, session, kind, src, embeddingJSON string
		var createdAt, lastAccessed int64
		if err := rows.Scan(&id, &session, &kind, &item.Content, &item.Hash, &embeddingJSON,
			&item.Salience, &src, &createdAt, &lastAccessed); err != nil {
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
		if err := json.Unmarshal([]byte(embeddingJSON), &item.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
		}
		item.Source = model.Source(src)
		item.CreatedAt = time.Unix(0, createdAt).UTC()
		if lastAccessed != 0 {
			item.LastAccessedAt = time.Unix(0, lastAccessed).UTC()
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func unixNanoOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
