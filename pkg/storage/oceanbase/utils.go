package oceanbase

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/halldyll/recall-go/pkg/model"
	"github.com/halldyll/recall-go/pkg/storage"
)

const itemColumns = "id, session_id, kind, document, hash, embedding, salience, source, created_at, last_accessed_at"

// maxRows stands in for "no limit"; MySQL has no LIMIT ALL.
const maxRows = math.MaxInt32

// vectorToString converts a float64 slice to an OceanBase VECTOR format string.
// Example: [0.1, 0.2, 0.3] -> "[0.1,0.2,0.3]"
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

// stringToVector converts a string to a float64 slice.
// Example: "[0.1,0.2,0.3]" -> [0.1, 0.2, 0.3]
func stringToVector(s string) ([]float64, error) {
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

// buildWhereClause builds a WHERE clause.
func buildWhereClause(session model.SessionID) (string, []interface{}) {
	if session.IsZero() {
		return "", []interface{}{}
	}
	return "WHERE session_id = ?", []interface{}{session.String()}
}

// buildSearchQuery builds the nearest-neighbour query. The similarity floor
// is part of the WHERE clause, so LIMIT only counts qualifying rows.
func buildSearchQuery(table, vector string, opts *storage.SearchOptions) (string, []interface{}) {
	args := []interface{}{vector}
	var conds []string
	if !opts.SessionID.IsZero() {
		conds = append(conds, "session_id = ?")
		args = append(args, opts.SessionID.String())
	}
	if opts.MinScore > -1 {
		conds = append(conds, "cosine_distance(embedding, ?) <= ?")
		args = append(args, vector, 1-opts.MinScore)
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = maxRows
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s, cosine_distance(embedding, ?) AS distance
		FROM %s
		%s
		ORDER BY distance ASC
		LIMIT ?
	`, itemColumns, table, where)
	return query, args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []model.MemoryID) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	return args
}

func unixNanoOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// scanItems reads rows selected with itemColumns, plus a trailing distance
// column when hasScore is set. Similarity is 1 - distance.
func scanItems(rows *sql.Rows, hasScore bool) ([]model.RankedMemory, error) {
	var out []model.RankedMemory
	for rows.Next() {
		var item model.MemoryItem
		var id, session, kind, src, embeddingStr string
		var createdAt, lastAccessed int64
		var distance float64

		dest := []interface{}{&id, &session, &kind, &item.Content, &item.Hash, &embeddingStr,
			&item.Salience, &src, &createdAt, &lastAccessed}
		if hasScore {
			dest = append(dest, &distance)
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
		if item.Embedding, err = stringToVector(embeddingStr); err != nil {
			return nil, fmt.Errorf("failed to parse embedding: %w", err)
		}
		item.Source = model.Source(src)
		item.CreatedAt = time.Unix(0, createdAt).UTC()
		if lastAccessed != 0 {
			item.LastAccessedAt = time.Unix(0, lastAccessed).UTC()
		}

		r := model.RankedMemory{Item: &item}
		if hasScore {
			r.Similarity = 1 - distance
		}
		out = append(out, r)
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
