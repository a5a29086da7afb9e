package postgres

import (
	"context"
	"fmt"

	"github.com/halldyll/recall-go/pkg/model"
)

// TranscriptStore implements storage.TranscriptStore.
type TranscriptStore struct {
	client *Client
	table  string
}

// Append inserts events in a single transaction.
func (s *TranscriptStore) Append(ctx context.Context, events ...*model.TranscriptEvent) error {
	tx, err := s.client.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`
		INSERT INTO %s (seq, turn_id, session_id, role, content, tool_name, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.table)

	for _, ev := range events {
		if ev.Seq == 0 {
			ev.Seq = s.client.seq.Next()
		}
		_, err := tx.ExecContext(ctx, query,
			ev.Seq, ev.TurnID.String(), ev.SessionID.String(), string(ev.Role),
			ev.Content, ev.ToolName, ev.Timestamp.UTC(),
		)
		if err != nil {
			return fmt.Errorf("Append: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Append: %w", err)
	}
	return nil
}

// Recent returns the last limit events, oldest first.
func (s *TranscriptStore) Recent(ctx context.Context, session model.SessionID, limit int) ([]model.TranscriptEvent, error) {
	query := fmt.Sprintf(`
		SELECT seq, turn_id, role, content, tool_name, ts FROM (
			SELECT id, seq, turn_id, role, content, tool_name, ts
			FROM %s
			WHERE session_id = $1
			ORDER BY ts DESC, seq DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY ts, seq, id
	`, s.table)

	var lim interface{} = limit
	if limit <= 0 {
		lim = nil
	}

	rows, err := s.client.db.QueryContext(ctx, query, session.String(), lim)
	if err != nil {
		return nil, fmt.Errorf("Recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.TranscriptEvent
	for rows.Next() {
		ev := model.TranscriptEvent{SessionID: session}
		var turnID, role string
		if err := rows.Scan(&ev.Seq, &turnID, &role, &ev.Content, &ev.ToolName, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("Recent: %w", err)
		}
		if ev.TurnID, err = model.ParseTurnID(turnID); err != nil {
			return nil, fmt.Errorf("Recent: %w", err)
		}
		if ev.Role, err = model.ParseRole(role); err != nil {
			return nil, fmt.Errorf("Recent: %w", err)
		}
		ev.Timestamp = ev.Timestamp.UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Recent: %w", err)
	}
	return events, nil
}

// CountTurns counts distinct turns in a session.
func (s *TranscriptStore) CountTurns(ctx context.Context, session model.SessionID) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(DISTINCT turn_id) FROM %s WHERE session_id = $1`, s.table)

	var n int64
	if err := s.client.db.QueryRowContext(ctx, query, session.String()).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountTurns: %w", err)
	}
	return n, nil
}

// Close closes the shared client.
func (s *TranscriptStore) Close() error {
	return s.client.Close()
}
