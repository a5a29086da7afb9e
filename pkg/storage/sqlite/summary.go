package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/halldyll/recall-go/pkg/model"
)

// SummaryStore implements storage.SummaryStore.
type SummaryStore struct {
	client *Client
	table  string
}

// Get returns the session summary or nil.
func (s *SummaryStore) Get(ctx context.Context, session model.SessionID) (*model.SessionSummary, error) {
	query := fmt.Sprintf(`SELECT text, turn_count, updated_at FROM %s WHERE session_id = ?`, s.table)

	sum := model.SessionSummary{SessionID: session}
	var updated int64
	err := s.client.db.QueryRowContext(ctx, query, session.String()).Scan(&sum.Text, &sum.TurnCount, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	sum.UpdatedAt = time.Unix(0, updated).UTC()
	return &sum, nil
}

// Put upserts the session summary.
func (s *SummaryStore) Put(ctx context.Context, summary *model.SessionSummary) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (session_id, text, turn_count, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			text = excluded.text,
			turn_count = excluded.turn_count,
			updated_at = excluded.updated_at
	`, s.table)

	_, err := s.client.db.ExecContext(ctx, query,
		summary.SessionID.String(),
		summary.Text,
		summary.TurnCount,
		summary.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("Put: %w", err)
	}
	return nil
}

// Close closes the shared client.
func (s *SummaryStore) Close() error {
	return s.client.Close()
}
