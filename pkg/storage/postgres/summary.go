package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/halldyll/recall-go/pkg/model"
)

// SummaryStore implements storage.SummaryStore.
type SummaryStore struct {
	client *Client
	table  string
}

// Get returns the session summary or nil.
func (s *SummaryStore) Get(ctx context.Context, session model.SessionID) (*model.SessionSummary, error) {
	query := fmt.Sprintf(`SELECT text, turn_count, updated_at FROM %s WHERE session_id = $1`, s.table)

	sum := model.SessionSummary{SessionID: session}
	err := s.client.db.QueryRowContext(ctx, query, session.String()).Scan(&sum.Text, &sum.TurnCount, &sum.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	sum.UpdatedAt = sum.UpdatedAt.UTC()
	return &sum, nil
}

// Put upserts the session summary.
func (s *SummaryStore) Put(ctx context.Context, summary *model.SessionSummary) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (session_id, text, turn_count, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE SET
			text = EXCLUDED.text,
			turn_count = EXCLUDED.turn_count,
			updated_at = EXCLUDED.updated_at
	`, s.table)

	_, err := s.client.db.ExecContext(ctx, query,
		summary.SessionID.String(), summary.Text, summary.TurnCount, summary.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("Put: %w", err)
	}
	return nil
}

// Close closes the shared client.
func (s *SummaryStore) Close() error {
	return s.client.Close()
}
