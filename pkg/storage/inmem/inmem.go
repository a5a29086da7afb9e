// Package inmem provides process-local transcript and summary stores.
//
// They are used by tests and by deployments whose vector store has no
// relational side (chromem, OceanBase vector tables).
package inmem

import (
	"context"
	"sort"
	"sync"

	"github.com/halldyll/recall-go/pkg/model"
)

// TranscriptStore keeps transcript events in memory.
type TranscriptStore struct {
	mu       sync.RWMutex
	seq      *model.Sequencer
	sessions map[model.SessionID][]model.TranscriptEvent
}

// NewTranscriptStore creates an empty transcript store.
func NewTranscriptStore() (*TranscriptStore, error) {
	seq, err := model.NewSequencer(0)
	if err != nil {
		return nil, err
	}
	return &TranscriptStore{
		seq:      seq,
		sessions: make(map[model.SessionID][]model.TranscriptEvent),
	}, nil
}

// Append implements storage.TranscriptStore.
func (s *TranscriptStore) Append(ctx context.Context, events ...*model.TranscriptEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range events {
		if ev.Seq == 0 {
			ev.Seq = s.seq.Next()
		}
		s.sessions[ev.SessionID] = append(s.sessions[ev.SessionID], *ev)
	}
	return nil
}

// Recent implements storage.TranscriptStore.
func (s *TranscriptStore) Recent(ctx context.Context, session model.SessionID, limit int) ([]model.TranscriptEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	events := append([]model.TranscriptEvent(nil), s.sessions[session]...)
	s.mu.RUnlock()

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].Seq < events[j].Seq
	})

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// CountTurns implements storage.TranscriptStore.
func (s *TranscriptStore) CountTurns(ctx context.Context, session model.SessionID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := make(map[model.TurnID]struct{})
	for _, ev := range s.sessions[session] {
		turns[ev.TurnID] = struct{}{}
	}
	return int64(len(turns)), nil
}

// Close implements storage.TranscriptStore.
func (s *TranscriptStore) Close() error { return nil }

// SummaryStore keeps one summary per session in memory.
type SummaryStore struct {
	mu        sync.RWMutex
	summaries map[model.SessionID]model.SessionSummary
}

// NewSummaryStore creates an empty summary store.
func NewSummaryStore() *SummaryStore {
	return &SummaryStore{summaries: make(map[model.SessionID]model.SessionSummary)}
}

// Get implements storage.SummaryStore.
func (s *SummaryStore) Get(ctx context.Context, session model.SessionID) (*model.SessionSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sum, ok := s.summaries[session]
	if !ok {
		return nil, nil
	}
	return &sum, nil
}

// Put implements storage.SummaryStore.
func (s *SummaryStore) Put(ctx context.Context, summary *model.SessionSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[summary.SessionID] = *summary
	return nil
}

// Close implements storage.SummaryStore.
func (s *SummaryStore) Close() error { return nil }
