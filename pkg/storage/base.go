// Package storage provides the interfaces for durable memory storage.
//
// Three logical stores back the engine: an append-only transcript log, one
// rolling summary per session, and memory items with their vectors. Each
// implementation owns its own synchronization so that calls for different
// sessions never block each other.
package storage

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/halldyll/recall-go/pkg/model"
)

// TranscriptStore is an append-only per-session log of turn events.
type TranscriptStore interface {
	// Append persists events in order. Events with a zero Seq are assigned
	// the next sequence number.
	Append(ctx context.Context, events ...*model.TranscriptEvent) error

	// Recent returns the last limit events of a session in chronological
	// order (timestamp, then insertion sequence).
	Recent(ctx context.Context, session model.SessionID, limit int) ([]model.TranscriptEvent, error)

	// CountTurns returns the number of distinct turns recorded for a session.
	CountTurns(ctx context.Context, session model.SessionID) (int64, error)

	// Close closes the store and releases resources.
	Close() error
}

// SummaryStore holds one rolling summary per session.
type SummaryStore interface {
	// Get returns the session summary, or nil when none exists yet.
	Get(ctx context.Context, session model.SessionID) (*model.SessionSummary, error)

	// Put creates or overwrites the session summary.
	Put(ctx context.Context, summary *model.SessionSummary) error

	// Close closes the store and releases resources.
	Close() error
}

// VectorStore persists memory items with their embeddings.
//
// All storage implementations (SQLite, PostgreSQL, OceanBase, chromem) must
// implement this interface.
type VectorStore interface {
	// Insert persists an item. Items whose embedding dimension differs from
	// the store's are rejected with model.ErrDimensionMismatch.
	Insert(ctx context.Context, item *model.MemoryItem) error

	// Search performs vector similarity search.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - query: Query embedding vector
	//   - opts: Search options (SessionID, Limit, MinScore)
	//
	// Returns at most opts.Limit items with Similarity set, highest first.
	// Items below opts.MinScore are excluded.
	Search(ctx context.Context, query []float64, opts *SearchOptions) ([]model.RankedMemory, error)

	// Delete removes items by id. Unknown ids are ignored.
	Delete(ctx context.Context, ids ...model.MemoryID) error

	// FindByHash returns the session's item with this content hash, or nil.
	FindByHash(ctx context.Context, session model.SessionID, hash string) (*model.MemoryItem, error)

	// Touch sets last_accessed_at on the given items.
	Touch(ctx context.Context, at time.Time, ids ...model.MemoryID) error

	// ListOlderThan returns items of kind created strictly before cutoff.
	ListOlderThan(ctx context.Context, kind model.MemoryKind, cutoff time.Time) ([]*model.MemoryItem, error)

	// GetAll retrieves items with optional filtering and pagination, newest
	// first.
	GetAll(ctx context.Context, opts *GetAllOptions) ([]*model.MemoryItem, error)

	// Close closes the store and releases resources.
	Close() error
}

// SearchOptions contains options for search operations.
type SearchOptions struct {
	// SessionID restricts results to one session. The zero value searches
	// every session.
	SessionID model.SessionID

	// Limit sets the maximum number of results to return.
	Limit int

	// MinScore sets the minimum cosine similarity for results.
	MinScore float64
}

// GetAllOptions contains options for GetAll operations.
type GetAllOptions struct {
	// SessionID filters results to one session. The zero value lists all.
	SessionID model.SessionID

	// Limit sets the maximum number of results to return (0 = no limit).
	Limit int

	// Offset sets the number of results to skip (for pagination).
	Offset int
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// CheckIdentifier rejects table names that cannot be safely interpolated
// into SQL.
func CheckIdentifier(name string) error {
	if !identifierRe.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}
