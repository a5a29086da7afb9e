// Package chromem provides an embedded, in-process vector store built on
// chromem-go.
//
// Each session gets its own collection. A side index keeps the full items so
// that hash lookups, listings and expiry scans do not need a query vector.
package chromem

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/halldyll/recall-go/pkg/model"
	"github.com/halldyll/recall-go/pkg/storage"
)

// Store implements storage.VectorStore on top of chromem-go.
type Store struct {
	db         *chromem.DB
	dimensions int

	mu          sync.RWMutex
	collections map[model.SessionID]*chromem.Collection
	items       map[model.MemoryID]*model.MemoryItem
	hashes      map[model.SessionID]map[string]model.MemoryID
}

// Config contains configuration for creating a chromem Store.
type Config struct {
	// EmbeddingModelDims is the dimension of embedding vectors.
	EmbeddingModelDims int
}

// New creates an empty store.
func New(cfg *Config) *Store {
	return &Store{
		db:          chromem.NewDB(),
		dimensions:  cfg.EmbeddingModelDims,
		collections: make(map[model.SessionID]*chromem.Collection),
		items:       make(map[model.MemoryID]*model.MemoryItem),
		hashes:      make(map[model.SessionID]map[string]model.MemoryID),
	}
}

// collection returns the collection for a session, creating it on first use.
func (s *Store) collection(session model.SessionID) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[session]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if col, ok := s.collections[session]; ok {
		return col, nil
	}
	col, err := s.db.GetOrCreateCollection("session_"+session.String(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.collections[session] = col
	return col, nil
}

// Insert implements storage.VectorStore.
func (s *Store) Insert(ctx context.Context, item *model.MemoryItem) error {
	if err := item.Validate(s.dimensions, 0); err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	col, err := s.collection(item.SessionID)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	doc := chromem.Document{
		ID:        item.ID.String(),
		Content:   item.Content,
		Embedding: toFloat32(item.Embedding),
		Metadata: map[string]string{
			"kind":       string(item.Kind),
			"hash":       item.Hash,
			"salience":   strconv.FormatFloat(item.Salience, 'f', -1, 64),
			"source":     string(item.Source),
			"created_at": item.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	stored := *item
	stored.Embedding = append([]float64(nil), item.Embedding...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = &stored
	if s.hashes[item.SessionID] == nil {
		s.hashes[item.SessionID] = make(map[string]model.MemoryID)
	}
	s.hashes[item.SessionID][item.Hash] = item.ID
	return nil
}

// Search implements storage.VectorStore.
//
// chromem rejects a result count larger than the collection, so the limit is
// clamped per collection. Unscoped searches merge results across sessions.
func (s *Store) Search(ctx context.Context, query []float64, opts *storage.SearchOptions) ([]model.RankedMemory, error) {
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("Search: got %d, want %d: %w", len(query), s.dimensions, model.ErrDimensionMismatch)
	}

	var cols []*chromem.Collection
	s.mu.RLock()
	if opts.SessionID.IsZero() {
		for _, col := range s.collections {
			cols = append(cols, col)
		}
	} else if col, ok := s.collections[opts.SessionID]; ok {
		cols = append(cols, col)
	}
	s.mu.RUnlock()

	q := toFloat32(query)
	var out []model.RankedMemory
	for _, col := range cols {
		n := col.Count()
		if opts.Limit > 0 && opts.Limit < n {
			n = opts.Limit
		}
		if n == 0 {
			continue
		}

		results, err := col.QueryEmbedding(ctx, q, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}

		s.mu.RLock()
		for _, r := range results {
			if float64(r.Similarity) < opts.MinScore {
				continue
			}
			id, err := model.ParseMemoryID(r.ID)
			if err != nil {
				continue
			}
			item, ok := s.items[id]
			if !ok {
				continue
			}
			cp := *item
			out = append(out, model.RankedMemory{Item: &cp, Similarity: float64(r.Similarity)})
		}
		s.mu.RUnlock()
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Delete implements storage.VectorStore.
func (s *Store) Delete(ctx context.Context, ids ...model.MemoryID) error {
	bySession := make(map[model.SessionID][]string)

	s.mu.Lock()
	for _, id := range ids {
		item, ok := s.items[id]
		if !ok {
			continue
		}
		bySession[item.SessionID] = append(bySession[item.SessionID], id.String())
		delete(s.items, id)
		if s.hashes[item.SessionID][item.Hash] == id {
			delete(s.hashes[item.SessionID], item.Hash)
		}
	}
	cols := make(map[model.SessionID]*chromem.Collection, len(bySession))
	for session := range bySession {
		cols[session] = s.collections[session]
	}
	s.mu.Unlock()

	for session, docIDs := range bySession {
		if err := cols[session].Delete(ctx, nil, nil, docIDs...); err != nil {
			return fmt.Errorf("Delete: %w", err)
		}
	}
	return nil
}

// FindByHash implements storage.VectorStore.
func (s *Store) FindByHash(_ context.Context, session model.SessionID, hash string) (*model.MemoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.hashes[session][hash]
	if !ok {
		return nil, nil
	}
	cp := *s.items[id]
	return &cp, nil
}

// Touch implements storage.VectorStore.
func (s *Store) Touch(_ context.Context, at time.Time, ids ...model.MemoryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			item.LastAccessedAt = at
		}
	}
	return nil
}

// ListOlderThan implements storage.VectorStore.
func (s *Store) ListOlderThan(_ context.Context, kind model.MemoryKind, cutoff time.Time) ([]*model.MemoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.MemoryItem
	for _, item := range s.items {
		if item.Kind == kind && item.CreatedAt.Before(cutoff) {
			cp := *item
			out = append(out, &cp)
		}
	}
	return out, nil
}

// GetAll implements storage.VectorStore.
func (s *Store) GetAll(_ context.Context, opts *storage.GetAllOptions) ([]*model.MemoryItem, error) {
	s.mu.RLock()
	var out []*model.MemoryItem
	for _, item := range s.items {
		if !opts.SessionID.IsZero() && item.SessionID != opts.SessionID {
			continue
		}
		cp := *item
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Close releases resources. chromem keeps everything in memory.
func (s *Store) Close() error {
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
