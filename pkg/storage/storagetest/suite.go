// Package storagetest holds behavioural tests shared by every storage
// implementation.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halldyll/recall-go/pkg/dedupe"
	"github.com/halldyll/recall-go/pkg/model"
	"github.com/halldyll/recall-go/pkg/storage"
)

// Dims is the embedding dimension the vector suite uses.
const Dims = 3

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Item builds a valid memory item for tests.
func Item(session model.SessionID, kind model.MemoryKind, content string, vec []float64, created time.Time) *model.MemoryItem {
	return &model.MemoryItem{
		ID:        model.NewMemoryID(),
		SessionID: session,
		Kind:      kind,
		Content:   content,
		Hash:      dedupe.Hash(content),
		Embedding: vec,
		Salience:  kind.DefaultSalience(),
		Source:    model.SourceHeuristic,
		CreatedAt: created,
	}
}

// RunTranscriptStore exercises a TranscriptStore. newStore must return an
// empty store; the suite closes it.
func RunTranscriptStore(t *testing.T, newStore func(t *testing.T) storage.TranscriptStore) {
	t.Run("AppendAndRecent", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()
		ctx := context.Background()

		s := model.NewSessionID()
		other := model.NewSessionID()
		for i := 0; i < 5; i++ {
			ts := base.Add(time.Duration(i) * time.Second)
			turn := model.NewTurnID(ts)
			require.NoError(t, store.Append(ctx,
				&model.TranscriptEvent{TurnID: turn, SessionID: s, Role: model.RoleUser, Content: "u" + string(rune('0'+i)), Timestamp: ts},
				&model.TranscriptEvent{TurnID: turn, SessionID: s, Role: model.RoleAssistant, Content: "a" + string(rune('0'+i)), Timestamp: ts},
			))
		}
		require.NoError(t, store.Append(ctx, &model.TranscriptEvent{
			TurnID: model.NewTurnID(base), SessionID: other, Role: model.RoleUser, Content: "elsewhere", Timestamp: base,
		}))

		recent, err := store.Recent(ctx, s, 3)
		require.NoError(t, err)
		require.Len(t, recent, 3)
		// Most recent three, chronological; same-timestamp events keep insertion order.
		assert.Equal(t, "a3", recent[0].Content)
		assert.Equal(t, "u4", recent[1].Content)
		assert.Equal(t, "a4", recent[2].Content)
		assert.Equal(t, model.RoleAssistant, recent[2].Role)
		assert.Equal(t, s, recent[2].SessionID)

		all, err := store.Recent(ctx, s, 100)
		require.NoError(t, err)
		assert.Len(t, all, 10)
		for i := 1; i < len(all); i++ {
			assert.Greater(t, all[i].Seq, all[i-1].Seq)
		}

		turns, err := store.CountTurns(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, int64(5), turns)

		turns, err = store.CountTurns(ctx, model.NewSessionID())
		require.NoError(t, err)
		assert.Zero(t, turns)
	})

	t.Run("ToolEvents", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()
		ctx := context.Background()

		s := model.NewSessionID()
		require.NoError(t, store.Append(ctx, &model.TranscriptEvent{
			TurnID: model.NewTurnID(base), SessionID: s, Role: model.RoleTool, ToolName: "search", Content: "3 hits", Timestamp: base,
		}))
		recent, err := store.Recent(ctx, s, 10)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, "search", recent[0].ToolName)
		assert.True(t, base.Equal(recent[0].Timestamp))
	})
}

// RunSummaryStore exercises a SummaryStore.
func RunSummaryStore(t *testing.T, newStore func(t *testing.T) storage.SummaryStore) {
	store := newStore(t)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	s := model.NewSessionID()
	got, err := store.Get(ctx, s)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Put(ctx, &model.SessionSummary{SessionID: s, Text: "first", TurnCount: 8, UpdatedAt: base}))
	require.NoError(t, store.Put(ctx, &model.SessionSummary{SessionID: s, Text: "second", TurnCount: 16, UpdatedAt: base.Add(time.Hour)}))

	got, err = store.Get(ctx, s)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "second", got.Text)
	assert.Equal(t, int64(16), got.TurnCount)
	assert.True(t, base.Add(time.Hour).Equal(got.UpdatedAt))
}

// RunVectorStore exercises a VectorStore created with Dims dimensions.
func RunVectorStore(t *testing.T, newStore func(t *testing.T) storage.VectorStore) {
	t.Run("InsertAndSearch", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()
		ctx := context.Background()

		s := model.NewSessionID()
		dark := Item(s, model.KindPreference, "I love dark themes", []float64{1, 0, 0}, base)
		cats := Item(s, model.KindFact, "I have two cats", []float64{0, 1, 0}, base)
		near := Item(s, model.KindGoal, "I want a darker terminal", []float64{0.9, 0.1, 0}, base)
		for _, it := range []*model.MemoryItem{dark, cats, near} {
			require.NoError(t, store.Insert(ctx, it))
		}

		hits, err := store.Search(ctx, []float64{1, 0, 0}, &storage.SearchOptions{SessionID: s, Limit: 2, MinScore: 0.2})
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, dark.ID, hits[0].Item.ID)
		assert.Equal(t, near.ID, hits[1].Item.ID)
		assert.InDelta(t, 1.0, hits[0].Similarity, 1e-3)
		assert.GreaterOrEqual(t, hits[0].Similarity, hits[1].Similarity)
		assert.Equal(t, model.KindPreference, hits[0].Item.Kind)
		assert.Equal(t, "I love dark themes", hits[0].Item.Content)
		assert.InDelta(t, 0.7, hits[0].Item.Salience, 1e-9)
		assert.True(t, base.Equal(hits[0].Item.CreatedAt))

		// Orthogonal vector is below the threshold.
		hits, err = store.Search(ctx, []float64{0, 0, 1}, &storage.SearchOptions{SessionID: s, Limit: 5, MinScore: 0.2})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("ScopedAndUnscopedSearch", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()
		ctx := context.Background()

		s1, s2 := model.NewSessionID(), model.NewSessionID()
		require.NoError(t, store.Insert(ctx, Item(s1, model.KindFact, "session one fact", []float64{1, 0, 0}, base)))
		require.NoError(t, store.Insert(ctx, Item(s2, model.KindFact, "session two fact", []float64{1, 0.1, 0}, base)))

		hits, err := store.Search(ctx, []float64{1, 0, 0}, &storage.SearchOptions{SessionID: s1, Limit: 10})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, s1, hits[0].Item.SessionID)

		hits, err = store.Search(ctx, []float64{1, 0, 0}, &storage.SearchOptions{Limit: 10})
		require.NoError(t, err)
		assert.Len(t, hits, 2)

		hits, err = store.Search(ctx, []float64{1, 0, 0}, &storage.SearchOptions{SessionID: model.NewSessionID(), Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("RejectsDimensionMismatch", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		err := store.Insert(context.Background(), Item(model.NewSessionID(), model.KindFact, "too short", []float64{1, 0}, base))
		assert.True(t, errors.Is(err, model.ErrDimensionMismatch))
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()
		ctx := context.Background()

		s := model.NewSessionID()
		it := Item(s, model.KindFact, "to be removed", []float64{1, 0, 0}, base)
		require.NoError(t, store.Insert(ctx, it))

		require.NoError(t, store.Delete(ctx, it.ID))
		require.NoError(t, store.Delete(ctx, it.ID))
		require.NoError(t, store.Delete(ctx, model.NewMemoryID()))
		require.NoError(t, store.Delete(ctx))

		all, err := store.GetAll(ctx, &storage.GetAllOptions{SessionID: s})
		require.NoError(t, err)
		assert.Empty(t, all)

		found, err := store.FindByHash(ctx, s, it.Hash)
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("FindByHash", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()
		ctx := context.Background()

		s := model.NewSessionID()
		it := Item(s, model.KindFact, "I have two cats", []float64{0, 1, 0}, base)
		require.NoError(t, store.Insert(ctx, it))

		found, err := store.FindByHash(ctx, s, dedupe.Hash("  i HAVE two cats"))
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, it.ID, found.ID)

		found, err = store.FindByHash(ctx, model.NewSessionID(), it.Hash)
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("ListOlderThanAndTouch", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()
		ctx := context.Background()

		s := model.NewSessionID()
		old := Item(s, model.KindEvent, "went hiking yesterday", []float64{1, 0, 0}, base.Add(-61*time.Second))
		fresh := Item(s, model.KindEvent, "having lunch today", []float64{0, 1, 0}, base.Add(-10*time.Second))
		fact := Item(s, model.KindFact, "I have a sister", []float64{0, 0, 1}, base.Add(-time.Hour))
		for _, it := range []*model.MemoryItem{old, fresh, fact} {
			require.NoError(t, store.Insert(ctx, it))
		}

		items, err := store.ListOlderThan(ctx, model.KindEvent, base.Add(-60*time.Second))
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, old.ID, items[0].ID)

		require.NoError(t, store.Touch(ctx, base, fresh.ID, model.NewMemoryID()))

		all, err := store.GetAll(ctx, &storage.GetAllOptions{SessionID: s})
		require.NoError(t, err)
		require.Len(t, all, 3)
		// Newest first.
		assert.Equal(t, fresh.ID, all[0].ID)
		assert.True(t, base.Equal(all[0].LastAccessedAt))

		page, err := store.GetAll(ctx, &storage.GetAllOptions{SessionID: s, Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, old.ID, page[0].ID)
	})
}
