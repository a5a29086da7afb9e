package core_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halldyll/recall-go/pkg/core"
	"github.com/halldyll/recall-go/pkg/llm/fake"
	"github.com/halldyll/recall-go/pkg/model"
	"github.com/halldyll/recall-go/pkg/prompt"
)

func TestPreferenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	engine := newTestEngine(t, testConfig(), testBackends(t), clock)
	session := model.NewSessionID()

	res, err := engine.RecordTurn(ctx, session, "I love dark themes", "Noted.", nil)
	require.NoError(t, err)
	require.Len(t, res.Stored, 1)
	assert.Equal(t, model.KindPreference, res.Stored[0].Kind)
	assert.Equal(t, "I love dark themes", res.Stored[0].Content)
	assert.Equal(t, model.SourceHeuristic, res.Stored[0].Source)
	assert.Equal(t, int64(1), res.TurnNumber)
	assert.False(t, res.Degraded.Any())

	clock.Advance(12 * time.Second)
	pc, err := engine.PrepareContext(ctx, session, "what theme do I prefer?", 0)
	require.NoError(t, err)
	require.Len(t, pc.Memories, 1)
	assert.Equal(t, "I love dark themes", pc.Memories[0].Item.Content)
	assert.Contains(t, pc.Prompt, "* (preference) I love dark themes [salience: 0.70] [age_s: 12]")
	assert.Contains(t, pc.Prompt, "- User: I love dark themes\n- Assistant: Noted.\n")
	assert.True(t, strings.HasSuffix(pc.Prompt, prompt.TagUser+"\nwhat theme do I prefer?\n"))
}

func TestRecordingSameFactTwiceStoresOneItem(t *testing.T) {
	ctx := context.Background()
	b := testBackends(t)
	engine := newTestEngine(t, testConfig(), b, newTestClock())
	session := model.NewSessionID()

	first, err := engine.RecordTurn(ctx, session, "My favorite editor is Helix.", "", nil)
	require.NoError(t, err)
	require.Len(t, first.Stored, 1)

	second, err := engine.RecordTurn(ctx, session, "my favorite   EDITOR is helix", "", nil)
	require.NoError(t, err)
	assert.Empty(t, second.Stored)
	assert.Equal(t, 1, second.Suppressed)

	assert.Len(t, allItems(t, b.Vectors, session), 1)
}

func TestDedupeSurvivesColdCache(t *testing.T) {
	ctx := context.Background()
	b := testBackends(t)
	session := model.NewSessionID()

	warm, err := core.NewEngine(testConfig(), b, core.WithClock(newTestClock().Now))
	require.NoError(t, err)
	_, err = warm.RecordTurn(ctx, session, "I love dark themes", "", nil)
	require.NoError(t, err)

	// A second engine over the same stores starts with an empty cache.
	cold, err := core.NewEngine(testConfig(), b, core.WithClock(newTestClock().Now))
	require.NoError(t, err)
	res, err := cold.RecordTurn(ctx, session, "I love dark themes", "", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Stored)
	assert.Equal(t, 1, res.Suppressed)
	assert.Len(t, allItems(t, b.Vectors, session), 1)
}

func TestShortTermWindow(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	cfg := testConfig()
	cfg.ShortTerm.Window = 4
	engine := newTestEngine(t, cfg, testBackends(t), clock)
	session := model.NewSessionID()

	for _, msg := range []string{"one", "two", "three", "four", "five"} {
		_, err := engine.RecordTurn(ctx, session, "user "+msg, "assistant "+msg, nil)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	tests := []struct {
		name string
		hint int
		want []string
	}{
		{"default window", 0, []string{"user four", "assistant four", "user five", "assistant five"}},
		{"narrower hint", 2, []string{"user five", "assistant five"}},
		{"hint capped at window", 10, []string{"user four", "assistant four", "user five", "assistant five"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := engine.PrepareContext(ctx, session, "next", tt.hint)
			require.NoError(t, err)
			got := make([]string, len(pc.ShortTerm))
			for i, ev := range pc.ShortTerm {
				got[i] = ev.Content
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToolEventsRecorded(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, testConfig(), testBackends(t), newTestClock())
	session := model.NewSessionID()

	_, err := engine.RecordTurn(ctx, session, "what's the weather?", "It is sunny.",
		[]model.ToolEvent{{Name: "weather", Content: "sunny, 21C"}})
	require.NoError(t, err)

	pc, err := engine.PrepareContext(ctx, session, "thanks", 0)
	require.NoError(t, err)
	assert.Contains(t, pc.Prompt, "- User: what's the weather?\n- Tool (weather): sunny, 21C\n- Assistant: It is sunny.\n")
}

func TestTTLExpiryExcludesFromSearch(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	cfg := testConfig()
	cfg.Retention.TTLSecondsByKind = map[string]int64{"event": 60}
	b := testBackends(t)
	engine := newTestEngine(t, cfg, b, clock)
	session := model.NewSessionID()

	event, err := engine.Remember(ctx, session, model.KindEvent, "Team offsite happened today in Lisbon")
	require.NoError(t, err)

	clock.Advance(59 * time.Second)
	pc, err := engine.PrepareContext(ctx, session, "where was the team offsite?", 0)
	require.NoError(t, err)
	require.Len(t, pc.Memories, 1)
	assert.Equal(t, event.ID, pc.Memories[0].Item.ID)

	clock.Advance(2 * time.Second)
	pc, err = engine.PrepareContext(ctx, session, "where was the team offsite?", 0)
	require.NoError(t, err)
	assert.Empty(t, pc.Memories)
	assert.NotContains(t, pc.Prompt, "Lisbon")

	// Reads skip expired items; deleting them is the sweep's job.
	assert.Len(t, allItems(t, b.Vectors, session), 1)
	res, err := engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Empty(t, allItems(t, b.Vectors, session))
}

func TestExpiredDuplicateOfOtherKindIsStored(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	cfg := testConfig()
	cfg.Retention.TTLSecondsByKind = map[string]int64{"event": 60}
	b := testBackends(t)
	engine := newTestEngine(t, cfg, b, clock)
	session := model.NewSessionID()
	text := "Quarterly planning is on the third floor"

	event, err := engine.Remember(ctx, session, model.KindEvent, text)
	require.NoError(t, err)

	// The cached hash belongs to an event, so it expires with the event
	// even though the new draft is a fact.
	clock.Advance(61 * time.Second)
	fact, err := engine.Remember(ctx, session, model.KindFact, text)
	require.NoError(t, err)
	assert.NotEqual(t, event.ID, fact.ID)
	assert.Equal(t, model.KindFact, fact.Kind)
	assert.Equal(t, clock.Now(), fact.CreatedAt)

	items := allItems(t, b.Vectors, session)
	require.Len(t, items, 1)
	assert.Equal(t, fact.ID, items[0].ID)

	// A live fact keeps suppressing the same text as an event.
	clock.Advance(61 * time.Second)
	again, err := engine.Remember(ctx, session, model.KindEvent, text)
	require.NoError(t, err)
	assert.Equal(t, fact.ID, again.ID)
	assert.Len(t, allItems(t, b.Vectors, session), 1)
}

func TestSemanticDuplicateIsMerged(t *testing.T) {
	ctx := context.Background()
	session := model.NewSessionID()

	t.Run("merged above threshold", func(t *testing.T) {
		clock := newTestClock()
		b := testBackends(t)
		engine := newTestEngine(t, testConfig(), b, clock)

		first, err := engine.Remember(ctx, session, model.KindFact, "The staging database runs Postgres 16")
		require.NoError(t, err)

		// Different hash, same words.
		clock.Advance(time.Minute)
		second, err := engine.Remember(ctx, session, model.KindFact, "the staging database: runs postgres-16!")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		res, err := engine.RecordTurn(ctx, session, "The staging database runs Postgres 16.", "", nil)
		require.NoError(t, err)
		assert.Empty(t, res.Stored)

		items := allItems(t, b.Vectors, session)
		require.Len(t, items, 1)
		assert.Equal(t, first.ID, items[0].ID)
		assert.Equal(t, clock.Now(), items[0].LastAccessedAt)
	})

	t.Run("distinct memories kept", func(t *testing.T) {
		b := testBackends(t)
		engine := newTestEngine(t, testConfig(), b, newTestClock())

		_, err := engine.Remember(ctx, session, model.KindFact, "The staging database runs Postgres 16")
		require.NoError(t, err)
		_, err = engine.Remember(ctx, session, model.KindFact, "Deploys happen on Tuesdays after standup")
		require.NoError(t, err)
		assert.Len(t, allItems(t, b.Vectors, session), 2)
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.Extractor.SemanticDedupeThreshold = 0
		b := testBackends(t)
		engine := newTestEngine(t, cfg, b, newTestClock())

		first, err := engine.Remember(ctx, session, model.KindFact, "The staging database runs Postgres 16")
		require.NoError(t, err)
		second, err := engine.Remember(ctx, session, model.KindFact, "the staging database: runs postgres-16!")
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)
		assert.Len(t, allItems(t, b.Vectors, session), 2)
	})
}

func TestDraftsEmbeddedInOneBatch(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Extractor.Mode = core.ExtractorModeHeuristicModel
	cfg.Extractor.LLMEveryNTurns = 1
	cfg.Summary.IntervalTurns = 100
	b := testBackends(t)
	flaky := newFlakyEmbedder()
	b.Embedder = flaky
	b.LLM = fake.New(fake.Reply{Text: `{"memories": [
		{"kind": "goal", "content": "Ship the release candidate by Friday", "salience": 0.8},
		{"kind": "fact", "content": "The build server is called atlas", "salience": 0.6},
		{"kind": "decision", "content": "Release notes move to the wiki", "salience": 0.7}
	]}`})
	engine := newTestEngine(t, cfg, b, newTestClock())
	session := model.NewSessionID()

	res, err := engine.RecordTurn(ctx, session, "Status update for the release", "Thanks.", nil)
	require.NoError(t, err)
	stored := make([]string, len(res.Stored))
	for i, item := range res.Stored {
		stored[i] = item.Content
	}
	assert.Subset(t, stored, []string{
		"Ship the release candidate by Friday",
		"The build server is called atlas",
		"Release notes move to the wiki",
	})
	assert.Equal(t, int32(1), flaky.batches.Load())
}

func TestRetrievalQueryIncludesLastTurn(t *testing.T) {
	ctx := context.Background()
	b := testBackends(t)
	flaky := newFlakyEmbedder()
	b.Embedder = flaky
	engine := newTestEngine(t, testConfig(), b, newTestClock())
	session := model.NewSessionID()

	pc, err := engine.PrepareContext(ctx, session, "Which deploy targets exist?", 0)
	require.NoError(t, err)
	assert.Empty(t, pc.ShortTerm)
	assert.Equal(t, "Which deploy targets exist?", flaky.lastQuery())

	_, err = engine.RecordTurn(ctx, session, "Which deploy targets exist?", "Staging and production.",
		[]model.ToolEvent{{Name: "targets", Content: "staging,prod"}})
	require.NoError(t, err)

	_, err = engine.PrepareContext(ctx, session, "and the second one?", 0)
	require.NoError(t, err)
	assert.Equal(t, "and the second one?\nWhich deploy targets exist?\nStaging and production.", flaky.lastQuery())
}

func TestReadFailuresDegrade(t *testing.T) {
	ctx := context.Background()
	session := model.NewSessionID()

	t.Run("transcript", func(t *testing.T) {
		b := testBackends(t)
		engine := newTestEngine(t, testConfig(), b, newTestClock())
		_, err := engine.RecordTurn(ctx, session, "I love dark themes", "Noted.", nil)
		require.NoError(t, err)

		// A second engine over the same stores, reading through a broken
		// transcript.
		broken := b
		broken.Transcripts = failingRecent{TranscriptStore: b.Transcripts}
		reader, err := core.NewEngine(testConfig(), broken, core.WithClock(newTestClock().Now))
		require.NoError(t, err)
		pc, err := reader.PrepareContext(ctx, session, "what theme do I prefer?", 0)
		require.NoError(t, err)
		assert.True(t, pc.Degraded.ShortTerm)
		assert.Empty(t, pc.ShortTerm)
		assert.Equal(t, []string{"I love dark themes"}, contents(pc.Memories))
		assert.NotContains(t, pc.Prompt, prompt.TagShortTerm)
		assert.True(t, strings.HasSuffix(pc.Prompt, prompt.TagUser+"\nwhat theme do I prefer?\n"))
	})

	t.Run("summary", func(t *testing.T) {
		b := testBackends(t)
		b.Summaries = failingSummaryGet{SummaryStore: b.Summaries}
		engine := newTestEngine(t, testConfig(), b, newTestClock())
		_, err := engine.RecordTurn(ctx, session, "I love dark themes", "Noted.", nil)
		require.NoError(t, err)

		pc, err := engine.PrepareContext(ctx, session, "what theme do I prefer?", 0)
		require.NoError(t, err)
		assert.True(t, pc.Degraded.SummaryLoad)
		assert.False(t, pc.Degraded.ShortTerm)
		assert.Empty(t, pc.Summary)
		assert.Len(t, pc.ShortTerm, 2)
		assert.Len(t, pc.Memories, 1)
	})
}

func TestTTLExpirySweep(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	cfg := testConfig()
	cfg.Retention.TTLSecondsByKind = map[string]int64{"event": 60}
	b := testBackends(t)
	engine := newTestEngine(t, cfg, b, clock)
	session := model.NewSessionID()

	_, err := engine.Remember(ctx, session, model.KindEvent, "Team offsite happened today in Lisbon")
	require.NoError(t, err)
	fact, err := engine.Remember(ctx, session, model.KindFact, "The staging cluster runs in eu-west-1")
	require.NoError(t, err)

	clock.Advance(61 * time.Second)
	res, err := engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)

	survivors := allItems(t, b.Vectors, session)
	require.Len(t, survivors, 1)
	assert.Equal(t, fact.ID, survivors[0].ID)

	// An expired duplicate no longer suppresses the same content.
	again, err := engine.Remember(ctx, session, model.KindEvent, "Team offsite happened today in Lisbon")
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), again.CreatedAt)
}

func TestBudgetDropsMemoriesBeforeEvents(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	cfg := testConfig()
	cfg.Prompt.MaxChars = 200
	cfg.Retrieval.MinSimilarity = -1
	engine := newTestEngine(t, cfg, testBackends(t), clock)
	session := model.NewSessionID()

	turns := []string{"I love dark themes", "My favorite editor is Helix", "I usually work late at night"}
	for _, u := range turns {
		_, err := engine.RecordTurn(ctx, session, u, "Understood, I will keep that in mind for the rest of our conversation.", nil)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	msg := "what theme do I prefer?"
	pc, err := engine.PrepareContext(ctx, session, msg, 0)
	require.NoError(t, err)

	assert.LessOrEqual(t, utf8.RuneCountInString(pc.Prompt), 200)
	assert.Contains(t, pc.Prompt, prompt.TagUser+"\n"+msg+"\n")
	assert.Positive(t, pc.Trim.DroppedMemories)
	assert.Positive(t, pc.Trim.DroppedEvents)
	assert.Empty(t, pc.Memories, "events are only dropped once every memory is gone")
	assert.NotContains(t, pc.Prompt, prompt.TagMemories)
}

func TestOversizedUserMessageIsKept(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Prompt.MaxChars = 100
	engine := newTestEngine(t, cfg, testBackends(t), newTestClock())
	session := model.NewSessionID()

	_, err := engine.RecordTurn(ctx, session, "I love dark themes", "Noted.", nil)
	require.NoError(t, err)

	msg := strings.Repeat("very long question ", 10)
	pc, err := engine.PrepareContext(ctx, session, msg, 0)
	require.NoError(t, err)
	assert.True(t, pc.Trim.UserOnly)
	assert.Equal(t, prompt.TagUser+"\n"+msg+"\n", pc.Prompt)
	assert.Empty(t, pc.ShortTerm)
	assert.Empty(t, pc.Memories)
}

func TestEmbeddingFailureDegrades(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	b := testBackends(t)
	flaky := newFlakyEmbedder()
	b.Embedder = flaky
	engine := newTestEngine(t, cfg, b, newTestClock())
	session := model.NewSessionID()

	flaky.fail.Store(true)
	res, err := engine.RecordTurn(ctx, session, "I love dark themes", "Noted.", nil)
	require.NoError(t, err)
	assert.True(t, res.Degraded.Embedding)
	assert.Empty(t, res.Stored)
	assert.Equal(t, 1, res.Dropped)

	pc, err := engine.PrepareContext(ctx, session, "what theme do I prefer?", 0)
	require.NoError(t, err)
	assert.True(t, pc.Degraded.Embedding)
	assert.Empty(t, pc.Memories)
	require.Len(t, pc.ShortTerm, 2, "the transcript append still succeeded")

	flaky.fail.Store(false)
	res, err = engine.RecordTurn(ctx, session, "I love dark themes", "Noted.", nil)
	require.NoError(t, err)
	assert.Len(t, res.Stored, 1, "dropped drafts are not remembered as seen")
}

func TestVectorSearchFailureDegrades(t *testing.T) {
	ctx := context.Background()
	b := testBackends(t)
	b.Vectors = failingSearch{VectorStore: b.Vectors}
	engine := newTestEngine(t, testConfig(), b, newTestClock())
	session := model.NewSessionID()

	_, err := engine.RecordTurn(ctx, session, "I love dark themes", "Noted.", nil)
	require.NoError(t, err)

	pc, err := engine.PrepareContext(ctx, session, "what theme do I prefer?", 0)
	require.NoError(t, err)
	assert.True(t, pc.Degraded.VectorSearch)
	assert.Empty(t, pc.Memories)
	assert.Contains(t, pc.Prompt, prompt.TagShortTerm)
}

func TestStorageFailures(t *testing.T) {
	ctx := context.Background()
	session := model.NewSessionID()

	t.Run("transcript append", func(t *testing.T) {
		b := testBackends(t)
		b.Transcripts = failingAppend{TranscriptStore: b.Transcripts}
		engine := newTestEngine(t, testConfig(), b, newTestClock())

		_, err := engine.RecordTurn(ctx, session, "I love dark themes", "", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrStorage))
	})

	t.Run("memory insert", func(t *testing.T) {
		b := testBackends(t)
		b.Vectors = failingInsert{VectorStore: b.Vectors}
		engine := newTestEngine(t, testConfig(), b, newTestClock())

		_, err := engine.RecordTurn(ctx, session, "I love dark themes", "", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrStorage))

		// The transcript is not rolled back.
		pc, err := engine.PrepareContext(ctx, session, "hello", 0)
		require.NoError(t, err)
		assert.Len(t, pc.ShortTerm, 1)
	})
}

func TestValidationErrors(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, testConfig(), testBackends(t), newTestClock())

	_, err := engine.RecordTurn(ctx, model.SessionID{}, "hello there", "", nil)
	assert.True(t, errors.Is(err, core.ErrValidation))

	_, err = engine.RecordTurn(ctx, model.NewSessionID(), "   ", "", nil)
	assert.True(t, errors.Is(err, core.ErrValidation))

	_, err = engine.PrepareContext(ctx, model.NewSessionID(), "", 0)
	assert.True(t, errors.Is(err, core.ErrValidation))

	_, err = engine.Remember(ctx, model.NewSessionID(), model.MemoryKind("mood"), "feeling great today")
	assert.True(t, errors.Is(err, core.ErrValidation))

	_, err = engine.Remember(ctx, model.NewSessionID(), model.KindFact, "my api_key is sk-abcdefghijklmnop")
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestSummaryExtractiveFallback(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	cfg := testConfig()
	cfg.Summary.IntervalTurns = 2
	cfg.Summary.MaxChars = 60
	engine := newTestEngine(t, cfg, testBackends(t), clock)
	session := model.NewSessionID()

	res, err := engine.RecordTurn(ctx, session, "first question", "first answer", nil)
	require.NoError(t, err)
	assert.False(t, res.SummaryUpdated)

	clock.Advance(time.Second)
	res, err = engine.RecordTurn(ctx, session, "second question", "second answer", nil)
	require.NoError(t, err)
	assert.True(t, res.SummaryUpdated)

	pc, err := engine.PrepareContext(ctx, session, "and now?", 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, utf8.RuneCountInString(pc.Summary), 60)
	assert.True(t, strings.HasSuffix(pc.Summary, "User: second question\nAssistant: second answer"))
	assert.Contains(t, pc.Prompt, prompt.TagSummary+"\n")
}

func TestSummaryCoversToolHeavyTurn(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Summary.IntervalTurns = 1
	engine := newTestEngine(t, cfg, testBackends(t), newTestClock())
	session := model.NewSessionID()

	tools := make([]model.ToolEvent, 6)
	for i := range tools {
		tools[i] = model.ToolEvent{Name: "search", Content: fmt.Sprintf("result %d", i)}
	}
	res, err := engine.RecordTurn(ctx, session, "plan the offsite trip", "All booked.", tools)
	require.NoError(t, err)
	require.True(t, res.SummaryUpdated)

	pc, err := engine.PrepareContext(ctx, session, "recap please", 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(pc.Summary, "User: plan the offsite trip\n"), pc.Summary)
	assert.Contains(t, pc.Summary, "result 0")
	assert.True(t, strings.HasSuffix(pc.Summary, "Assistant: All booked."))
}

func TestSummaryFromModel(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Summary.IntervalTurns = 1
	b := testBackends(t)
	provider := fake.New(
		fake.Reply{Text: "The user prefers dark themes."},
		fake.Reply{Err: errors.New("model overloaded")},
	)
	b.LLM = provider
	engine := newTestEngine(t, cfg, b, newTestClock())
	session := model.NewSessionID()

	res, err := engine.RecordTurn(ctx, session, "I love dark themes", "Noted.", nil)
	require.NoError(t, err)
	assert.True(t, res.SummaryUpdated)

	res, err = engine.RecordTurn(ctx, session, "thanks a lot", "You're welcome.", nil)
	require.NoError(t, err)
	assert.False(t, res.SummaryUpdated)
	assert.True(t, res.Degraded.Summary)

	pc, err := engine.PrepareContext(ctx, session, "recap please", 0)
	require.NoError(t, err)
	assert.Equal(t, "The user prefers dark themes.", pc.Summary, "prior summary kept on failure")

	calls := provider.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1][1].Content, "Existing summary:\nThe user prefers dark themes.")
	assert.Contains(t, calls[1][1].Content, "User: thanks a lot")
	assert.NotContains(t, calls[1][1].Content, "User: I love dark themes")
}

func TestModelAssistedExtraction(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Extractor.Mode = core.ExtractorModeHeuristicModel
	cfg.Extractor.LLMEveryNTurns = 2
	cfg.Summary.IntervalTurns = 100

	t.Run("drafts added on due turns", func(t *testing.T) {
		b := testBackends(t)
		b.LLM = fake.New(fake.Reply{
			Text: "```json\n[{\"kind\": \"goal\", \"content\": \"Ship the release candidate by Friday\", \"salience\": 0.8}]\n```",
		})
		engine := newTestEngine(t, cfg, b, newTestClock())
		session := model.NewSessionID()

		res, err := engine.RecordTurn(ctx, session, "I love dark themes", "", nil)
		require.NoError(t, err)
		require.Len(t, res.Stored, 1)

		res, err = engine.RecordTurn(ctx, session, "We have a release on Friday", "Good luck!", nil)
		require.NoError(t, err)
		require.Len(t, res.Stored, 1)
		assert.Equal(t, model.KindGoal, res.Stored[0].Kind)
		assert.Equal(t, model.SourceModel, res.Stored[0].Source)
		assert.InDelta(t, 0.8, res.Stored[0].Salience, 1e-9)
	})

	t.Run("failure keeps heuristic drafts", func(t *testing.T) {
		b := testBackends(t)
		b.LLM = fake.Always(fake.Reply{Err: context.DeadlineExceeded})
		engine := newTestEngine(t, cfg, b, newTestClock())
		session := model.NewSessionID()

		_, err := engine.RecordTurn(ctx, session, "hello there", "", nil)
		require.NoError(t, err)
		res, err := engine.RecordTurn(ctx, session, "I love dark themes", "", nil)
		require.NoError(t, err)
		assert.True(t, res.Degraded.ModelExtraction)
		require.Len(t, res.Stored, 1)
		assert.Equal(t, model.SourceHeuristic, res.Stored[0].Source)
	})
}

func TestScopedRetrieval(t *testing.T) {
	ctx := context.Background()
	b := testBackends(t)
	cfg := testConfig()
	engine := newTestEngine(t, cfg, b, newTestClock())
	alice, bob := model.NewSessionID(), model.NewSessionID()

	_, err := engine.RecordTurn(ctx, alice, "I love dark themes", "", nil)
	require.NoError(t, err)

	pc, err := engine.PrepareContext(ctx, bob, "what theme do I prefer?", 0)
	require.NoError(t, err)
	assert.Empty(t, pc.Memories)

	cfg2 := testConfig()
	cfg2.Retrieval.Scoped = false
	shared, err := core.NewEngine(cfg2, b, core.WithClock(newTestClock().Now))
	require.NoError(t, err)
	pc, err = shared.PrepareContext(ctx, bob, "what theme do I prefer?", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"I love dark themes"}, contents(pc.Memories))
}

func TestRememberReturnsExistingDuplicate(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, testConfig(), testBackends(t), newTestClock())
	session := model.NewSessionID()

	first, err := engine.Remember(ctx, session, model.KindInstruction, "Answer in British English")
	require.NoError(t, err)
	assert.Equal(t, model.SourceExplicit, first.Source)

	second, err := engine.Remember(ctx, session, model.KindInstruction, "answer in british english")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestNewEngineRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		cfg    func() *core.Config
		mutate func(*core.Backends)
	}{
		{"nil config", func() *core.Config { return nil }, nil},
		{"invalid config", func() *core.Config {
			cfg := testConfig()
			cfg.ShortTerm.Window = 0
			return cfg
		}, nil},
		{"missing vectors", testConfig, func(b *core.Backends) { b.Vectors = nil }},
		{"missing embedder", testConfig, func(b *core.Backends) { b.Embedder = nil }},
		{"dimension mismatch", func() *core.Config {
			cfg := testConfig()
			cfg.Embedding.NDims = 768
			return cfg
		}, nil},
		{"model mode without llm", func() *core.Config {
			cfg := testConfig()
			cfg.Extractor.Mode = core.ExtractorModeHeuristicModel
			return cfg
		}, nil},
		{"bad sweep spec", func() *core.Config {
			cfg := testConfig()
			cfg.Retention.TTLSecondsByKind = map[string]int64{"event": 60}
			cfg.Maintenance.SweepSpec = "every now and then"
			return cfg
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBackends(t)
			if tt.mutate != nil {
				tt.mutate(&b)
			}
			engine, err := core.NewEngine(tt.cfg(), b)
			require.Error(t, err)
			assert.Nil(t, engine)
			assert.True(t, errors.Is(err, core.ErrInvalidConfig))
		})
	}
}
