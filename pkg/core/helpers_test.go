package core_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/halldyll/recall-go/pkg/core"
	"github.com/halldyll/recall-go/pkg/embedder/hashing"
	"github.com/halldyll/recall-go/pkg/model"
	"github.com/halldyll/recall-go/pkg/storage"
	"github.com/halldyll/recall-go/pkg/storage/chromem"
	"github.com/halldyll/recall-go/pkg/storage/inmem"
)

const testDims = 1024

var epoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: epoch} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testConfig is an in-process configuration. Hashing embeddings score lower
// than model embeddings, hence the lower similarity floor.
func testConfig() *core.Config {
	cfg := core.DefaultConfig()
	cfg.Storage.Provider = "memory"
	cfg.Embedding.Provider = "hashing"
	cfg.Embedding.NDims = testDims
	cfg.LLM.Provider = "none"
	cfg.Retrieval.MinSimilarity = 0.1
	cfg.Maintenance.SweepSpec = ""
	return cfg
}

func testBackends(t *testing.T) core.Backends {
	t.Helper()
	transcripts, err := inmem.NewTranscriptStore()
	require.NoError(t, err)
	return core.Backends{
		Transcripts: transcripts,
		Summaries:   inmem.NewSummaryStore(),
		Vectors:     chromem.New(&chromem.Config{EmbeddingModelDims: testDims}),
		Embedder:    hashing.New(&hashing.Config{Dimensions: testDims}),
	}
}

func newTestEngine(t *testing.T, cfg *core.Config, b core.Backends, clock *testClock, opts ...core.Option) *core.Engine {
	t.Helper()
	opts = append([]core.Option{core.WithClock(clock.Now)}, opts...)
	engine, err := core.NewEngine(cfg, b, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

type flakyEmbedder struct {
	*hashing.Embedder
	fail    atomic.Bool
	batches atomic.Int32

	mu      sync.Mutex
	queries []string
}

func newFlakyEmbedder() *flakyEmbedder {
	return &flakyEmbedder{Embedder: hashing.New(&hashing.Config{Dimensions: testDims})}
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	f.mu.Lock()
	f.queries = append(f.queries, text)
	f.mu.Unlock()
	if f.fail.Load() {
		return nil, errors.New("embedding backend unavailable")
	}
	return f.Embedder.Embed(ctx, text)
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	f.batches.Add(1)
	if f.fail.Load() {
		return nil, errors.New("embedding backend unavailable")
	}
	return f.Embedder.EmbedBatch(ctx, texts)
}

func (f *flakyEmbedder) lastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return ""
	}
	return f.queries[len(f.queries)-1]
}

type failingSearch struct {
	storage.VectorStore
}

func (failingSearch) Search(context.Context, []float64, *storage.SearchOptions) ([]model.RankedMemory, error) {
	return nil, context.DeadlineExceeded
}

type failingAppend struct {
	storage.TranscriptStore
}

func (failingAppend) Append(context.Context, ...*model.TranscriptEvent) error {
	return errors.New("disk full")
}

type failingRecent struct {
	storage.TranscriptStore
}

func (failingRecent) Recent(context.Context, model.SessionID, int) ([]model.TranscriptEvent, error) {
	return nil, errors.New("connection refused")
}

type failingSummaryGet struct {
	storage.SummaryStore
}

func (failingSummaryGet) Get(context.Context, model.SessionID) (*model.SessionSummary, error) {
	return nil, errors.New("connection refused")
}

type failingInsert struct {
	storage.VectorStore
}

func (failingInsert) Insert(context.Context, *model.MemoryItem) error {
	return errors.New("connection reset")
}

func contents(ms []model.RankedMemory) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Item.Content
	}
	return out
}

func allItems(t *testing.T, vectors storage.VectorStore, session model.SessionID) []*model.MemoryItem {
	t.Helper()
	items, err := vectors.GetAll(context.Background(), &storage.GetAllOptions{SessionID: session})
	require.NoError(t, err)
	return items
}
