package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/halldyll/recall-go/pkg/dedupe"
	"github.com/halldyll/recall-go/pkg/embedder"
	"github.com/halldyll/recall-go/pkg/extract"
	"github.com/halldyll/recall-go/pkg/llm"
	"github.com/halldyll/recall-go/pkg/model"
	"github.com/halldyll/recall-go/pkg/prompt"
	"github.com/halldyll/recall-go/pkg/ranking"
	"github.com/halldyll/recall-go/pkg/storage"
	"github.com/halldyll/recall-go/pkg/telemetry"
)

// candidateFactor widens the vector search so that ranking and TTL filtering
// still have top_k candidates to choose from.
const candidateFactor = 3

// mergeCandidates bounds the neighbours checked for a semantic duplicate.
const mergeCandidates = 5

// Backends are the collaborators an Engine is built on. LLM is optional
// unless the extractor mode is "heuristic+model".
type Backends struct {
	Transcripts storage.TranscriptStore
	Summaries   storage.SummaryStore
	Vectors     storage.VectorStore
	Embedder    embedder.Provider
	LLM         llm.Provider
}

func (b Backends) validate(cfg *Config) error {
	switch {
	case b.Transcripts == nil:
		return errors.New("missing transcript store")
	case b.Summaries == nil:
		return errors.New("missing summary store")
	case b.Vectors == nil:
		return errors.New("missing vector store")
	case b.Embedder == nil:
		return errors.New("missing embedding backend")
	case b.Embedder.Dimensions() != cfg.Embedding.NDims:
		return errors.New("embedding backend dimension does not match embedding.ndims")
	case b.LLM == nil && cfg.Extractor.Mode == ExtractorModeHeuristicModel:
		return errors.New("extractor mode heuristic+model requires a language model")
	}
	return nil
}

// Engine is the conversational memory engine.
//
// It records turns (transcript, extracted memories, rolling summary) and
// prepares bounded prompt contexts from them. An Engine is safe for
// concurrent use across sessions. It holds no engine-wide lock: callers
// must serialize turns within one session, keeping at most one RecordTurn
// in flight per session.
//
// Example usage:
//
//	cfg, _ := core.LoadConfigFromEnv()
//	engine, _ := core.NewEngineFromConfig(cfg)
//	defer engine.Close()
//
//	session := model.NewSessionID()
//	_, _ = engine.RecordTurn(ctx, session, "I love dark themes", "Noted!", nil)
//	pc, _ := engine.PrepareContext(ctx, session, "what theme do I prefer?", 0)
//	fmt.Println(pc.Prompt)
type Engine struct {
	cfg *Config

	transcripts storage.TranscriptStore
	summaries   storage.SummaryStore
	vectors     storage.VectorStore
	embedder    embedder.Provider
	llm         llm.Provider

	extractor  *extract.Extractor
	dedupe     *dedupe.Cache
	ranker     *ranking.Ranker
	ttl        ranking.TTLPolicy
	budget     prompt.Budget
	summarizer *summarizer

	logger  *slog.Logger
	metrics *telemetry.Metrics
	clock   func() time.Time

	sweepMu sync.Mutex
	cron    *cron.Cron

	closeOnce sync.Once
	closeErr  error
}

// NewEngine creates an engine over the given backends.
//
// The engine is initialized with:
//   - a heuristic extractor, plus the model pass in "heuristic+model" mode
//   - a dedupe cache of short_term.cache_capacity entries
//   - a ranker and TTL policy from the scoring and retention settings
//   - a background sweep when maintenance.sweep_spec is set and a TTL exists
//
// Parameters:
//   - cfg: Engine configuration, validated here
//   - b: Stores and backends; LLM may be nil
//   - opts: Optional logger, clock, metrics registerer and rules
//
// Returns an error matching ErrInvalidConfig if the configuration is invalid
// or a required backend is missing.
func NewEngine(cfg *Config, b Backends, opts ...Option) (*Engine, error) {
	const op = "NewEngine"
	if cfg == nil {
		return nil, NewMemoryError(op, ErrInvalidConfig, errors.New("nil config"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := b.validate(cfg); err != nil {
		return nil, NewMemoryError(op, ErrInvalidConfig, err)
	}

	o := defaultEngineOptions()
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}

	var metrics *telemetry.Metrics
	if o.registerer != nil {
		m, err := telemetry.NewMetrics(o.registerer)
		if err != nil {
			return nil, NewMemoryError(op, ErrInvalidConfig, err)
		}
		metrics = m
	}

	rules := o.rules
	if rules == nil {
		rules = extract.DefaultRules()
	}
	ruleSet, err := extract.NewRuleSet(rules)
	if err != nil {
		return nil, NewMemoryError(op, ErrInvalidConfig, err)
	}
	var pass *extract.ModelPass
	if cfg.Extractor.Mode == ExtractorModeHeuristicModel {
		pass = extract.NewModelPass(b.LLM, cfg.Extractor.LLMMaxItems)
	}
	extractor := extract.New(extract.Config{
		MinContentChars:  cfg.Extractor.MinContentChars,
		MaxContentChars:  cfg.Prompt.MaxMemoryChars,
		ModelEveryNTurns: cfg.Extractor.LLMEveryNTurns,
		ModelTimeout:     seconds(cfg.LLM.TimeoutSeconds),
	}, extract.NewHeuristic(ruleSet), pass, logger)

	cache, err := dedupe.NewCache(cfg.ShortTerm.CacheCapacity)
	if err != nil {
		return nil, NewMemoryError(op, ErrInvalidConfig, err)
	}

	e := &Engine{
		cfg:         cfg,
		transcripts: b.Transcripts,
		summaries:   b.Summaries,
		vectors:     b.Vectors,
		embedder:    b.Embedder,
		llm:         b.LLM,
		extractor:   extractor,
		dedupe:      cache,
		ranker: ranking.NewRanker(
			cfg.Scoring.AlphaRecency,
			cfg.Scoring.BetaSalience,
			seconds(cfg.Scoring.RecencyHalfLifeSeconds),
			cfg.Retrieval.TopK,
		),
		ttl: ranking.TTLPolicy(cfg.TTLs()),
		budget: prompt.Budget{
			MaxChars:     cfg.Prompt.MaxChars,
			SummaryChars: cfg.Prompt.MaxMemoryChars,
		},
		summarizer: &summarizer{
			llm:         b.LLM,
			maxChars:    cfg.Summary.MaxChars,
			timeout:     seconds(cfg.LLM.TimeoutSeconds),
			temperature: cfg.LLM.Temperature,
			maxTokens:   cfg.LLM.MaxTokens,
		},
		logger:  logger,
		metrics: metrics,
		clock:   o.clock,
	}

	if cfg.Maintenance.SweepSpec != "" && len(e.ttl) > 0 {
		if err := e.StartSweeper(cfg.Maintenance.SweepSpec); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Metrics returns the engine's collectors, nil without WithRegisterer.
func (e *Engine) Metrics() *telemetry.Metrics {
	return e.metrics
}

// RecordTurn records one conversation turn.
//
// The method:
//  1. Appends the user, assistant and tool events to the transcript
//  2. Extracts memory drafts (heuristic, plus the model every N turns)
//  3. Suppresses drafts already stored for the session
//  4. Embeds the remaining drafts in one batch, merges near-duplicates of
//     live memories and inserts the rest into the vector store
//  5. Regenerates the rolling summary every summary.interval_turns turns
//
// Only the transcript append and the memory inserts can fail the call. A
// failing model pass, embedding or summary is reported in
// TurnResult.Degraded; a failed embedding drops that turn's drafts.
//
// Parameters:
//   - ctx: Context for cancellation
//   - session: Session the turn belongs to
//   - userText: The user message, required
//   - assistantText: The assistant reply, may be empty
//   - toolEvents: Tool results produced during the turn
//
// Returns the turn result, or an error matching ErrValidation or ErrStorage.
func (e *Engine) RecordTurn(ctx context.Context, session model.SessionID, userText, assistantText string, toolEvents []model.ToolEvent) (*TurnResult, error) {
	const op = "RecordTurn"
	if session.IsZero() {
		return nil, NewMemoryError(op, ErrValidation, errors.New("missing session id"))
	}
	if strings.TrimSpace(userText) == "" {
		return nil, NewMemoryError(op, ErrValidation, errors.New("empty user message"))
	}

	ctx = telemetry.WithCorrelationID(ctx, telemetry.CorrelationID(ctx))
	logger := telemetry.SessionLogger(ctx, e.logger, op, session.String())

	now := e.clock()
	turnID := model.NewTurnID(now)
	events := turnEvents(session, turnID, now, userText, assistantText, toolEvents)
	if err := e.transcripts.Append(ctx, events...); err != nil {
		return nil, NewMemoryError(op, ErrStorage, err)
	}
	e.metrics.TurnRecorded()

	turnNo, err := e.transcripts.CountTurns(ctx, session)
	if err != nil {
		return nil, NewMemoryError(op, ErrStorage, err)
	}
	res := &TurnResult{TurnID: turnID, TurnNumber: turnNo}

	ext := e.extractor.Extract(ctx, model.Turn{
		SessionID:     session,
		Number:        turnNo,
		UserText:      userText,
		AssistantText: assistantText,
		ToolEvents:    toolEvents,
	})
	if ext.ModelErr != nil {
		res.Degraded.ModelExtraction = true
		e.degrade(logger, StepModelExtraction, ext.ModelErr)
	}
	res.Dropped = ext.TooShort + ext.Sensitive
	res.Suppressed = ext.Duplicate

	if _, err := e.admit(ctx, logger, session, ext.Drafts, now, res); err != nil {
		return nil, NewMemoryError(op, ErrStorage, err)
	}

	if turnNo%e.cfg.Summary.IntervalTurns == 0 {
		updated, err := e.updateSummary(ctx, session, turnNo, now)
		if err != nil {
			res.Degraded.Summary = true
			e.degrade(logger, StepSummary, err)
		}
		res.SummaryUpdated = updated
	}

	logger.Debug("turn recorded",
		"turn", turnNo,
		"stored", len(res.Stored),
		"suppressed", res.Suppressed,
		"dropped", res.Dropped)
	return res, nil
}

// Remember stores one memory directly, bypassing extraction. Dedupe and
// embedding still apply; an exact or semantic duplicate returns the stored
// item.
//
// Returns an error matching ErrValidation, ErrBackend or ErrStorage.
func (e *Engine) Remember(ctx context.Context, session model.SessionID, kind model.MemoryKind, content string) (*model.MemoryItem, error) {
	const op = "Remember"
	if session.IsZero() {
		return nil, NewMemoryError(op, ErrValidation, errors.New("missing session id"))
	}
	if !kind.Valid() {
		return nil, NewMemoryError(op, ErrValidation, model.ErrUnknownKind)
	}
	content = model.Truncate(strings.TrimSpace(content), e.cfg.Prompt.MaxMemoryChars)
	if utf8.RuneCountInString(content) < e.cfg.Extractor.MinContentChars || content == "" {
		return nil, NewMemoryError(op, ErrValidation, errors.New("content too short"))
	}
	if extract.IsSensitive(content) {
		return nil, NewMemoryError(op, ErrValidation, errors.New("content looks like a secret"))
	}

	logger := telemetry.SessionLogger(ctx, e.logger, op, session.String())
	now := e.clock()
	draft := model.Draft{
		Kind:     kind,
		Content:  content,
		Salience: kind.DefaultSalience(),
		Source:   model.SourceExplicit,
	}

	var res TurnResult
	merged, err := e.admit(ctx, logger, session, []model.Draft{draft}, now, &res)
	if err != nil {
		return nil, NewMemoryError(op, ErrStorage, err)
	}
	switch {
	case res.Degraded.Embedding:
		return nil, NewMemoryError(op, ErrBackend, errors.New("embedding failed"))
	case len(res.Stored) == 1:
		return res.Stored[0], nil
	case len(merged) == 1:
		return merged[0], nil
	}

	item, err := e.vectors.FindByHash(ctx, session, dedupe.Hash(content))
	if err != nil {
		return nil, NewMemoryError(op, ErrStorage, err)
	}
	if item == nil {
		return nil, NewMemoryError(op, ErrValidation, errors.New("memory rejected"))
	}
	return item, nil
}

// admit dedupes, embeds and inserts drafts, updating res. It returns the
// live memories that near-duplicate drafts were merged into. Only storage
// failures are returned.
func (e *Engine) admit(ctx context.Context, logger *slog.Logger, session model.SessionID, drafts []model.Draft, now time.Time, res *TurnResult) ([]*model.MemoryItem, error) {
	fresh, suppressed, err := e.filterKnown(ctx, session, drafts, now)
	if err != nil {
		return nil, err
	}
	res.Suppressed += suppressed
	defer func() {
		e.metrics.Drafts(telemetry.OutcomeAdmitted, len(res.Stored))
		e.metrics.Drafts(telemetry.OutcomeSuppressed, res.Suppressed)
		e.metrics.Drafts(telemetry.OutcomeDropped, res.Dropped)
	}()
	if len(fresh) == 0 {
		return nil, nil
	}

	vecs, err := e.embedDrafts(ctx, fresh)
	if err != nil {
		res.Degraded.Embedding = true
		res.Dropped += len(fresh)
		e.degrade(logger, StepEmbedding, err)
		return nil, nil
	}

	var merged []*model.MemoryItem
	for i, d := range fresh {
		item := &model.MemoryItem{
			ID:        model.NewMemoryID(),
			SessionID: session,
			Kind:      d.Kind,
			Content:   d.Content,
			Hash:      dedupe.Hash(d.Content),
			Embedding: vecs[i],
			Salience:  d.Salience,
			Source:    d.Source,
			CreatedAt: now,
		}
		if err := item.Validate(e.cfg.Embedding.NDims, e.cfg.Prompt.MaxMemoryChars); err != nil {
			res.Dropped++
			logger.Debug("draft rejected", "kind", string(d.Kind), "error", err)
			continue
		}
		if match := e.mergeTarget(ctx, logger, item, now, res); match != nil {
			res.Suppressed++
			merged = append(merged, match)
			if err := e.vectors.Touch(ctx, now, match.ID); err != nil {
				logger.Warn("touch failed", "error", err)
			}
			logger.Debug("memory merged",
				"memory_id", match.ID.String(),
				"kind", string(d.Kind),
				"rule", d.Rule)
			continue
		}
		if err := e.vectors.Insert(ctx, item); err != nil {
			return merged, err
		}
		e.dedupe.Admit(session, item.Hash, item.Kind, now)
		res.Stored = append(res.Stored, item)
		logger.Debug("memory admitted",
			"memory_id", item.ID.String(),
			"kind", string(item.Kind),
			"source", string(item.Source),
			"rule", d.Rule)
	}
	return merged, nil
}

// filterKnown drops drafts whose hash is already live for the session,
// consulting the cache first and the vector store on a miss. Liveness
// follows the stored memory's kind. An expired stored duplicate is deleted
// so the draft can replace it.
func (e *Engine) filterKnown(ctx context.Context, session model.SessionID, drafts []model.Draft, now time.Time) ([]model.Draft, int, error) {
	var fresh []model.Draft
	suppressed := 0
	for _, d := range drafts {
		hash := dedupe.Hash(d.Content)
		if entry, ok := e.dedupe.LastSeen(session, hash); ok {
			if !e.ttl.Expired(&model.MemoryItem{Kind: entry.Kind, CreatedAt: entry.SeenAt}, now) {
				e.dedupe.Seen(session, hash)
				suppressed++
				continue
			}
			e.dedupe.Forget(session, hash)
		}

		existing, err := e.vectors.FindByHash(ctx, session, hash)
		if err != nil {
			return nil, 0, err
		}
		if existing != nil {
			if !e.ttl.Expired(existing, now) {
				e.dedupe.Admit(session, hash, existing.Kind, existing.CreatedAt)
				suppressed++
				continue
			}
			if err := e.vectors.Delete(ctx, existing.ID); err != nil {
				return nil, 0, err
			}
		}
		fresh = append(fresh, d)
	}
	return fresh, suppressed, nil
}

// mergeTarget returns the session's live memory closest to item when their
// similarity reaches extractor.semantic_dedupe_threshold. A failed search
// degrades to no match.
func (e *Engine) mergeTarget(ctx context.Context, logger *slog.Logger, item *model.MemoryItem, now time.Time, res *TurnResult) *model.MemoryItem {
	threshold := e.cfg.Extractor.SemanticDedupeThreshold
	if threshold <= 0 {
		return nil
	}
	hits, err := e.vectors.Search(ctx, item.Embedding, &storage.SearchOptions{
		SessionID: item.SessionID,
		Limit:     mergeCandidates,
		MinScore:  threshold,
	})
	if err != nil {
		res.Degraded.VectorSearch = true
		e.degrade(logger, StepVectorSearch, err)
		return nil
	}
	live, _ := e.ttl.Filter(hits, now)
	for _, h := range live {
		if h.Similarity >= threshold {
			return h.Item
		}
	}
	return nil
}

// embedDrafts embeds every draft with a single backend request.
func (e *Engine) embedDrafts(ctx context.Context, drafts []model.Draft) ([][]float64, error) {
	ctx, cancel := withTimeout(ctx, e.cfg.Embedding.TimeoutSeconds)
	defer cancel()

	texts := make([]string, len(drafts))
	for i, d := range drafts {
		texts[i] = d.Content
	}
	vecs, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding backend returned %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

// PrepareContext assembles the memory context for a user message.
//
// The method:
//  1. Loads the short-term window (recentTurnsHint > 0 narrows it)
//  2. Embeds the message together with the last short-term turn and
//     searches the vector store
//  3. Skips expired memories and ranks the rest
//  4. Loads the rolling summary, concurrently with steps 1 to 3
//  5. Trims everything to prompt.max_chars and renders the block
//
// Every read degrades instead of failing: an unreadable transcript or summary
// leaves its section empty, and an embedding or vector search failure
// leaves the memories section empty. PreparedContext.Degraded records
// which. The only side effect is a best-effort access-time update; expired
// memories are removed by Sweep, never here.
//
// Parameters:
//   - ctx: Context for cancellation
//   - session: Session to prepare the context for
//   - userMessage: The incoming user message, never trimmed
//   - recentTurnsHint: Optional smaller short-term window, 0 for the default
//
// Returns the prepared context, or an error matching ErrValidation.
func (e *Engine) PrepareContext(ctx context.Context, session model.SessionID, userMessage string, recentTurnsHint int) (*PreparedContext, error) {
	const op = "PrepareContext"
	start := time.Now()
	defer func() { e.metrics.ObservePrepare(time.Since(start)) }()

	if session.IsZero() {
		return nil, NewMemoryError(op, ErrValidation, errors.New("missing session id"))
	}
	if strings.TrimSpace(userMessage) == "" {
		return nil, NewMemoryError(op, ErrValidation, errors.New("empty user message"))
	}

	ctx = telemetry.WithCorrelationID(ctx, telemetry.CorrelationID(ctx))
	logger := telemetry.SessionLogger(ctx, e.logger, op, session.String())
	now := e.clock()

	window := e.cfg.ShortTerm.Window
	if recentTurnsHint > 0 && recentTurnsHint < window {
		window = recentTurnsHint
	}

	var (
		events     []model.TranscriptEvent
		memories   []model.RankedMemory
		summary    *model.SessionSummary
		recallDeg  Degradation
		summaryErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		var err error
		events, err = e.transcripts.Recent(ctx, session, window)
		if err != nil {
			events = nil
			recallDeg.ShortTerm = true
			e.degrade(logger, StepShortTerm, err)
		}
		query := retrievalQuery(userMessage, events, e.cfg.Prompt.MaxMemoryChars)
		memories = e.retrieve(ctx, logger, session, query, now, &recallDeg)
		return nil
	})
	g.Go(func() error {
		summary, summaryErr = e.summaries.Get(ctx, session)
		return nil
	})
	_ = g.Wait()

	out := &PreparedContext{UserMessage: userMessage, Degraded: recallDeg}
	if summaryErr != nil {
		summary = nil
		out.Degraded.SummaryLoad = true
		e.degrade(logger, StepSummaryLoad, summaryErr)
	}

	parts := prompt.Parts{
		Memories:    memories,
		ShortTerm:   events,
		UserMessage: userMessage,
	}
	if summary != nil {
		parts.Summary = summary.Text
	}

	fitted, report := e.budget.Fit(parts, now)
	out.Summary = fitted.Summary
	out.Memories = fitted.Memories
	out.ShortTerm = fitted.ShortTerm
	out.Prompt = prompt.Build(fitted, now)
	out.Trim = report

	if len(out.Memories) > 0 {
		ids := make([]model.MemoryID, len(out.Memories))
		for i, m := range out.Memories {
			ids[i] = m.Item.ID
		}
		if err := e.vectors.Touch(ctx, now, ids...); err != nil {
			logger.Warn("touch failed", "error", err)
		}
	}
	return out, nil
}

// retrievalQuery appends the last short-term turn to the user message, so a
// follow-up such as "and the second one?" still carries its topic. Tool
// output is left out and the appended text is capped at maxChars.
func retrievalQuery(userMessage string, events []model.TranscriptEvent, maxChars int) string {
	var prev strings.Builder
	for _, ev := range lastTurns(events, 1) {
		if ev.Role == model.RoleTool {
			continue
		}
		prev.WriteByte('\n')
		prev.WriteString(ev.Content)
	}
	if prev.Len() == 0 {
		return userMessage
	}
	return userMessage + model.Truncate(prev.String(), maxChars)
}

// retrieve returns ranked live memories for query. Expired hits are skipped,
// not deleted. Failures degrade to an empty result.
func (e *Engine) retrieve(ctx context.Context, logger *slog.Logger, session model.SessionID, query string, now time.Time, deg *Degradation) []model.RankedMemory {
	rctx, cancel := withTimeout(ctx, e.cfg.Retrieval.TimeoutSeconds)
	defer cancel()

	ectx, ecancel := withTimeout(rctx, e.cfg.Embedding.TimeoutSeconds)
	vec, err := e.embedder.Embed(ectx, query)
	ecancel()
	if err == nil {
		err = embedder.CheckDimensions(e.embedder, vec)
	}
	if err != nil {
		deg.Embedding = true
		e.degrade(logger, StepEmbedding, err)
		return nil
	}

	opts := &storage.SearchOptions{
		Limit:    e.cfg.Retrieval.TopK * candidateFactor,
		MinScore: e.cfg.Retrieval.MinSimilarity,
	}
	if e.cfg.Retrieval.Scoped {
		opts.SessionID = session
	}
	hits, err := e.vectors.Search(rctx, vec, opts)
	if err != nil {
		deg.VectorSearch = true
		e.degrade(logger, StepVectorSearch, err)
		return nil
	}

	live, _ := e.ttl.Filter(hits, now)
	return e.ranker.Rank(live, now)
}

// updateSummary regenerates the rolling summary from the turns it has not
// covered yet. On failure the prior summary stays in place.
func (e *Engine) updateSummary(ctx context.Context, session model.SessionID, turnNo int64, now time.Time) (bool, error) {
	prior, err := e.summaries.Get(ctx, session)
	if err != nil {
		return false, err
	}
	var priorText string
	var since int64
	if prior != nil {
		priorText, since = prior.Text, prior.TurnCount
	}
	pending := turnNo - since
	if pending <= 0 {
		return false, nil
	}

	events, err := e.pendingEvents(ctx, session, pending)
	if err != nil {
		return false, err
	}
	text, err := e.summarizer.summarize(ctx, priorText, events)
	if err != nil {
		return false, err
	}

	err = e.summaries.Put(ctx, &model.SessionSummary{
		SessionID: session,
		Text:      text,
		TurnCount: turnNo,
		UpdatedAt: now,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// pendingEvents returns every event of the session's last n turns. The read
// widens until it reaches past the oldest of those turns or the start of the
// transcript, however many tool events a turn holds.
func (e *Engine) pendingEvents(ctx context.Context, session model.SessionID, n int64) ([]model.TranscriptEvent, error) {
	limit := int(n) * eventsPerTurn
	for {
		recent, err := e.transcripts.Recent(ctx, session, limit)
		if err != nil {
			return nil, err
		}
		if len(recent) < limit || distinctTurns(recent) > n {
			return lastTurns(recent, n), nil
		}
		limit *= 2
	}
}

// Sweep deletes every memory whose kind's TTL has elapsed.
func (e *Engine) Sweep(ctx context.Context) (ranking.SweepResult, error) {
	res, err := e.ttl.Sweep(ctx, e.vectors, e.clock())
	e.metrics.Swept(res.Deleted)
	if err != nil {
		return res, NewMemoryError("Sweep", ErrStorage, err)
	}
	if res.Deleted > 0 {
		e.logger.Info("expired memories swept", "scanned", res.Scanned, "deleted", res.Deleted)
	}
	return res, nil
}

// Close stops the sweeper and closes every backend.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.StopSweeper()

		var errs []error
		for _, c := range []interface{ Close() error }{e.transcripts, e.summaries, e.vectors, e.embedder} {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if e.llm != nil {
			if err := e.llm.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}

func (e *Engine) degrade(logger *slog.Logger, step string, err error) {
	e.metrics.Degraded(step)
	logger.Warn("step degraded", "step", step, "error", err)
}

func turnEvents(session model.SessionID, turnID model.TurnID, now time.Time, userText, assistantText string, tools []model.ToolEvent) []*model.TranscriptEvent {
	events := []*model.TranscriptEvent{{
		TurnID:    turnID,
		SessionID: session,
		Role:      model.RoleUser,
		Content:   userText,
		Timestamp: now,
	}}
	for _, t := range tools {
		events = append(events, &model.TranscriptEvent{
			TurnID:    turnID,
			SessionID: session,
			Role:      model.RoleTool,
			Content:   t.Content,
			ToolName:  t.Name,
			Timestamp: now,
		})
	}
	if strings.TrimSpace(assistantText) != "" {
		events = append(events, &model.TranscriptEvent{
			TurnID:    turnID,
			SessionID: session,
			Role:      model.RoleAssistant,
			Content:   assistantText,
			Timestamp: now,
		})
	}
	return events
}

func withTimeout(ctx context.Context, secs float64) (context.Context, context.CancelFunc) {
	if secs <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, seconds(secs))
}
