package core

import (
	"github.com/halldyll/recall-go/pkg/model"
	"github.com/halldyll/recall-go/pkg/prompt"
)

// Steps that may degrade without failing the enclosing call. They are used
// as log fields and metric labels.
const (
	StepEmbedding       = "embedding"
	StepVectorSearch    = "vector_search"
	StepModelExtraction = "model_extraction"
	StepSummary         = "summary"
	StepShortTerm       = "short_term"
	StepSummaryLoad     = "summary_load"
)

// Degradation records which optional steps fell back during one call.
type Degradation struct {
	// Embedding is set when the embedding backend failed or timed out.
	Embedding bool

	// VectorSearch is set when the vector store failed or timed out.
	VectorSearch bool

	// ModelExtraction is set when the model-assisted extraction pass failed.
	ModelExtraction bool

	// Summary is set when summary regeneration failed and the prior summary
	// was kept.
	Summary bool

	// ShortTerm is set when the transcript could not be read and the
	// short-term section was left empty.
	ShortTerm bool

	// SummaryLoad is set when the stored summary could not be read and the
	// summary section was left empty.
	SummaryLoad bool
}

// Any reports whether any step degraded.
func (d Degradation) Any() bool {
	return d.Embedding || d.VectorSearch || d.ModelExtraction || d.Summary ||
		d.ShortTerm || d.SummaryLoad
}

// TurnResult is the outcome of RecordTurn.
type TurnResult struct {
	// TurnID identifies the recorded turn's transcript events.
	TurnID model.TurnID

	// TurnNumber is the session's turn counter after this turn.
	TurnNumber int64

	// Stored holds the memory items persisted for this turn.
	Stored []*model.MemoryItem

	// Suppressed counts drafts that were already stored for the session.
	Suppressed int

	// Dropped counts drafts discarded by validation or a failed embedding.
	Dropped int

	// SummaryUpdated is set when the rolling summary was regenerated.
	SummaryUpdated bool

	Degraded Degradation
}

// PreparedContext is the outcome of PrepareContext.
type PreparedContext struct {
	// Summary is the rolling summary after budget trimming, empty if none.
	Summary string

	// Memories are the ranked memories that survived budget trimming.
	Memories []model.RankedMemory

	// ShortTerm holds the recent transcript events, chronological.
	ShortTerm []model.TranscriptEvent

	UserMessage string

	// Prompt is the rendered block, never longer than prompt.max_chars
	// unless the user message alone is.
	Prompt string

	// Trim reports what the budget removed.
	Trim prompt.Report

	Degraded Degradation
}

// TurnOutcome is delivered by AsyncEngine.RecordTurnAsync.
type TurnOutcome struct {
	Result *TurnResult
	Error  error
}

// ContextOutcome is delivered by AsyncEngine.PrepareContextAsync.
type ContextOutcome struct {
	Context *PreparedContext
	Error   error
}
