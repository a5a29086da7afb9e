// Package extract derives candidate memory drafts from a conversation turn.
//
// A heuristic pass over a rule table always runs. A model-assisted pass may
// run every N turns; its failure only costs the extra drafts it would have
// produced.
package extract

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/halldyll/recall-go/pkg/dedupe"
	"github.com/halldyll/recall-go/pkg/model"
)

// Config bounds the drafts an Extractor emits.
type Config struct {
	// MinContentChars drops drafts shorter than this after trimming.
	MinContentChars int

	// MaxContentChars truncates longer drafts. Zero disables truncation.
	MaxContentChars int

	// ModelEveryNTurns runs the model pass on turns divisible by it. Zero
	// disables the model pass.
	ModelEveryNTurns int64

	// ModelTimeout bounds the model pass. Zero means no extra bound.
	ModelTimeout time.Duration
}

// Result is the outcome of extracting one turn.
type Result struct {
	// Drafts are ordered: heuristic drafts first, then model drafts.
	Drafts []model.Draft

	// TooShort, Sensitive and Duplicate count drafts dropped for each reason.
	TooShort  int
	Sensitive int
	Duplicate int

	// ModelRan is set when the model pass was attempted.
	ModelRan bool

	// ModelErr holds the model pass failure, if any.
	ModelErr error
}

// Extractor combines the heuristic and model-assisted passes.
type Extractor struct {
	cfg       Config
	heuristic *Heuristic
	model     *ModelPass
	logger    *slog.Logger
}

// New creates an extractor. pass may be nil for heuristic-only extraction;
// logger may be nil.
func New(cfg Config, heuristic *Heuristic, pass *ModelPass, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Extractor{cfg: cfg, heuristic: heuristic, model: pass, logger: logger}
}

// ModelDue reports whether the model pass runs for a turn number.
func (e *Extractor) ModelDue(turn int64) bool {
	return e.model != nil && e.cfg.ModelEveryNTurns > 0 && turn > 0 && turn%e.cfg.ModelEveryNTurns == 0
}

// Extract returns the admitted drafts of one turn. It never fails: a model
// pass error is reported in Result.ModelErr and the heuristic drafts are
// still returned.
//
// When both passes propose the same normalized content, the heuristic draft
// is kept and the model draft is dropped, whatever its kind.
func (e *Extractor) Extract(ctx context.Context, turn model.Turn) Result {
	var res Result

	candidates := e.heuristic.Extract(turn)

	if e.ModelDue(turn.Number) {
		res.ModelRan = true
		mctx := ctx
		if e.cfg.ModelTimeout > 0 {
			var cancel context.CancelFunc
			mctx, cancel = context.WithTimeout(ctx, e.cfg.ModelTimeout)
			defer cancel()
		}
		drafts, err := e.model.Extract(mctx, turn)
		if err != nil {
			res.ModelErr = err
		} else {
			candidates = append(candidates, drafts...)
		}
	}

	seen := make(map[string]model.Draft, len(candidates))
	for _, d := range candidates {
		if e.cfg.MaxContentChars > 0 {
			d.Content = model.Truncate(d.Content, e.cfg.MaxContentChars)
		}
		if utf8.RuneCountInString(d.Content) < e.cfg.MinContentChars {
			res.TooShort++
			continue
		}
		if IsSensitive(d.Content) {
			res.Sensitive++
			continue
		}
		h := dedupe.Hash(d.Content)
		if prev, ok := seen[h]; ok {
			res.Duplicate++
			if prev.Kind != d.Kind {
				e.logger.Debug("kind conflict between extraction passes",
					"session_id", turn.SessionID.String(),
					"kept_kind", string(prev.Kind),
					"dropped_kind", string(d.Kind),
					"dropped_source", string(d.Source))
			}
			continue
		}
		seen[h] = d
		res.Drafts = append(res.Drafts, d)
	}
	return res
}
