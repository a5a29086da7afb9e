// Package ranking scores retrieved memories and decides which ones have
// outlived their retention period.
package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/halldyll/recall-go/pkg/model"
)

// DefaultHalfLife is the recency half-life used when none is configured.
const DefaultHalfLife = 7 * 24 * time.Hour

// Ranker combines similarity, recency and salience into one score:
//
//	score = similarity*(1-alpha-beta) + decay*alpha + salience*beta
//	decay = 0.5 ^ (age / half_life)
//
// A Ranker is immutable and safe for concurrent use.
type Ranker struct {
	alpha    float64
	beta     float64
	halfLife time.Duration
	topK     int
}

// NewRanker creates a ranker. A non-positive halfLife falls back to
// DefaultHalfLife; a non-positive topK disables truncation.
func NewRanker(alpha, beta float64, halfLife time.Duration, topK int) *Ranker {
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	return &Ranker{alpha: alpha, beta: beta, halfLife: halfLife, topK: topK}
}

// Decay returns the exponential recency weight for an item of the given age.
// It is 1 at age zero, 0.5 at one half-life, and strictly decreasing.
func Decay(age, halfLife time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return math.Pow(0.5, age.Seconds()/halfLife.Seconds())
}

// Score computes the combined score for one candidate at instant now and
// fills in its components.
func (r *Ranker) Score(c *model.RankedMemory, now time.Time) {
	c.Recency = Decay(c.Item.Age(now), r.halfLife)
	c.Salience = c.Item.Salience
	c.Score = c.Similarity*(1-r.alpha-r.beta) + c.Recency*r.alpha + c.Salience*r.beta
}

// Rank scores every candidate, orders them by descending score (newer
// created_at first on ties) and keeps at most topK. The input slice is not
// modified.
func (r *Ranker) Rank(candidates []model.RankedMemory, now time.Time) []model.RankedMemory {
	out := make([]model.RankedMemory, len(candidates))
	copy(out, candidates)
	for i := range out {
		r.Score(&out[i], now)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Item.CreatedAt.After(out[j].Item.CreatedAt)
	})

	if r.topK > 0 && len(out) > r.topK {
		out = out[:r.topK]
	}
	return out
}
