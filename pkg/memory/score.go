package memory

import (
	"math"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
)

// timeframePenalty is subtracted from a candidate's combined score when the
// caller filters by timeframe and the candidate's differs.
const timeframePenalty = 0.15

// minHalfLifeDays is the floor for the recency half-life.
const minHalfLifeDays = 0.1

// textRatio is the similarity fallback when either side lacks an embedding:
// a sequence-matching ratio over the lowercased strings, in [0, 1]. It
// guarantees a usable score even with vectorization disabled entirely.
func textRatio(a, b string) float64 {
	matcher := difflib.NewMatcher(
		strings.Split(strings.ToLower(a), ""),
		strings.Split(strings.ToLower(b), ""),
	)
	return matcher.Ratio()
}

// recencyScore decays with age: 2^(-age_days / half_life_days). A record
// created now scores 1.0 and one exactly half_life_days old scores 0.5.
// A missing creation time contributes nothing.
func recencyScore(now, createdAt time.Time, halfLifeDays float64) float64 {
	if createdAt.IsZero() {
		return 0
	}

	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}

	halfLife := halfLifeDays
	if halfLife < minHalfLifeDays {
		halfLife = minHalfLifeDays
	}

	return math.Exp(-math.Ln2 * ageDays / halfLife)
}

// returnsScore bounds unbounded percentage returns into (-1, 1) via
// tanh(returns / 10), rewarding large positive outcomes without letting them
// dominate. A record with no recorded return contributes nothing.
func returnsScore(returns *float64) float64 {
	if returns == nil {
		return 0
	}
	return math.Tanh(*returns / 10)
}
