package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecencyScore(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	halfLife := 30.0

	t.Run("fresh record scores one", func(t *testing.T) {
		assert.InDelta(t, 1.0, recencyScore(now, now, halfLife), 1e-12)
	})

	t.Run("half life old record scores exactly half", func(t *testing.T) {
		createdAt := now.AddDate(0, 0, -30)
		assert.InDelta(t, 0.5, recencyScore(now, createdAt, halfLife), 1e-9)
	})

	t.Run("two half lives score a quarter", func(t *testing.T) {
		createdAt := now.AddDate(0, 0, -60)
		assert.InDelta(t, 0.25, recencyScore(now, createdAt, halfLife), 1e-9)
	})

	t.Run("decay is monotonic in age", func(t *testing.T) {
		prev := 1.1
		for days := 0; days <= 365; days += 7 {
			score := recencyScore(now, now.AddDate(0, 0, -days), halfLife)
			assert.Less(t, score, prev, "score must strictly decrease at age %d days", days)
			assert.Greater(t, score, 0.0)
			prev = score
		}
	})

	t.Run("future timestamps clamp to one", func(t *testing.T) {
		createdAt := now.Add(48 * time.Hour)
		assert.InDelta(t, 1.0, recencyScore(now, createdAt, halfLife), 1e-12)
	})

	t.Run("missing timestamp contributes nothing", func(t *testing.T) {
		assert.Zero(t, recencyScore(now, time.Time{}, halfLife))
	})

	t.Run("tiny half life is floored", func(t *testing.T) {
		createdAt := now.Add(-24 * time.Hour)
		assert.InDelta(t,
			recencyScore(now, createdAt, minHalfLifeDays),
			recencyScore(now, createdAt, 0.0001),
			1e-12)
	})
}

func TestReturnsScore(t *testing.T) {
	t.Run("nil returns contribute nothing", func(t *testing.T) {
		assert.Zero(t, returnsScore(nil))
	})

	t.Run("zero maps to zero", func(t *testing.T) {
		zero := 0.0
		assert.Zero(t, returnsScore(&zero))
	})

	t.Run("bounded in open unit interval", func(t *testing.T) {
		for _, r := range []float64{-10000, -500, -15, -1, 1, 15, 500, 10000} {
			r := r
			score := returnsScore(&r)
			assert.Greater(t, score, -1.0, "returns %v", r)
			assert.Less(t, score, 1.0, "returns %v", r)
			if r > 0 {
				assert.Positive(t, score)
			} else {
				assert.Negative(t, score)
			}
		}
	})

	t.Run("symmetric around zero", func(t *testing.T) {
		pos, neg := 7.5, -7.5
		assert.InDelta(t, returnsScore(&pos), -returnsScore(&neg), 1e-12)
	})
}

func TestTextRatio(t *testing.T) {
	t.Run("identical strings", func(t *testing.T) {
		assert.InDelta(t, 1.0, textRatio("BTC breakout above resistance", "BTC breakout above resistance"), 1e-12)
	})

	t.Run("case insensitive", func(t *testing.T) {
		assert.InDelta(t, 1.0, textRatio("BTC Breakout", "btc breakout"), 1e-12)
	})

	t.Run("related beats unrelated", func(t *testing.T) {
		query := "btc breakout above resistance with rising volume"
		related := textRatio(query, "btc broke resistance on strong volume")
		unrelated := textRatio(query, "quarterly earnings call for industrial stocks")
		assert.Greater(t, related, unrelated)
	})

	t.Run("empty sides", func(t *testing.T) {
		assert.Zero(t, textRatio("", "something"))
		assert.Zero(t, textRatio("something", ""))
	})
}
