package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantdesk/agentmem/pkg/errors"
	"github.com/quantdesk/agentmem/pkg/reflection"
	reflectionpostgres "github.com/quantdesk/agentmem/pkg/reflection/store/postgres"
	reflectionsqlite "github.com/quantdesk/agentmem/pkg/reflection/store/sqlite"
)

// runReflectionStoreSuite exercises one reflection.Store implementation.
func runReflectionStoreSuite(t *testing.T, store reflection.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	newRecord := func(symbol string, due time.Time) reflection.Record {
		return reflection.Record{
			Market:          "crypto",
			Symbol:          symbol,
			InitialPrice:    100,
			Decision:        "BUY",
			Confidence:      80,
			Reasoning:       "trend continuation",
			AnalysisDate:    now.Add(-7 * 24 * time.Hour),
			TargetCheckDate: due,
			Status:          reflection.StatusPending,
		}
	}

	t.Run("claim only due pending records", func(t *testing.T) {
		dueID, err := store.Insert(ctx, newRecord("BTCUSDT", now.Add(-time.Hour)))
		require.NoError(t, err)
		_, err = store.Insert(ctx, newRecord("ETHUSDT", now.Add(24*time.Hour)))
		require.NoError(t, err)

		claimed, err := store.ClaimDue(ctx, now)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, dueID, claimed[0].ID)
		assert.Equal(t, "BTCUSDT", claimed[0].Symbol)
		assert.Equal(t, reflection.StatusInProgress, claimed[0].Status)
		assert.InDelta(t, 100, claimed[0].InitialPrice, 1e-9)

		// A second claim finds nothing; the record is already taken.
		claimed, err = store.ClaimDue(ctx, now)
		require.NoError(t, err)
		assert.Empty(t, claimed)
	})

	t.Run("complete is terminal", func(t *testing.T) {
		id, err := store.Insert(ctx, newRecord("SOLUSDT", now.Add(-time.Hour)))
		require.NoError(t, err)

		claimed, err := store.ClaimDue(ctx, now)
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		err = store.Complete(ctx, id, 105, 5.0, "Correct: price rose after BUY")
		require.NoError(t, err)

		// Completed records never re-enter the due set.
		claimed, err = store.ClaimDue(ctx, now)
		require.NoError(t, err)
		assert.Empty(t, claimed)

		err = store.Complete(ctx, id, 110, 10.0, "again")
		assert.ErrorIs(t, err, errors.ErrAlreadyCompleted)
		err = store.Release(ctx, id)
		assert.ErrorIs(t, err, errors.ErrAlreadyCompleted)
		err = store.MarkFailed(ctx, id, "late failure")
		assert.ErrorIs(t, err, errors.ErrAlreadyCompleted)
	})

	t.Run("release returns a claim to the due set", func(t *testing.T) {
		id, err := store.Insert(ctx, newRecord("XRPUSDT", now.Add(-time.Hour)))
		require.NoError(t, err)

		claimed, err := store.ClaimDue(ctx, now)
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		require.NoError(t, store.Release(ctx, id))

		claimed, err = store.ClaimDue(ctx, now)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, id, claimed[0].ID)

		require.NoError(t, store.Release(ctx, id))
	})

	t.Run("mark failed removes from the due set", func(t *testing.T) {
		id, err := store.Insert(ctx, newRecord("DOGEUSDT", now.Add(-time.Hour)))
		require.NoError(t, err)

		require.NoError(t, store.MarkFailed(ctx, id, "price source retired"))

		claimed, err := store.ClaimDue(ctx, now)
		require.NoError(t, err)
		for _, record := range claimed {
			assert.NotEqual(t, id, record.ID)
		}
		for _, record := range claimed {
			require.NoError(t, store.Release(ctx, record.ID))
		}
	})

	t.Run("unknown ids report not found", func(t *testing.T) {
		const missing = "00000000-0000-0000-0000-000000000000"
		assert.ErrorIs(t, store.Complete(ctx, missing, 1, 1, "x"), errors.ErrNotFound)
		assert.ErrorIs(t, store.Release(ctx, missing), errors.ErrNotFound)
		assert.ErrorIs(t, store.MarkFailed(ctx, missing, "x"), errors.ErrNotFound)
	})

	t.Run("pending count and stats", func(t *testing.T) {
		count, err := store.PendingCount(ctx)
		require.NoError(t, err)
		// ETHUSDT (not yet due) and XRPUSDT (released) remain pending.
		assert.Equal(t, int64(2), count)

		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(5), stats.TotalRecords)
		assert.Equal(t, int64(2), stats.PendingRecords)
		assert.Equal(t, int64(1), stats.CompletedRecords)
		assert.InDelta(t, 5.0, stats.AverageReturn, 1e-9)
	})
}

func TestPostgresReflectionStore(t *testing.T) {
	pool := setupPostgres(t)
	runReflectionStoreSuite(t, reflectionpostgres.NewPostgresStore(pool))
}

func TestSQLiteReflectionStore(t *testing.T) {
	db := setupSQLite(t)
	runReflectionStoreSuite(t, reflectionsqlite.NewSQLiteStore(db))
}
