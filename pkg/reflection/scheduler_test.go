package reflection_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/quantdesk/agentmem/pkg/errors"
	"github.com/quantdesk/agentmem/pkg/memory"
	pricingmock "github.com/quantdesk/agentmem/pkg/pricing/adapters/mock"
	"github.com/quantdesk/agentmem/pkg/reflection"
	storemock "github.com/quantdesk/agentmem/pkg/reflection/store/mock"
)

type mockMemoryWriter struct {
	mock.Mock
}

func (m *mockMemoryWriter) Add(ctx context.Context, entry memory.Entry) (string, error) {
	args := m.Called(ctx, entry)
	return args.String(0), args.Error(1)
}

type fixture struct {
	scheduler *reflection.Scheduler
	store     *storemock.MockStore
	oracle    *pricingmock.MockOracle
	writer    *mockMemoryWriter
	clock     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:  storemock.NewMockStore(),
		oracle: pricingmock.NewMockOracle(),
		writer: &mockMemoryWriter{},
		clock:  time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}

	scheduler, err := reflection.NewScheduler(f.store, f.oracle, f.writer, reflection.Config{})
	require.NoError(t, err)
	scheduler.SetClock(func() time.Time { return f.clock })
	f.scheduler = scheduler
	return f
}

// advance moves the fixture clock forward.
func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func TestNewSchedulerValidation(t *testing.T) {
	store := storemock.NewMockStore()
	oracle := pricingmock.NewMockOracle()
	writer := &mockMemoryWriter{}

	_, err := reflection.NewScheduler(nil, oracle, writer, reflection.Config{})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = reflection.NewScheduler(store, nil, writer, reflection.Config{})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = reflection.NewScheduler(store, oracle, nil, reflection.Config{})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = reflection.NewScheduler(store, oracle, writer, reflection.Config{CheckDays: -1})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestSchedulerRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults the verification horizon", func(t *testing.T) {
		f := newFixture(t)

		id, err := f.scheduler.Record(ctx, reflection.Analysis{
			Market:     "crypto",
			Symbol:     "BTCUSDT",
			Price:      100,
			Decision:   "BUY",
			Confidence: 80,
			Reasoning:  "breakout continuation",
		})
		require.NoError(t, err)

		record, ok := f.store.Get(id)
		require.True(t, ok)
		assert.Equal(t, reflection.StatusPending, record.Status)
		assert.Equal(t, f.clock, record.AnalysisDate)
		assert.Equal(t, f.clock.AddDate(0, 0, reflection.DefaultCheckDays), record.TargetCheckDate)
	})

	t.Run("honors a per-analysis horizon", func(t *testing.T) {
		f := newFixture(t)

		id, err := f.scheduler.Record(ctx, reflection.Analysis{
			Market: "crypto", Symbol: "ETHUSDT", Price: 3000, Decision: "HOLD", CheckDays: 3,
		})
		require.NoError(t, err)

		record, ok := f.store.Get(id)
		require.True(t, ok)
		assert.Equal(t, f.clock.AddDate(0, 0, 3), record.TargetCheckDate)
	})

	t.Run("rejects missing identifiers", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.scheduler.Record(ctx, reflection.Analysis{Symbol: "BTCUSDT"})
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
		_, err = f.scheduler.Record(ctx, reflection.Analysis{Market: "crypto"})
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
		_, err = f.scheduler.Record(ctx, reflection.Analysis{Market: "crypto", Symbol: "BTCUSDT", CheckDays: -2})
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("surfaces store failures", func(t *testing.T) {
		f := newFixture(t)
		f.store.ForceError(errors.ErrStoreUnavailable)

		_, err := f.scheduler.Record(ctx, reflection.Analysis{Market: "crypto", Symbol: "BTCUSDT"})
		assert.ErrorIs(t, err, errors.ErrStoreUnavailable)
	})
}

func TestRunCycleVerifiesDueRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	longReasoning := strings.Repeat("momentum ", 20) // 180 chars
	id, err := f.scheduler.Record(ctx, reflection.Analysis{
		Market:     "crypto",
		Symbol:     "BTCUSDT",
		Price:      100,
		Decision:   "BUY",
		Confidence: 85,
		Reasoning:  longReasoning,
	})
	require.NoError(t, err)

	f.advance(8 * 24 * time.Hour)
	f.oracle.SetPrice("crypto", "BTCUSDT", 105)

	var captured memory.Entry
	f.writer.On("Add", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(memory.Entry)
		}).
		Return("mem-1", nil).Once()

	report, err := f.scheduler.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, reflection.CycleReport{Claimed: 1, Completed: 1}, report)
	f.writer.AssertExpectations(t)

	record, ok := f.store.Get(id)
	require.True(t, ok)
	assert.Equal(t, reflection.StatusCompleted, record.Status)
	require.NotNil(t, record.FinalPrice)
	assert.Equal(t, 105.0, *record.FinalPrice)
	require.NotNil(t, record.ActualReturn)
	assert.InDelta(t, 5.0, *record.ActualReturn, 1e-9)
	assert.Equal(t, "Correct: price rose after BUY", record.CheckResult)

	assert.Equal(t, "crypto:BTCUSDT auto-verified (analysis_date: 2025-06-01 10:00:00)", captured.Situation)
	assert.Equal(t, "Decision: BUY (confidence 85), reasoning: "+longReasoning[:120], captured.Recommendation)
	assert.Equal(t, "Verification: Correct: price rose after BUY; return=5.00% (initial 100 -> final 105)", captured.Result)
	require.NotNil(t, captured.Returns)
	assert.InDelta(t, 5.0, *captured.Returns, 1e-9)

	require.NotNil(t, captured.Metadata)
	assert.Equal(t, "crypto", captured.Metadata.Market)
	assert.Equal(t, "BTCUSDT", captured.Metadata.Symbol)
	assert.Equal(t, "1D", captured.Metadata.Timeframe)
	assert.Equal(t, "auto_verify", captured.Metadata.Features["source"])
	assert.Equal(t, true, captured.Metadata.Features["is_good_prediction"])
	assert.Equal(t, 100.0, captured.Metadata.Features["initial_price"])
	assert.Equal(t, 105.0, captured.Metadata.Features["final_price"])
}

func TestRunCycleSkipsNotYetDue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.scheduler.Record(ctx, reflection.Analysis{
		Market: "crypto", Symbol: "BTCUSDT", Price: 100, Decision: "BUY",
	})
	require.NoError(t, err)

	f.advance(24 * time.Hour)

	report, err := f.scheduler.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, reflection.CycleReport{}, report)
	assert.Empty(t, f.oracle.LookupCalls())
	f.writer.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
}

func TestRunCycleWithNoRecordsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		report, err := f.scheduler.RunCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, reflection.CycleReport{}, report)
	}
	assert.Empty(t, f.oracle.LookupCalls())
}

func TestRunCyclePriceMissReleasesRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.scheduler.Record(ctx, reflection.Analysis{
		Market: "crypto", Symbol: "BTCUSDT", Price: 100, Decision: "SELL",
	})
	require.NoError(t, err)
	f.advance(8 * 24 * time.Hour)

	report, err := f.scheduler.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, reflection.CycleReport{Claimed: 1, Skipped: 1}, report)
	f.writer.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)

	record, ok := f.store.Get(id)
	require.True(t, ok)
	assert.Equal(t, reflection.StatusPending, record.Status)

	// Once a price is available the next cycle picks the record up again.
	f.oracle.SetPrice("crypto", "BTCUSDT", 90)
	f.writer.On("Add", mock.Anything, mock.Anything).Return("mem-1", nil).Once()

	report, err = f.scheduler.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, reflection.CycleReport{Claimed: 1, Completed: 1}, report)

	record, ok = f.store.Get(id)
	require.True(t, ok)
	assert.Equal(t, reflection.StatusCompleted, record.Status)
	assert.Equal(t, "Correct: price fell after SELL", record.CheckResult)
}

func TestRunCycleMemoryFailureReleasesRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.scheduler.Record(ctx, reflection.Analysis{
		Market: "crypto", Symbol: "BTCUSDT", Price: 100, Decision: "BUY",
	})
	require.NoError(t, err)
	f.advance(8 * 24 * time.Hour)
	f.oracle.SetPrice("crypto", "BTCUSDT", 110)

	f.writer.On("Add", mock.Anything, mock.Anything).Return("", errors.ErrStoreUnavailable).Once()

	report, err := f.scheduler.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, reflection.CycleReport{Claimed: 1, Failed: 1}, report)

	record, ok := f.store.Get(id)
	require.True(t, ok)
	assert.Equal(t, reflection.StatusPending, record.Status)
}

func TestRunCycleBatchContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	badID, err := f.scheduler.Record(ctx, reflection.Analysis{
		Market: "crypto", Symbol: "NOPRICE", Price: 100, Decision: "BUY",
	})
	require.NoError(t, err)
	goodID, err := f.scheduler.Record(ctx, reflection.Analysis{
		Market: "crypto", Symbol: "ETHUSDT", Price: 3000, Decision: "HOLD",
	})
	require.NoError(t, err)

	f.advance(8 * 24 * time.Hour)
	f.oracle.SetPrice("crypto", "ETHUSDT", 3010)
	f.writer.On("Add", mock.Anything, mock.Anything).Return("mem-1", nil).Once()

	report, err := f.scheduler.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, reflection.CycleReport{Claimed: 2, Completed: 1, Skipped: 1}, report)

	bad, _ := f.store.Get(badID)
	assert.Equal(t, reflection.StatusPending, bad.Status)
	good, _ := f.store.Get(goodID)
	assert.Equal(t, reflection.StatusCompleted, good.Status)
	assert.Equal(t, "Correct: limited movement during HOLD", good.CheckResult)
}

func TestRunCycleUnrecognizedDecision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.scheduler.Record(ctx, reflection.Analysis{
		Market: "crypto", Symbol: "BTCUSDT", Price: 100, Decision: "ACCUMULATE",
	})
	require.NoError(t, err)
	f.advance(8 * 24 * time.Hour)
	f.oracle.SetPrice("crypto", "BTCUSDT", 120)

	f.writer.On("Add", mock.Anything, mock.Anything).Return("mem-1", nil).Once()

	report, err := f.scheduler.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, reflection.CycleReport{Claimed: 1, Completed: 1}, report)

	record, ok := f.store.Get(id)
	require.True(t, ok)
	assert.Equal(t, reflection.StatusCompleted, record.Status)
	assert.Equal(t, `Unclassified: unrecognized decision "ACCUMULATE"`, record.CheckResult)
}

func TestRunCycleClaimFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.ForceError(errors.ErrStoreUnavailable)

	_, err := f.scheduler.RunCycle(ctx)
	assert.ErrorIs(t, err, errors.ErrStoreUnavailable)
}

func TestSchedulerCountsAndStatistics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, symbol := range []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"} {
		_, err := f.scheduler.Record(ctx, reflection.Analysis{
			Market: "crypto", Symbol: symbol, Price: 100, Decision: "BUY",
		})
		require.NoError(t, err)
	}

	count, err := f.scheduler.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	f.advance(8 * 24 * time.Hour)
	f.oracle.SetPrice("crypto", "BTCUSDT", 103)
	f.oracle.SetPrice("crypto", "ETHUSDT", 104)
	f.writer.On("Add", mock.Anything, mock.Anything).Return("mem-1", nil).Twice()

	report, err := f.scheduler.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, reflection.CycleReport{Claimed: 3, Completed: 2, Skipped: 1}, report)

	stats, err := f.scheduler.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalRecords)
	assert.Equal(t, int64(1), stats.PendingRecords)
	assert.Equal(t, int64(2), stats.CompletedRecords)
	assert.InDelta(t, 3.5, stats.AverageReturn, 1e-9)
}
