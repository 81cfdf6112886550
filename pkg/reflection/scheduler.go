package reflection

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/quantdesk/agentmem/pkg/errors"
	"github.com/quantdesk/agentmem/pkg/log"
	"github.com/quantdesk/agentmem/pkg/memory"
	"github.com/quantdesk/agentmem/pkg/pricing"
)

// DefaultCheckDays is how far in the future a recorded analysis becomes due
// for verification when the caller does not say.
const DefaultCheckDays = 7

// reasoningLimit caps how much of the rationale is carried into the
// verification memory's recommendation text.
const reasoningLimit = 120

// MemoryWriter is the slice of the memory system the scheduler needs to
// store verification cases.
type MemoryWriter interface {
	Add(ctx context.Context, entry memory.Entry) (string, error)
}

// Config holds the scheduler's settings.
type Config struct {
	// CheckDays is the default verification horizon; zero means
	// DefaultCheckDays
	CheckDays int
}

// Analysis is the caller-facing input to Record.
type Analysis struct {
	Market     string
	Symbol     string
	Price      float64
	Decision   string
	Confidence int
	Reasoning  string

	// CheckDays overrides the configured verification horizon when positive
	CheckDays int
}

// CycleReport summarizes one verification cycle.
type CycleReport struct {
	// Claimed is how many due records this cycle took ownership of
	Claimed int

	// Completed is how many were verified and marked terminal
	Completed int

	// Skipped is how many were released for retry, typically on a price miss
	Skipped int

	// Failed is how many hit an error after verification started
	Failed int
}

// Scheduler records analyses and runs the verification cycle over due ones.
type Scheduler struct {
	store  Store
	oracle pricing.Oracle
	memory MemoryWriter
	config Config

	// now is overridable for deterministic tests
	now func() time.Time
}

// NewScheduler creates a verification scheduler.
func NewScheduler(store Store, oracle pricing.Oracle, memoryWriter MemoryWriter, config Config) (*Scheduler, error) {
	if store == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "reflection store is required")
	}
	if oracle == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "price oracle is required")
	}
	if memoryWriter == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "memory writer is required")
	}
	if config.CheckDays < 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "check days must not be negative")
	}
	if config.CheckDays == 0 {
		config.CheckDays = DefaultCheckDays
	}

	return &Scheduler{
		store:  store,
		oracle: oracle,
		memory: memoryWriter,
		config: config,
		now:    time.Now,
	}, nil
}

// Record stores an analysis for future verification and returns its
// identifier. The record becomes due CheckDays after now.
func (s *Scheduler) Record(ctx context.Context, analysis Analysis) (string, error) {
	market := strings.TrimSpace(analysis.Market)
	symbol := strings.TrimSpace(analysis.Symbol)
	if market == "" || symbol == "" {
		return "", errors.Wrap(errors.ErrInvalidInput, "market and symbol are required")
	}
	if analysis.CheckDays < 0 {
		return "", errors.Wrap(errors.ErrInvalidInput, "check days must not be negative")
	}

	checkDays := analysis.CheckDays
	if checkDays == 0 {
		checkDays = s.config.CheckDays
	}

	now := s.now().UTC()
	record := Record{
		Market:          market,
		Symbol:          symbol,
		InitialPrice:    analysis.Price,
		Decision:        strings.TrimSpace(analysis.Decision),
		Confidence:      analysis.Confidence,
		Reasoning:       analysis.Reasoning,
		AnalysisDate:    now,
		TargetCheckDate: now.AddDate(0, 0, checkDays),
		Status:          StatusPending,
	}

	id, err := s.store.Insert(ctx, record)
	if err != nil {
		return "", errors.Wrap(err, "failed to record analysis")
	}

	log.InfoContext(ctx, "Recorded analysis for verification",
		"id", id, "market", market, "symbol", symbol, "check_days", checkDays)
	return id, nil
}

// RunCycle claims every due record, verifies each against the current price
// and writes the verdict back as a memory case. A record whose price cannot
// be resolved is released and retried next cycle; other per-record failures
// are logged and the batch continues. The returned error covers only the
// claim step itself.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleReport, error) {
	var report CycleReport

	claimed, err := s.store.ClaimDue(ctx, s.now().UTC())
	if err != nil {
		return report, errors.Wrap(err, "failed to claim due records")
	}
	report.Claimed = len(claimed)

	if len(claimed) == 0 {
		log.DebugContext(ctx, "No records due for verification")
		return report, nil
	}
	log.InfoContext(ctx, "Starting verification cycle", "due", len(claimed))

	for _, record := range claimed {
		switch s.verify(ctx, record) {
		case verifyCompleted:
			report.Completed++
		case verifySkipped:
			report.Skipped++
		case verifyFailed:
			report.Failed++
		}
	}

	log.InfoContext(ctx, "Verification cycle finished",
		"claimed", report.Claimed, "completed", report.Completed,
		"skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

type verifyResult int

const (
	verifyCompleted verifyResult = iota
	verifySkipped
	verifyFailed
)

// verify checks one claimed record. Every exit path settles the claim:
// completion, release for retry, or failure.
func (s *Scheduler) verify(ctx context.Context, record Record) verifyResult {
	currentPrice, err := s.oracle.CurrentPrice(ctx, record.Market, record.Symbol)
	if err != nil {
		// Missing data, not a failure. The record goes back to PENDING.
		log.WarnContext(ctx, "Price unavailable, releasing record for retry",
			"id", record.ID, "market", record.Market, "symbol", record.Symbol, "error", err)
		s.release(ctx, record.ID)
		return verifySkipped
	}

	actualReturn := ActualReturn(record.InitialPrice, currentPrice)
	verdict := Classify(record.Decision, actualReturn)

	if _, err := s.memory.Add(ctx, verificationEntry(record, currentPrice, actualReturn, verdict)); err != nil {
		log.ErrorContext(ctx, "Failed to write verification memory, releasing record",
			"id", record.ID, "error", err)
		s.release(ctx, record.ID)
		return verifyFailed
	}

	if err := s.store.Complete(ctx, record.ID, currentPrice, actualReturn, verdict.Description); err != nil {
		// The memory case is already written; a rerun will write it again.
		log.ErrorContext(ctx, "Failed to mark record completed",
			"id", record.ID, "error", err)
		if !errors.Is(err, errors.ErrAlreadyCompleted) {
			s.release(ctx, record.ID)
		}
		return verifyFailed
	}

	log.InfoContext(ctx, "Verification completed",
		"id", record.ID, "market", record.Market, "symbol", record.Symbol,
		"verdict", verdict.Outcome, "return", math.Round(actualReturn*100)/100)
	return verifyCompleted
}

func (s *Scheduler) release(ctx context.Context, id string) {
	if err := s.store.Release(ctx, id); err != nil {
		log.ErrorContext(ctx, "Failed to release claimed record", "id", id, "error", err)
	}
}

// PendingCount reports how many records await verification.
func (s *Scheduler) PendingCount(ctx context.Context) (int64, error) {
	count, err := s.store.PendingCount(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count pending records")
	}
	return count, nil
}

// Statistics returns aggregate counts over the reflection ledger.
func (s *Scheduler) Statistics(ctx context.Context) (Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return Stats{}, errors.Wrap(err, "failed to get reflection statistics")
	}
	stats.AverageReturn = math.Round(stats.AverageReturn*100) / 100
	return stats, nil
}

// verificationEntry builds the memory case written for a verified record.
func verificationEntry(record Record, finalPrice, actualReturn float64, verdict Verdict) memory.Entry {
	analysisDate := record.AnalysisDate.UTC().Format("2006-01-02 15:04:05")

	reasoning := record.Reasoning
	if runes := []rune(reasoning); len(runes) > reasoningLimit {
		reasoning = string(runes[:reasoningLimit])
	}

	returns := actualReturn
	return memory.Entry{
		Situation: fmt.Sprintf("%s:%s auto-verified (analysis_date: %s)",
			record.Market, record.Symbol, analysisDate),
		Recommendation: fmt.Sprintf("Decision: %s (confidence %d), reasoning: %s",
			record.Decision, record.Confidence, reasoning),
		Result: fmt.Sprintf("Verification: %s; return=%.2f%% (initial %v -> final %v)",
			verdict.Description, actualReturn, record.InitialPrice, finalPrice),
		Returns: &returns,
		Metadata: &memory.Metadata{
			Market:    record.Market,
			Symbol:    record.Symbol,
			Timeframe: "1D",
			Features: map[string]interface{}{
				"source":             "auto_verify",
				"decision":           record.Decision,
				"confidence":         record.Confidence,
				"initial_price":      record.InitialPrice,
				"final_price":        finalPrice,
				"analysis_date":      analysisDate,
				"result_desc":        verdict.Description,
				"is_good_prediction": verdict.Good,
			},
		},
	}
}
