// Package reflection records trading analyses and verifies them against
// later market prices, feeding the verdicts back into agent memory as
// retrievable cases.
package reflection

import (
	"context"
	"time"
)

// Status is the lifecycle state of a reflection record.
type Status string

const (
	// StatusPending marks a record awaiting verification.
	StatusPending Status = "PENDING"

	// StatusInProgress marks a record claimed by a running cycle.
	StatusInProgress Status = "IN_PROGRESS"

	// StatusCompleted marks a verified record; terminal.
	StatusCompleted Status = "COMPLETED"

	// StatusFailed marks a record abandoned after an unrecoverable error.
	StatusFailed Status = "FAILED"
)

// Record is one recorded analysis and, once verified, its outcome.
type Record struct {
	// ID is a unique identifier for the record
	ID string

	// Market and Symbol identify the instrument the analysis is about
	Market string
	Symbol string

	// InitialPrice is the price at analysis time
	InitialPrice float64

	// Decision is the recommended action, typically BUY, SELL or HOLD
	Decision string

	// Confidence is the agent's stated confidence, 0 to 100
	Confidence int

	// Reasoning is the agent's free-form rationale
	Reasoning string

	// AnalysisDate is when the analysis was recorded
	AnalysisDate time.Time

	// TargetCheckDate is when the record becomes due for verification
	TargetCheckDate time.Time

	// Status is the record's lifecycle state
	Status Status

	// FinalPrice, ActualReturn and CheckResult are set on completion
	FinalPrice   *float64
	ActualReturn *float64
	CheckResult  string
}

// Stats summarizes the reflection ledger.
type Stats struct {
	// TotalRecords counts all records
	TotalRecords int64

	// PendingRecords counts records still awaiting verification
	PendingRecords int64

	// CompletedRecords counts verified records
	CompletedRecords int64

	// AverageReturn is the mean actual return over completed records
	AverageReturn float64
}

// Store is the persistence interface for reflection records.
type Store interface {
	// Insert persists a new record and returns its generated identifier.
	Insert(ctx context.Context, record Record) (string, error)

	// ClaimDue atomically flips every PENDING record with a target check
	// date at or before now to IN_PROGRESS and returns the claimed set.
	// Two concurrent callers never receive the same record.
	ClaimDue(ctx context.Context, now time.Time) ([]Record, error)

	// Complete marks a claimed record COMPLETED with its outcome. Returns
	// errors.ErrAlreadyCompleted if the record is already terminal.
	Complete(ctx context.Context, id string, finalPrice, actualReturn float64, checkResult string) error

	// Release returns a claimed record to PENDING so a later cycle
	// retries it.
	Release(ctx context.Context, id string) error

	// MarkFailed abandons a claimed record with a reason; terminal.
	MarkFailed(ctx context.Context, id, checkResult string) error

	// PendingCount counts records in PENDING.
	PendingCount(ctx context.Context) (int64, error)

	// Stats returns aggregate counts over the ledger.
	Stats(ctx context.Context) (Stats, error)
}
