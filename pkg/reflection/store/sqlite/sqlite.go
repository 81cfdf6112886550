// Package sqlite implements the reflection.Store interface over a SQLite
// database for single-node deployments.
package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/quantdesk/agentmem/pkg/errors"
	"github.com/quantdesk/agentmem/pkg/reflection"
)

const schema = `
CREATE TABLE IF NOT EXISTS reflection_records (
	id TEXT PRIMARY KEY,
	market TEXT NOT NULL,
	symbol TEXT NOT NULL,
	initial_price REAL NOT NULL DEFAULT 0,
	decision TEXT NOT NULL DEFAULT '',
	confidence INTEGER NOT NULL DEFAULT 0,
	reasoning TEXT NOT NULL DEFAULT '',
	analysis_date TIMESTAMP NOT NULL,
	target_check_date TIMESTAMP NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING',
	final_price REAL,
	actual_return REAL,
	check_result TEXT
);
CREATE INDEX IF NOT EXISTS reflection_records_due_idx
	ON reflection_records (status, target_check_date);
`

// SQLiteStore implements the reflection.Store interface using a SQLite
// database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLiteStore with the given database handle.
func NewSQLiteStore(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{
		db: db,
	}
}

// InitSchema creates the reflection table if it does not exist.
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize reflection schema: %w", err)
	}
	return nil
}

type dbRecord struct {
	ID              string    `db:"id"`
	Market          string    `db:"market"`
	Symbol          string    `db:"symbol"`
	InitialPrice    float64   `db:"initial_price"`
	Decision        string    `db:"decision"`
	Confidence      int       `db:"confidence"`
	Reasoning       string    `db:"reasoning"`
	AnalysisDate    time.Time `db:"analysis_date"`
	TargetCheckDate time.Time `db:"target_check_date"`
	Status          string    `db:"status"`
	FinalPrice      *float64  `db:"final_price"`
	ActualReturn    *float64  `db:"actual_return"`
	CheckResult     *string   `db:"check_result"`
}

func (r dbRecord) toRecord() reflection.Record {
	record := reflection.Record{
		ID:              r.ID,
		Market:          r.Market,
		Symbol:          r.Symbol,
		InitialPrice:    r.InitialPrice,
		Decision:        r.Decision,
		Confidence:      r.Confidence,
		Reasoning:       r.Reasoning,
		AnalysisDate:    r.AnalysisDate,
		TargetCheckDate: r.TargetCheckDate,
		Status:          reflection.Status(r.Status),
		FinalPrice:      r.FinalPrice,
		ActualReturn:    r.ActualReturn,
	}
	if r.CheckResult != nil {
		record.CheckResult = *r.CheckResult
	}
	return record
}

// Insert persists a new reflection record and returns its identifier.
func (s *SQLiteStore) Insert(ctx context.Context, record reflection.Record) (string, error) {
	if record.Market == "" || record.Symbol == "" {
		return "", errors.Wrap(errors.ErrInvalidInput, "market and symbol are required")
	}

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Status == "" {
		record.Status = reflection.StatusPending
	}
	if record.AnalysisDate.IsZero() {
		record.AnalysisDate = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reflection_records (
			id, market, symbol, initial_price, decision, confidence, reasoning,
			analysis_date, target_check_date, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Market, record.Symbol, record.InitialPrice, record.Decision, record.Confidence,
		record.Reasoning, record.AnalysisDate, record.TargetCheckDate, string(record.Status),
	)
	if err != nil {
		return "", fmt.Errorf("failed to store reflection record: %w", err)
	}

	return record.ID, nil
}

// ClaimDue selects due PENDING records and flips each to IN_PROGRESS with a
// compare-and-set update inside one transaction. A row another writer takes
// first is simply skipped.
func (s *SQLiteStore) ClaimDue(ctx context.Context, now time.Time) ([]reflection.Record, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	var due []dbRecord
	err = tx.SelectContext(ctx, &due,
		`SELECT id, market, symbol, initial_price, decision, confidence, reasoning,
		        analysis_date, target_check_date, status, final_price, actual_return, check_result
		FROM reflection_records
		WHERE status = ? AND target_check_date <= ?`,
		string(reflection.StatusPending), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select due records: %w", err)
	}

	var claimed []reflection.Record
	for _, row := range due {
		res, err := tx.ExecContext(ctx,
			`UPDATE reflection_records SET status = ? WHERE id = ? AND status = ?`,
			string(reflection.StatusInProgress), row.ID, string(reflection.StatusPending),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to claim record %s: %w", row.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to check claim result: %w", err)
		}
		if affected == 0 {
			continue
		}

		record := row.toRecord()
		record.Status = reflection.StatusInProgress
		claimed = append(claimed, record)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim transaction: %w", err)
	}
	return claimed, nil
}

// Complete marks a claimed record COMPLETED with its outcome.
func (s *SQLiteStore) Complete(ctx context.Context, id string, finalPrice, actualReturn float64, checkResult string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reflection_records
		SET status = ?, final_price = ?, actual_return = ?, check_result = ?
		WHERE id = ? AND status <> ?`,
		string(reflection.StatusCompleted), finalPrice, actualReturn, checkResult,
		id, string(reflection.StatusCompleted),
	)
	if err != nil {
		return fmt.Errorf("failed to complete reflection record: %w", err)
	}
	return s.checkAffected(ctx, res, id)
}

// Release returns a claimed record to PENDING.
func (s *SQLiteStore) Release(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reflection_records SET status = ? WHERE id = ? AND status <> ?`,
		string(reflection.StatusPending), id, string(reflection.StatusCompleted),
	)
	if err != nil {
		return fmt.Errorf("failed to release reflection record: %w", err)
	}
	return s.checkAffected(ctx, res, id)
}

// MarkFailed abandons a claimed record with a reason.
func (s *SQLiteStore) MarkFailed(ctx context.Context, id, checkResult string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reflection_records SET status = ?, check_result = ? WHERE id = ? AND status <> ?`,
		string(reflection.StatusFailed), checkResult, id, string(reflection.StatusCompleted),
	)
	if err != nil {
		return fmt.Errorf("failed to mark reflection record failed: %w", err)
	}
	return s.checkAffected(ctx, res, id)
}

// checkAffected maps a zero-row guarded update to the right sentinel.
func (s *SQLiteStore) checkAffected(ctx context.Context, res interface{ RowsAffected() (int64, error) }, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var status string
	err = s.db.QueryRowContext(ctx,
		`SELECT status FROM reflection_records WHERE id = ?`, id,
	).Scan(&status)
	if err != nil {
		return errors.Wrap(errors.ErrNotFound, "reflection record %s", id)
	}
	if reflection.Status(status) == reflection.StatusCompleted {
		return errors.Wrap(errors.ErrAlreadyCompleted, "reflection record %s", id)
	}
	return errors.Wrap(errors.ErrNotFound, "reflection record %s", id)
}

// PendingCount counts records awaiting verification.
func (s *SQLiteStore) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reflection_records WHERE status = ?`,
		string(reflection.StatusPending),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending records: %w", err)
	}
	return count, nil
}

// Stats returns aggregate counts over the reflection ledger.
func (s *SQLiteStore) Stats(ctx context.Context) (reflection.Stats, error) {
	var stats reflection.Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(AVG(CASE WHEN status = ? THEN actual_return END), 0)
		FROM reflection_records`,
		string(reflection.StatusPending), string(reflection.StatusCompleted), string(reflection.StatusCompleted),
	).Scan(&stats.TotalRecords, &stats.PendingRecords, &stats.CompletedRecords, &stats.AverageReturn)

	if err != nil {
		return reflection.Stats{}, fmt.Errorf("failed to get reflection statistics: %w", err)
	}
	return stats, nil
}
