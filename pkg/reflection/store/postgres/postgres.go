// Package postgres implements the reflection.Store interface over a
// PostgreSQL connection pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quantdesk/agentmem/pkg/errors"
	"github.com/quantdesk/agentmem/pkg/reflection"
)

// PostgresStore implements the reflection.Store interface using a
// PostgreSQL database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore with the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
	}
}

// Insert persists a new reflection record and returns its identifier.
func (p *PostgresStore) Insert(ctx context.Context, record reflection.Record) (string, error) {
	if record.Market == "" || record.Symbol == "" {
		return "", errors.Wrap(errors.ErrInvalidInput, "market and symbol are required")
	}

	status := record.Status
	if status == "" {
		status = reflection.StatusPending
	}

	var id string
	err := p.pool.QueryRow(ctx,
		`INSERT INTO reflection_records (
			market, symbol, initial_price, decision, confidence, reasoning,
			analysis_date, target_check_date, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		record.Market, record.Symbol, record.InitialPrice, record.Decision, record.Confidence, record.Reasoning,
		record.AnalysisDate, record.TargetCheckDate, string(status),
	).Scan(&id)

	if err != nil {
		return "", fmt.Errorf("failed to store reflection record: %w", err)
	}

	return id, nil
}

// ClaimDue flips every due PENDING record to IN_PROGRESS in one statement
// and returns the claimed set. Concurrent callers partition the due set
// between them; no record is handed out twice.
func (p *PostgresStore) ClaimDue(ctx context.Context, now time.Time) ([]reflection.Record, error) {
	rows, err := p.pool.Query(ctx,
		`UPDATE reflection_records
		SET status = $1
		WHERE id IN (
			SELECT id FROM reflection_records
			WHERE status = $2 AND target_check_date <= $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, market, symbol, initial_price, decision, confidence, reasoning,
		          analysis_date, target_check_date, status, final_price, actual_return, check_result`,
		string(reflection.StatusInProgress), string(reflection.StatusPending), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due records: %w", err)
	}
	defer rows.Close()

	var claimed []reflection.Record
	for rows.Next() {
		record, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed record: %w", err)
		}
		claimed = append(claimed, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read claimed records: %w", err)
	}

	return claimed, nil
}

func scanRecord(scan func(dest ...any) error) (reflection.Record, error) {
	var record reflection.Record
	var status string
	var checkResult *string

	err := scan(
		&record.ID, &record.Market, &record.Symbol, &record.InitialPrice,
		&record.Decision, &record.Confidence, &record.Reasoning,
		&record.AnalysisDate, &record.TargetCheckDate, &status,
		&record.FinalPrice, &record.ActualReturn, &checkResult,
	)
	if err != nil {
		return reflection.Record{}, err
	}

	record.Status = reflection.Status(status)
	if checkResult != nil {
		record.CheckResult = *checkResult
	}
	return record, nil
}

// Complete marks a claimed record COMPLETED with its outcome.
func (p *PostgresStore) Complete(ctx context.Context, id string, finalPrice, actualReturn float64, checkResult string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE reflection_records
		SET status = $1, final_price = $2, actual_return = $3, check_result = $4
		WHERE id = $5 AND status <> $1`,
		string(reflection.StatusCompleted), finalPrice, actualReturn, checkResult, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete reflection record: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return p.missingOrCompleted(ctx, id)
	}
	return nil
}

// Release returns a claimed record to PENDING.
func (p *PostgresStore) Release(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE reflection_records
		SET status = $1
		WHERE id = $2 AND status <> $3`,
		string(reflection.StatusPending), id, string(reflection.StatusCompleted),
	)
	if err != nil {
		return fmt.Errorf("failed to release reflection record: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return p.missingOrCompleted(ctx, id)
	}
	return nil
}

// MarkFailed abandons a claimed record with a reason.
func (p *PostgresStore) MarkFailed(ctx context.Context, id, checkResult string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE reflection_records
		SET status = $1, check_result = $2
		WHERE id = $3 AND status <> $4`,
		string(reflection.StatusFailed), checkResult, id, string(reflection.StatusCompleted),
	)
	if err != nil {
		return fmt.Errorf("failed to mark reflection record failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return p.missingOrCompleted(ctx, id)
	}
	return nil
}

// missingOrCompleted distinguishes a vanished record from a terminal one
// after a guarded update matched nothing.
func (p *PostgresStore) missingOrCompleted(ctx context.Context, id string) error {
	var status string
	err := p.pool.QueryRow(ctx,
		`SELECT status FROM reflection_records WHERE id = $1`, id,
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
func (p *PostgresStore) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM reflection_records WHERE status = $1`,
		string(reflection.StatusPending),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending records: %w", err)
	}
	return count, nil
}

// Stats returns aggregate counts over the reflection ledger.
func (p *PostgresStore) Stats(ctx context.Context) (reflection.Stats, error) {
	var stats reflection.Stats
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = $1),
		        COUNT(*) FILTER (WHERE status = $2),
		        COALESCE(AVG(actual_return) FILTER (WHERE status = $2 AND actual_return IS NOT NULL), 0)
		FROM reflection_records`,
		string(reflection.StatusPending), string(reflection.StatusCompleted),
	).Scan(&stats.TotalRecords, &stats.PendingRecords, &stats.CompletedRecords, &stats.AverageReturn)

	if err != nil {
		return reflection.Stats{}, fmt.Errorf("failed to get reflection statistics: %w", err)
	}
	return stats, nil
}
