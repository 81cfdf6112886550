package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/quantdesk/agentmem/pkg/embedding"
	"github.com/quantdesk/agentmem/pkg/errors"
	"github.com/quantdesk/agentmem/pkg/log"
	"github.com/quantdesk/agentmem/pkg/memory"
)

// schema creates the memory table for single-node sqlite deployments.
// PostgreSQL deployments use the migrations directory instead.
const schema = `
CREATE TABLE IF NOT EXISTS agent_memories (
	id TEXT PRIMARY KEY,
	agent_name TEXT NOT NULL,
	situation TEXT NOT NULL DEFAULT '',
	recommendation TEXT NOT NULL DEFAULT '',
	result TEXT NOT NULL DEFAULT '',
	returns REAL,
	market TEXT NOT NULL DEFAULT '',
	symbol TEXT NOT NULL DEFAULT '',
	timeframe TEXT NOT NULL DEFAULT '',
	features_json TEXT NOT NULL DEFAULT '',
	embedding BLOB,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS agent_memories_agent_created_idx
	ON agent_memories (agent_name, created_at DESC);
`

// SQLiteStore implements the memory.Store interface using a SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLiteStore with the given database handle.
func NewSQLiteStore(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{
		db: db,
	}
}

// InitSchema creates the memory table if it does not exist.
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize memory schema: %w", err)
	}
	return nil
}

type dbRecord struct {
	ID             string    `db:"id"`
	AgentName      string    `db:"agent_name"`
	Situation      string    `db:"situation"`
	Recommendation string    `db:"recommendation"`
	Result         string    `db:"result"`
	Returns        *float64  `db:"returns"`
	Market         string    `db:"market"`
	Symbol         string    `db:"symbol"`
	Timeframe      string    `db:"timeframe"`
	FeaturesJSON   string    `db:"features_json"`
	Embedding      []byte    `db:"embedding"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Insert persists a memory record and returns the generated identifier.
func (s *SQLiteStore) Insert(ctx context.Context, record memory.Record) (string, error) {
	if record.AgentName == "" {
		return "", errors.Wrap(errors.ErrInvalidInput, "agent name is required")
	}

	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	featuresJSON := ""
	if len(record.Features) > 0 {
		data, err := json.Marshal(record.Features)
		if err != nil {
			return "", fmt.Errorf("failed to marshal features: %w", err)
		}
		featuresJSON = string(data)
	}

	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_memories (
			id, agent_name, situation, recommendation, result, returns,
			market, symbol, timeframe, features_json, embedding, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.AgentName, record.Situation, record.Recommendation, record.Result, record.Returns,
		record.Market, record.Symbol, record.Timeframe, featuresJSON, embedding.ToBytes(record.Embedding), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to store memory record: %w", err)
	}

	return record.ID, nil
}

// Recent returns up to limit records for the agent, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, agentName string, limit int) ([]memory.Record, error) {
	if limit <= 0 {
		limit = 500
	}

	var rows []dbRecord
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, agent_name, situation, recommendation, result, returns,
		        market, symbol, timeframe, features_json, embedding, created_at, updated_at
		FROM agent_memories
		WHERE agent_name = ?
		ORDER BY created_at DESC, id
		LIMIT ?`,
		agentName, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve memory records: %w", err)
	}

	records := make([]memory.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, nil
}

func (r dbRecord) toRecord() memory.Record {
	record := memory.Record{
		ID:             r.ID,
		AgentName:      r.AgentName,
		Situation:      r.Situation,
		Recommendation: r.Recommendation,
		Result:         r.Result,
		Returns:        r.Returns,
		Market:         r.Market,
		Symbol:         r.Symbol,
		Timeframe:      r.Timeframe,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}

	if r.FeaturesJSON != "" {
		features := make(map[string]interface{})
		if err := json.Unmarshal([]byte(r.FeaturesJSON), &features); err != nil {
			// Malformed metadata degrades to empty features.
			log.Warn("Discarding malformed feature metadata", "id", r.ID, "error", err)
		} else {
			record.Features = features
		}
	}

	vec, err := embedding.FromBytes(r.Embedding)
	if err != nil {
		log.Warn("Discarding malformed embedding blob", "id", r.ID, "error", err)
		vec = nil
	}
	record.Embedding = vec

	return record
}

// UpdateResult mutates the outcome fields of an existing record.
func (s *SQLiteStore) UpdateResult(ctx context.Context, agentName, id, result string, returns *float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_memories
		SET result = ?, returns = ?, updated_at = ?
		WHERE id = ? AND agent_name = ?`,
		result, returns, time.Now().UTC(), id, agentName,
	)
	if err != nil {
		return fmt.Errorf("failed to update memory record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return errors.Wrap(errors.ErrNotFound, "memory record %s for agent %s", id, agentName)
	}

	return nil
}

// Stats returns aggregate counts for the agent.
func (s *SQLiteStore) Stats(ctx context.Context, agentName string) (memory.Stats, error) {
	var stats memory.Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(AVG(returns), 0),
		        COALESCE(SUM(CASE WHEN returns > 0 THEN 1 ELSE 0 END), 0)
		FROM agent_memories
		WHERE agent_name = ?`,
		agentName,
	).Scan(&stats.TotalMemories, &stats.AverageReturns, &stats.PositiveDecisions)

	if err != nil {
		return memory.Stats{}, fmt.Errorf("failed to get memory statistics: %w", err)
	}

	return stats, nil
}

// DeleteAgent removes all records for the agent.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, agentName string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM agent_memories WHERE agent_name = ?`,
		agentName,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete memory records: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check delete result: %w", err)
	}
	return deleted, nil
}
