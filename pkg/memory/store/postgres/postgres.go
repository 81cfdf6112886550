package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quantdesk/agentmem/pkg/embedding"
	"github.com/quantdesk/agentmem/pkg/errors"
	"github.com/quantdesk/agentmem/pkg/log"
	"github.com/quantdesk/agentmem/pkg/memory"
)

// PostgresStore implements the memory.Store interface using a PostgreSQL
// database. Each call is an independently committed statement.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore with the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
	}
}

// Insert persists a memory record and returns the generated identifier.
func (p *PostgresStore) Insert(ctx context.Context, record memory.Record) (string, error) {
	if record.AgentName == "" {
		return "", errors.Wrap(errors.ErrInvalidInput, "agent name is required")
	}

	featuresJSON, err := marshalFeatures(record.Features)
	if err != nil {
		return "", fmt.Errorf("failed to marshal features: %w", err)
	}

	var id string
	err = p.pool.QueryRow(ctx,
		`INSERT INTO agent_memories (
			agent_name, situation, recommendation, result, returns,
			market, symbol, timeframe, features_json, embedding
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		record.AgentName, record.Situation, record.Recommendation, record.Result, record.Returns,
		record.Market, record.Symbol, record.Timeframe, featuresJSON, embedding.ToBytes(record.Embedding),
	).Scan(&id)

	if err != nil {
		return "", fmt.Errorf("failed to store memory record: %w", err)
	}

	return id, nil
}

// Recent returns up to limit records for the agent, newest first.
func (p *PostgresStore) Recent(ctx context.Context, agentName string, limit int) ([]memory.Record, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := p.pool.Query(ctx,
		`SELECT id, agent_name, situation, recommendation, result, returns,
		        market, symbol, timeframe, features_json, embedding, created_at, updated_at
		FROM agent_memories
		WHERE agent_name = $1
		ORDER BY created_at DESC, id
		LIMIT $2`,
		agentName, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve memory records: %w", err)
	}
	defer rows.Close()

	var records []memory.Record
	for rows.Next() {
		var record memory.Record
		var featuresJSON string
		var embeddingBlob []byte

		err := rows.Scan(
			&record.ID,
			&record.AgentName,
			&record.Situation,
			&record.Recommendation,
			&record.Result,
			&record.Returns,
			&record.Market,
			&record.Symbol,
			&record.Timeframe,
			&featuresJSON,
			&embeddingBlob,
			&record.CreatedAt,
			&record.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory record: %w", err)
		}

		record.Features = unmarshalFeatures(record.ID, featuresJSON)

		vec, err := embedding.FromBytes(embeddingBlob)
		if err != nil {
			// Malformed blob degrades to the text-similarity path.
			log.Warn("Discarding malformed embedding blob", "id", record.ID, "error", err)
			vec = nil
		}
		record.Embedding = vec

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	return records, nil
}

// UpdateResult mutates the outcome fields of an existing record.
func (p *PostgresStore) UpdateResult(ctx context.Context, agentName, id, result string, returns *float64) error {
	commandTag, err := p.pool.Exec(ctx,
		`UPDATE agent_memories
		SET result = $3, returns = $4, updated_at = NOW()
		WHERE id = $1 AND agent_name = $2`,
		id, agentName, result, returns,
	)
	if err != nil {
		return fmt.Errorf("failed to update memory record: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return errors.Wrap(errors.ErrNotFound, "memory record %s for agent %s", id, agentName)
	}

	return nil
}

// Stats returns aggregate counts for the agent.
func (p *PostgresStore) Stats(ctx context.Context, agentName string) (memory.Stats, error) {
	var stats memory.Stats
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(AVG(returns), 0),
		        COUNT(*) FILTER (WHERE returns > 0)
		FROM agent_memories
		WHERE agent_name = $1`,
		agentName,
	).Scan(&stats.TotalMemories, &stats.AverageReturns, &stats.PositiveDecisions)

	if err != nil {
		return memory.Stats{}, fmt.Errorf("failed to get memory statistics: %w", err)
	}

	return stats, nil
}

// DeleteAgent removes all records for the agent.
func (p *PostgresStore) DeleteAgent(ctx context.Context, agentName string) (int64, error) {
	commandTag, err := p.pool.Exec(ctx,
		`DELETE FROM agent_memories WHERE agent_name = $1`,
		agentName,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete memory records: %w", err)
	}

	return commandTag.RowsAffected(), nil
}

func marshalFeatures(features map[string]interface{}) (string, error) {
	if len(features) == 0 {
		return "", nil
	}
	data, err := json.Marshal(features)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalFeatures parses the stored feature JSON; malformed data is
// substituted with a neutral empty map rather than failing the read.
func unmarshalFeatures(id, featuresJSON string) map[string]interface{} {
	if featuresJSON == "" {
		return nil
	}
	features := make(map[string]interface{})
	if err := json.Unmarshal([]byte(featuresJSON), &features); err != nil {
		log.Warn("Discarding malformed feature metadata", "id", id, "error", err)
		return nil
	}
	return features
}
