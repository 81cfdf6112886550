// Package memory stores an agent's past decisions as retrievable cases and
// ranks them against a new situation. Ranking combines semantic similarity,
// recency decay and outcome weighting; retrieval considers a bounded window
// of the agent's most recent records rather than its full history.
package memory

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/quantdesk/agentmem/pkg/embedding"
	"github.com/quantdesk/agentmem/pkg/errors"
	"github.com/quantdesk/agentmem/pkg/log"
)

// Record represents a single memory entry for an agent.
type Record struct {
	// ID is a unique identifier for the record
	ID string

	// AgentName is the agent that owns this memory; always non-empty
	AgentName string

	// Situation describes the context in which a decision was made
	Situation string

	// Recommendation is the decision or recommendation that was made
	Recommendation string

	// Result describes the outcome, once known
	Result string

	// Returns is the realized return percentage, once known
	Returns *float64

	// Market, Symbol and Timeframe are optional classification tags
	Market    string
	Symbol    string
	Timeframe string

	// Features is optional structured data about the situation
	Features map[string]interface{}

	// Embedding is the vector representation used for semantic ranking;
	// nil when vectorization is disabled or the embedding call failed
	Embedding []float32

	// CreatedAt is when this memory was initially stored
	CreatedAt time.Time

	// UpdatedAt is when this memory was last modified
	UpdatedAt time.Time
}

// Metadata carries the optional tags supplied with an entry or a query.
type Metadata struct {
	Market    string
	Symbol    string
	Timeframe string
	Features  map[string]interface{}
}

// Entry is the caller-facing input to Add.
type Entry struct {
	Situation      string
	Recommendation string
	Result         string
	Returns        *float64
	Metadata       *Metadata
}

// ScoredRecord is a query result: a record plus its ranking scores.
type ScoredRecord struct {
	Record

	// Score is the combined ranking score
	Score float64

	// Similarity is the semantic or text similarity component
	Similarity float64

	// Recency is the time-decay component
	Recency float64
}

// Stats summarizes an agent's memory.
type Stats struct {
	// TotalMemories is the number of records for the agent
	TotalMemories int64

	// AverageReturns is the mean of all non-nil returns
	AverageReturns float64

	// PositiveDecisions counts records with returns > 0
	PositiveDecisions int64

	// SuccessRate is PositiveDecisions / TotalMemories as a percentage,
	// 0 when the agent has no memories
	SuccessRate float64
}

// Store is the persistence interface for memory records. Implementations
// must scope every operation to the given agent name.
type Store interface {
	// Insert persists a record and returns its generated identifier.
	Insert(ctx context.Context, record Record) (string, error)

	// Recent returns up to limit records for the agent, most recent first.
	Recent(ctx context.Context, agentName string, limit int) ([]Record, error)

	// UpdateResult mutates the outcome fields of an existing record.
	UpdateResult(ctx context.Context, agentName, id, result string, returns *float64) error

	// Stats returns aggregate counts for the agent. SuccessRate is derived
	// by the caller.
	Stats(ctx context.Context, agentName string) (Stats, error)

	// DeleteAgent removes all records for the agent and reports how many.
	DeleteAgent(ctx context.Context, agentName string) (int64, error)
}

// Config holds the ranking parameters for a Memory. Values are read once at
// construction and fixed for the component's lifetime.
type Config struct {
	// EnableVector toggles embedding generation and vector similarity
	EnableVector bool

	// CandidateLimit bounds how many most-recent records a query considers
	CandidateLimit int

	// HalfLifeDays is the age at which the recency score reaches 0.5
	HalfLifeDays float64

	// SimilarityWeight, RecencyWeight and ReturnsWeight combine the three
	// ranking components; all must be non-negative
	SimilarityWeight float64
	RecencyWeight    float64
	ReturnsWeight    float64
}

// DefaultConfig returns the default ranking configuration.
func DefaultConfig() Config {
	return Config{
		EnableVector:     true,
		CandidateLimit:   500,
		HalfLifeDays:     30,
		SimilarityWeight: 0.75,
		RecencyWeight:    0.20,
		ReturnsWeight:    0.05,
	}
}

// Memory provides ranked access to one agent's decision history.
type Memory struct {
	agentName string
	store     Store
	provider  embedding.Provider
	config    Config

	// now is overridable for deterministic ranking in tests
	now func() time.Time
}

// NewMemory creates a memory system for the named agent.
// The provider may be nil only when vectorization is disabled.
func NewMemory(agentName string, store Store, provider embedding.Provider, config Config) (*Memory, error) {
	if strings.TrimSpace(agentName) == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "agent name is required")
	}
	if store == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "store is required")
	}
	if config.EnableVector && provider == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "embedding provider is required when vectorization is enabled")
	}
	if config.SimilarityWeight < 0 || config.RecencyWeight < 0 || config.ReturnsWeight < 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "ranking weights must be non-negative")
	}
	if config.CandidateLimit <= 0 {
		config.CandidateLimit = 500
	}
	if config.HalfLifeDays <= 0 {
		config.HalfLifeDays = 30
	}

	return &Memory{
		agentName: agentName,
		store:     store,
		provider:  provider,
		config:    config,
		now:       time.Now,
	}, nil
}

// AgentName returns the owning agent's name.
func (m *Memory) AgentName() string {
	return m.agentName
}

// Add stores a new memory entry and returns its identifier. An embedding
// failure degrades gracefully: the record is stored without a vector and
// later queries fall back to text similarity for it. A datastore failure is
// returned to the caller; no identifier means no write happened.
func (m *Memory) Add(ctx context.Context, entry Entry) (string, error) {
	record := Record{
		AgentName:      m.agentName,
		Situation:      entry.Situation,
		Recommendation: entry.Recommendation,
		Result:         entry.Result,
		Returns:        entry.Returns,
	}
	if entry.Metadata != nil {
		record.Market = strings.TrimSpace(entry.Metadata.Market)
		record.Symbol = strings.TrimSpace(entry.Metadata.Symbol)
		record.Timeframe = strings.TrimSpace(entry.Metadata.Timeframe)
		record.Features = entry.Metadata.Features
	}

	if m.config.EnableVector && m.provider != nil {
		text := buildEmbedText(record.Situation, record.Recommendation, record.Result, marshalFeatures(record.Features))
		vec, err := m.provider.Embed(ctx, text)
		if err != nil {
			log.WarnContext(ctx, "Embedding failed, storing memory without vector",
				"agent", m.agentName, "error", err)
		} else {
			record.Embedding = vec
		}
	}

	id, err := m.store.Insert(ctx, record)
	if err != nil {
		return "", errors.Wrap(err, "failed to add memory")
	}

	log.InfoContext(ctx, "Added new memory", "agent", m.agentName, "id", id)
	return id, nil
}

// Query returns up to limit records ranked against the current situation.
// A limit of zero or less yields an empty result. Ordering is deterministic
// for fixed data and a fixed clock: ties preserve the recency-descending
// fetch order.
func (m *Memory) Query(ctx context.Context, currentSituation string, limit int, meta *Metadata) ([]ScoredRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	candidates, err := m.store.Recent(ctx, m.agentName, m.config.CandidateLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch memory candidates")
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	timeframe := ""
	featuresJSON := ""
	if meta != nil {
		timeframe = strings.TrimSpace(meta.Timeframe)
		featuresJSON = marshalFeatures(meta.Features)
	}

	var queryVec []float32
	if m.config.EnableVector && m.provider != nil {
		text := buildEmbedText(currentSituation, "", "", featuresJSON)
		vec, err := m.provider.Embed(ctx, text)
		if err != nil {
			log.WarnContext(ctx, "Query embedding failed, falling back to text similarity",
				"agent", m.agentName, "error", err)
		} else {
			queryVec = vec
		}
	}

	now := m.now()
	ranked := make([]ScoredRecord, 0, len(candidates))
	for _, candidate := range candidates {
		var sim float64
		if len(queryVec) > 0 && len(candidate.Embedding) > 0 {
			sim = embedding.Cosine(queryVec, candidate.Embedding)
		} else {
			sim = textRatio(currentSituation, candidate.Situation)
		}

		recency := recencyScore(now, candidate.CreatedAt, m.config.HalfLifeDays)
		outcome := returnsScore(candidate.Returns)

		score := m.config.SimilarityWeight*sim +
			m.config.RecencyWeight*recency +
			m.config.ReturnsWeight*outcome

		// Soft timeframe filter: mismatches are penalized, not excluded.
		if timeframe != "" && candidate.Timeframe != "" && strings.TrimSpace(candidate.Timeframe) != timeframe {
			score -= timeframePenalty
		}

		ranked = append(ranked, ScoredRecord{
			Record:     candidate,
			Score:      score,
			Similarity: sim,
			Recency:    recency,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if limit < len(ranked) {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// UpdateResult mutates the outcome fields of an existing record. The stored
// embedding is not recomputed; the staleness is accepted rather than paying
// for re-vectorization on every outcome update.
func (m *Memory) UpdateResult(ctx context.Context, id, result string, returns *float64) error {
	if id == "" {
		return errors.Wrap(errors.ErrInvalidInput, "memory id is required")
	}

	if err := m.store.UpdateResult(ctx, m.agentName, id, result, returns); err != nil {
		return errors.Wrap(err, "failed to update memory %s", id)
	}

	log.InfoContext(ctx, "Updated memory result", "agent", m.agentName, "id", id)
	return nil
}

// Statistics returns aggregate counts for the agent's memory.
func (m *Memory) Statistics(ctx context.Context) (Stats, error) {
	stats, err := m.store.Stats(ctx, m.agentName)
	if err != nil {
		return Stats{}, errors.Wrap(err, "failed to get memory statistics")
	}

	stats.AverageReturns = round2(stats.AverageReturns)
	if stats.TotalMemories > 0 {
		stats.SuccessRate = round2(float64(stats.PositiveDecisions) / float64(stats.TotalMemories) * 100)
	}
	return stats, nil
}

// Clear irreversibly deletes all memories for the agent.
func (m *Memory) Clear(ctx context.Context) error {
	deleted, err := m.store.DeleteAgent(ctx, m.agentName)
	if err != nil {
		return errors.Wrap(err, "failed to clear memories")
	}

	log.WarnContext(ctx, "Cleared all memories", "agent", m.agentName, "deleted", deleted)
	return nil
}

// buildEmbedText concatenates the fields that feed the embedding input.
// The query side uses the same layout with empty recommendation and result
// so query and record vectors stay comparable.
func buildEmbedText(situation, recommendation, result, featuresJSON string) string {
	return strings.Join([]string{
		"situation: " + situation,
		"recommendation: " + recommendation,
		"result: " + result,
		"features: " + featuresJSON,
	}, "\n")
}

// marshalFeatures serializes a feature map; malformed features degrade to an
// empty string rather than failing the operation.
func marshalFeatures(features map[string]interface{}) string {
	if len(features) == 0 {
		return ""
	}
	data, err := json.Marshal(features)
	if err != nil {
		log.Warn("Failed to marshal features, substituting empty", "error", err)
		return ""
	}
	return string(data)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
