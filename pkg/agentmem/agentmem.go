// Package agentmem wires the memory and reflection subsystems together from
// a single configuration. It owns the database handles; callers construct a
// Client once, use it for the process lifetime and Close it on shutdown.
package agentmem

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/quantdesk/agentmem/pkg/config"
	"github.com/quantdesk/agentmem/pkg/embedding"
	embeddinglocal "github.com/quantdesk/agentmem/pkg/embedding/adapters/local"
	embeddingmock "github.com/quantdesk/agentmem/pkg/embedding/adapters/mock"
	embeddingopenai "github.com/quantdesk/agentmem/pkg/embedding/adapters/openai"
	"github.com/quantdesk/agentmem/pkg/errors"
	"github.com/quantdesk/agentmem/pkg/log"
	"github.com/quantdesk/agentmem/pkg/memory"
	memorypostgres "github.com/quantdesk/agentmem/pkg/memory/store/postgres"
	memorysqlite "github.com/quantdesk/agentmem/pkg/memory/store/sqlite"
	"github.com/quantdesk/agentmem/pkg/pricing"
	pricinghttp "github.com/quantdesk/agentmem/pkg/pricing/adapters/http"
	"github.com/quantdesk/agentmem/pkg/reflection"
	reflectionpostgres "github.com/quantdesk/agentmem/pkg/reflection/store/postgres"
	reflectionsqlite "github.com/quantdesk/agentmem/pkg/reflection/store/sqlite"
)

// Client is the assembled subsystem: memory access per agent plus the
// verification scheduler, sharing one database handle.
type Client struct {
	config *config.Config

	// exactly one of pool and db is set, per the configured driver
	pool *pgxpool.Pool
	db   *sqlx.DB

	provider        embedding.Provider
	oracle          pricing.Oracle
	memoryStore     memory.Store
	reflectionStore reflection.Store
	scheduler       *reflection.Scheduler
}

// Open validates the configuration, connects to the configured datastore and
// assembles the subsystem. The caller must Close the returned client.
func Open(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "config is required")
	}

	client := &Client{config: cfg}

	if err := client.connect(ctx); err != nil {
		return nil, err
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	client.provider = provider

	oracle, err := pricinghttp.NewClient(pricinghttp.Config{
		BaseURL: cfg.Pricing.BaseURL,
		Timeout: time.Duration(cfg.Pricing.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to build price client")
	}
	client.oracle = oracle

	// The scheduler writes verification cases into the configured agent's
	// memory.
	schedulerMemory, err := client.Memory(cfg.Reflection.MemoryAgent)
	if err != nil {
		client.Close()
		return nil, err
	}

	scheduler, err := reflection.NewScheduler(client.reflectionStore, client.oracle, schedulerMemory,
		reflection.Config{CheckDays: cfg.Reflection.CheckDays})
	if err != nil {
		client.Close()
		return nil, err
	}
	client.scheduler = scheduler

	log.Info("Agent memory subsystem ready",
		"driver", cfg.Storage.Driver, "embedding", cfg.Embedding.Provider,
		"memory_agent", cfg.Reflection.MemoryAgent)
	return client, nil
}

// connect opens the configured datastore and builds both stores over it.
func (c *Client) connect(ctx context.Context) error {
	switch c.config.Storage.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, c.config.Storage.DSN)
		if err != nil {
			return errors.Wrap(errors.ErrStoreUnavailable, "failed to create postgres pool: %v", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return errors.Wrap(errors.ErrStoreUnavailable, "failed to ping postgres: %v", err)
		}
		c.pool = pool
		c.memoryStore = memorypostgres.NewPostgresStore(pool)
		c.reflectionStore = reflectionpostgres.NewPostgresStore(pool)
		return nil

	case "sqlite":
		db, err := sqlx.Open("sqlite3", c.config.Storage.DSN)
		if err != nil {
			return errors.Wrap(errors.ErrStoreUnavailable, "failed to open sqlite database: %v", err)
		}
		// sqlite allows one writer at a time, and with a :memory: DSN every
		// pooled connection would see its own empty database.
		db.SetMaxOpenConns(1)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return errors.Wrap(errors.ErrStoreUnavailable, "failed to ping sqlite database: %v", err)
		}

		memoryStore := memorysqlite.NewSQLiteStore(db)
		reflectionStore := reflectionsqlite.NewSQLiteStore(db)
		if err := memoryStore.InitSchema(ctx); err != nil {
			db.Close()
			return err
		}
		if err := reflectionStore.InitSchema(ctx); err != nil {
			db.Close()
			return err
		}

		c.db = db
		c.memoryStore = memoryStore
		c.reflectionStore = reflectionStore
		return nil

	default:
		return errors.Wrap(errors.ErrInvalidInput, "unsupported storage driver %q", c.config.Storage.Driver)
	}
}

// buildProvider constructs the embedding provider named by the config, or
// nil when vectorization is disabled.
func buildProvider(cfg *config.Config) (embedding.Provider, error) {
	if !cfg.Memory.VectorsEnabled() {
		return nil, nil
	}

	switch cfg.Embedding.Provider {
	case "openai":
		provider, err := embeddingopenai.NewProvider(embeddingopenai.Config{
			APIKey:     cfg.Embedding.OpenAI.APIKey,
			Model:      cfg.Embedding.OpenAI.Model,
			Dimensions: cfg.Embedding.Dimensions,
			BaseURL:    cfg.Embedding.OpenAI.BaseURL,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to build openai embedding provider")
		}
		return provider, nil
	case "local":
		return embeddinglocal.NewProvider(cfg.Embedding.Dimensions), nil
	case "mock":
		return embeddingmock.NewMockProvider(cfg.Embedding.Dimensions), nil
	default:
		return nil, errors.Wrap(errors.ErrInvalidInput, "unsupported embedding provider %q", cfg.Embedding.Provider)
	}
}

// Memory returns a memory system scoped to the named agent.
func (c *Client) Memory(agentName string) (*memory.Memory, error) {
	return memory.NewMemory(agentName, c.memoryStore, c.provider, memory.Config{
		EnableVector:     c.config.Memory.VectorsEnabled(),
		CandidateLimit:   c.config.Memory.CandidateLimit,
		HalfLifeDays:     c.config.Memory.HalfLifeDays,
		SimilarityWeight: c.config.Memory.SimilarityWeight,
		RecencyWeight:    c.config.Memory.RecencyWeight,
		ReturnsWeight:    c.config.Memory.ReturnsWeight,
	})
}

// Scheduler returns the verification scheduler.
func (c *Client) Scheduler() *reflection.Scheduler {
	return c.scheduler
}

// Oracle returns the configured price source.
func (c *Client) Oracle() pricing.Oracle {
	return c.oracle
}

// Close releases the underlying database handles.
func (c *Client) Close() error {
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			return fmt.Errorf("failed to close sqlite database: %w", err)
		}
		c.db = nil
	}
	return nil
}
