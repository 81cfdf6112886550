package integration

import (
	"context"
	"database/sql"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	memorysqlite "github.com/quantdesk/agentmem/pkg/memory/store/sqlite"
	reflectionsqlite "github.com/quantdesk/agentmem/pkg/reflection/store/sqlite"
)

// setupPostgres connects, applies migrations and truncates both tables so
// each test starts clean. The pool is closed on test cleanup.
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	skipUnlessIntegration(t)

	db, err := sql.Open("postgres", testDBURL())
	require.NoError(t, err, "Failed to connect for migrations")
	defer db.Close()

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	require.NoError(t, err, "Failed to create migration driver")

	migrator, err := migrate.NewWithDatabaseInstance("file://../../migrations", "postgres", driver)
	require.NoError(t, err, "Failed to create migrator")
	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, testDBURL())
	require.NoError(t, err, "Failed to create pool")
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, "TRUNCATE agent_memories, reflection_records")
	require.NoError(t, err, "Failed to truncate tables")

	return pool
}

// setupSQLite opens an in-memory database with both schemas applied. The
// handle is closed on test cleanup.
func setupSQLite(t *testing.T) *sqlx.DB {
	t.Helper()
	skipUnlessIntegration(t)

	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err, "Failed to open sqlite database")
	t.Cleanup(func() { db.Close() })

	// A second pooled connection would see its own empty in-memory database.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	require.NoError(t, memorysqlite.NewSQLiteStore(db).InitSchema(ctx))
	require.NoError(t, reflectionsqlite.NewSQLiteStore(db).InitSchema(ctx))

	return db
}
