package internal

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lsst-dm/semlock/internal/statedb"
)

// SetupTestDatabase bootstraps the semlock schema for a test package. It
// reports false when no database is reachable, in which case
// database-backed tests should skip themselves; a reachable database that
// cannot be set up panics, since every subsequent test would fail anyway.
func SetupTestDatabase(ctx context.Context) bool {
	conn, err := GetConnection(ctx)
	if err != nil {
		return false
	}
	defer func() { _ = conn.Close(ctx) }()

	if err := statedb.Setup(ctx, conn); err != nil {
		panic(fmt.Sprintf("failed to set up test schema: %v", err))
	}
	return true
}

// MustGetConnection returns a connection to the PostgreSQL database and
// panics if the connection cannot be established.
func MustGetConnection(ctx context.Context) *pgx.Conn {
	conn, err := GetConnection(ctx)
	if err != nil {
		panic(fmt.Sprintf("failed to get database connection: %v", err))
	}
	return conn
}

// MustGetConnectionWithCleanup returns a connection to the PostgreSQL
// database and closes it when the test completes.
func MustGetConnectionWithCleanup(t *testing.T) *pgx.Conn {
	t.Helper()
	ctx := context.Background()
	conn := MustGetConnection(ctx)
	t.Cleanup(func() { _ = conn.Close(ctx) })
	return conn
}

// MustGetPoolWithCleanup returns a connection pool to the PostgreSQL
// database and automatically cleans it up when the test completes.
func MustGetPoolWithCleanup(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	pool, err := GetPool(ctx)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}
