// Package statedb bootstraps the semlock schema without the advisory-lock
// ceremony of the public Setup. It exists for tests, which set up the schema
// from a single connection before anything else runs.
package statedb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lsst-dm/semlock/internal/sqlc"
)

// Setup creates the semlock tables if they do not exist.
func Setup(ctx context.Context, conn *pgx.Conn) error {
	q := sqlc.New(conn)

	ok, err := q.DoesSemlockTableExist(ctx)
	if err != nil {
		return fmt.Errorf("failed to check if semlock table exists: %w", err)
	}
	if ok {
		return nil
	}

	if err := q.CreateTables(ctx); err != nil {
		return fmt.Errorf("failed to create semlock tables: %w", err)
	}
	return nil
}
