package semlock

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lsst-dm/semlock/internal/sqlc"
)

// Setup initializes the semlock tables in the database. It uses a
// PostgreSQL advisory lock to prevent concurrent setup attempts. If the
// tables already exist, it does nothing. Call it once at application
// startup.
func Setup(ctx context.Context, pool *pgxpool.Pool) error {
	// Lock ID is arbitrary but must be consistent across all processes
	const lockID int64 = 240031

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		q := sqlc.New(tx)

		if err := q.AcquireAdvisoryLock(ctx, lockID); err != nil {
			return fmt.Errorf("failed to acquire advisory lock: %w", err)
		}

		ok, err := q.DoesSemlockTableExist(ctx)
		if err != nil {
			return fmt.Errorf("failed to check if semlock table exists: %w", err)
		}
		if ok {
			return nil // Tables already exist, no need to set up
		}
		if err := q.CreateTables(ctx); err != nil {
			return fmt.Errorf("failed to create semlock tables: %w", err)
		}
		return nil
	})
}

// Cleanup drops the semlock tables and the seminfo sequence. It is intended
// for tearing down test databases, not for production use: the audit trail
// goes with it.
func Cleanup(ctx context.Context, pool *pgxpool.Pool) error {
	if err := sqlc.New(pool).DropSemlockTables(ctx); err != nil {
		return fmt.Errorf("failed to drop semlock tables: %w", err)
	}
	return nil
}
