package sqlc

import (
	"context"
	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

// CreateTables creates the semlock, semlock_waiter, semlock_holder, and
// seminfo tables together with the seminfo id sequence.
func (q *Queries) CreateTables(ctx context.Context) error {
	if _, err := q.db.Exec(ctx, schemaSQL); err != nil {
		return err
	}
	return nil
}
