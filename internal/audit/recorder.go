// Package audit persists the seminfo trail of semaphore acquisitions: one
// row per acquisition, stamped at request, grant, and release. The trail is
// observational; slot state at the authority stays authoritative even when
// an audit write is lost.
package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lsst-dm/semlock/internal/sqlc"
)

// Recorder writes seminfo rows through the shared connection pool. Every
// write runs on a transient pool session, never on a session that holds a
// slot, so committing audit state can never interfere with the grant.
type Recorder struct {
	pool *pgxpool.Pool
}

// NewRecorder creates a Recorder over the given pool. The pool is managed by
// the caller.
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// Request inserts the request row and returns its id from the seminfo
// sequence. The row is committed before the caller blocks on the semaphore,
// so operators can see in-flight acquisitions.
func (r *Recorder) Request(ctx context.Context, name, taskID string, numSlots int) (int64, error) {
	id, err := sqlc.New(r.pool).CreateSeminfo(ctx, sqlc.CreateSeminfoParams{
		Name:     name,
		TaskID:   taskID,
		NumSlots: int32(numSlots),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert seminfo row: %w", err)
	}
	return id, nil
}

// Attempts records the number of WAIT attempts for an acquisition that did
// not reach a grant. The row keeps a null grant_time, which is how a failed
// or abandoned acquisition reads in the trail.
func (r *Recorder) Attempts(ctx context.Context, id int64, attempts int) error {
	if err := sqlc.New(r.pool).UpdateSeminfoAttempts(ctx, sqlc.UpdateSeminfoAttemptsParams{
		ID:          id,
		NumRequests: int32(attempts),
	}); err != nil {
		return fmt.Errorf("failed to update seminfo attempts: %w", err)
	}
	return nil
}

// Grant stamps grant_time and records the slot and final attempt count.
func (r *Recorder) Grant(ctx context.Context, id int64, slot, attempts int) error {
	if err := sqlc.New(r.pool).RecordSeminfoGrant(ctx, sqlc.RecordSeminfoGrantParams{
		ID:          id,
		NumRequests: int32(attempts),
		Slot:        pgtype.Int4{Int32: int32(slot), Valid: true},
	}); err != nil {
		return fmt.Errorf("failed to record grant: %w", err)
	}
	return nil
}

// Release stamps release_time.
func (r *Recorder) Release(ctx context.Context, id int64) error {
	if err := sqlc.New(r.pool).RecordSeminfoRelease(ctx, id); err != nil {
		return fmt.Errorf("failed to record release: %w", err)
	}
	return nil
}
