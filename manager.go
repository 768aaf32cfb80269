package semlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lsst-dm/semlock/internal/sqlc"
)

// Manager administers the semaphore catalog. From the acquiring client's
// point of view the catalog is static, read-only configuration; the Manager
// is the write side operators use to register pools and inspect the audit
// trail.
type Manager struct {
	pool *pgxpool.Pool
}

// NewManager creates a Manager over the given connection pool. The pool is
// expected to be managed by the caller.
func NewManager(pool *pgxpool.Pool) *Manager {
	return &Manager{pool: pool}
}

// Register adds a semaphore with the given capacity to the catalog.
// Registering an existing name with the same capacity is a no-op; with a
// different capacity it is an error.
func (m *Manager) Register(ctx context.Context, name string, capacity int32) error {
	if name == "" {
		return fmt.Errorf("semaphore name cannot be empty")
	}
	if capacity <= 0 || MaxSlots < capacity {
		return fmt.Errorf("capacity must be between 1 and %d: given %d", MaxSlots, capacity)
	}

	return pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		q := sqlc.New(tx)

		row, err := q.GetSemlock(ctx, name)
		if err == nil {
			if row.NumSlots != capacity {
				return fmt.Errorf("semaphore %s already registered with capacity %d, expected %d",
					name, row.NumSlots, capacity,
				)
			}
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to get semaphore: %w", err)
		}

		err = q.CreateSemlock(ctx, sqlc.CreateSemlockParams{
			Name:     name,
			NumSlots: capacity,
		})
		if err != nil {
			// Tolerate a concurrent registration with the same capacity.
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				row, gerr := q.GetSemlock(ctx, name)
				if gerr != nil {
					return fmt.Errorf("failed to get semaphore after concurrent registration: %w", gerr)
				}
				if row.NumSlots != capacity {
					return fmt.Errorf("semaphore %s already registered with capacity %d, expected %d",
						name, row.NumSlots, capacity,
					)
				}
				return nil
			}
			return fmt.Errorf("failed to register semaphore: %w", err)
		}
		return nil
	})
}

// Unregister removes a semaphore from the catalog along with its queued
// waiters and holder records. It returns an error if the name is not
// registered. Audit rows are retained.
func (m *Manager) Unregister(ctx context.Context, name string) error {
	affected, err := sqlc.New(m.pool).DeleteSemlock(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to unregister semaphore: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("semaphore %s is not registered", name)
	}
	return nil
}

// Capacity returns the registered capacity of name, zero when unknown.
func (m *Manager) Capacity(ctx context.Context, name string) (int32, error) {
	n, err := sqlc.New(m.pool).GetSemlockCapacity(ctx, name)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query semaphore capacity: %w", err)
	}
	return n, nil
}

// List returns the names of registered semaphores starting with prefix,
// ordered by name. An empty prefix returns all of them.
func (m *Manager) List(ctx context.Context, prefix string) ([]string, error) {
	names, err := sqlc.New(m.pool).ListSemlocks(ctx, pgtype.Text{String: prefix, Valid: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list semaphores: %w", err)
	}
	return names, nil
}

// AuditRecord is one acquisition's life cycle as recorded in the audit
// trail. GrantTime, ReleaseTime, and Slot are nil for phases that were never
// reached: a record with a nil GrantTime is a failed or still-pending
// acquisition.
type AuditRecord struct {
	ID          int64
	Name        string
	TaskID      string
	RequestTime time.Time
	GrantTime   *time.Time
	ReleaseTime *time.Time
	NumSlots    int
	NumRequests int
	Slot        *int
}

// AuditTrail returns the most recent acquisition records for name, newest
// first, up to limit.
func (m *Manager) AuditTrail(ctx context.Context, name string, limit int32) ([]AuditRecord, error) {
	rows, err := sqlc.New(m.pool).ListSeminfo(ctx, sqlc.ListSeminfoParams{
		Name:  name,
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}

	records := make([]AuditRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, auditRecordFromRow(row))
	}
	return records, nil
}

func auditRecordFromRow(row sqlc.Seminfo) AuditRecord {
	rec := AuditRecord{
		ID:          row.ID,
		Name:        row.Name,
		TaskID:      row.TaskID,
		RequestTime: row.RequestTime.Time,
		NumSlots:    int(row.NumSlots),
		NumRequests: int(row.NumRequests),
	}
	if row.GrantTime.Valid {
		t := row.GrantTime.Time
		rec.GrantTime = &t
	}
	if row.ReleaseTime.Valid {
		t := row.ReleaseTime.Time
		rec.ReleaseTime = &t
	}
	if row.Slot.Valid {
		s := int(row.Slot.Int32)
		rec.Slot = &s
	}
	return rec
}
