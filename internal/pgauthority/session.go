package pgauthority

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lsst-dm/semlock/internal/sqlc"
	"github.com/lsst-dm/semlock/internal/waitqueue"
)

// Session is one stateful connection to the lock authority. A granted slot
// belongs to the session that claimed it until Signal returns it or the
// session dies.
type Session struct {
	id      uuid.UUID
	conn    *pgx.Conn
	handler *waitqueue.ListenHandler
}

// errClaimed aborts a queued wait from inside the afterRegister hook when a
// slot was claimed while enqueueing, carrying the result out of the wait.
var errClaimed = errors.New("slot claimed while enqueueing")

// ID returns the session's identifier, which is also the payload the
// releasing side notifies to wake this session.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Wait blocks until a slot of the named semaphore is granted to this session
// and returns its number. The claim order between a woken waiter and a newly
// arriving session is not defined; callers must not assume FIFO grants.
func (s *Session) Wait(ctx context.Context, name string) (int, error) {
	for {
		slot, ok, err := s.tryClaim(ctx, name, false)
		if err != nil {
			return 0, err
		}
		if ok {
			return slot, nil
		}

		slot, woken, err := s.waitQueued(ctx, name)
		if err != nil {
			// The queue entry is abandoned; drop it so the releasing side
			// does not burn a wakeup on a session that stopped waiting.
			_ = s.Dequeue(context.WithoutCancel(ctx), name)
			return 0, err
		}
		if !woken {
			// Claimed during enqueueing.
			return slot, nil
		}
		// Woken by a release. The releasing transaction already removed this
		// session's queue entry; loop and claim the freed slot, or queue
		// again if another session got there first.
	}
}

// waitQueued enqueues the session and blocks until a release notifies it.
// The enqueue and a final claim attempt both run after the notification
// handler is registered, which closes the window where a release lands
// between a failed claim and the enqueue: such a release is observed either
// as a free bit by the claim retry or as a notification.
func (s *Session) waitQueued(ctx context.Context, name string) (slot int, woken bool, err error) {
	err = waitqueue.Wait(ctx, s.handler,
		waitqueue.WithID(s.id.String()),
		waitqueue.WithAfterRegister(func() error {
			if err := s.enqueue(ctx, name); err != nil {
				return err
			}
			n, ok, err := s.tryClaim(ctx, name, true)
			if err != nil {
				return err
			}
			if ok {
				slot = n
				return errClaimed
			}
			return nil
		}),
	)
	if errors.Is(err, errClaimed) {
		return slot, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return 0, true, nil
}

// tryClaim attempts to claim a free slot without blocking. With dequeue set,
// a successful claim also removes this session's wait-queue entry in the
// same transaction.
func (s *Session) tryClaim(ctx context.Context, name string, dequeue bool) (int, bool, error) {
	slot := -1
	err := pgx.BeginFunc(ctx, s.conn, func(tx pgx.Tx) error {
		q := sqlc.New(tx)

		row, err := q.GetSemlockForUpdate(ctx, name)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("semaphore %q is not registered", name)
			}
			return fmt.Errorf("failed to lock semaphore row: %w", err)
		}

		// Slots whose holding backend has died are never signalled back.
		// Reclaim them under the row lock before looking for a free slot.
		reaped, err := q.ReapDeadHolders(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to reap dead holders: %w", err)
		}
		for _, dead := range reaped {
			if _, err := q.FreeSlot(ctx, sqlc.FreeSlotParams{Name: name, Slot: dead}); err != nil {
				return fmt.Errorf("failed to free slot of dead holder: %w", err)
			}
		}

		index := row.FindFreeSlot()
		if len(reaped) > 0 {
			index = int(reaped[0])
		}
		if index == -1 {
			return nil
		}

		affected, err := q.ClaimSlot(ctx, sqlc.ClaimSlotParams{
			Name: name,
			Slot: int32(index),
		})
		if err != nil {
			return fmt.Errorf("failed to claim slot: %w", err)
		}
		if affected == 0 {
			// Cannot happen while the row lock is held.
			return fmt.Errorf("slot %d of %q was claimed concurrently", index, name)
		}

		if err := q.CreateHolder(ctx, sqlc.CreateHolderParams{
			Name:      name,
			Slot:      int32(index),
			SessionID: s.pgID(),
		}); err != nil {
			return fmt.Errorf("failed to record slot holder: %w", err)
		}

		if dequeue {
			if _, err := q.RemoveWaiter(ctx, sqlc.RemoveWaiterParams{
				Name:      name,
				SessionID: s.pgID(),
			}); err != nil {
				return fmt.Errorf("failed to remove own wait entry: %w", err)
			}
		}

		slot = index
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return slot, slot != -1, nil
}

// enqueue publishes this session's wait-queue entry. Re-enqueueing an
// already queued session is a no-op.
func (s *Session) enqueue(ctx context.Context, name string) error {
	if err := sqlc.New(s.conn).EnqueueWaiter(ctx, sqlc.EnqueueWaiterParams{
		Name:      name,
		SessionID: s.pgID(),
	}); err != nil {
		return fmt.Errorf("failed to enqueue waiter: %w", err)
	}
	return nil
}

// Dequeue removes this session's queued wait entry for name, if any, along
// with entries left behind by sessions whose backend has died. Callers use
// it after a reconnect to clear the ghost entry of the session they replace.
func (s *Session) Dequeue(ctx context.Context, name string) error {
	if _, err := sqlc.New(s.conn).RemoveWaiter(ctx, sqlc.RemoveWaiterParams{
		Name:      name,
		SessionID: s.pgID(),
	}); err != nil {
		return fmt.Errorf("failed to dequeue waiter: %w", err)
	}
	return nil
}

// Signal returns slot to the named semaphore's pool and wakes the oldest
// live waiter, if any. Signalling a slot that is already free is a no-op.
func (s *Session) Signal(ctx context.Context, name string, slot int) error {
	return pgx.BeginFunc(ctx, s.conn, func(tx pgx.Tx) error {
		q := sqlc.New(tx)

		affected, err := q.FreeSlot(ctx, sqlc.FreeSlotParams{
			Name: name,
			Slot: int32(slot),
		})
		if err != nil {
			return fmt.Errorf("failed to free slot: %w", err)
		}
		if affected == 0 {
			return nil
		}

		if _, err := q.DeleteHolder(ctx, sqlc.DeleteHolderParams{
			Name: name,
			Slot: int32(slot),
		}); err != nil {
			return fmt.Errorf("failed to remove slot holder: %w", err)
		}

		waiter, err := q.DequeueOldestWaiter(ctx, name)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("failed to dequeue waiting session: %w", err)
		}

		sessionID := uuid.UUID(waiter.Bytes).String()
		if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", Channel, sessionID); err != nil {
			return fmt.Errorf("failed to notify waiting session: %w", err)
		}
		return nil
	})
}

// Close terminates the session's connection. Any slot still held by the
// session is abandoned as far as this process is concerned; call Signal
// first to return it cleanly.
func (s *Session) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

func (s *Session) pgID() pgtype.UUID {
	var id pgtype.UUID
	copy(id.Bytes[:], s.id[:])
	id.Valid = true
	return id
}
