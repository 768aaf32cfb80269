// Package pgauthority implements the WAIT/DEQUEUE/SIGNAL lock authority on
// PostgreSQL. Slot state lives in the semlock catalog row as a bitmap claimed
// under row locks; queued waiters are rows in semlock_waiter and are woken
// through LISTEN/NOTIFY addressed by session UUID.
package pgauthority

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgxlisten"
	"github.com/sirupsen/logrus"

	"github.com/lsst-dm/semlock/internal/sqlc"
	"github.com/lsst-dm/semlock/internal/waitqueue"
)

// Channel is the NOTIFY channel shared by all semaphores. The payload of a
// notification is the UUID of the session being woken, so a single listener
// connection serves every session opened by this process.
const Channel = "semlock"

// Authority exposes the semaphore slot pool stored in PostgreSQL. One
// Authority per process is enough; sessions opened from it share its
// notification listener.
type Authority struct {
	pool     *pgxpool.Pool
	handler  *waitqueue.ListenHandler
	listener *pgxlisten.Listener
	logger   logrus.FieldLogger
	cancel   context.CancelFunc
}

// Open creates an Authority over the given connection pool and starts its
// notification listener. The pool is only used for catalog reads and for
// deriving the connection config of dedicated sessions; it is not closed by
// the Authority.
func Open(pool *pgxpool.Pool, logger logrus.FieldLogger) *Authority {
	a := &Authority{
		pool:    pool,
		handler: &waitqueue.ListenHandler{},
		logger:  logger,
	}
	a.listener = &pgxlisten.Listener{
		Connect: func(ctx context.Context) (*pgx.Conn, error) {
			config := pool.Config().ConnConfig.Copy()
			return pgx.ConnectConfig(ctx, config)
		},
	}
	a.listener.Handle(Channel, a.handler)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go func() {
		// Listen reconnects on transient failures and only returns on a
		// fatal error or cancellation. Without it queued sessions never wake,
		// so a premature return is worth shouting about.
		if err := a.listener.Listen(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("semlock notification listener stopped; queued waiters will stall")
		}
	}()
	return a
}

// Close stops the notification listener. Sessions already granted a slot are
// unaffected; sessions still waiting will no longer receive wakeups.
func (a *Authority) Close() {
	a.cancel()
}

// Capacity returns the number of slots registered for name. An unregistered
// name has capacity zero; that is not an error at this level.
func (a *Authority) Capacity(ctx context.Context, name string) (int, error) {
	n, err := sqlc.New(a.pool).GetSemlockCapacity(ctx, name)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query semaphore catalog: %w", err)
	}
	return int(n), nil
}

// Session opens a dedicated connection to the authority. The connection is
// deliberately not borrowed from the pool: a granted slot is tied to the
// session for the whole time it is held, which would pin a pool member for
// an unbounded period.
func (a *Authority) Session(ctx context.Context) (*Session, error) {
	config := a.pool.Config().ConnConfig.Copy()
	conn, err := pgx.ConnectConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect authority session: %w", err)
	}
	return &Session{
		id:      uuid.New(),
		conn:    conn,
		handler: a.handler,
	}, nil
}
