package semlock

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/sirupsen/logrus"

	"github.com/lsst-dm/semlock/internal/audit"
	"github.com/lsst-dm/semlock/internal/pgauthority"
)

const (
	// MaxSlots is the maximum capacity of a single semaphore. The limit
	// comes from the bit representation used for tracking slot state.
	MaxSlots = 64

	// DefaultMaxAttempts is the number of WAIT attempts made before an
	// acquisition is abandoned.
	DefaultMaxAttempts = 5

	// DefaultRetryInterval is the pause between WAIT attempts.
	DefaultRetryInterval = 10 * time.Second
)

// Config holds the configuration for creating a Client.
type Config struct {
	// Pool is the connection pool to the coordination database. Required
	// unless both Authority and Audit are provided.
	Pool *pgxpool.Pool

	// Authority overrides the lock authority. Defaults to the PostgreSQL
	// authority over Pool. Mainly useful for tests.
	Authority Authority

	// Audit overrides the audit trail recorder. Defaults to the seminfo
	// recorder over Pool.
	Audit AuditLog

	// MaxAttempts bounds the WAIT attempts per acquisition.
	// Defaults to DefaultMaxAttempts.
	MaxAttempts int

	// RetryInterval is the pause between WAIT attempts.
	// Defaults to DefaultRetryInterval.
	RetryInterval time.Duration

	// Clock supplies the retry delays. Defaults to clock.WallClock.
	Clock clock.Clock

	// Logger receives the failures this client is contractually required to
	// swallow (release path, audit writes after a grant). Defaults to
	// logrus.StandardLogger().
	Logger logrus.FieldLogger
}

func (c Config) Validate() error {
	if c.Pool == nil && (c.Authority == nil || c.Audit == nil) {
		return fmt.Errorf("pool cannot be nil unless both authority and audit are provided")
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max attempts cannot be negative: given %d", c.MaxAttempts)
	}
	if c.RetryInterval < 0 {
		return fmt.Errorf("retry interval cannot be negative: given %s", c.RetryInterval)
	}
	return nil
}

// Client acquires and releases semaphore slots on behalf of one logical
// task. A Client issues one blocking wait at a time per Acquire call;
// independent processes coordinate purely through the shared database.
type Client struct {
	authority Authority
	audit     AuditLog
	owned     *pgauthority.Authority

	maxAttempts   int
	retryInterval time.Duration
	clk           clock.Clock
	logger        logrus.FieldLogger
}

// New creates a Client from conf. When conf does not override the authority,
// the client opens a PostgreSQL authority over conf.Pool and starts its
// notification listener; Close stops it again.
func New(conf Config) (*Client, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}

	logger := conf.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Client{
		authority:     conf.Authority,
		audit:         conf.Audit,
		maxAttempts:   conf.MaxAttempts,
		retryInterval: conf.RetryInterval,
		clk:           conf.Clock,
		logger:        logger,
	}
	if c.authority == nil {
		c.owned = pgauthority.Open(conf.Pool, logger)
		c.authority = pgAuthority{c.owned}
	}
	if c.audit == nil {
		c.audit = audit.NewRecorder(conf.Pool)
	}
	if c.maxAttempts == 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.retryInterval == 0 {
		c.retryInterval = DefaultRetryInterval
	}
	if c.clk == nil {
		c.clk = clock.WallClock
	}
	return c, nil
}

// Close releases resources owned by the client. Handles acquired through it
// stay valid; only the wakeup listener of a client-owned authority stops.
func (c *Client) Close() {
	if c.owned != nil {
		c.owned.Close()
	}
}

// Acquire obtains one slot of the named semaphore, blocking until a slot is
// free. taskID identifies the requester in the audit trail. It returns a
// *NotFoundError when the semaphore is not registered and a
// *AcquisitionFailedError when the retry budget is exhausted without a
// grant.
//
// Transient connectivity faults during the wait are handled internally: the
// dead session is closed, a fresh one is dialed after the retry interval,
// and the fresh session clears any stale wait-queue entry before waiting
// again.
func (c *Client) Acquire(ctx context.Context, name, taskID string) (*Handle, error) {
	capacity, err := c.authority.Capacity(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up semaphore %q: %w", name, err)
	}
	if capacity == 0 {
		return nil, &NotFoundError{Name: name}
	}

	// Committed before blocking so the pending acquisition is visible to
	// operators for as long as the wait takes.
	requestID, err := c.audit.Request(ctx, name, taskID, capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to record acquisition request: %w", err)
	}

	logger := c.logger.WithFields(logrus.Fields{
		"semaphore": name,
		"task":      taskID,
		"request":   requestID,
	})

	var (
		sess     Session
		slot     int
		attempts int
	)
	err = retry.Call(retry.CallArgs{
		Attempts: c.maxAttempts,
		Delay:    c.retryInterval,
		Clock:    c.clk,
		Stop:     ctx.Done(),
		Func: func() error {
			attempts++
			if sess == nil {
				fresh, err := c.authority.Session(ctx)
				if err != nil {
					return fmt.Errorf("failed to open authority session: %w", err)
				}
				if attempts > 1 {
					// The previous session may have died while queued. Its
					// ghost entry would hold a queue position for nobody.
					if err := fresh.Dequeue(ctx, name); err != nil {
						_ = fresh.Close(context.WithoutCancel(ctx))
						return fmt.Errorf("failed to clear stale wait entry: %w", err)
					}
				}
				sess = fresh
			}
			n, err := sess.Wait(ctx, name)
			if err != nil {
				// Close before replacing; abandoned connections are the
				// authority's problem only after we stop owning them.
				_ = sess.Close(context.WithoutCancel(ctx))
				sess = nil
				return err
			}
			slot = n
			return nil
		},
		IsFatalError: func(err error) bool {
			return ctx.Err() != nil
		},
		NotifyFunc: func(err error, attempt int) {
			logger.WithError(err).WithField("attempt", attempt).
				Warn("semaphore wait failed, retrying on a fresh session")
		},
	})
	if err != nil {
		if auditErr := c.audit.Attempts(context.WithoutCancel(ctx), requestID, attempts); auditErr != nil {
			logger.WithError(auditErr).Warn("failed to record attempt count of failed acquisition")
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &AcquisitionFailedError{
			Name:     name,
			Attempts: attempts,
			cause:    retry.LastError(err),
		}
	}

	// The grant record deliberately does not go through the holding session:
	// grant state must never depend on audit commits. Failure to record is
	// logged and accepted; the slot is held either way.
	if err := c.audit.Grant(ctx, requestID, slot, attempts); err != nil {
		logger.WithError(err).Warn("slot granted but grant record could not be written")
	}

	h := &Handle{
		audit:     c.audit,
		session:   sess,
		name:      name,
		slot:      slot,
		requestID: requestID,
		logger:    logger.WithField("slot", slot),
	}
	// Safety net only. Deterministic release is the caller's job, via
	// Release, Close, or WithSlot.
	runtime.SetFinalizer(h, (*Handle).Close)
	return h, nil
}

// WithSlot acquires a slot, runs fn with its number, and releases the slot
// on every exit path, including a panic in fn.
func (c *Client) WithSlot(ctx context.Context, name, taskID string, fn func(ctx context.Context, slot int) error) error {
	h, err := c.Acquire(ctx, name, taskID)
	if err != nil {
		return err
	}
	defer h.Close()
	return fn(ctx, h.Slot())
}

// pgAuthority adapts the concrete PostgreSQL authority to the Authority
// interface, narrowing its session type.
type pgAuthority struct {
	a *pgauthority.Authority
}

func (p pgAuthority) Capacity(ctx context.Context, name string) (int, error) {
	return p.a.Capacity(ctx, name)
}

func (p pgAuthority) Session(ctx context.Context) (Session, error) {
	s, err := p.a.Session(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}
