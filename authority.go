package semlock

import "context"

// Session is one stateful connection to the lock authority. A session that
// dies while queued implicitly abandons its wait; a session that dies while
// holding a slot abandons the slot to the authority's dead-holder cleanup.
// Sessions are not safe for concurrent use.
type Session interface {
	// Wait blocks until a slot of the named semaphore is granted to this
	// session and returns its number. No grant ordering is promised beyond
	// "eventually returns while a slot frees and the session survives".
	Wait(ctx context.Context, name string) (int, error)

	// Dequeue removes this session's queued wait entry for name, if any,
	// together with entries abandoned by dead sessions. It does not error
	// when nothing is queued.
	Dequeue(ctx context.Context, name string) error

	// Signal returns slot to the named semaphore's pool, potentially
	// unblocking one waiter. Signalling a free slot is a no-op.
	Signal(ctx context.Context, name string, slot int) error

	// Close terminates the session.
	Close(ctx context.Context) error
}

// Authority owns the slot pools and wait-queue semantics the client
// coordinates through. The default implementation stores them in
// PostgreSQL; tests substitute an in-memory one.
type Authority interface {
	// Capacity returns the number of slots registered for name, zero when
	// the name is unknown.
	Capacity(ctx context.Context, name string) (int, error)

	// Session opens a fresh session against the authority.
	Session(ctx context.Context) (Session, error)
}

// AuditLog records the life cycle of acquisitions. All methods must be safe
// to call from the acquiring goroutine while the holding session is open;
// implementations must never write through the holding session itself.
type AuditLog interface {
	// Request records a new acquisition attempt and returns its id.
	Request(ctx context.Context, name, taskID string, numSlots int) (int64, error)

	// Attempts records the number of WAIT attempts of an acquisition that
	// ended without a grant.
	Attempts(ctx context.Context, id int64, attempts int) error

	// Grant records the grant time, slot, and final attempt count.
	Grant(ctx context.Context, id int64, slot, attempts int) error

	// Release records the release time.
	Release(ctx context.Context, id int64) error
}
