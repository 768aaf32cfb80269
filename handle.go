package semlock

import (
	"context"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handle is a held semaphore slot. It owns the authority session the slot is
// bound to; releasing the handle is the only way the slot returns to the
// pool. A Handle belongs to the goroutine that acquired it and must not be
// shared.
type Handle struct {
	audit     AuditLog
	session   Session
	name      string
	slot      int
	requestID int64
	logger    logrus.FieldLogger

	releaseOnce sync.Once
}

// Name returns the semaphore the slot belongs to.
func (h *Handle) Name() string {
	return h.name
}

// Slot returns the slot number assigned by the authority.
func (h *Handle) Slot() int {
	return h.slot
}

// RequestID returns the id of the handle's row in the audit trail.
func (h *Handle) RequestID() int64 {
	return h.requestID
}

// Release returns the slot to the pool, records the release in the audit
// trail, and closes the holding session. It is safe to call multiple times;
// only the first call has any effect.
//
// Release never reports failure: it typically runs during teardown, where an
// error would mask the original control flow, and the slot must be treated
// as released regardless of whether the bookkeeping succeeded. Failures are
// logged instead.
func (h *Handle) Release(ctx context.Context) {
	h.releaseOnce.Do(func() {
		h.release(ctx)
	})
}

// Close releases the slot with a background context. It is provided for
// defer statements.
func (h *Handle) Close() {
	h.Release(context.Background())
}

func (h *Handle) release(ctx context.Context) {
	runtime.SetFinalizer(h, nil)

	if err := h.session.Signal(ctx, h.name, h.slot); err != nil {
		h.logger.WithError(err).Error("failed to signal slot release")
	}
	if err := h.audit.Release(ctx, h.requestID); err != nil {
		h.logger.WithError(err).Warn("failed to record release time")
	}
	if err := h.session.Close(ctx); err != nil {
		h.logger.WithError(err).Warn("failed to close holding session")
	}
}
