// Package waitqueue delivers PostgreSQL NOTIFY payloads to in-process
// waiters. The lock authority wakes a queued session by notifying the shared
// channel with the session's ID as the payload; the handler routes that
// payload to whichever goroutine registered under the same ID.
package waitqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgxlisten"
)

// ListenHandler routes notifications to registered session waiters by
// notification payload.
type ListenHandler struct {
	mu sync.RWMutex

	waiters map[string]func(context.Context) error
}

var _ pgxlisten.Handler = (*ListenHandler)(nil)

// HandleNotification implements the pgxlisten.Handler interface.
func (h *ListenHandler) HandleNotification(ctx context.Context, notification *pgconn.Notification, _ *pgx.Conn) error {
	h.mu.RLock()
	callback := h.waiters[notification.Payload]
	h.mu.RUnlock()

	if callback != nil {
		// Run the callback off the listener goroutine so a slow waiter cannot
		// stall delivery to other sessions.
		go func() {
			_ = callback(ctx)
		}()
	}

	return nil
}

// Register adds a callback to be invoked when a notification for id arrives.
func (h *ListenHandler) Register(id string, callback func(context.Context) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.waiters == nil {
		h.waiters = make(map[string]func(context.Context) error)
	}
	if _, exists := h.waiters[id]; exists {
		return fmt.Errorf("duplicate id: %s", id)
	}
	h.waiters[id] = callback
	return nil
}

// Has reports whether a waiter with the given ID is registered.
func (h *ListenHandler) Has(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.waiters[id]
	return exists
}

// Unregister removes the waiter registered under id. It reports whether a
// waiter was actually removed.
func (h *ListenHandler) Unregister(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.waiters[id]; !exists {
		return false
	}
	delete(h.waiters, id)
	return true
}
