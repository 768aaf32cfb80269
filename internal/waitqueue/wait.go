package waitqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Wait blocks until a notification for the waiter's ID arrives or ctx is
// cancelled. The afterRegister callback, if any, runs once the waiter is
// registered, so callers can publish their queue entry without racing the
// wakeup: a notification sent any time after registration is not lost.
// If afterRegister returns an error, Wait unregisters and returns it
// wrapped, so callers can smuggle out an early result through a sentinel.
func Wait(ctx context.Context, handler *ListenHandler, opts ...WaitOption) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	options := &WaitOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if options.id == "" {
		options.id = uuid.NewString()
	}

	notify := make(chan struct{}, 1)

	err := handler.Register(options.id, func(ctx context.Context) error {
		select {
		case notify <- struct{}{}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register waiter: %w", err)
	}
	defer handler.Unregister(options.id)

	if options.afterRegister != nil {
		if err := options.afterRegister(); err != nil {
			return fmt.Errorf("after register callback failed: %w", err)
		}
	}

	select {
	case <-notify:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type WaitOptions struct {
	// id is the unique identifier for the waiter.
	id string

	// afterRegister is a callback that will be called after the waiter is
	// registered.
	afterRegister func() error
}

type WaitOption func(*WaitOptions)

// WithID sets the waiter's identifier. The lock authority uses the session
// UUID here so the releasing side can address the wakeup.
func WithID(id string) WaitOption {
	return func(opts *WaitOptions) {
		opts.id = id
	}
}

// WithAfterRegister sets a callback to run once the waiter is registered.
func WithAfterRegister(callback func() error) WaitOption {
	return func(opts *WaitOptions) {
		opts.afterRegister = callback
	}
}
