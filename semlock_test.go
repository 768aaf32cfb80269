package semlock_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsst-dm/semlock"
)

var (
	_ semlock.Authority = (*fakeAuthority)(nil)
	_ semlock.AuditLog  = (*fakeAudit)(nil)
)

// newFakeClient builds a client over the in-memory authority with a retry
// interval short enough for tests.
func newFakeClient(t *testing.T, authority *fakeAuthority, audit *fakeAudit) *semlock.Client {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	client, err := semlock.New(semlock.Config{
		Authority:     authority,
		Audit:         audit,
		RetryInterval: time.Millisecond,
		Logger:        logger,
	})
	require.NoError(t, err, "New should not return an error")
	return client
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	t.Run("rejects missing pool without overrides", func(t *testing.T) {
		_, err := semlock.New(semlock.Config{})
		require.Error(t, err, "New should reject an empty config")
	})

	t.Run("accepts authority and audit without pool", func(t *testing.T) {
		client := newFakeClient(t, newFakeAuthority(nil), newFakeAudit())
		client.Close()
	})

	t.Run("rejects negative retry tuning", func(t *testing.T) {
		_, err := semlock.New(semlock.Config{
			Authority:   newFakeAuthority(nil),
			Audit:       newFakeAudit(),
			MaxAttempts: -1,
		})
		require.Error(t, err, "New should reject negative max attempts")
	})
}

func TestAcquireUnknownSemaphore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	audit := newFakeAudit()
	client := newFakeClient(t, newFakeAuthority(nil), audit)

	_, err := client.Acquire(ctx, "no-such-semaphore", "task-1")

	var notFound *semlock.NotFoundError
	require.ErrorAs(t, err, &notFound, "unregistered name should fail with NotFoundError")
	assert.Equal(t, "no-such-semaphore", notFound.Name)
	assert.Zero(t, audit.count(), "no audit row should be written for an unknown semaphore")
}

func TestAcquireGrantsDistinctSlots(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	authority := newFakeAuthority(map[string]int{"disk": 3})
	audit := newFakeAudit()
	client := newFakeClient(t, authority, audit)

	seen := make(map[int]bool)
	var handles []*semlock.Handle
	for i := 0; i < 3; i++ {
		h, err := client.Acquire(ctx, "disk", "task")
		require.NoError(t, err, "acquisition %d within capacity should succeed", i)
		require.False(t, seen[h.Slot()], "slot %d assigned twice", h.Slot())
		require.GreaterOrEqual(t, h.Slot(), 0)
		require.Less(t, h.Slot(), 3)
		seen[h.Slot()] = true
		handles = append(handles, h)
	}

	for _, h := range handles {
		row := audit.row(h.RequestID())
		require.NotNil(t, row.grantTime, "grant should be recorded")
		assert.Equal(t, 1, row.numRequests, "a clean grant takes one attempt")
		assert.Equal(t, 3, row.numSlots, "capacity snapshot should be recorded")
		assert.Equal(t, h.Slot(), *row.slot)
		assert.False(t, row.grantTime.Before(row.requestTime), "request_time must not exceed grant_time")
		h.Release(ctx)
	}
	assert.Zero(t, authority.heldCount("disk"), "all slots should be free after release")
}

func TestAcquireBlocksAtCapacity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	authority := newFakeAuthority(map[string]int{"disk": 1})
	client := newFakeClient(t, authority, newFakeAudit())

	first, err := client.Acquire(ctx, "disk", "holder")
	require.NoError(t, err)

	granted := make(chan *semlock.Handle, 1)
	go func() {
		h, err := client.Acquire(ctx, "disk", "waiter")
		if err == nil {
			granted <- h
		}
	}()

	select {
	case <-granted:
		t.Fatal("second acquisition should block while the slot is held")
	case <-time.After(100 * time.Millisecond):
	}

	first.Release(ctx)

	select {
	case h := <-granted:
		assert.Equal(t, 0, h.Slot(), "the released slot should be handed to the waiter")
		h.Release(ctx)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter was not granted the released slot")
	}
}

func TestAcquireRetriesAfterTransientFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	authority := newFakeAuthority(map[string]int{"disk": 1})
	authority.waitFails = 1
	audit := newFakeAudit()
	client := newFakeClient(t, authority, audit)

	h, err := client.Acquire(ctx, "disk", "task")
	require.NoError(t, err, "acquisition should recover from a transient failure")
	defer h.Release(ctx)

	row := audit.row(h.RequestID())
	require.NotNil(t, row.grantTime, "grant should be recorded after the retry")
	assert.Equal(t, 2, row.numRequests, "both attempts should be counted")

	assert.Equal(t, 1, authority.dequeues, "the fresh session should dequeue exactly once")

	// The failed session is closed and replaced, and the stale queue entry
	// cleared, before the retried wait.
	require.Less(t, authority.eventIndex("close:1"), authority.eventIndex("open:2"),
		"dead session should be closed before the fresh one is dialed")
	require.Less(t, authority.eventIndex("dequeue:2"), authority.eventIndex("wait:2"),
		"stale queue entry should be cleared before the fresh wait")
}

func TestAcquireFailsWhenRetryBudgetExhausted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	authority := newFakeAuthority(map[string]int{"disk": 1})
	authority.waitFails = 100
	audit := newFakeAudit()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	client, err := semlock.New(semlock.Config{
		Authority:     authority,
		Audit:         audit,
		MaxAttempts:   5,
		RetryInterval: time.Millisecond,
		Logger:        logger,
	})
	require.NoError(t, err)

	_, err = client.Acquire(ctx, "disk", "task")

	var failed *semlock.AcquisitionFailedError
	require.ErrorAs(t, err, &failed, "exhausted retries should fail with AcquisitionFailedError")
	assert.Equal(t, "disk", failed.Name)
	assert.Equal(t, 5, failed.Attempts)

	require.Equal(t, 1, audit.count(), "the request row should persist as evidence")
	row := audit.row(1)
	assert.Equal(t, 5, row.numRequests, "every attempt should be counted")
	assert.Nil(t, row.grantTime, "a failed acquisition has no grant time")
	assert.Zero(t, authority.heldCount("disk"), "no slot should be held after a failed acquisition")
}

func TestAcquireContextCancellation(t *testing.T) {
	t.Parallel()

	authority := newFakeAuthority(map[string]int{"disk": 1})
	client := newFakeClient(t, authority, newFakeAudit())

	holder, err := client.Acquire(context.Background(), "disk", "holder")
	require.NoError(t, err)
	defer holder.Release(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := client.Acquire(ctx, "disk", "cancelled")
		result <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-result:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled acquisition did not return")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	authority := newFakeAuthority(map[string]int{"disk": 2})
	audit := newFakeAudit()
	client := newFakeClient(t, authority, audit)

	h, err := client.Acquire(ctx, "disk", "task")
	require.NoError(t, err)

	h.Release(ctx)
	h.Release(ctx)
	h.Close()

	assert.Equal(t, 1, authority.eventCount("signal:"), "repeated release must signal exactly once")
	assert.Zero(t, authority.heldCount("disk"))
	row := audit.row(h.RequestID())
	require.NotNil(t, row.releaseTime, "release should be recorded")
	assert.False(t, row.releaseTime.Before(*row.grantTime), "grant_time must not exceed release_time")
}

func TestWithSlot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	authority := newFakeAuthority(map[string]int{"disk": 1})
	client := newFakeClient(t, authority, newFakeAudit())

	t.Run("releases on success", func(t *testing.T) {
		var got int
		err := client.WithSlot(ctx, "disk", "task", func(_ context.Context, slot int) error {
			got = slot
			require.Equal(t, 1, authority.heldCount("disk"), "slot should be held inside fn")
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 0, got)
		assert.Zero(t, authority.heldCount("disk"), "slot should be released after fn returns")
	})

	t.Run("releases on error and propagates it", func(t *testing.T) {
		boom := errors.New("boom")
		err := client.WithSlot(ctx, "disk", "task", func(context.Context, int) error {
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Zero(t, authority.heldCount("disk"), "slot should be released after fn fails")
	})

	t.Run("propagates acquisition failure", func(t *testing.T) {
		err := client.WithSlot(ctx, "nope", "task", func(context.Context, int) error {
			t.Fatal("fn must not run without a grant")
			return nil
		})
		var notFound *semlock.NotFoundError
		require.ErrorAs(t, err, &notFound)
	})
}

func TestHandleAccessors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := newFakeClient(t, newFakeAuthority(map[string]int{"disk": 1}), newFakeAudit())

	h, err := client.Acquire(ctx, "disk", "task")
	require.NoError(t, err)
	defer h.Release(ctx)

	assert.Equal(t, "disk", h.Name())
	assert.Equal(t, 0, h.Slot())
	assert.EqualValues(t, 1, h.RequestID())
}
