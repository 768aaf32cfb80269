package semlock_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lsst-dm/semlock"
)

// fakeAuthority is an in-memory lock authority for exercising the client's
// retry and release logic without a database. Slots are handed directly to
// the oldest waiter on release, which is stricter than the real authority
// promises but convenient to assert against.
type fakeAuthority struct {
	mu         sync.Mutex
	capacity   map[string]int
	held       map[string]map[int]int // name -> slot -> holder session id
	waiters    map[string][]*fakeWaiter
	waitFails  int // Wait calls to fail before succeeding
	dequeues   int
	sessionSeq int
	events     []string
}

type fakeWaiter struct {
	sess *fakeSession
	ch   chan int
}

type fakeSession struct {
	auth   *fakeAuthority
	id     int
	closed bool
}

func newFakeAuthority(capacity map[string]int) *fakeAuthority {
	return &fakeAuthority{
		capacity: capacity,
		held:     make(map[string]map[int]int),
		waiters:  make(map[string][]*fakeWaiter),
	}
}

func (a *fakeAuthority) Capacity(_ context.Context, name string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capacity[name], nil
}

func (a *fakeAuthority) Session(_ context.Context) (semlock.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionSeq++
	s := &fakeSession{auth: a, id: a.sessionSeq}
	a.events = append(a.events, fmt.Sprintf("open:%d", s.id))
	return s, nil
}

func (a *fakeAuthority) heldCount(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.held[name])
}

func (a *fakeAuthority) eventCount(prefix string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.events {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

func (a *fakeAuthority) eventIndex(event string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, e := range a.events {
		if e == event {
			return i
		}
	}
	return -1
}

func (s *fakeSession) Wait(ctx context.Context, name string) (int, error) {
	a := s.auth
	a.mu.Lock()
	a.events = append(a.events, fmt.Sprintf("wait:%d", s.id))
	if a.waitFails > 0 {
		a.waitFails--
		a.mu.Unlock()
		return 0, errors.New("simulated connection loss")
	}
	slots := a.held[name]
	if slots == nil {
		slots = make(map[int]int)
		a.held[name] = slots
	}
	for i := 0; i < a.capacity[name]; i++ {
		if _, taken := slots[i]; !taken {
			slots[i] = s.id
			a.mu.Unlock()
			return i, nil
		}
	}
	w := &fakeWaiter{sess: s, ch: make(chan int, 1)}
	a.waiters[name] = append(a.waiters[name], w)
	a.mu.Unlock()

	select {
	case slot := <-w.ch:
		return slot, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *fakeSession) Dequeue(_ context.Context, name string) error {
	a := s.auth
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dequeues++
	a.events = append(a.events, fmt.Sprintf("dequeue:%d", s.id))
	var kept []*fakeWaiter
	for _, w := range a.waiters[name] {
		if w.sess == s || w.sess.closed {
			continue
		}
		kept = append(kept, w)
	}
	a.waiters[name] = kept
	return nil
}

func (s *fakeSession) Signal(_ context.Context, name string, slot int) error {
	a := s.auth
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, fmt.Sprintf("signal:%d", s.id))
	slots := a.held[name]
	if slots == nil {
		return nil
	}
	if _, taken := slots[slot]; !taken {
		return nil
	}
	if queue := a.waiters[name]; len(queue) > 0 {
		w := queue[0]
		a.waiters[name] = queue[1:]
		slots[slot] = w.sess.id
		w.ch <- slot
		return nil
	}
	delete(slots, slot)
	return nil
}

func (s *fakeSession) Close(_ context.Context) error {
	a := s.auth
	a.mu.Lock()
	defer a.mu.Unlock()
	s.closed = true
	a.events = append(a.events, fmt.Sprintf("close:%d", s.id))
	return nil
}

// fakeAudit records the seminfo trail in memory.
type fakeAudit struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*fakeAuditRow
}

type fakeAuditRow struct {
	name        string
	taskID      string
	numSlots    int
	numRequests int
	slot        *int
	requestTime time.Time
	grantTime   *time.Time
	releaseTime *time.Time
}

func newFakeAudit() *fakeAudit {
	return &fakeAudit{rows: make(map[int64]*fakeAuditRow)}
}

func (f *fakeAudit) Request(_ context.Context, name, taskID string, numSlots int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.rows[f.nextID] = &fakeAuditRow{
		name:        name,
		taskID:      taskID,
		numSlots:    numSlots,
		requestTime: time.Now(),
	}
	return f.nextID, nil
}

func (f *fakeAudit) Attempts(_ context.Context, id int64, attempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[id].numRequests = attempts
	return nil
}

func (f *fakeAudit) Grant(_ context.Context, id int64, slot, attempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.rows[id]
	now := time.Now()
	row.grantTime = &now
	row.numRequests = attempts
	row.slot = &slot
	return nil
}

func (f *fakeAudit) Release(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	f.rows[id].releaseTime = &now
	return nil
}

func (f *fakeAudit) row(id int64) fakeAuditRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.rows[id]
}

func (f *fakeAudit) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}
