// README: Worker pool tests with an in-memory queue and scripted assigner.
package dispatch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"fitdash/internal/config"
	"fitdash/internal/types"
)

// mockQueue is an in-memory Queue for testing.
type mockQueue struct {
	mu       sync.Mutex
	items    []types.ID
	attempts map[types.ID]int
	retries  map[types.ID]time.Time
}

func newMockQueue(ids ...types.ID) *mockQueue {
	return &mockQueue{
		items:    append([]types.ID(nil), ids...),
		attempts: make(map[types.ID]int),
		retries:  make(map[types.ID]time.Time),
	}
}

func (m *mockQueue) Push(_ context.Context, ids ...types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, ids...)
	return nil
}

func (m *mockQueue) Pop(ctx context.Context, timeout time.Duration) (types.ID, bool, error) {
	m.mu.Lock()
	if len(m.items) > 0 {
		id := m.items[0]
		m.items = m.items[1:]
		m.mu.Unlock()
		return id, true, nil
	}
	m.mu.Unlock()
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return "", false, nil
	}
}

func (m *mockQueue) IncrAttempts(_ context.Context, id types.ID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[id]++
	return m.attempts[id], nil
}

func (m *mockQueue) Schedule(_ context.Context, id types.ID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries[id] = at
	return nil
}

func (m *mockQueue) PromoteDue(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []types.ID
	for id, at := range m.retries {
		if !at.After(now) {
			due = append(due, id)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })
	for _, id := range due {
		delete(m.retries, id)
		m.items = append(m.items, id)
	}
	return len(due), nil
}

func (m *mockQueue) Forget(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, id)
	delete(m.retries, id)
	return nil
}

func (m *mockQueue) RetryLen(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.retries)), nil
}

func (m *mockQueue) retryAt(id types.ID) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.retries[id]
	return at, ok
}

func (m *mockQueue) attemptsOf(id types.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[id]
}

// scriptedAssigner replays results per order, then repeats the last one.
type scriptedAssigner struct {
	mu     sync.Mutex
	script map[types.ID][]Result
	calls  map[types.ID]int
	err    error
}

func newScriptedAssigner() *scriptedAssigner {
	return &scriptedAssigner{script: make(map[types.ID][]Result), calls: make(map[types.ID]int)}
}

func (a *scriptedAssigner) Assign(_ context.Context, id types.ID) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[id]++
	if a.err != nil {
		return ResultError, a.err
	}
	steps := a.script[id]
	if len(steps) == 0 {
		return ResultSkipped, nil
	}
	i := min(a.calls[id]-1, len(steps)-1)
	return steps[i], nil
}

func (a *scriptedAssigner) callsFor(id types.ID) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[id]
}

func newTestCfg() config.DispatchConfig {
	return config.DispatchConfig{
		Workers:     3,
		TickSeconds: 1,
		MaxAttempts: 3,
		Backoff:     5 * time.Second,
		BackoffMax:  time.Minute,
	}
}

func TestPoolHandle_AssignedClearsAttempts(t *testing.T) {
	ctx := context.Background()
	q := newMockQueue()
	q.attempts["o1"] = 2
	a := newScriptedAssigner()
	a.script["o1"] = []Result{ResultAssigned}

	p := NewPool(q, a, newTestCfg())
	p.handle(ctx, "o1")

	if q.attemptsOf("o1") != 0 {
		t.Fatalf("expected attempts cleared, got %d", q.attemptsOf("o1"))
	}
	if _, ok := q.retryAt("o1"); ok {
		t.Fatal("assigned order must not be rescheduled")
	}
}

func TestPoolHandle_NoDriverSchedulesBackoff(t *testing.T) {
	ctx := context.Background()
	q := newMockQueue()
	a := newScriptedAssigner()
	a.script["o1"] = []Result{ResultNoDriver}

	fixed := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	p := NewPool(q, a, newTestCfg())
	p.now = func() time.Time { return fixed }

	p.handle(ctx, "o1")
	at, ok := q.retryAt("o1")
	if !ok {
		t.Fatal("expected a retry to be scheduled")
	}
	if want := fixed.Add(5 * time.Second); !at.Equal(want) {
		t.Fatalf("first retry at %v, want %v", at, want)
	}

	p.handle(ctx, "o1")
	at, _ = q.retryAt("o1")
	if want := fixed.Add(10 * time.Second); !at.Equal(want) {
		t.Fatalf("second retry at %v, want %v", at, want)
	}
}

func TestPoolHandle_GivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	q := newMockQueue()
	a := newScriptedAssigner()
	a.err = errors.New("connection reset")

	p := NewPool(q, a, newTestCfg())
	for i := 0; i < 3; i++ {
		p.handle(ctx, "o1")
	}
	if _, ok := q.retryAt("o1"); ok {
		t.Fatal("expected no retry after max attempts")
	}
	if q.attemptsOf("o1") != 0 {
		t.Fatalf("expected attempts reset after giving up, got %d", q.attemptsOf("o1"))
	}
}

// TestPoolRun_DrainsQueueAndRetries verifies that workers consume every queued
// order and that a retried order is picked up again once promoted.
func TestPoolRun_DrainsQueueAndRetries(t *testing.T) {
	q := newMockQueue("o1", "o2", "o3")
	a := newScriptedAssigner()
	a.script["o1"] = []Result{ResultAssigned}
	a.script["o2"] = []Result{ResultNoDriver, ResultAssigned}
	a.script["o3"] = []Result{ResultSkipped}

	cfg := newTestCfg()
	cfg.Backoff = time.Millisecond
	cfg.BackoffMax = time.Millisecond

	p := NewPool(q, a, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for a.callsFor("o2") < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}

	if got := a.callsFor("o1"); got != 1 {
		t.Fatalf("o1 attempts = %d, want 1", got)
	}
	if got := a.callsFor("o2"); got != 2 {
		t.Fatalf("o2 attempts = %d, want 2", got)
	}
	if got := a.callsFor("o3"); got != 1 {
		t.Fatalf("o3 attempts = %d, want 1", got)
	}
}
