package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/history"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/llm"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/llm/llmtest"
)

// countingStore is an in-memory history.Store that counts loads.
type countingStore struct {
	mu      sync.Mutex
	records map[string][]history.Turn
	loads   atomic.Int32
	delay   time.Duration
}

func newCountingStore() *countingStore {
	return &countingStore{records: make(map[string][]history.Turn)}
}

func (s *countingStore) Load(_ context.Context, userID string) []history.Turn {
	s.loads.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]history.Turn(nil), s.records[userID]...)
}

func (s *countingStore) Save(_ context.Context, userID string, turns []history.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[userID] = append([]history.Turn(nil), turns...)
	return nil
}

func (s *countingStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
	return nil
}

func (s *countingStore) List(context.Context) ([]string, error) { return nil, nil }
func (s *countingStore) Stats() history.Stats                   { return history.Stats{} }
func (s *countingStore) Close() error                           { return nil }

func newTestCache(store history.Store, cfg Config) *Cache {
	factory := func(h *history.History) *llm.Chat {
		return llm.NewChat(llmtest.Replying("ok"), "", h)
	}
	return NewCache(store, factory, cfg, nil)
}

func TestResolve_SameEntryAndSingleLoad(t *testing.T) {
	t.Parallel()

	store := newCountingStore()
	c := newTestCache(store, Config{})
	ctx := context.Background()

	first := c.Resolve(ctx, "u1")
	second := c.Resolve(ctx, "u1")
	if first != second {
		t.Error("Resolve returned different entries for the same user")
	}
	if first.Chat.History() != first.History {
		t.Error("chat is not bound to the entry's history")
	}
	if n := store.loads.Load(); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}

	if c.Resolve(ctx, "u2") == first {
		t.Error("different users share an entry")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestResolve_ConcurrentHydrateOnce(t *testing.T) {
	t.Parallel()

	store := newCountingStore()
	store.delay = 20 * time.Millisecond
	c := newTestCache(store, Config{})

	const n = 16
	entries := make([]*Entry, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries[i] = c.Resolve(context.Background(), "shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if entries[i] != entries[0] {
			t.Fatalf("entry %d differs from entry 0", i)
		}
	}
	if got := store.loads.Load(); got != 1 {
		t.Errorf("loads = %d, want 1", got)
	}
}

func TestResolve_TruncatesHydratedHistory(t *testing.T) {
	t.Parallel()

	store := newCountingStore()
	var turns []history.Turn
	for i := 0; i < 10; i++ {
		turns = append(turns, history.UserTurn("q"), history.AssistantTurn("a"))
	}
	_ = store.Save(context.Background(), "u", turns)

	c := newTestCache(store, Config{MaxHistory: 3})
	e := c.Resolve(context.Background(), "u")
	if e.History.Len() != 6 {
		t.Errorf("hydrated length = %d, want 6", e.History.Len())
	}
}

func TestResolve_LRUEviction(t *testing.T) {
	t.Parallel()

	store := newCountingStore()
	c := newTestCache(store, Config{MaxSessions: 2})
	ctx := context.Background()

	c.Resolve(ctx, "a")
	c.Resolve(ctx, "b")
	c.Resolve(ctx, "a") // a is now most recent
	c.Resolve(ctx, "c") // evicts b

	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if _, ok := c.Peek("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Peek("a"); !ok {
		t.Error("a should still be live")
	}

	before := store.loads.Load()
	c.Resolve(ctx, "b")
	if store.loads.Load() != before+1 {
		t.Error("evicted entry was not reloaded from the store")
	}
}

func TestEvict(t *testing.T) {
	t.Parallel()

	c := newTestCache(newCountingStore(), Config{})
	c.Resolve(context.Background(), "u")

	if !c.Evict("u") {
		t.Error("Evict(live) = false")
	}
	if c.Evict("u") {
		t.Error("Evict(gone) = true")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d", c.Len())
	}
}

func TestPrune(t *testing.T) {
	t.Parallel()

	c := newTestCache(newCountingStore(), Config{TTL: time.Hour})
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base
	c.now = func() time.Time { return now }

	c.Resolve(context.Background(), "old")
	now = base.Add(50 * time.Minute)
	c.Resolve(context.Background(), "fresh")

	now = base.Add(70 * time.Minute)
	if got := c.Prune(); got != 1 {
		t.Errorf("Prune = %d, want 1", got)
	}
	if _, ok := c.Peek("old"); ok {
		t.Error("old should have been pruned")
	}
	if _, ok := c.Peek("fresh"); !ok {
		t.Error("fresh should survive")
	}
}

func TestPrune_Disabled(t *testing.T) {
	t.Parallel()

	c := newTestCache(newCountingStore(), Config{TTL: -1})
	c.Resolve(context.Background(), "u")
	c.now = func() time.Time { return time.Now().Add(1000 * time.Hour) }
	if got := c.Prune(); got != 0 {
		t.Errorf("Prune = %d, want 0", got)
	}
}

func TestLock_SerializesSameUser(t *testing.T) {
	t.Parallel()

	c := newTestCache(newCountingStore(), Config{})

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := c.Lock("u")
			defer unlock()

			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	if maxActive.Load() != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxActive.Load())
	}

	c.locksMu.Lock()
	left := len(c.locks)
	c.locksMu.Unlock()
	if left != 0 {
		t.Errorf("%d lock records leaked", left)
	}
}

func TestLock_DifferentUsersDoNotBlock(t *testing.T) {
	t.Parallel()

	c := newTestCache(newCountingStore(), Config{})
	unlockA := c.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := c.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for b blocked behind a")
	}
}

func TestStartPruner_StopsWithContext(t *testing.T) {
	t.Parallel()

	c := newTestCache(newCountingStore(), Config{TTL: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	if err := c.StartPruner(ctx); err != nil {
		t.Fatalf("StartPruner: %v", err)
	}
	cancel()
}
