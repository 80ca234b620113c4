package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryAttemptStore_SavePrunesExpiredEntries(t *testing.T) {
	store := NewMemoryAttemptStoreWithLimits(time.Minute, 8)
	now := time.Now().UTC()

	if err := store.Save(context.Background(), AuthorizationAttempt{
		State:     "stale_state",
		OwnerID:   "u1",
		CreatedAt: now.Add(-2 * time.Minute),
		ExpiresAt: now.Add(-1 * time.Minute),
	}); err != nil {
		t.Fatalf("save stale state: %v", err)
	}
	if err := store.Save(context.Background(), AuthorizationAttempt{
		State:     "fresh_state",
		OwnerID:   "u1",
		CreatedAt: now,
	}); err != nil {
		t.Fatalf("save fresh state: %v", err)
	}

	if store.Len() != 1 {
		t.Fatalf("expected stale attempt to be pruned, have %d", store.Len())
	}
	if _, err := store.Consume(context.Background(), "fresh_state"); err != nil {
		t.Fatalf("expected fresh state to remain available, got %v", err)
	}
}

func TestMemoryAttemptStore_SaveEnforcesMaxEntries(t *testing.T) {
	store := NewMemoryAttemptStoreWithLimits(time.Hour, 2)
	now := time.Now().UTC()

	for i, state := range []string{"state_a", "state_b", "state_c"} {
		if err := store.Save(context.Background(), AuthorizationAttempt{
			State:     state,
			OwnerID:   "u1",
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("save %s: %v", state, err)
		}
	}

	if _, err := store.Consume(context.Background(), "state_a"); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected oldest state to be evicted, got %v", err)
	}
	if _, err := store.Consume(context.Background(), "state_b"); err != nil {
		t.Fatalf("expected state_b to remain after eviction, got %v", err)
	}
	if _, err := store.Consume(context.Background(), "state_c"); err != nil {
		t.Fatalf("expected state_c to remain after eviction, got %v", err)
	}
}

func TestMemoryAttemptStore_ConsumeIsAtomic(t *testing.T) {
	store := NewMemoryAttemptStore(time.Minute)
	if err := store.Save(context.Background(), AuthorizationAttempt{State: "s1", OwnerID: "u1"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(context.Background(), "s1"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one consumer to win, got %d", wins.Load())
	}
}

func TestMemoryAttemptStore_RequiresOwner(t *testing.T) {
	store := NewMemoryAttemptStore(time.Minute)
	if err := store.Save(context.Background(), AuthorizationAttempt{State: "s1"}); err == nil {
		t.Fatalf("expected owner to be required")
	}
}
