package core

import (
	"context"
	"testing"
	"time"
)

func TestMemoryConnectionLocker_AcquireWaitsForRelease(t *testing.T) {
	locker := NewMemoryConnectionLocker()
	ctx := context.Background()

	first, err := locker.Acquire(ctx, "owner", time.Minute)
	if err != nil {
		t.Fatalf("acquire first: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		second, err := locker.Acquire(ctx, "owner", time.Minute)
		if err == nil {
			_ = second.Unlock(ctx)
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatalf("second acquire must wait for the holder")
	case <-time.After(30 * time.Millisecond):
	}
	if err := first.Unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("second acquire did not proceed after unlock")
	}
}

func TestMemoryConnectionLocker_ContextCancelStopsWaiting(t *testing.T) {
	locker := NewMemoryConnectionLocker()
	held, err := locker.Acquire(context.Background(), "owner", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer held.Unlock(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(ctx, "owner", time.Minute); err == nil {
		t.Fatalf("expected acquire to fail when context expires")
	}
}

func TestMemoryConnectionLocker_ExpiredLeaseCanBeTaken(t *testing.T) {
	locker := NewMemoryConnectionLocker()
	now := time.Now().UTC()
	locker.nowFn = func() time.Time { return now }

	if _, err := locker.Acquire(context.Background(), "owner", time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	now = now.Add(2 * time.Second)
	if _, err := locker.Acquire(context.Background(), "owner", time.Second); err != nil {
		t.Fatalf("expected expired lease to be reclaimable, got %v", err)
	}
}

func TestMemoryConnectionLocker_KeysAreIndependent(t *testing.T) {
	locker := NewMemoryConnectionLocker()
	if _, err := locker.Acquire(context.Background(), "a", time.Minute); err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(ctx, "b", time.Minute); err != nil {
		t.Fatalf("acquire b: %v", err)
	}
}
