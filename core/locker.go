package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const lockPollInterval = 10 * time.Millisecond

// MemoryConnectionLocker is a process-local keyed mutex with lease expiry.
// Acquire waits for the holder to unlock or for its lease to run out.
type MemoryConnectionLocker struct {
	mu    sync.Mutex
	locks map[string]*memoryLease
	nowFn func() time.Time
}

type memoryLease struct {
	until    time.Time
	released chan struct{}
}

func NewMemoryConnectionLocker() *MemoryConnectionLocker {
	return &MemoryConnectionLocker{
		locks: make(map[string]*memoryLease),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryConnectionLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: connection locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("core: lock key is required")
	}
	if ttl <= 0 {
		ttl = DefaultRefreshLockTTL
	}

	for {
		l.mu.Lock()
		now := l.nowFn()
		current, held := l.locks[key]
		if !held || !now.Before(current.until) {
			lease := &memoryLease{until: now.Add(ttl), released: make(chan struct{})}
			l.locks[key] = lease
			l.mu.Unlock()
			return &memoryLockHandle{locker: l, key: key, lease: lease}, nil
		}
		released := current.released
		l.mu.Unlock()

		timer := time.NewTimer(lockPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("core: wait for refresh lock %q: %w", key, ctx.Err())
		case <-released:
			timer.Stop()
		case <-timer.C:
		}
	}
}

type memoryLockHandle struct {
	locker *MemoryConnectionLocker
	key    string
	lease  *memoryLease
	once   sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		if current, ok := h.locker.locks[h.key]; ok && current == h.lease {
			delete(h.locker.locks, h.key)
		}
		h.locker.mu.Unlock()
		close(h.lease.released)
	})
	return nil
}

var _ ConnectionLocker = (*MemoryConnectionLocker)(nil)
