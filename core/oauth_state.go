package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const stateEntropyBytes = 32

type MemoryAttemptStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	nowFn      func() time.Time
	entries    map[string]AuthorizationAttempt
}

func NewMemoryAttemptStore(ttl time.Duration) *MemoryAttemptStore {
	return NewMemoryAttemptStoreWithLimits(ttl, DefaultStateCapacity)
}

// NewMemoryAttemptStoreWithLimits bounds the number of pending attempts. When
// full, expired attempts are pruned first and then the oldest are evicted.
func NewMemoryAttemptStoreWithLimits(ttl time.Duration, maxEntries int) *MemoryAttemptStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultStateCapacity
	}
	return &MemoryAttemptStore{
		ttl:        ttl,
		maxEntries: maxEntries,
		nowFn:      func() time.Time { return time.Now().UTC() },
		entries:    map[string]AuthorizationAttempt{},
	}
}

func (s *MemoryAttemptStore) Save(_ context.Context, attempt AuthorizationAttempt) error {
	if s == nil {
		return fmt.Errorf("core: attempt store is not configured")
	}
	state := strings.TrimSpace(attempt.State)
	if state == "" {
		return fmt.Errorf("core: authorization state is required")
	}
	if strings.TrimSpace(attempt.OwnerID) == "" {
		return fmt.Errorf("core: authorization owner id is required")
	}

	now := s.nowFn()
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = now
	}
	if attempt.ExpiresAt.IsZero() {
		attempt.ExpiresAt = attempt.CreatedAt.Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	s.entries[state] = cloneAttempt(attempt)
	s.evictLocked()
	return nil
}

func (s *MemoryAttemptStore) Consume(_ context.Context, state string) (AuthorizationAttempt, error) {
	if s == nil {
		return AuthorizationAttempt{}, fmt.Errorf("core: attempt store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return AuthorizationAttempt{}, ErrAttemptNotFound
	}

	s.mu.Lock()
	attempt, ok := s.entries[state]
	if ok {
		delete(s.entries, state)
	}
	s.mu.Unlock()

	if !ok || attempt.Expired(s.nowFn()) {
		return AuthorizationAttempt{}, ErrAttemptNotFound
	}
	return cloneAttempt(attempt), nil
}

// Len reports pending attempts, expired ones included until the next prune.
func (s *MemoryAttemptStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryAttemptStore) PruneExpired(context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: attempt store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.entries)
	s.pruneLocked(s.nowFn())
	return before - len(s.entries), nil
}

func (s *MemoryAttemptStore) pruneLocked(now time.Time) {
	for state, attempt := range s.entries {
		if attempt.Expired(now) {
			delete(s.entries, state)
		}
	}
}

func (s *MemoryAttemptStore) evictLocked() {
	overflow := len(s.entries) - s.maxEntries
	if overflow <= 0 {
		return
	}
	states := make([]string, 0, len(s.entries))
	for state := range s.entries {
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool {
		return s.entries[states[i]].CreatedAt.Before(s.entries[states[j]].CreatedAt)
	})
	for _, state := range states[:overflow] {
		delete(s.entries, state)
	}
}

// GenerateState returns 256 bits of URL-safe randomness.
func GenerateState() (string, error) {
	raw := make([]byte, stateEntropyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate authorization state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func cloneAttempt(attempt AuthorizationAttempt) AuthorizationAttempt {
	cloned := attempt
	cloned.Scopes = append([]string(nil), attempt.Scopes...)
	return cloned
}

var _ AttemptStore = (*MemoryAttemptStore)(nil)
