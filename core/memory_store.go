package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryConnectionStore keeps connections in process. Tokens are still passed
// through the codec so the at-rest contract matches the SQL store.
type MemoryConnectionStore struct {
	mu      sync.RWMutex
	codec   TokenCodec
	nowFn   func() time.Time
	records map[string]ConnectionRecord
}

func NewMemoryConnectionStore(codec TokenCodec) *MemoryConnectionStore {
	return &MemoryConnectionStore{
		codec:   codec,
		nowFn:   func() time.Time { return time.Now().UTC() },
		records: map[string]ConnectionRecord{},
	}
}

func memoryConnectionKey(ownerID string, realmID string) string {
	return strings.TrimSpace(ownerID) + "\x00" + strings.TrimSpace(realmID)
}

func (s *MemoryConnectionStore) Upsert(ctx context.Context, record ConnectionRecord) (ConnectionRecord, error) {
	if s == nil {
		return ConnectionRecord{}, fmt.Errorf("core: connection store is not configured")
	}
	if err := record.Validate(); err != nil {
		return ConnectionRecord{}, err
	}
	encrypted, err := EncryptRecordTokens(ctx, s.codec, record)
	if err != nil {
		return ConnectionRecord{}, err
	}

	now := s.nowFn()
	key := memoryConnectionKey(record.OwnerID, record.RealmID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[key]; ok {
		encrypted.ID = existing.ID
		encrypted.CreatedAt = existing.CreatedAt
	} else {
		if strings.TrimSpace(encrypted.ID) == "" {
			encrypted.ID = uuid.NewString()
		}
		encrypted.CreatedAt = now
	}
	encrypted.UpdatedAt = now
	s.records[key] = encrypted

	out := cloneConnectionRecord(record)
	out.ID = encrypted.ID
	out.CreatedAt = encrypted.CreatedAt
	out.UpdatedAt = encrypted.UpdatedAt
	return out, nil
}

func (s *MemoryConnectionStore) FindByOwner(ctx context.Context, ownerID string) (ConnectionRecord, bool, error) {
	if s == nil {
		return ConnectionRecord{}, false, fmt.Errorf("core: connection store is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)

	s.mu.RLock()
	var latest ConnectionRecord
	found := false
	for _, record := range s.records {
		if record.OwnerID != ownerID {
			continue
		}
		if !found || record.UpdatedAt.After(latest.UpdatedAt) {
			latest = record
			found = true
		}
	}
	s.mu.RUnlock()

	if !found {
		return ConnectionRecord{}, false, nil
	}
	decrypted, err := DecryptRecordTokens(ctx, s.codec, latest)
	if err != nil {
		return ConnectionRecord{}, false, err
	}
	return decrypted, true, nil
}

func (s *MemoryConnectionStore) FindByOwnerRealm(ctx context.Context, ownerID string, realmID string) (ConnectionRecord, bool, error) {
	if s == nil {
		return ConnectionRecord{}, false, fmt.Errorf("core: connection store is not configured")
	}
	s.mu.RLock()
	record, ok := s.records[memoryConnectionKey(ownerID, realmID)]
	s.mu.RUnlock()
	if !ok {
		return ConnectionRecord{}, false, nil
	}
	decrypted, err := DecryptRecordTokens(ctx, s.codec, record)
	if err != nil {
		return ConnectionRecord{}, false, err
	}
	return decrypted, true, nil
}

func (s *MemoryConnectionStore) ListByOwner(ctx context.Context, ownerID string) ([]ConnectionRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("core: connection store is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	s.mu.RLock()
	owned := make([]ConnectionRecord, 0)
	for _, record := range s.records {
		if record.OwnerID == ownerID {
			owned = append(owned, record)
		}
	}
	s.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		return owned[i].UpdatedAt.After(owned[j].UpdatedAt)
	})
	out := make([]ConnectionRecord, 0, len(owned))
	for _, record := range owned {
		decrypted, err := DecryptRecordTokens(ctx, s.codec, record)
		if err != nil {
			return nil, err
		}
		out = append(out, decrypted)
	}
	return out, nil
}

func (s *MemoryConnectionStore) DeleteByOwner(_ context.Context, ownerID string) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: connection store is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key, record := range s.records {
		if record.OwnerID == ownerID {
			delete(s.records, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryConnectionStore) ListRefreshExpiring(ctx context.Context, before time.Time, limit int) ([]ConnectionRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("core: connection store is not configured")
	}
	now := s.nowFn()
	s.mu.RLock()
	candidates := make([]ConnectionRecord, 0)
	for _, record := range s.records {
		if record.RefreshTokenExpiresAt.After(now) && record.RefreshTokenExpiresAt.Before(before) {
			candidates = append(candidates, record)
		}
	}
	s.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].RefreshTokenExpiresAt.Before(candidates[j].RefreshTokenExpiresAt)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]ConnectionRecord, 0, len(candidates))
	for _, record := range candidates {
		decrypted, err := DecryptRecordTokens(ctx, s.codec, record)
		if err != nil {
			return nil, err
		}
		out = append(out, decrypted)
	}
	return out, nil
}

// Raw returns the stored (encrypted) form of a record.
func (s *MemoryConnectionStore) Raw(ownerID string, realmID string) (ConnectionRecord, bool) {
	if s == nil {
		return ConnectionRecord{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[memoryConnectionKey(ownerID, realmID)]
	return cloneConnectionRecord(record), ok
}

var _ ConnectionStore = (*MemoryConnectionStore)(nil)
