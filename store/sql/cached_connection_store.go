package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-quickbooks/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const connectionCacheKeyPrefix = "go-quickbooks::connection::v1"

// CachedConnectionStore serves reads from a go-repository-cache service and
// drops the owner's entries on every write. Entries are only coherent within
// one process; multi-instance deployments should use the base store.
type CachedConnectionStore struct {
	base  core.ConnectionStore
	cache repositorycache.CacheService

	mu     sync.Mutex
	realms map[string]map[string]struct{}
}

type cachedLookup struct {
	Record core.ConnectionRecord
	Found  bool
}

func NewCachedConnectionStore(base core.ConnectionStore, cacheService repositorycache.CacheService) (*CachedConnectionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base connection store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: connection cache service is required")
	}
	return &CachedConnectionStore{
		base:   base,
		cache:  cacheService,
		realms: map[string]map[string]struct{}{},
	}, nil
}

// ConnectionCacheKey returns go-quickbooks::connection::v1::<owner>::<realm>
// with segments URL-path escaped. An empty realm addresses the owner's most
// recent connection.
func ConnectionCacheKey(ownerID string, realmID string) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", fmt.Errorf("sqlstore: owner id is required")
	}
	realm := strings.TrimSpace(realmID)
	if realm == "" {
		realm = "*"
	}
	return strings.Join([]string{
		connectionCacheKeyPrefix,
		url.PathEscape(ownerID),
		url.PathEscape(realm),
	}, "::"), nil
}

func (s *CachedConnectionStore) Upsert(ctx context.Context, record core.ConnectionRecord) (core.ConnectionRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ConnectionRecord{}, fmt.Errorf("sqlstore: cached connection store is not configured")
	}
	saved, err := s.base.Upsert(ctx, record)
	if err != nil {
		return core.ConnectionRecord{}, err
	}
	if err := s.invalidate(ctx, record.OwnerID, record.RealmID); err != nil {
		return core.ConnectionRecord{}, err
	}
	return saved, nil
}

func (s *CachedConnectionStore) FindByOwner(ctx context.Context, ownerID string) (core.ConnectionRecord, bool, error) {
	return s.lookup(ctx, ownerID, "", func(ctx context.Context) (core.ConnectionRecord, bool, error) {
		return s.base.FindByOwner(ctx, ownerID)
	})
}

func (s *CachedConnectionStore) FindByOwnerRealm(ctx context.Context, ownerID string, realmID string) (core.ConnectionRecord, bool, error) {
	return s.lookup(ctx, ownerID, realmID, func(ctx context.Context) (core.ConnectionRecord, bool, error) {
		return s.base.FindByOwnerRealm(ctx, ownerID, realmID)
	})
}

func (s *CachedConnectionStore) DeleteByOwner(ctx context.Context, ownerID string) (int, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return 0, fmt.Errorf("sqlstore: cached connection store is not configured")
	}
	deleted, err := s.base.DeleteByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if err := s.invalidate(ctx, ownerID, s.knownRealms(ownerID)...); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// ListByOwner always reads the base store.
func (s *CachedConnectionStore) ListByOwner(ctx context.Context, ownerID string) ([]core.ConnectionRecord, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached connection store is not configured")
	}
	return s.base.ListByOwner(ctx, ownerID)
}

func (s *CachedConnectionStore) ListRefreshExpiring(ctx context.Context, before time.Time, limit int) ([]core.ConnectionRecord, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached connection store is not configured")
	}
	return s.base.ListRefreshExpiring(ctx, before, limit)
}

func (s *CachedConnectionStore) lookup(
	ctx context.Context,
	ownerID string,
	realmID string,
	fetch func(ctx context.Context) (core.ConnectionRecord, bool, error),
) (core.ConnectionRecord, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ConnectionRecord{}, false, fmt.Errorf("sqlstore: cached connection store is not configured")
	}
	key, err := ConnectionCacheKey(ownerID, realmID)
	if err != nil {
		return core.ConnectionRecord{}, false, err
	}
	s.trackRealm(ownerID, realmID)
	result, err := repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) (cachedLookup, error) {
		record, found, fetchErr := fetch(ctx)
		if fetchErr != nil {
			return cachedLookup{}, fetchErr
		}
		return cachedLookup{Record: record, Found: found}, nil
	})
	if err != nil {
		return core.ConnectionRecord{}, false, err
	}
	record := result.Record
	record.Scopes = append([]string(nil), result.Record.Scopes...)
	return record, result.Found, nil
}

func (s *CachedConnectionStore) invalidate(ctx context.Context, ownerID string, realmIDs ...string) error {
	ownerKey, err := ConnectionCacheKey(ownerID, "")
	if err != nil {
		return err
	}
	keys := []string{ownerKey}
	for _, realmID := range realmIDs {
		if strings.TrimSpace(realmID) == "" {
			continue
		}
		realmKey, err := ConnectionCacheKey(ownerID, realmID)
		if err != nil {
			return err
		}
		keys = append(keys, realmKey)
	}
	for _, key := range keys {
		if err := s.cache.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *CachedConnectionStore) trackRealm(ownerID string, realmID string) {
	ownerID = strings.TrimSpace(ownerID)
	realmID = strings.TrimSpace(realmID)
	if realmID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.realms[ownerID] == nil {
		s.realms[ownerID] = map[string]struct{}{}
	}
	s.realms[ownerID][realmID] = struct{}{}
}

func (s *CachedConnectionStore) knownRealms(ownerID string) []string {
	ownerID = strings.TrimSpace(ownerID)
	s.mu.Lock()
	defer s.mu.Unlock()
	realms := make([]string, 0, len(s.realms[ownerID]))
	for realmID := range s.realms[ownerID] {
		realms = append(realms, realmID)
	}
	delete(s.realms, ownerID)
	return realms
}
