package redisstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goliatone/go-quickbooks/core"
	"github.com/google/uuid"
)

const lockPollInterval = 25 * time.Millisecond

// releaseScript deletes the lock only while it still carries our token, so
// a holder whose lease expired cannot free someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// ConnectionLocker serializes refreshes across processes with SET NX PX.
// Acquire polls until the key is free or ctx is done.
type ConnectionLocker struct {
	client redis.UniversalClient
	opts   options
}

type lockHandle struct {
	client redis.UniversalClient
	key    string
	token  string
}

func NewConnectionLocker(client redis.UniversalClient, opts ...Option) (*ConnectionLocker, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstore: redis client is required")
	}
	return &ConnectionLocker{client: client, opts: resolveOptions(opts)}, nil
}

func (l *ConnectionLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (core.LockHandle, error) {
	if l == nil || l.client == nil {
		return nil, fmt.Errorf("redisstore: connection locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("redisstore: lock key is required")
	}
	if ttl <= 0 {
		ttl = core.DefaultRefreshLockTTL
	}
	redisKey := l.opts.keyPrefix + ":lock:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		acquired, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if acquired {
			return &lockHandle{client: l.client, key: redisKey, token: token}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *lockHandle) Unlock(ctx context.Context) error {
	if h == nil || h.client == nil {
		return nil
	}
	return releaseScript.Run(ctx, h.client, []string{h.key}, h.token).Err()
}

var _ core.ConnectionLocker = (*ConnectionLocker)(nil)
