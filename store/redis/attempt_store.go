package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goliatone/go-quickbooks/core"
)

const defaultKeyPrefix = "quickbooks"

type Option func(*options)

type options struct {
	keyPrefix string
	nowFn     func() time.Time
}

// WithKeyPrefix namespaces every key, e.g. per deployment.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if trimmed := strings.Trim(strings.TrimSpace(prefix), ":"); trimmed != "" {
			o.keyPrefix = trimmed
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.nowFn = now
		}
	}
}

func resolveOptions(opts []Option) options {
	resolved := options{
		keyPrefix: defaultKeyPrefix,
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&resolved)
		}
	}
	return resolved
}

// AttemptStore keeps authorization attempts in Redis with the state TTL as
// key expiry. Consume reads and deletes in one MULTI/EXEC block.
type AttemptStore struct {
	client redis.UniversalClient
	opts   options
}

type attemptPayload struct {
	OwnerID     string    `json:"owner_id"`
	RedirectURI string    `json:"redirect_uri"`
	Scopes      []string  `json:"scopes"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func NewAttemptStore(client redis.UniversalClient, opts ...Option) (*AttemptStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstore: redis client is required")
	}
	return &AttemptStore{client: client, opts: resolveOptions(opts)}, nil
}

func (s *AttemptStore) Save(ctx context.Context, attempt core.AuthorizationAttempt) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redisstore: attempt store is not configured")
	}
	state := strings.TrimSpace(attempt.State)
	if state == "" {
		return fmt.Errorf("redisstore: state is required")
	}
	if strings.TrimSpace(attempt.OwnerID) == "" {
		return fmt.Errorf("redisstore: owner id is required")
	}
	now := s.opts.nowFn()
	ttl := attempt.ExpiresAt.Sub(now)
	if attempt.ExpiresAt.IsZero() {
		ttl = core.DefaultStateTTL
	}
	if ttl <= 0 {
		return fmt.Errorf("redisstore: attempt already expired")
	}

	data, err := json.Marshal(attemptPayload{
		OwnerID:     strings.TrimSpace(attempt.OwnerID),
		RedirectURI: attempt.RedirectURI,
		Scopes:      attempt.Scopes,
		CreatedAt:   attempt.CreatedAt.UTC(),
		ExpiresAt:   attempt.ExpiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("redisstore: encode attempt: %w", err)
	}
	stored, err := s.client.SetNX(ctx, s.attemptKey(state), data, ttl).Result()
	if err != nil {
		return err
	}
	if !stored {
		return fmt.Errorf("redisstore: state collision")
	}
	return nil
}

func (s *AttemptStore) Consume(ctx context.Context, state string) (core.AuthorizationAttempt, error) {
	if s == nil || s.client == nil {
		return core.AuthorizationAttempt{}, fmt.Errorf("redisstore: attempt store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return core.AuthorizationAttempt{}, core.ErrAttemptNotFound
	}
	key := s.attemptKey(state)

	var get *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return core.AuthorizationAttempt{}, err
	}
	data, err := get.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.AuthorizationAttempt{}, core.ErrAttemptNotFound
		}
		return core.AuthorizationAttempt{}, err
	}

	var payload attemptPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return core.AuthorizationAttempt{}, fmt.Errorf("redisstore: decode attempt: %w", err)
	}
	attempt := core.AuthorizationAttempt{
		State:       state,
		OwnerID:     payload.OwnerID,
		RedirectURI: payload.RedirectURI,
		Scopes:      payload.Scopes,
		CreatedAt:   payload.CreatedAt,
		ExpiresAt:   payload.ExpiresAt,
	}
	if attempt.Expired(s.opts.nowFn()) {
		return core.AuthorizationAttempt{}, core.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptStore) attemptKey(state string) string {
	return s.opts.keyPrefix + ":oauth:state:" + state
}

var _ core.AttemptStore = (*AttemptStore)(nil)
