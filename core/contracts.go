package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// ConnectionStore persists connection records. Implementations encrypt
// tokens on write and decrypt them on read; decryption failures surface as
// codec errors, never as a missing record.
type ConnectionStore interface {
	Upsert(ctx context.Context, record ConnectionRecord) (ConnectionRecord, error)
	// FindByOwner returns the most recently updated connection of the owner.
	FindByOwner(ctx context.Context, ownerID string) (ConnectionRecord, bool, error)
	FindByOwnerRealm(ctx context.Context, ownerID string, realmID string) (ConnectionRecord, bool, error)
	ListByOwner(ctx context.Context, ownerID string) ([]ConnectionRecord, error)
	DeleteByOwner(ctx context.Context, ownerID string) (int, error)
	ListRefreshExpiring(ctx context.Context, before time.Time, limit int) ([]ConnectionRecord, error)
}

// AttemptStore holds pending authorization attempts. Consume must be an
// atomic read-and-delete and returns ErrAttemptNotFound for unknown or
// expired states.
type AttemptStore interface {
	Save(ctx context.Context, attempt AuthorizationAttempt) error
	Consume(ctx context.Context, state string) (AuthorizationAttempt, error)
}

// AttemptPruner is implemented by attempt stores that do not expire entries
// on their own.
type AttemptPruner interface {
	PruneExpired(ctx context.Context) (int, error)
}

type TokenCodec interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type AuthorizationURLRequest struct {
	State       string
	RedirectURI string
	Scopes      []string
}

type ExchangeRequest struct {
	Code        string
	RealmID     string
	RedirectURI string
}

// OAuthClient talks to the identity provider. Network failures and timeouts
// must be reported as transport errors so the service can tell them apart
// from rejected grants.
type OAuthClient interface {
	AuthorizationURL(req AuthorizationURLRequest) (string, error)
	ExchangeCode(ctx context.Context, req ExchangeRequest) (TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (TokenSet, error)
}

type TokenRevoker interface {
	Revoke(ctx context.Context, token string) error
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// ConnectionLocker serializes refreshes per owner. Acquire blocks until the
// lock is free or ctx is done.
type ConnectionLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Clock func() time.Time

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type Operation func(ctx context.Context, grant AccessGrant) error

type BeginAuthorizationRequest struct {
	OwnerID     string
	RedirectURI string
	Scopes      []string
}

type BeginAuthorizationResponse struct {
	URL       string
	State     string
	ExpiresAt time.Time
}

type CompleteAuthorizationRequest struct {
	Code    string
	RealmID string
	State   string
	// ProviderError and ProviderErrorDescription carry the error and
	// error_description callback parameters when consent was refused.
	ProviderError            string
	ProviderErrorDescription string
}

type RefreshSweepRequest struct {
	LeadWindow time.Duration
	Limit      int
}

type RefreshOutcome struct {
	OwnerID string
	RealmID string
	Err     error
}

type RefreshSweepResult struct {
	Attempted int
	Refreshed int
	Outcomes  []RefreshOutcome
}

// ConnectionService is the host-facing surface of the token manager.
type ConnectionService interface {
	BeginAuthorization(ctx context.Context, req BeginAuthorizationRequest) (BeginAuthorizationResponse, error)
	CompleteAuthorization(ctx context.Context, req CompleteAuthorizationRequest) (ConnectionRecord, error)
	GetValidAccessToken(ctx context.Context, ownerID string) (string, error)
	GetValidToken(ctx context.Context, ownerID string) (AccessGrant, error)
	ForceRefresh(ctx context.Context, ownerID string) (ConnectionRecord, error)
	ConnectionStatus(ctx context.Context, ownerID string) (ConnectionStatus, error)
	Disconnect(ctx context.Context, ownerID string) error
	WithValidToken(ctx context.Context, ownerID string, op Operation) error
	RefreshExpiring(ctx context.Context, req RefreshSweepRequest) (RefreshSweepResult, error)
}
