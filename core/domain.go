package core

import (
	"fmt"
	"strings"
	"time"
)

type Environment string

const (
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentProduction Environment = "production"
)

// ParseEnvironment accepts the canonical names plus "development", which
// older deployments used for the sandbox.
func ParseEnvironment(value string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "sandbox", "development", "dev":
		return EnvironmentSandbox, nil
	case "production", "prod":
		return EnvironmentProduction, nil
	default:
		return "", fmt.Errorf("core: invalid environment %q", value)
	}
}

// ConnectionRecord is the persisted link between a host user and one
// QuickBooks company. Tokens are plaintext in memory; stores encrypt them.
type ConnectionRecord struct {
	ID                    string
	OwnerID               string
	RealmID               string
	Environment           Environment
	AccessToken           string
	RefreshToken          string
	TokenType             string
	Scopes                []string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
	LastRefreshedAt       *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (r ConnectionRecord) Validate() error {
	if strings.TrimSpace(r.OwnerID) == "" {
		return fmt.Errorf("core: connection owner id is required")
	}
	if strings.TrimSpace(r.AccessToken) != "" && strings.TrimSpace(r.RealmID) == "" {
		return fmt.Errorf("core: connection realm id is required when an access token is present")
	}
	return nil
}

func (r ConnectionRecord) HasTokens() bool {
	return strings.TrimSpace(r.AccessToken) != "" && strings.TrimSpace(r.RefreshToken) != ""
}

// Connected mirrors the host-facing notion of "connected": tokens are present
// and at least one of them is still usable.
func (r ConnectionRecord) Connected(now time.Time) bool {
	if !r.HasTokens() {
		return false
	}
	return r.AccessTokenExpiresAt.After(now) || r.RefreshTokenExpiresAt.After(now)
}

// ApplyTokens overwrites both tokens and both expiries.
func (r *ConnectionRecord) ApplyTokens(tokens TokenSet) {
	if r == nil {
		return
	}
	r.AccessToken = tokens.AccessToken
	if strings.TrimSpace(tokens.RefreshToken) != "" {
		r.RefreshToken = tokens.RefreshToken
	}
	if strings.TrimSpace(tokens.TokenType) != "" {
		r.TokenType = tokens.TokenType
	}
	if len(tokens.Scopes) > 0 {
		r.Scopes = append([]string(nil), tokens.Scopes...)
	}
	r.AccessTokenExpiresAt = tokens.AccessTokenExpiresAt.UTC()
	if !tokens.RefreshTokenExpiresAt.IsZero() {
		r.RefreshTokenExpiresAt = tokens.RefreshTokenExpiresAt.UTC()
	}
}

func cloneConnectionRecord(record ConnectionRecord) ConnectionRecord {
	cloned := record
	cloned.Scopes = append([]string(nil), record.Scopes...)
	if record.LastRefreshedAt != nil {
		refreshed := *record.LastRefreshedAt
		cloned.LastRefreshedAt = &refreshed
	}
	return cloned
}

// AuthorizationAttempt is the server-side half of the OAuth state check.
type AuthorizationAttempt struct {
	State       string
	OwnerID     string
	RedirectURI string
	Scopes      []string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

func (a AuthorizationAttempt) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// TokenSet is what the provider returns from a code exchange or refresh.
type TokenSet struct {
	AccessToken           string
	RefreshToken          string
	TokenType             string
	Scopes                []string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
}

func (t TokenSet) Validate() error {
	if strings.TrimSpace(t.AccessToken) == "" {
		return fmt.Errorf("core: provider returned an empty access token")
	}
	if t.AccessTokenExpiresAt.IsZero() {
		return fmt.Errorf("core: provider returned no access token expiry")
	}
	return nil
}

// AccessGrant is handed to API operations. It never carries the refresh token.
type AccessGrant struct {
	OwnerID     string
	RealmID     string
	Environment Environment
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

type TokenState string

const (
	TokenStateNotConnected TokenState = "not_connected"
	TokenStateValid        TokenState = "valid"
	TokenStateRefreshable  TokenState = "refreshable"
	TokenStateReauthorize  TokenState = "reauthorization_required"
)

// ConnectionStatus summarises a connection without touching the network.
type ConnectionStatus struct {
	OwnerID               string
	RealmID               string
	Environment           Environment
	State                 TokenState
	Connected             bool
	NeedsRefresh          bool
	AccessTokenExpiresAt  *time.Time
	RefreshTokenExpiresAt *time.Time
	LastRefreshedAt       *time.Time
}

// ResolveTokenState classifies a record against now and the refresh margin.
func ResolveTokenState(now time.Time, record ConnectionRecord, margin time.Duration) TokenState {
	if !record.HasTokens() {
		return TokenStateNotConnected
	}
	if record.AccessTokenExpiresAt.After(now.Add(margin)) {
		return TokenStateValid
	}
	if record.RefreshTokenExpiresAt.After(now) {
		return TokenStateRefreshable
	}
	return TokenStateReauthorize
}
