package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-quickbooks/core"
	"github.com/uptrace/bun"
)

// tokenRecord holds ciphertext in AccessToken and RefreshToken. Plaintext
// never reaches this struct.
type tokenRecord struct {
	bun.BaseModel `bun:"table:quickbooks_tokens,alias:qt"`

	ID                    string     `bun:"id,pk"`
	OwnerID               string     `bun:"owner_id,notnull"`
	RealmID               string     `bun:"realm_id,notnull"`
	Environment           string     `bun:"environment,notnull"`
	AccessToken           string     `bun:"access_token,notnull"`
	RefreshToken          string     `bun:"refresh_token,notnull"`
	TokenType             string     `bun:"token_type,notnull"`
	Scopes                string     `bun:"scopes,notnull"`
	AccessTokenExpiresAt  time.Time  `bun:"access_token_expires_at,notnull"`
	RefreshTokenExpiresAt time.Time  `bun:"refresh_token_expires_at,notnull"`
	LastRefreshedAt       *time.Time `bun:"last_refreshed_at,nullzero"`
	EncryptionKeyID       string     `bun:"encryption_key_id,notnull"`
	CreatedAt             time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt             time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type attemptRecord struct {
	bun.BaseModel `bun:"table:quickbooks_authorization_attempts,alias:qaa"`

	State       string    `bun:"state,pk"`
	OwnerID     string    `bun:"owner_id,notnull"`
	RedirectURI string    `bun:"redirect_uri,notnull"`
	Scopes      string    `bun:"scopes,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ExpiresAt   time.Time `bun:"expires_at,notnull"`
}

// applyEncrypted copies an already encrypted domain record onto the row.
func (r *tokenRecord) applyEncrypted(record core.ConnectionRecord, keyID string) {
	r.OwnerID = strings.TrimSpace(record.OwnerID)
	r.RealmID = strings.TrimSpace(record.RealmID)
	r.Environment = string(record.Environment)
	r.AccessToken = record.AccessToken
	r.RefreshToken = record.RefreshToken
	r.TokenType = strings.TrimSpace(record.TokenType)
	r.Scopes = strings.Join(record.Scopes, " ")
	r.AccessTokenExpiresAt = record.AccessTokenExpiresAt.UTC()
	r.RefreshTokenExpiresAt = record.RefreshTokenExpiresAt.UTC()
	r.LastRefreshedAt = cloneTimePointer(record.LastRefreshedAt)
	r.EncryptionKeyID = keyID
}

// toEncryptedDomain keeps the tokens as stored; callers decrypt.
func (r *tokenRecord) toEncryptedDomain() core.ConnectionRecord {
	if r == nil {
		return core.ConnectionRecord{}
	}
	return core.ConnectionRecord{
		ID:                    r.ID,
		OwnerID:               r.OwnerID,
		RealmID:               r.RealmID,
		Environment:           core.Environment(r.Environment),
		AccessToken:           r.AccessToken,
		RefreshToken:          r.RefreshToken,
		TokenType:             r.TokenType,
		Scopes:                strings.Fields(r.Scopes),
		AccessTokenExpiresAt:  r.AccessTokenExpiresAt.UTC(),
		RefreshTokenExpiresAt: r.RefreshTokenExpiresAt.UTC(),
		LastRefreshedAt:       cloneTimePointer(r.LastRefreshedAt),
		CreatedAt:             r.CreatedAt.UTC(),
		UpdatedAt:             r.UpdatedAt.UTC(),
	}
}

func newAttemptRecord(attempt core.AuthorizationAttempt) *attemptRecord {
	return &attemptRecord{
		State:       strings.TrimSpace(attempt.State),
		OwnerID:     strings.TrimSpace(attempt.OwnerID),
		RedirectURI: strings.TrimSpace(attempt.RedirectURI),
		Scopes:      strings.Join(attempt.Scopes, " "),
		CreatedAt:   attempt.CreatedAt.UTC(),
		ExpiresAt:   attempt.ExpiresAt.UTC(),
	}
}

func (r *attemptRecord) toDomain() core.AuthorizationAttempt {
	if r == nil {
		return core.AuthorizationAttempt{}
	}
	return core.AuthorizationAttempt{
		State:       r.State,
		OwnerID:     r.OwnerID,
		RedirectURI: r.RedirectURI,
		Scopes:      strings.Fields(r.Scopes),
		CreatedAt:   r.CreatedAt.UTC(),
		ExpiresAt:   r.ExpiresAt.UTC(),
	}
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
