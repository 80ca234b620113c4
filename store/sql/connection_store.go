package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-quickbooks/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ConnectionStore keeps one row per (owner, realm) in quickbooks_tokens.
// Tokens go through the codec on every write and read.
type ConnectionStore struct {
	db    *bun.DB
	repo  repository.Repository[*tokenRecord]
	codec core.TokenCodec
	nowFn func() time.Time
}

func NewConnectionStore(db *bun.DB, codec core.TokenCodec) (*ConnectionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if codec == nil {
		return nil, fmt.Errorf("sqlstore: token codec is required")
	}
	repo := repository.NewRepository[*tokenRecord](db, tokenHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid token repository wiring: %w", err)
		}
	}
	return &ConnectionStore{
		db:    db,
		repo:  repo,
		codec: codec,
		nowFn: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *ConnectionStore) Upsert(ctx context.Context, record core.ConnectionRecord) (core.ConnectionRecord, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.ConnectionRecord{}, fmt.Errorf("sqlstore: connection store is not configured")
	}
	if err := record.Validate(); err != nil {
		return core.ConnectionRecord{}, err
	}
	encrypted, err := core.EncryptRecordTokens(ctx, s.codec, record)
	if err != nil {
		return core.ConnectionRecord{}, err
	}
	keyID := s.activeKeyID()
	now := s.nowFn()

	var saved *tokenRecord
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, findErr := findTokenRecordTx(ctx, tx, record.OwnerID, record.RealmID)
		if findErr != nil {
			return findErr
		}
		if existing == nil {
			row := &tokenRecord{ID: uuid.NewString(), CreatedAt: now}
			row.applyEncrypted(encrypted, keyID)
			row.UpdatedAt = now
			created, createErr := s.repo.CreateTx(ctx, tx, row)
			if createErr != nil {
				return createErr
			}
			saved = created
			return nil
		}

		existing.applyEncrypted(encrypted, keyID)
		existing.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().
			Model(existing).
			Where("id = ?", existing.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		saved = existing
		return nil
	})
	if err != nil {
		return core.ConnectionRecord{}, err
	}

	out := record
	out.Scopes = append([]string(nil), record.Scopes...)
	out.ID = saved.ID
	out.CreatedAt = saved.CreatedAt.UTC()
	out.UpdatedAt = saved.UpdatedAt.UTC()
	return out, nil
}

func (s *ConnectionStore) FindByOwner(ctx context.Context, ownerID string) (core.ConnectionRecord, bool, error) {
	if s == nil || s.repo == nil {
		return core.ConnectionRecord{}, false, fmt.Errorf("sqlstore: connection store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("owner_id", "=", strings.TrimSpace(ownerID)),
		repository.OrderBy("updated_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.ConnectionRecord{}, false, err
	}
	if len(records) == 0 {
		return core.ConnectionRecord{}, false, nil
	}
	return s.decrypt(ctx, records[0])
}

func (s *ConnectionStore) ListByOwner(ctx context.Context, ownerID string) ([]core.ConnectionRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: connection store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("owner_id", "=", strings.TrimSpace(ownerID)),
		repository.OrderBy("updated_at DESC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.ConnectionRecord, 0, len(records))
	for _, record := range records {
		decrypted, _, decryptErr := s.decrypt(ctx, record)
		if decryptErr != nil {
			return nil, decryptErr
		}
		out = append(out, decrypted)
	}
	return out, nil
}

func (s *ConnectionStore) FindByOwnerRealm(ctx context.Context, ownerID string, realmID string) (core.ConnectionRecord, bool, error) {
	if s == nil || s.repo == nil {
		return core.ConnectionRecord{}, false, fmt.Errorf("sqlstore: connection store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("owner_id", "=", strings.TrimSpace(ownerID)),
		repository.SelectBy("realm_id", "=", strings.TrimSpace(realmID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.ConnectionRecord{}, false, err
	}
	if len(records) == 0 {
		return core.ConnectionRecord{}, false, nil
	}
	return s.decrypt(ctx, records[0])
}

func (s *ConnectionStore) DeleteByOwner(ctx context.Context, ownerID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: connection store is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return 0, fmt.Errorf("sqlstore: owner id is required")
	}
	res, err := s.db.NewDelete().
		Model((*tokenRecord)(nil)).
		Where("owner_id = ?", ownerID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func (s *ConnectionStore) ListRefreshExpiring(ctx context.Context, before time.Time, limit int) ([]core.ConnectionRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: connection store is not configured")
	}
	if limit <= 0 {
		limit = 100
	}
	// Rows whose refresh token already lapsed can only need reauthorization.
	now := s.nowFn()
	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.refresh_token_expires_at <= ?", before.UTC()).
				Where("?TableAlias.refresh_token_expires_at > ?", now).
				Where("?TableAlias.refresh_token <> ''")
		}),
		repository.OrderBy("refresh_token_expires_at ASC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.ConnectionRecord, 0, len(records))
	for _, record := range records {
		decrypted, _, decryptErr := s.decrypt(ctx, record)
		if decryptErr != nil {
			return nil, decryptErr
		}
		out = append(out, decrypted)
	}
	return out, nil
}

// KeyUsage counts rows per encryption key id, so operators can tell when a
// retired key no longer protects any token.
func (s *ConnectionStore) KeyUsage(ctx context.Context) (map[string]int, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: connection store is not configured")
	}
	var rows []struct {
		EncryptionKeyID string `bun:"encryption_key_id"`
		Total           int    `bun:"total"`
	}
	if err := s.db.NewSelect().
		Model((*tokenRecord)(nil)).
		Column("encryption_key_id").
		ColumnExpr("COUNT(*) AS total").
		Group("encryption_key_id").
		Scan(ctx, &rows); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.EncryptionKeyID] = row.Total
	}
	return out, nil
}

func (s *ConnectionStore) decrypt(ctx context.Context, record *tokenRecord) (core.ConnectionRecord, bool, error) {
	decrypted, err := core.DecryptRecordTokens(ctx, s.codec, record.toEncryptedDomain())
	if err != nil {
		return core.ConnectionRecord{}, false, err
	}
	return decrypted, true, nil
}

func (s *ConnectionStore) activeKeyID() string {
	if source, ok := s.codec.(interface{ ActiveKeyID() string }); ok {
		return source.ActiveKeyID()
	}
	return ""
}

func findTokenRecordTx(ctx context.Context, tx bun.Tx, ownerID string, realmID string) (*tokenRecord, error) {
	record := &tokenRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.owner_id = ?", strings.TrimSpace(ownerID)).
		Where("?TableAlias.realm_id = ?", strings.TrimSpace(realmID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}
