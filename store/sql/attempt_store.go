package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-quickbooks/core"
	"github.com/uptrace/bun"
)

// AttemptStore persists pending authorization attempts so a callback can land
// on any instance. Consume is arbitrated by the row count of the delete: of
// two concurrent callbacks with the same state only one removes the row.
type AttemptStore struct {
	db    *bun.DB
	nowFn func() time.Time
}

func NewAttemptStore(db *bun.DB) (*AttemptStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &AttemptStore{
		db:    db,
		nowFn: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *AttemptStore) Save(ctx context.Context, attempt core.AuthorizationAttempt) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: attempt store is not configured")
	}
	if strings.TrimSpace(attempt.State) == "" {
		return fmt.Errorf("sqlstore: state is required")
	}
	if strings.TrimSpace(attempt.OwnerID) == "" {
		return fmt.Errorf("sqlstore: owner id is required")
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = s.nowFn()
	}
	_, err := s.db.NewInsert().Model(newAttemptRecord(attempt)).Exec(ctx)
	return err
}

func (s *AttemptStore) Consume(ctx context.Context, state string) (core.AuthorizationAttempt, error) {
	if s == nil || s.db == nil {
		return core.AuthorizationAttempt{}, fmt.Errorf("sqlstore: attempt store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return core.AuthorizationAttempt{}, core.ErrAttemptNotFound
	}

	var consumed core.AuthorizationAttempt
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &attemptRecord{}
		if err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.state = ?", state).
			Limit(1).
			Scan(ctx); err != nil {
			if err == sql.ErrNoRows {
				return core.ErrAttemptNotFound
			}
			return err
		}
		res, err := tx.NewDelete().
			Model((*attemptRecord)(nil)).
			Where("state = ?", state).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return core.ErrAttemptNotFound
		}
		consumed = record.toDomain()
		return nil
	})
	if err != nil {
		return core.AuthorizationAttempt{}, err
	}
	if consumed.Expired(s.nowFn()) {
		return core.AuthorizationAttempt{}, core.ErrAttemptNotFound
	}
	return consumed, nil
}

// PruneExpired deletes attempts whose callback never arrived.
func (s *AttemptStore) PruneExpired(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: attempt store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*attemptRecord)(nil)).
		Where("expires_at < ?", s.nowFn()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}
