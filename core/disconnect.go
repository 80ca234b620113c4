package core

import (
	"context"
	"time"
)

// Disconnect removes every connection of the owner. Calling it for an owner
// with no connection succeeds.
func (s *Service) Disconnect(ctx context.Context, ownerID string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"owner_id":    ownerID,
		"environment": string(s.Environment()),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "disconnect", err, fields)
	}()

	ownerID, err = normalizeOwnerID(ownerID)
	if err != nil {
		return err
	}

	if s.config.OAuth.RevokeOnDisconnect {
		s.revokeBestEffort(ctx, ownerID)
	}

	deleted, err := s.connectionStore.DeleteByOwner(ctx, ownerID)
	if err != nil {
		err = s.mapError(err)
		return err
	}
	fields["deleted"] = deleted
	return nil
}

func (s *Service) revokeBestEffort(ctx context.Context, ownerID string) {
	revoker, ok := s.oauthClient.(TokenRevoker)
	if !ok {
		return
	}
	records, err := s.connectionStore.ListByOwner(ctx, ownerID)
	if err != nil {
		s.logWarn(ctx, "token revoke skipped", map[string]any{
			"owner_id":  ownerID,
			"text_code": errorTextCode(err),
		})
		return
	}
	for _, record := range records {
		if !record.HasTokens() {
			continue
		}
		callCtx, cancel := s.withRequestTimeout(ctx)
		revokeErr := revoker.Revoke(callCtx, record.RefreshToken)
		cancel()
		if revokeErr != nil {
			s.logWarn(ctx, "token revoke failed", map[string]any{
				"owner_id": ownerID,
				"realm_id": record.RealmID,
				"error":    revokeErr.Error(),
			})
		}
	}
}
