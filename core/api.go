package core

import (
	"context"
	"fmt"
	"time"
)

// WithValidToken runs op with a valid access token. When op reports that
// the provider rejected the token, the token is refreshed once and op is
// retried; a second rejection means the grant is no longer usable.
func (s *Service) WithValidToken(ctx context.Context, ownerID string, op Operation) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"owner_id":    ownerID,
		"environment": string(s.Environment()),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "with_valid_token", err, fields)
	}()

	if op == nil {
		err = newBadInputError("operation is required")
		return err
	}
	grant, err := s.GetValidToken(ctx, ownerID)
	if err != nil {
		return err
	}
	fields["realm_id"] = grant.RealmID

	err = op(ctx, grant)
	if err == nil || !IsProviderAuthFailure(err) {
		return err
	}

	fields["retried"] = true
	refreshed, err := s.refreshAfterRejection(ctx, grant)
	if err != nil {
		return err
	}
	err = op(ctx, grantFromRecord(refreshed))
	if err != nil && IsProviderAuthFailure(err) {
		err = NewReauthorizationRequiredError(grant.OwnerID, err)
	}
	return err
}

func (s *Service) refreshAfterRejection(ctx context.Context, grant AccessGrant) (ConnectionRecord, error) {
	record, err := s.findConnection(ctx, grant.OwnerID, grant.RealmID)
	if err != nil {
		return ConnectionRecord{}, s.mapError(err)
	}
	return s.refreshConnection(ctx, record, grant.AccessToken)
}

// CallWithValidToken is WithValidToken for operations that produce a value.
func CallWithValidToken[T any](
	ctx context.Context,
	svc interface {
		WithValidToken(ctx context.Context, ownerID string, op Operation) error
	},
	ownerID string,
	fn func(ctx context.Context, grant AccessGrant) (T, error),
) (T, error) {
	var result T
	if svc == nil || fn == nil {
		return result, fmt.Errorf("core: service and operation are required")
	}
	err := svc.WithValidToken(ctx, ownerID, func(ctx context.Context, grant AccessGrant) error {
		value, callErr := fn(ctx, grant)
		if callErr != nil {
			return callErr
		}
		result = value
		return nil
	})
	return result, err
}
