package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// GetValidAccessToken returns an access token that stays valid for at least
// the configured safety margin, refreshing it at most once.
func (s *Service) GetValidAccessToken(ctx context.Context, ownerID string) (string, error) {
	grant, err := s.GetValidToken(ctx, ownerID)
	if err != nil {
		return "", err
	}
	return grant.AccessToken, nil
}

func (s *Service) GetValidToken(ctx context.Context, ownerID string) (AccessGrant, error) {
	return s.GetValidTokenForRealm(ctx, ownerID, "")
}

// GetValidTokenForRealm pins the lookup to one company when an owner has
// connected several. An empty realm selects the most recent connection.
func (s *Service) GetValidTokenForRealm(ctx context.Context, ownerID string, realmID string) (grant AccessGrant, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"owner_id":    ownerID,
		"realm_id":    realmID,
		"environment": string(s.Environment()),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_valid_token", err, fields)
	}()

	ownerID, err = normalizeOwnerID(ownerID)
	if err != nil {
		return AccessGrant{}, err
	}
	record, err := s.findConnection(ctx, ownerID, realmID)
	if err != nil {
		err = s.mapError(err)
		return AccessGrant{}, err
	}

	state := ResolveTokenState(s.clock(), record, s.config.safetyMargin())
	fields["token_state"] = string(state)
	if state == TokenStateValid {
		return grantFromRecord(record), nil
	}

	record, err = s.refreshConnection(ctx, record, "")
	if err != nil {
		return AccessGrant{}, err
	}
	return grantFromRecord(record), nil
}

// ForceRefresh refreshes regardless of access token expiry.
func (s *Service) ForceRefresh(ctx context.Context, ownerID string) (record ConnectionRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"owner_id":    ownerID,
		"environment": string(s.Environment()),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "force_refresh", err, fields)
	}()

	ownerID, err = normalizeOwnerID(ownerID)
	if err != nil {
		return ConnectionRecord{}, err
	}
	current, err := s.findConnection(ctx, ownerID, "")
	if err != nil {
		err = s.mapError(err)
		return ConnectionRecord{}, err
	}
	fields["realm_id"] = current.RealmID
	record, err = s.refreshConnection(ctx, current, current.AccessToken)
	if err != nil {
		return ConnectionRecord{}, err
	}
	return record, nil
}

func (s *Service) ConnectionStatus(ctx context.Context, ownerID string) (ConnectionStatus, error) {
	ownerID, err := normalizeOwnerID(ownerID)
	if err != nil {
		return ConnectionStatus{}, err
	}
	record, found, err := s.connectionStore.FindByOwner(ctx, ownerID)
	if err != nil {
		return ConnectionStatus{}, s.mapError(err)
	}
	status := ConnectionStatus{OwnerID: ownerID, State: TokenStateNotConnected}
	if !found {
		return status, nil
	}

	now := s.clock()
	status.RealmID = record.RealmID
	status.Environment = record.Environment
	status.State = ResolveTokenState(now, record, s.config.safetyMargin())
	status.Connected = record.Connected(now)
	status.NeedsRefresh = status.State == TokenStateRefreshable
	status.LastRefreshedAt = record.LastRefreshedAt
	if !record.AccessTokenExpiresAt.IsZero() {
		expiresAt := record.AccessTokenExpiresAt
		status.AccessTokenExpiresAt = &expiresAt
	}
	if !record.RefreshTokenExpiresAt.IsZero() {
		expiresAt := record.RefreshTokenExpiresAt
		status.RefreshTokenExpiresAt = &expiresAt
	}
	return status, nil
}

// refreshConnection runs one refresh exchange under the owner lock. The
// record is re-read once the lock is held: when another caller already
// rotated the tokens the fresh record is returned without calling the
// provider. A non-empty staleAccessToken forces a refresh unless the stored
// token has already moved past it.
func (s *Service) refreshConnection(ctx context.Context, record ConnectionRecord, staleAccessToken string) (ConnectionRecord, error) {
	now := s.clock()
	if !record.RefreshTokenExpiresAt.After(now) {
		return ConnectionRecord{}, NewReauthorizationRequiredError(record.OwnerID, nil)
	}

	lock, err := s.connectionLocker.Acquire(ctx, refreshLockKey(record.OwnerID), s.config.lockTTL())
	if err != nil {
		return ConnectionRecord{}, s.mapError(err)
	}
	defer func() {
		_ = lock.Unlock(context.WithoutCancel(ctx))
	}()

	current, found, err := s.connectionStore.FindByOwnerRealm(ctx, record.OwnerID, record.RealmID)
	if err != nil {
		return ConnectionRecord{}, s.mapError(err)
	}
	if !found || !current.HasTokens() {
		return ConnectionRecord{}, NewNotConnectedError(record.OwnerID)
	}

	now = s.clock()
	state := ResolveTokenState(now, current, s.config.safetyMargin())
	if state == TokenStateValid {
		if staleAccessToken == "" || current.AccessToken != staleAccessToken {
			return current, nil
		}
	}
	if !current.RefreshTokenExpiresAt.After(now) {
		return ConnectionRecord{}, NewReauthorizationRequiredError(current.OwnerID, nil)
	}

	tokens, err := s.callRefresh(ctx, current.RefreshToken)
	if err != nil {
		if IsTransportFailure(err) {
			return ConnectionRecord{}, s.mapError(NewTransportError(err, "token refresh did not complete"))
		}
		return ConnectionRecord{}, NewReauthorizationRequiredError(current.OwnerID, newRefreshFailedError(err))
	}

	current.ApplyTokens(tokens)
	refreshedAt := s.clock()
	current.LastRefreshedAt = &refreshedAt
	saved, err := s.connectionStore.Upsert(ctx, current)
	if err != nil {
		return ConnectionRecord{}, s.mapError(err)
	}
	return saved, nil
}

func (s *Service) callRefresh(ctx context.Context, refreshToken string) (TokenSet, error) {
	callCtx, cancel := s.withRequestTimeout(ctx)
	defer cancel()

	s.recordCounter(ctx, metricPrefix+"provider.refresh.calls", 1, map[string]string{"environment": string(s.Environment())})
	tokens, err := s.oauthClient.Refresh(callCtx, refreshToken)
	if err != nil {
		return TokenSet{}, err
	}
	if err := tokens.Validate(); err != nil {
		return TokenSet{}, err
	}
	return tokens, nil
}

func (s *Service) findConnection(ctx context.Context, ownerID string, realmID string) (ConnectionRecord, error) {
	realmID = strings.TrimSpace(realmID)
	if realmID == "" {
		return s.loadConnection(ctx, ownerID)
	}
	if s.connectionStore == nil {
		return ConnectionRecord{}, fmt.Errorf("core: connection store is not configured")
	}
	record, found, err := s.connectionStore.FindByOwnerRealm(ctx, ownerID, realmID)
	if err != nil {
		return ConnectionRecord{}, err
	}
	if !found || !record.HasTokens() {
		return ConnectionRecord{}, NewNotConnectedError(ownerID)
	}
	return record, nil
}

func refreshLockKey(ownerID string) string {
	return "quickbooks:refresh:" + strings.TrimSpace(ownerID)
}

func grantFromRecord(record ConnectionRecord) AccessGrant {
	tokenType := strings.TrimSpace(record.TokenType)
	if tokenType == "" {
		tokenType = "bearer"
	}
	return AccessGrant{
		OwnerID:     record.OwnerID,
		RealmID:     record.RealmID,
		Environment: record.Environment,
		AccessToken: record.AccessToken,
		TokenType:   tokenType,
		ExpiresAt:   record.AccessTokenExpiresAt,
	}
}
