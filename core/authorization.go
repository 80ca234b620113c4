package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

func (s *Service) BeginAuthorization(ctx context.Context, req BeginAuthorizationRequest) (response BeginAuthorizationResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"owner_id":    req.OwnerID,
		"environment": string(s.Environment()),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "begin_authorization", err, fields)
	}()

	ownerID, err := normalizeOwnerID(req.OwnerID)
	if err != nil {
		return BeginAuthorizationResponse{}, err
	}
	redirectURI := strings.TrimSpace(req.RedirectURI)
	if redirectURI == "" {
		redirectURI = s.config.RedirectURI
	}
	scopes := normalizeScopes(req.Scopes)
	if len(scopes) == 0 {
		scopes = s.config.Scopes()
	}

	state, err := GenerateState()
	if err != nil {
		err = s.mapError(err)
		return BeginAuthorizationResponse{}, err
	}
	now := s.clock()
	attempt := AuthorizationAttempt{
		State:       state,
		OwnerID:     ownerID,
		RedirectURI: redirectURI,
		Scopes:      scopes,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.config.stateTTL()),
	}
	if err = s.attemptStore.Save(ctx, attempt); err != nil {
		err = s.mapError(err)
		return BeginAuthorizationResponse{}, err
	}

	authURL, err := s.oauthClient.AuthorizationURL(AuthorizationURLRequest{
		State:       state,
		RedirectURI: redirectURI,
		Scopes:      scopes,
	})
	if err != nil {
		err = s.mapError(err)
		return BeginAuthorizationResponse{}, err
	}

	return BeginAuthorizationResponse{
		URL:       authURL,
		State:     state,
		ExpiresAt: attempt.ExpiresAt,
	}, nil
}

// CompleteAuthorization validates the callback, consumes the attempt and
// exchanges the code. The attempt is gone before the exchange starts, so a
// replayed callback always fails on state even if the exchange failed.
func (s *Service) CompleteAuthorization(ctx context.Context, req CompleteAuthorizationRequest) (record ConnectionRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"realm_id":    req.RealmID,
		"environment": string(s.Environment()),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "complete_authorization", err, fields)
	}()

	code := strings.TrimSpace(req.Code)
	realmID := strings.TrimSpace(req.RealmID)
	state := strings.TrimSpace(req.State)

	if providerError := strings.TrimSpace(req.ProviderError); providerError != "" {
		if state != "" {
			_, _ = s.attemptStore.Consume(ctx, state)
		}
		fields["provider_error"] = providerError
		err = NewInvalidCallbackError("authorization was not granted").
			WithMetadata(map[string]any{
				"provider_error":             providerError,
				"provider_error_description": strings.TrimSpace(req.ProviderErrorDescription),
			})
		return ConnectionRecord{}, err
	}
	if code == "" || realmID == "" || state == "" {
		err = NewInvalidCallbackError("callback requires code, realmId and state")
		return ConnectionRecord{}, err
	}

	attempt, err := s.attemptStore.Consume(ctx, state)
	if err != nil {
		if isAttemptMissing(err) {
			err = NewInvalidOrExpiredStateError()
			return ConnectionRecord{}, err
		}
		err = s.mapError(err)
		return ConnectionRecord{}, err
	}
	fields["owner_id"] = attempt.OwnerID

	tokens, err := s.exchange(ctx, ExchangeRequest{
		Code:        code,
		RealmID:     realmID,
		RedirectURI: attempt.RedirectURI,
	})
	if err != nil {
		return ConnectionRecord{}, err
	}

	existing, found, err := s.connectionStore.FindByOwnerRealm(ctx, attempt.OwnerID, realmID)
	if err != nil && !IsCodecError(err) {
		err = s.mapError(err)
		return ConnectionRecord{}, err
	}
	if !found || err != nil {
		existing = ConnectionRecord{OwnerID: attempt.OwnerID, RealmID: realmID}
	}
	existing.Environment = s.Environment()
	if len(tokens.Scopes) == 0 {
		tokens.Scopes = attempt.Scopes
	}
	existing.RefreshToken = ""
	existing.ApplyTokens(tokens)
	refreshedAt := s.clock()
	existing.LastRefreshedAt = &refreshedAt

	record, err = s.connectionStore.Upsert(ctx, existing)
	if err != nil {
		err = s.mapError(err)
		return ConnectionRecord{}, err
	}
	return record, nil
}

func (s *Service) exchange(ctx context.Context, req ExchangeRequest) (TokenSet, error) {
	callCtx, cancel := s.withRequestTimeout(ctx)
	defer cancel()

	tokens, err := s.oauthClient.ExchangeCode(callCtx, req)
	s.recordCounter(ctx, metricPrefix+"provider.exchange.calls", 1, map[string]string{"environment": string(s.Environment())})
	if err != nil {
		if IsTransportFailure(err) {
			return TokenSet{}, s.mapError(NewTransportError(err, "authorization code exchange did not complete"))
		}
		return TokenSet{}, newExchangeFailedError(err)
	}
	if err := tokens.Validate(); err != nil {
		return TokenSet{}, newExchangeFailedError(err)
	}
	if strings.TrimSpace(tokens.RefreshToken) == "" {
		return TokenSet{}, newExchangeFailedError(fmt.Errorf("core: provider returned an empty refresh token"))
	}
	return tokens, nil
}

func isAttemptMissing(err error) bool {
	if err == nil {
		return false
	}
	if IsInvalidOrExpiredState(err) {
		return true
	}
	return errors.Is(err, ErrAttemptNotFound)
}

func normalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	seen := map[string]struct{}{}
	for _, scope := range scopes {
		for _, part := range strings.Fields(scope) {
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}
