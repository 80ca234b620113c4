package core

import (
	"context"
	"time"
)

const defaultRefreshSweepLimit = 100

// RefreshExpiring refreshes connections whose refresh token runs out within
// the lead window, so idle owners keep a usable grant. Each connection is
// refreshed at most once; failures are reported per owner and do not stop
// the sweep.
func (s *Service) RefreshExpiring(ctx context.Context, req RefreshSweepRequest) (result RefreshSweepResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"environment": string(s.Environment()),
	}
	defer func() {
		fields["attempted_count"] = result.Attempted
		fields["succeeded_count"] = result.Refreshed
		s.observeOperation(ctx, startedAt, "refresh_expiring", err, fields)
	}()

	leadWindow := req.LeadWindow
	if leadWindow <= 0 {
		leadWindow = s.config.leadWindow()
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultRefreshSweepLimit
	}

	candidates, err := s.connectionStore.ListRefreshExpiring(ctx, s.clock().Add(leadWindow), limit)
	if err != nil {
		err = s.mapError(err)
		return RefreshSweepResult{}, err
	}

	for _, candidate := range candidates {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = s.mapError(ctxErr)
			return result, err
		}
		result.Attempted++
		_, refreshErr := s.refreshConnection(ctx, candidate, candidate.AccessToken)
		if refreshErr == nil {
			result.Refreshed++
		}
		result.Outcomes = append(result.Outcomes, RefreshOutcome{
			OwnerID: candidate.OwnerID,
			RealmID: candidate.RealmID,
			Err:     refreshErr,
		})
	}
	return result, nil
}

// PruneExpiredAttempts purges authorization attempts whose callback never
// arrived. Stores that expire entries themselves, like Redis, are skipped.
func (s *Service) PruneExpiredAttempts(ctx context.Context) (pruned int, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		fields["pruned_count"] = pruned
		s.observeOperation(ctx, startedAt, "prune_attempts", err, fields)
	}()

	pruner, ok := s.attemptStore.(AttemptPruner)
	if !ok {
		return 0, nil
	}
	pruned, err = pruner.PruneExpired(ctx)
	if err != nil {
		err = s.mapError(err)
		return 0, err
	}
	return pruned, nil
}

// IsRetryableRefreshError reports whether a failed refresh may succeed if
// tried again later. Rejected grants need the user to reconnect.
func IsRetryableRefreshError(err error) bool {
	if err == nil {
		return false
	}
	if IsReauthorizationRequired(err) || IsNotConnected(err) || IsCodecError(err) {
		return false
	}
	return IsTransportFailure(err) || IsKind(err, ErrorInternal)
}

// ExponentialBackoffScheduler doubles the delay per attempt up to Max.
type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

const (
	defaultRefreshInitialBackoff = 500 * time.Millisecond
	defaultRefreshMaxBackoff     = 10 * time.Second
)

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultRefreshInitialBackoff
	}
	max := s.Max
	if max <= 0 {
		max = defaultRefreshMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
