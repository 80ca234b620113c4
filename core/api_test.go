package core

import (
	"context"
	"errors"
	"testing"
)

func TestWithValidToken_RetriesOnceAfterProviderRejection(t *testing.T) {
	ctx := context.Background()
	h, err := newTestHarness()
	if err != nil {
		t.Fatalf("new harness: %v", err)
	}
	if _, err := h.connect(ctx, "u1", "r1"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var seen []string
	err = h.svc.WithValidToken(ctx, "u1", func(_ context.Context, grant AccessGrant) error {
		seen = append(seen, grant.AccessToken)
		if len(seen) == 1 {
			return NewProviderUnauthorizedError("token rejected", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with valid token: %v", err)
	}
	if len(seen) != 2 || seen[0] != "access-1" || seen[1] != "access-2" {
		t.Fatalf("expected retry with refreshed token, got %v", seen)
	}
	if got := h.oauth.refreshCalls.Load(); got != 1 {
		t.Fatalf("expected one forced refresh, got %d", got)
	}
}

func TestWithValidToken_SecondRejectionNeedsReauthorization(t *testing.T) {
	ctx := context.Background()
	h, err := newTestHarness()
	if err != nil {
		t.Fatalf("new harness: %v", err)
	}
	if _, err := h.connect(ctx, "u1", "r1"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	calls := 0
	err = h.svc.WithValidToken(ctx, "u1", func(context.Context, AccessGrant) error {
		calls++
		return NewProviderUnauthorizedError("token rejected", nil)
	})
	if !IsReauthorizationRequired(err) {
		t.Fatalf("expected reauthorization required, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected exactly two attempts, got %d", calls)
	}
}

func TestWithValidToken_OtherErrorsPassThrough(t *testing.T) {
	ctx := context.Background()
	h, err := newTestHarness()
	if err != nil {
		t.Fatalf("new harness: %v", err)
	}
	if _, err := h.connect(ctx, "u1", "r1"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	sentinel := errors.New("validation fault")
	calls := 0
	err = h.svc.WithValidToken(ctx, "u1", func(context.Context, AccessGrant) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected operation error, got %v", err)
	}
	if calls != 1 || h.oauth.refreshCalls.Load() != 0 {
		t.Fatalf("expected no retry for non-auth failures")
	}
}

func TestWithValidToken_NotConnectedSkipsOperation(t *testing.T) {
	h, err := newTestHarness()
	if err != nil {
		t.Fatalf("new harness: %v", err)
	}
	called := false
	err = h.svc.WithValidToken(context.Background(), "ghost", func(context.Context, AccessGrant) error {
		called = true
		return nil
	})
	if !IsNotConnected(err) {
		t.Fatalf("expected not connected, got %v", err)
	}
	if called {
		t.Fatalf("operation must not run without a token")
	}
}

func TestCallWithValidToken_ReturnsValue(t *testing.T) {
	ctx := context.Background()
	h, err := newTestHarness()
	if err != nil {
		t.Fatalf("new harness: %v", err)
	}
	if _, err := h.connect(ctx, "u1", "r1"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	realm, err := CallWithValidToken(ctx, h.svc, "u1", func(_ context.Context, grant AccessGrant) (string, error) {
		return grant.RealmID, nil
	})
	if err != nil {
		t.Fatalf("call with valid token: %v", err)
	}
	if realm != "r1" {
		t.Fatalf("expected realm r1, got %q", realm)
	}
}
