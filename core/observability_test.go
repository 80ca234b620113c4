package core

import (
	"context"
	"testing"
)

func TestObserveOperation_RecordsProviderCallsAndOutcome(t *testing.T) {
	ctx := context.Background()
	recorder := NewMemoryMetricsRecorder()
	h, err := newTestHarness(WithMetricsRecorder(recorder))
	if err != nil {
		t.Fatalf("new harness: %v", err)
	}
	if _, err := h.connect(ctx, "u1", "r1"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := h.svc.GetValidAccessToken(ctx, "missing"); err == nil {
		t.Fatalf("expected not connected")
	}

	if got := recorder.Counter("quickbooks.begin_authorization.total"); got != 1 {
		t.Fatalf("expected begin counter, got %d", got)
	}
	if got := recorder.Counter("quickbooks.complete_authorization.total"); got != 1 {
		t.Fatalf("expected complete counter, got %d", got)
	}
	if got := recorder.Counter("quickbooks.provider.exchange.calls"); got != 1 {
		t.Fatalf("expected one exchange call, got %d", got)
	}
	if got := recorder.Counter("quickbooks.get_valid_token.total"); got != 1 {
		t.Fatalf("expected token counter, got %d", got)
	}
	if summary := recorder.Histogram("quickbooks.complete_authorization.duration_ms"); summary.Count != 1 {
		t.Fatalf("expected one complete duration sample, got %#v", summary)
	}
}

func TestFlattenFields_SortsKeys(t *testing.T) {
	args := flattenFields(map[string]any{"b": 2, "a": 1})
	if len(args) != 4 || args[0] != "a" || args[2] != "b" {
		t.Fatalf("unexpected flattened args %v", args)
	}
}
