package gocommand

import (
	"context"
	"testing"

	"github.com/goliatone/go-command"
	quickbookscommand "github.com/goliatone/go-quickbooks/command"
	"github.com/goliatone/go-quickbooks/core"
	quickbooksquery "github.com/goliatone/go-quickbooks/query"
)

type stubQuickBooksService struct {
	disconnected []string
}

func (s *stubQuickBooksService) BeginAuthorization(_ context.Context, req core.BeginAuthorizationRequest) (core.BeginAuthorizationResponse, error) {
	return core.BeginAuthorizationResponse{URL: "https://appcenter.intuit.com/connect/oauth2", State: "st-" + req.OwnerID}, nil
}

func (s *stubQuickBooksService) CompleteAuthorization(context.Context, core.CompleteAuthorizationRequest) (core.ConnectionRecord, error) {
	return core.ConnectionRecord{OwnerID: "u1", RealmID: "r1"}, nil
}

func (s *stubQuickBooksService) ForceRefresh(_ context.Context, ownerID string) (core.ConnectionRecord, error) {
	return core.ConnectionRecord{OwnerID: ownerID}, nil
}

func (s *stubQuickBooksService) RefreshExpiring(context.Context, core.RefreshSweepRequest) (core.RefreshSweepResult, error) {
	return core.RefreshSweepResult{}, nil
}

func (s *stubQuickBooksService) Disconnect(_ context.Context, ownerID string) error {
	s.disconnected = append(s.disconnected, ownerID)
	return nil
}

func (s *stubQuickBooksService) ConnectionStatus(_ context.Context, ownerID string) (core.ConnectionStatus, error) {
	return core.ConnectionStatus{OwnerID: ownerID, Connected: true, State: core.TokenStateValid}, nil
}

func TestHandlers_RegisterWiresCommandsAndQueries(t *testing.T) {
	svc := &stubQuickBooksService{}
	adapter := NewRegistryAdapter(command.NewRegistry())

	subscriptions, err := Handlers{Service: svc}.Register(adapter)
	if err != nil {
		t.Fatalf("register handlers: %v", err)
	}
	defer func() {
		for _, sub := range subscriptions {
			sub.Unsubscribe()
		}
	}()
	if len(subscriptions) != 6 {
		t.Fatalf("expected 6 subscriptions without a customer client, got %d", len(subscriptions))
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if err := Dispatch(context.Background(), quickbookscommand.DisconnectMessage{OwnerID: "u1"}); err != nil {
		t.Fatalf("dispatch disconnect: %v", err)
	}
	if len(svc.disconnected) != 1 || svc.disconnected[0] != "u1" {
		t.Fatalf("expected disconnect to reach the service, got %v", svc.disconnected)
	}

	status, err := Query[quickbooksquery.ConnectionStatusMessage, core.ConnectionStatus](
		context.Background(),
		quickbooksquery.ConnectionStatusMessage{OwnerID: "u1"},
	)
	if err != nil {
		t.Fatalf("query status: %v", err)
	}
	if !status.Connected || status.OwnerID != "u1" {
		t.Fatalf("unexpected status %#v", status)
	}
}

func TestHandlers_RegisterRequiresService(t *testing.T) {
	if _, err := (Handlers{}).Register(NewRegistryAdapter(nil)); err == nil {
		t.Fatalf("expected missing service to fail")
	}
}
