package gocommand

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	quickbookscommand "github.com/goliatone/go-quickbooks/command"
	"github.com/goliatone/go-quickbooks/core"
)

type untypedMessage struct{}

func (untypedMessage) Type() string { return "  " }

func TestValidateMessageContract_QuickBooksMessages(t *testing.T) {
	if err := ValidateMessageContract(quickbookscommand.ForceRefreshMessage{OwnerID: "u1"}); err != nil {
		t.Fatalf("expected refresh message to satisfy contract, got %v", err)
	}
	if err := ValidateMessageContract(quickbookscommand.DisconnectMessage{}); err == nil {
		t.Fatalf("expected missing owner to fail through Validate()")
	}
	if err := ValidateMessageContract(quickbookscommand.RefreshExpiringMessage{
		Request: core.RefreshSweepRequest{LeadWindow: -time.Minute},
	}); err == nil {
		t.Fatalf("expected negative lead window to fail")
	}
	if err := ValidateMessageContract(untypedMessage{}); err == nil {
		t.Fatalf("expected blank type to fail contract validation")
	}
}

func TestRegisterAndSubscribe_DispatchesRefresh(t *testing.T) {
	adapter := NewRegistryAdapter(nil)
	var owners []string
	initialized := false

	refresh := command.CommandFunc[quickbookscommand.ForceRefreshMessage](func(_ context.Context, msg quickbookscommand.ForceRefreshMessage) error {
		owners = append(owners, msg.OwnerID)
		return nil
	})
	sub, err := RegisterAndSubscribe(adapter, refresh)
	if err != nil {
		t.Fatalf("register refresh: %v", err)
	}
	defer sub.Unsubscribe()

	if err := adapter.AddResolver(" audit ", func(any, command.CommandMeta, *command.Registry) error {
		initialized = true
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("audit") {
		t.Fatalf("expected trimmed resolver key to be registered")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if !initialized {
		t.Fatalf("expected resolver to run for the refresh command")
	}

	if err := Dispatch(context.Background(), quickbookscommand.ForceRefreshMessage{OwnerID: "u7"}); err != nil {
		t.Fatalf("dispatch refresh: %v", err)
	}
	if len(owners) != 1 || owners[0] != "u7" {
		t.Fatalf("expected refresh for u7, got %v", owners)
	}
}

func TestRegisterAndSubscribe_RequiresRegistryAndCommand(t *testing.T) {
	var nilAdapter *RegistryAdapter
	refresh := command.CommandFunc[quickbookscommand.ForceRefreshMessage](func(context.Context, quickbookscommand.ForceRefreshMessage) error {
		return nil
	})
	if _, err := RegisterAndSubscribe(nilAdapter, refresh); err == nil {
		t.Fatalf("expected nil adapter to fail")
	}
	if _, err := RegisterAndSubscribe[quickbookscommand.ForceRefreshMessage](NewRegistryAdapter(nil), nil); err == nil {
		t.Fatalf("expected nil command to fail")
	}
	if NewRegistryAdapter(nil).Registry() == nil || nilAdapter.Registry() != nil {
		t.Fatalf("expected a default registry only for non-nil adapters")
	}
	if nilAdapter.HasResolver("queue") {
		t.Fatalf("nil adapter must not report resolvers")
	}
}

func TestAddQueueResolver_MirrorsSweepCommand(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	if err := adapter.AddQueueResolver("queue", nil); err == nil {
		t.Fatalf("expected nil queue registry to fail")
	}
	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	sweep := command.CommandFunc[quickbookscommand.RefreshExpiringMessage](func(context.Context, quickbookscommand.RefreshExpiringMessage) error {
		return nil
	})
	if err := adapter.RegisterCommand(sweep); err != nil {
		t.Fatalf("register sweep: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if _, ok := queueRegistry.Get(quickbookscommand.TypeRefreshExpiring); !ok {
		t.Fatalf("expected sweep command to be mirrored into queue registry")
	}
}
