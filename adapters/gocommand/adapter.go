package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-quickbooks/accounting"
	quickbookscommand "github.com/goliatone/go-quickbooks/command"
	"github.com/goliatone/go-quickbooks/core"
	quickbooksquery "github.com/goliatone/go-quickbooks/query"
)

// ValidateMessageContract checks that a quickbooks message names its type and
// passes its own Validate, if it has one.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// Handlers wires the quickbooks commands and queries onto a registry and the
// go-command dispatcher. Customers is optional.
type Handlers struct {
	Service   QuickBooksService
	Customers CustomerClient
}

type QuickBooksService interface {
	quickbookscommand.MutatingService
	quickbooksquery.ConnectionStatusReader
}

type CustomerClient interface {
	quickbookscommand.CustomerWriter
	quickbooksquery.CustomerReader
}

// Register registers every handler and returns the dispatcher
// subscriptions. On failure the subscriptions made so far are released.
func (h Handlers) Register(adapter *RegistryAdapter) ([]commanddispatcher.Subscription, error) {
	if h.Service == nil {
		return nil, fmt.Errorf("gocommand: quickbooks service is required")
	}
	var subscriptions []commanddispatcher.Subscription
	track := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			for _, existing := range subscriptions {
				existing.Unsubscribe()
			}
			subscriptions = nil
			return err
		}
		subscriptions = append(subscriptions, sub)
		return nil
	}

	steps := []func() error{
		func() error {
			return track(RegisterAndSubscribe[quickbookscommand.BeginAuthorizationMessage](adapter, quickbookscommand.NewBeginAuthorizationCommand(h.Service)))
		},
		func() error {
			return track(RegisterAndSubscribe[quickbookscommand.CompleteAuthorizationMessage](adapter, quickbookscommand.NewCompleteAuthorizationCommand(h.Service)))
		},
		func() error {
			return track(RegisterAndSubscribe[quickbookscommand.ForceRefreshMessage](adapter, quickbookscommand.NewForceRefreshCommand(h.Service)))
		},
		func() error {
			return track(RegisterAndSubscribe[quickbookscommand.RefreshExpiringMessage](adapter, quickbookscommand.NewRefreshExpiringCommand(h.Service)))
		},
		func() error {
			return track(RegisterAndSubscribe[quickbookscommand.DisconnectMessage](adapter, quickbookscommand.NewDisconnectCommand(h.Service)))
		},
		func() error {
			return track(RegisterAndSubscribeQuery[quickbooksquery.ConnectionStatusMessage, core.ConnectionStatus](adapter, quickbooksquery.NewConnectionStatusQuery(h.Service)))
		},
	}
	if h.Customers != nil {
		steps = append(steps,
			func() error {
				return track(RegisterAndSubscribe[quickbookscommand.CreateCustomerMessage](adapter, quickbookscommand.NewCreateCustomerCommand(h.Customers)))
			},
			func() error {
				return track(RegisterAndSubscribe[quickbookscommand.UpdateCustomerMessage](adapter, quickbookscommand.NewUpdateCustomerCommand(h.Customers)))
			},
			func() error {
				return track(RegisterAndSubscribe[quickbookscommand.DeleteCustomerMessage](adapter, quickbookscommand.NewDeleteCustomerCommand(h.Customers)))
			},
			func() error {
				return track(RegisterAndSubscribeQuery[quickbooksquery.GetCustomerMessage, accounting.Customer](adapter, quickbooksquery.NewGetCustomerQuery(h.Customers)))
			},
			func() error {
				return track(RegisterAndSubscribeQuery[quickbooksquery.ListCustomersMessage, accounting.CustomerPage](adapter, quickbooksquery.NewListCustomersQuery(h.Customers)))
			},
		)
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return subscriptions, nil
}
