package quickbooks

import (
	"fmt"

	"github.com/goliatone/go-quickbooks/adapters/gocommand"
	quickbookscommand "github.com/goliatone/go-quickbooks/command"
	quickbooksquery "github.com/goliatone/go-quickbooks/query"
)

type CommandQueryService interface {
	quickbookscommand.MutatingService
	quickbooksquery.ConnectionStatusReader
}

type CustomerClient interface {
	quickbookscommand.CustomerWriter
	quickbooksquery.CustomerReader
}

type Commands struct {
	BeginAuthorization    *quickbookscommand.BeginAuthorizationCommand
	CompleteAuthorization *quickbookscommand.CompleteAuthorizationCommand
	ForceRefresh          *quickbookscommand.ForceRefreshCommand
	RefreshExpiring       *quickbookscommand.RefreshExpiringCommand
	Disconnect            *quickbookscommand.DisconnectCommand
	CreateCustomer        *quickbookscommand.CreateCustomerCommand
	UpdateCustomer        *quickbookscommand.UpdateCustomerCommand
	DeleteCustomer        *quickbookscommand.DeleteCustomerCommand
}

type Queries struct {
	ConnectionStatus *quickbooksquery.ConnectionStatusQuery
	GetCustomer      *quickbooksquery.GetCustomerQuery
	ListCustomers    *quickbooksquery.ListCustomersQuery
}

type Facade struct {
	service   CommandQueryService
	customers CustomerClient
	commands  Commands
	queries   Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	customers CustomerClient
}

// WithCustomers enables the customer commands and queries.
func WithCustomers(customers CustomerClient) FacadeOption {
	return func(options *facadeOptions) {
		options.customers = customers
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("quickbooks: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	facade := &Facade{service: service, customers: cfg.customers}
	facade.commands = Commands{
		BeginAuthorization:    quickbookscommand.NewBeginAuthorizationCommand(service),
		CompleteAuthorization: quickbookscommand.NewCompleteAuthorizationCommand(service),
		ForceRefresh:          quickbookscommand.NewForceRefreshCommand(service),
		RefreshExpiring:       quickbookscommand.NewRefreshExpiringCommand(service),
		Disconnect:            quickbookscommand.NewDisconnectCommand(service),
	}
	facade.queries = Queries{
		ConnectionStatus: quickbooksquery.NewConnectionStatusQuery(service),
	}
	if cfg.customers != nil {
		facade.commands.CreateCustomer = quickbookscommand.NewCreateCustomerCommand(cfg.customers)
		facade.commands.UpdateCustomer = quickbookscommand.NewUpdateCustomerCommand(cfg.customers)
		facade.commands.DeleteCustomer = quickbookscommand.NewDeleteCustomerCommand(cfg.customers)
		facade.queries.GetCustomer = quickbooksquery.NewGetCustomerQuery(cfg.customers)
		facade.queries.ListCustomers = quickbooksquery.NewListCustomersQuery(cfg.customers)
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// Handlers exposes the same wiring for registration on a go-command registry.
func (f *Facade) Handlers() gocommand.Handlers {
	if f == nil {
		return gocommand.Handlers{}
	}
	handlers := gocommand.Handlers{Service: f.service}
	if f.customers != nil {
		handlers.Customers = f.customers
	}
	return handlers
}
