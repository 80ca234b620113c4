package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-quickbooks/accounting"
	"github.com/goliatone/go-quickbooks/core"
)

type MutatingService interface {
	BeginAuthorization(ctx context.Context, req core.BeginAuthorizationRequest) (core.BeginAuthorizationResponse, error)
	CompleteAuthorization(ctx context.Context, req core.CompleteAuthorizationRequest) (core.ConnectionRecord, error)
	ForceRefresh(ctx context.Context, ownerID string) (core.ConnectionRecord, error)
	RefreshExpiring(ctx context.Context, req core.RefreshSweepRequest) (core.RefreshSweepResult, error)
	Disconnect(ctx context.Context, ownerID string) error
}

type CustomerWriter interface {
	CreateCustomer(ctx context.Context, ownerID string, customer accounting.Customer) (accounting.Customer, error)
	UpdateCustomer(ctx context.Context, ownerID string, customer accounting.Customer) (accounting.Customer, error)
	DeleteCustomer(ctx context.Context, ownerID string, id string) (accounting.Customer, error)
}

// ConnectionSummary is the token-free view of a connection stored as the
// result of commands that write one.
type ConnectionSummary struct {
	OwnerID               string
	RealmID               string
	Environment           core.Environment
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
	LastRefreshedAt       *time.Time
}

func summarize(record core.ConnectionRecord) ConnectionSummary {
	return ConnectionSummary{
		OwnerID:               record.OwnerID,
		RealmID:               record.RealmID,
		Environment:           record.Environment,
		AccessTokenExpiresAt:  record.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: record.RefreshTokenExpiresAt,
		LastRefreshedAt:       record.LastRefreshedAt,
	}
}

type BeginAuthorizationCommand struct {
	service MutatingService
}

func NewBeginAuthorizationCommand(service MutatingService) *BeginAuthorizationCommand {
	return &BeginAuthorizationCommand{service: service}
}

func (c *BeginAuthorizationCommand) Execute(ctx context.Context, msg BeginAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorization service is required")
	}
	out, err := c.service.BeginAuthorization(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteAuthorizationCommand struct {
	service MutatingService
}

func NewCompleteAuthorizationCommand(service MutatingService) *CompleteAuthorizationCommand {
	return &CompleteAuthorizationCommand{service: service}
}

func (c *CompleteAuthorizationCommand) Execute(ctx context.Context, msg CompleteAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorization service is required")
	}
	record, err := c.service.CompleteAuthorization(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, summarize(record))
	return nil
}

type ForceRefreshCommand struct {
	service MutatingService
}

func NewForceRefreshCommand(service MutatingService) *ForceRefreshCommand {
	return &ForceRefreshCommand{service: service}
}

func (c *ForceRefreshCommand) Execute(ctx context.Context, msg ForceRefreshMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refresh service is required")
	}
	record, err := c.service.ForceRefresh(ctx, msg.OwnerID)
	if err != nil {
		return err
	}
	storeResult(ctx, summarize(record))
	return nil
}

type RefreshExpiringCommand struct {
	service MutatingService
}

func NewRefreshExpiringCommand(service MutatingService) *RefreshExpiringCommand {
	return &RefreshExpiringCommand{service: service}
}

func (c *RefreshExpiringCommand) Execute(ctx context.Context, msg RefreshExpiringMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refresh service is required")
	}
	out, err := c.service.RefreshExpiring(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DisconnectCommand struct {
	service MutatingService
}

func NewDisconnectCommand(service MutatingService) *DisconnectCommand {
	return &DisconnectCommand{service: service}
}

func (c *DisconnectCommand) Execute(ctx context.Context, msg DisconnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: disconnect service is required")
	}
	return c.service.Disconnect(ctx, msg.OwnerID)
}

type CreateCustomerCommand struct {
	customers CustomerWriter
}

func NewCreateCustomerCommand(customers CustomerWriter) *CreateCustomerCommand {
	return &CreateCustomerCommand{customers: customers}
}

func (c *CreateCustomerCommand) Execute(ctx context.Context, msg CreateCustomerMessage) error {
	if c == nil || c.customers == nil {
		return commandDependencyError("command: customer client is required")
	}
	out, err := c.customers.CreateCustomer(ctx, msg.OwnerID, msg.Customer)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateCustomerCommand struct {
	customers CustomerWriter
}

func NewUpdateCustomerCommand(customers CustomerWriter) *UpdateCustomerCommand {
	return &UpdateCustomerCommand{customers: customers}
}

func (c *UpdateCustomerCommand) Execute(ctx context.Context, msg UpdateCustomerMessage) error {
	if c == nil || c.customers == nil {
		return commandDependencyError("command: customer client is required")
	}
	out, err := c.customers.UpdateCustomer(ctx, msg.OwnerID, msg.Customer)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeleteCustomerCommand struct {
	customers CustomerWriter
}

func NewDeleteCustomerCommand(customers CustomerWriter) *DeleteCustomerCommand {
	return &DeleteCustomerCommand{customers: customers}
}

func (c *DeleteCustomerCommand) Execute(ctx context.Context, msg DeleteCustomerMessage) error {
	if c == nil || c.customers == nil {
		return commandDependencyError("command: customer client is required")
	}
	out, err := c.customers.DeleteCustomer(ctx, msg.OwnerID, msg.CustomerID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
