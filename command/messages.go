package command

import (
	"strings"

	"github.com/goliatone/go-quickbooks/accounting"
	"github.com/goliatone/go-quickbooks/core"
)

const (
	TypeBeginAuthorization    = "quickbooks.command.authorization.begin"
	TypeCompleteAuthorization = "quickbooks.command.authorization.complete"
	TypeForceRefresh          = "quickbooks.command.refresh"
	TypeRefreshExpiring       = "quickbooks.command.refresh.expiring"
	TypeDisconnect            = "quickbooks.command.disconnect"
	TypeCreateCustomer        = "quickbooks.command.customer.create"
	TypeUpdateCustomer        = "quickbooks.command.customer.update"
	TypeDeleteCustomer        = "quickbooks.command.customer.delete"
)

type BeginAuthorizationMessage struct {
	Request core.BeginAuthorizationRequest
}

func (BeginAuthorizationMessage) Type() string { return TypeBeginAuthorization }

func (m BeginAuthorizationMessage) Validate() error {
	return requireOwner(m.Request.OwnerID)
}

type CompleteAuthorizationMessage struct {
	Request core.CompleteAuthorizationRequest
}

func (CompleteAuthorizationMessage) Type() string { return TypeCompleteAuthorization }

// Validate only checks the state. Missing code or realm is reported by the
// service as an invalid callback after the attempt is consumed.
func (m CompleteAuthorizationMessage) Validate() error {
	if strings.TrimSpace(m.Request.State) == "" {
		return commandValidationError("state", "state is required")
	}
	return nil
}

type ForceRefreshMessage struct {
	OwnerID string
}

func (ForceRefreshMessage) Type() string { return TypeForceRefresh }

func (m ForceRefreshMessage) Validate() error {
	return requireOwner(m.OwnerID)
}

type RefreshExpiringMessage struct {
	Request core.RefreshSweepRequest
}

func (RefreshExpiringMessage) Type() string { return TypeRefreshExpiring }

func (m RefreshExpiringMessage) Validate() error {
	if m.Request.LeadWindow < 0 {
		return commandValidationError("lead_window", "lead window must be >= 0")
	}
	if m.Request.Limit < 0 {
		return commandValidationError("limit", "limit must be >= 0")
	}
	return nil
}

type DisconnectMessage struct {
	OwnerID string
}

func (DisconnectMessage) Type() string { return TypeDisconnect }

func (m DisconnectMessage) Validate() error {
	return requireOwner(m.OwnerID)
}

type CreateCustomerMessage struct {
	OwnerID  string
	Customer accounting.Customer
}

func (CreateCustomerMessage) Type() string { return TypeCreateCustomer }

func (m CreateCustomerMessage) Validate() error {
	return requireOwner(m.OwnerID)
}

type UpdateCustomerMessage struct {
	OwnerID  string
	Customer accounting.Customer
}

func (UpdateCustomerMessage) Type() string { return TypeUpdateCustomer }

func (m UpdateCustomerMessage) Validate() error {
	if err := requireOwner(m.OwnerID); err != nil {
		return err
	}
	if strings.TrimSpace(m.Customer.ID) == "" {
		return commandValidationError("customer.id", "customer id is required")
	}
	return nil
}

type DeleteCustomerMessage struct {
	OwnerID    string
	CustomerID string
}

func (DeleteCustomerMessage) Type() string { return TypeDeleteCustomer }

func (m DeleteCustomerMessage) Validate() error {
	if err := requireOwner(m.OwnerID); err != nil {
		return err
	}
	if strings.TrimSpace(m.CustomerID) == "" {
		return commandValidationError("customer_id", "customer id is required")
	}
	return nil
}

func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return commandValidationError("owner_id", "owner id is required")
	}
	return nil
}
