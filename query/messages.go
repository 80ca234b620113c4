package query

import (
	"strings"

	"github.com/goliatone/go-quickbooks/accounting"
)

const (
	TypeConnectionStatus = "quickbooks.query.connection.status"
	TypeGetCustomer      = "quickbooks.query.customer.get"
	TypeListCustomers    = "quickbooks.query.customer.list"
)

type ConnectionStatusMessage struct {
	OwnerID string
}

func (ConnectionStatusMessage) Type() string { return TypeConnectionStatus }

func (m ConnectionStatusMessage) Validate() error {
	return requireOwner(m.OwnerID)
}

type GetCustomerMessage struct {
	OwnerID    string
	CustomerID string
}

func (GetCustomerMessage) Type() string { return TypeGetCustomer }

func (m GetCustomerMessage) Validate() error {
	if err := requireOwner(m.OwnerID); err != nil {
		return err
	}
	if strings.TrimSpace(m.CustomerID) == "" {
		return queryValidationError("customer_id", "customer id is required")
	}
	return nil
}

type ListCustomersMessage struct {
	OwnerID string
	Filter  accounting.CustomerQuery
}

func (ListCustomersMessage) Type() string { return TypeListCustomers }

func (m ListCustomersMessage) Validate() error {
	if err := requireOwner(m.OwnerID); err != nil {
		return err
	}
	if m.Filter.StartPosition < 0 {
		return queryValidationError("start_position", "start position must be >= 0")
	}
	if m.Filter.MaxResults < 0 {
		return queryValidationError("max_results", "max results must be >= 0")
	}
	return nil
}

func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return queryValidationError("owner_id", "owner id is required")
	}
	return nil
}
