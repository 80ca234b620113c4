package query

import (
	"context"

	"github.com/goliatone/go-quickbooks/accounting"
	"github.com/goliatone/go-quickbooks/core"
)

type ConnectionStatusReader interface {
	ConnectionStatus(ctx context.Context, ownerID string) (core.ConnectionStatus, error)
}

type CustomerReader interface {
	GetCustomer(ctx context.Context, ownerID string, id string) (accounting.Customer, error)
	QueryCustomers(ctx context.Context, ownerID string, q accounting.CustomerQuery) (accounting.CustomerPage, error)
}

type ConnectionStatusQuery struct {
	reader ConnectionStatusReader
}

func NewConnectionStatusQuery(reader ConnectionStatusReader) *ConnectionStatusQuery {
	return &ConnectionStatusQuery{reader: reader}
}

func (q *ConnectionStatusQuery) Query(ctx context.Context, msg ConnectionStatusMessage) (core.ConnectionStatus, error) {
	if q == nil || q.reader == nil {
		return core.ConnectionStatus{}, queryDependencyError("query: connection status reader is required")
	}
	return q.reader.ConnectionStatus(ctx, msg.OwnerID)
}

type GetCustomerQuery struct {
	reader CustomerReader
}

func NewGetCustomerQuery(reader CustomerReader) *GetCustomerQuery {
	return &GetCustomerQuery{reader: reader}
}

func (q *GetCustomerQuery) Query(ctx context.Context, msg GetCustomerMessage) (accounting.Customer, error) {
	if q == nil || q.reader == nil {
		return accounting.Customer{}, queryDependencyError("query: customer reader is required")
	}
	return q.reader.GetCustomer(ctx, msg.OwnerID, msg.CustomerID)
}

type ListCustomersQuery struct {
	reader CustomerReader
}

func NewListCustomersQuery(reader CustomerReader) *ListCustomersQuery {
	return &ListCustomersQuery{reader: reader}
}

func (q *ListCustomersQuery) Query(ctx context.Context, msg ListCustomersMessage) (accounting.CustomerPage, error) {
	if q == nil || q.reader == nil {
		return accounting.CustomerPage{}, queryDependencyError("query: customer reader is required")
	}
	return q.reader.QueryCustomers(ctx, msg.OwnerID, msg.Filter)
}
