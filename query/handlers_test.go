package query

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-quickbooks/accounting"
	"github.com/goliatone/go-quickbooks/core"
)

type stubStatusReader struct {
	status core.ConnectionStatus
	err    error
}

func (s stubStatusReader) ConnectionStatus(_ context.Context, ownerID string) (core.ConnectionStatus, error) {
	if s.err != nil {
		return core.ConnectionStatus{}, s.err
	}
	status := s.status
	status.OwnerID = ownerID
	return status, nil
}

type stubCustomerReader struct {
	lastQuery accounting.CustomerQuery
}

func (s *stubCustomerReader) GetCustomer(_ context.Context, _ string, id string) (accounting.Customer, error) {
	return accounting.Customer{ID: id, DisplayName: "Amy"}, nil
}

func (s *stubCustomerReader) QueryCustomers(_ context.Context, _ string, q accounting.CustomerQuery) (accounting.CustomerPage, error) {
	s.lastQuery = q
	return accounting.CustomerPage{Customers: []accounting.Customer{{ID: "1"}}, StartPosition: 1, MaxResults: 1}, nil
}

func TestConnectionStatusQuery_Delegates(t *testing.T) {
	qry := NewConnectionStatusQuery(stubStatusReader{status: core.ConnectionStatus{
		Connected: true,
		RealmID:   "r1",
		State:     core.TokenStateValid,
	}})
	status, err := qry.Query(context.Background(), ConnectionStatusMessage{OwnerID: "u1"})
	if err != nil {
		t.Fatalf("query status: %v", err)
	}
	if !status.Connected || status.OwnerID != "u1" || status.RealmID != "r1" {
		t.Fatalf("unexpected status %#v", status)
	}
}

func TestConnectionStatusQuery_PropagatesServiceError(t *testing.T) {
	qry := NewConnectionStatusQuery(stubStatusReader{err: core.NewCodecError(nil, "cannot decrypt")})
	if _, err := qry.Query(context.Background(), ConnectionStatusMessage{OwnerID: "u1"}); !core.IsCodecError(err) {
		t.Fatalf("expected codec error, got %v", err)
	}
}

func TestCustomerQueries_Delegate(t *testing.T) {
	reader := &stubCustomerReader{}
	customer, err := NewGetCustomerQuery(reader).Query(context.Background(), GetCustomerMessage{OwnerID: "u1", CustomerID: "7"})
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if customer.ID != "7" {
		t.Fatalf("unexpected customer %#v", customer)
	}

	page, err := NewListCustomersQuery(reader).Query(context.Background(), ListCustomersMessage{
		OwnerID: "u1",
		Filter:  accounting.CustomerQuery{ActiveOnly: true, MaxResults: 10},
	})
	if err != nil {
		t.Fatalf("list customers: %v", err)
	}
	if len(page.Customers) != 1 || !reader.lastQuery.ActiveOnly || reader.lastQuery.MaxResults != 10 {
		t.Fatalf("unexpected page %#v filter %#v", page, reader.lastQuery)
	}
}

func TestMessages_ValidateReturnsRichError(t *testing.T) {
	cases := map[string]interface{ Validate() error }{
		"status":       ConnectionStatusMessage{},
		"get customer": GetCustomerMessage{OwnerID: "u1"},
		"list":         ListCustomersMessage{OwnerID: "u1", Filter: accounting.CustomerQuery{MaxResults: -1}},
	}
	for name, msg := range cases {
		var rich *goerrors.Error
		if err := msg.Validate(); !goerrors.As(err, &rich) {
			t.Fatalf("%s: expected go-errors envelope, got %v", name, err)
		}
		if rich.TextCode != core.ErrorBadInput {
			t.Fatalf("%s: expected %q, got %q", name, core.ErrorBadInput, rich.TextCode)
		}
	}
}

func TestQueries_NilReaderReturnsRichError(t *testing.T) {
	var qry *ConnectionStatusQuery
	_, err := qry.Query(context.Background(), ConnectionStatusMessage{OwnerID: "u1"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal envelope, got %v", err)
	}
}
