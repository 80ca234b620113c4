package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-quickbooks/accounting"
	"github.com/goliatone/go-quickbooks/core"
)

var (
	_ gocmd.Querier[ConnectionStatusMessage, core.ConnectionStatus] = (*ConnectionStatusQuery)(nil)
	_ gocmd.Querier[GetCustomerMessage, accounting.Customer]        = (*GetCustomerQuery)(nil)
	_ gocmd.Querier[ListCustomersMessage, accounting.CustomerPage]  = (*ListCustomersQuery)(nil)

	_ ConnectionStatusReader = (*core.Service)(nil)
	_ CustomerReader         = (*accounting.Client)(nil)
)
