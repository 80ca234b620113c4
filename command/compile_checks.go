package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-quickbooks/accounting"
	"github.com/goliatone/go-quickbooks/core"
)

var (
	_ gocmd.Commander[BeginAuthorizationMessage]    = (*BeginAuthorizationCommand)(nil)
	_ gocmd.Commander[CompleteAuthorizationMessage] = (*CompleteAuthorizationCommand)(nil)
	_ gocmd.Commander[ForceRefreshMessage]          = (*ForceRefreshCommand)(nil)
	_ gocmd.Commander[RefreshExpiringMessage]       = (*RefreshExpiringCommand)(nil)
	_ gocmd.Commander[DisconnectMessage]            = (*DisconnectCommand)(nil)
	_ gocmd.Commander[CreateCustomerMessage]        = (*CreateCustomerCommand)(nil)
	_ gocmd.Commander[UpdateCustomerMessage]        = (*UpdateCustomerCommand)(nil)
	_ gocmd.Commander[DeleteCustomerMessage]        = (*DeleteCustomerCommand)(nil)

	_ MutatingService = (*core.Service)(nil)
	_ CustomerWriter  = (*accounting.Client)(nil)
)
