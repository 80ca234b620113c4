package quickbooks

import (
	"fmt"

	"github.com/goliatone/go-quickbooks/accounting"
	"github.com/goliatone/go-quickbooks/core"
	"github.com/goliatone/go-quickbooks/providers/intuit"
)

func IntuitOAuthClient(cfg Config, opts ...intuit.Option) (core.OAuthClient, error) {
	return intuit.NewClient(cfg, opts...)
}

// NewCustomerClient returns the Accounting API customer client bound to svc,
// using the configured minor version.
func NewCustomerClient(svc *Service, opts ...accounting.Option) (*accounting.Client, error) {
	if svc == nil {
		return nil, fmt.Errorf("quickbooks: service is required")
	}
	base := []accounting.Option{accounting.WithMinorVersion(svc.Config().API.MinorVersion)}
	return accounting.NewClient(svc, append(base, opts...)...)
}
