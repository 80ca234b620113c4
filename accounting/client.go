package accounting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-quickbooks/core"
	"github.com/goliatone/go-quickbooks/providers/intuit"
	"github.com/goliatone/go-quickbooks/transport"
	"github.com/google/go-querystring/query"
)

const (
	ErrorCustomerNotFound = "QBO_CUSTOMER_NOT_FOUND"

	defaultMinorVersion = "75"
	defaultMaxResults   = 100
	maxQueryResults     = 1000

	// QuickBooks answers lookups of unknown ids with a 400 and this fault code.
	objectNotFoundFaultCode = "610"
)

// TokenService is the part of core.Service the client needs.
type TokenService interface {
	WithValidToken(ctx context.Context, ownerID string, op core.Operation) error
}

type Option func(*Client)

func WithRESTAdapter(adapter *transport.RESTAdapter) Option {
	return func(c *Client) {
		if adapter != nil {
			c.rest = adapter
		}
	}
}

func WithMinorVersion(version string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(version); trimmed != "" {
			c.minorVersion = trimmed
		}
	}
}

// WithBaseURL pins the API host instead of deriving it from the
// connection environment.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// Client proxies customer CRUD to the QuickBooks Accounting API on behalf
// of an owner, using whatever token the service hands out.
type Client struct {
	tokens       TokenService
	rest         *transport.RESTAdapter
	minorVersion string
	baseURL      string
}

func NewClient(tokens TokenService, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("accounting: token service is required")
	}
	client := &Client{
		tokens:       tokens,
		rest:         transport.NewRESTAdapter(nil),
		minorVersion: defaultMinorVersion,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type apiParams struct {
	MinorVersion string `url:"minorversion,omitempty"`
	Query        string `url:"query,omitempty"`
}

func (c *Client) CreateCustomer(ctx context.Context, ownerID string, customer Customer) (Customer, error) {
	if strings.TrimSpace(customer.DisplayName) == "" && strings.TrimSpace(customer.GivenName) == "" &&
		strings.TrimSpace(customer.FamilyName) == "" && strings.TrimSpace(customer.CompanyName) == "" {
		return Customer{}, badInput("accounting: customer needs a display, given, family or company name")
	}
	customer.ID = ""
	customer.SyncToken = ""
	customer.Sparse = false
	return core.CallWithValidToken(ctx, c.tokens, ownerID, func(ctx context.Context, grant core.AccessGrant) (Customer, error) {
		return c.writeCustomer(ctx, grant, customer)
	})
}

// GetCustomer returns a QBO_CUSTOMER_NOT_FOUND error for unknown ids.
func (c *Client) GetCustomer(ctx context.Context, ownerID string, id string) (Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Customer{}, badInput("accounting: customer id is required")
	}
	return core.CallWithValidToken(ctx, c.tokens, ownerID, func(ctx context.Context, grant core.AccessGrant) (Customer, error) {
		return c.readCustomer(ctx, grant, id)
	})
}

// UpdateCustomer sends a sparse update. Without a SyncToken the current one
// is read first.
func (c *Client) UpdateCustomer(ctx context.Context, ownerID string, customer Customer) (Customer, error) {
	customer.ID = strings.TrimSpace(customer.ID)
	if customer.ID == "" {
		return Customer{}, badInput("accounting: customer id is required")
	}
	return core.CallWithValidToken(ctx, c.tokens, ownerID, func(ctx context.Context, grant core.AccessGrant) (Customer, error) {
		if strings.TrimSpace(customer.SyncToken) == "" {
			current, err := c.readCustomer(ctx, grant, customer.ID)
			if err != nil {
				return Customer{}, err
			}
			customer.SyncToken = current.SyncToken
		}
		customer.Sparse = true
		return c.writeCustomer(ctx, grant, customer)
	})
}

// DeleteCustomer marks the customer inactive. QuickBooks does not allow
// customers to be removed.
func (c *Client) DeleteCustomer(ctx context.Context, ownerID string, id string) (Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Customer{}, badInput("accounting: customer id is required")
	}
	return core.CallWithValidToken(ctx, c.tokens, ownerID, func(ctx context.Context, grant core.AccessGrant) (Customer, error) {
		current, err := c.readCustomer(ctx, grant, id)
		if err != nil {
			return Customer{}, err
		}
		if !current.IsActive() {
			return current, nil
		}
		inactive := false
		return c.writeCustomer(ctx, grant, Customer{
			ID:        current.ID,
			SyncToken: current.SyncToken,
			Sparse:    true,
			Active:    &inactive,
		})
	})
}

func (c *Client) QueryCustomers(ctx context.Context, ownerID string, q CustomerQuery) (CustomerPage, error) {
	statement := buildCustomerQuery(q)
	return core.CallWithValidToken(ctx, c.tokens, ownerID, func(ctx context.Context, grant core.AccessGrant) (CustomerPage, error) {
		res, err := c.do(ctx, grant, http.MethodGet, "query", apiParams{Query: statement}, nil)
		if err != nil {
			return CustomerPage{}, err
		}
		var envelope queryEnvelope
		if err := json.Unmarshal(res.Body, &envelope); err != nil {
			return CustomerPage{}, decodeError(err)
		}
		customers := envelope.QueryResponse.Customer
		if customers == nil {
			customers = []Customer{}
		}
		return CustomerPage{
			Customers:     customers,
			StartPosition: envelope.QueryResponse.StartPosition,
			MaxResults:    envelope.QueryResponse.MaxResults,
		}, nil
	})
}

func buildCustomerQuery(q CustomerQuery) string {
	start := q.StartPosition
	if start <= 0 {
		start = 1
	}
	limit := q.MaxResults
	if limit <= 0 {
		limit = defaultMaxResults
	}
	if limit > maxQueryResults {
		limit = maxQueryResults
	}
	statement := "select * from Customer"
	if q.ActiveOnly {
		statement += " where Active = true"
	}
	return fmt.Sprintf("%s startposition %d maxresults %d", statement, start, limit)
}

func (c *Client) readCustomer(ctx context.Context, grant core.AccessGrant, id string) (Customer, error) {
	res, err := c.do(ctx, grant, http.MethodGet, "customer/"+url.PathEscape(id), apiParams{}, nil)
	if err != nil {
		if isObjectNotFound(err) {
			return Customer{}, notFound(id)
		}
		return Customer{}, err
	}
	return decodeCustomer(res.Body)
}

func (c *Client) writeCustomer(ctx context.Context, grant core.AccessGrant, customer Customer) (Customer, error) {
	body, err := json.Marshal(customer)
	if err != nil {
		return Customer{}, fmt.Errorf("accounting: encode customer: %w", err)
	}
	res, err := c.do(ctx, grant, http.MethodPost, "customer", apiParams{}, body)
	if err != nil {
		if customer.ID != "" && isObjectNotFound(err) {
			return Customer{}, notFound(customer.ID)
		}
		return Customer{}, err
	}
	return decodeCustomer(res.Body)
}

func (c *Client) do(
	ctx context.Context,
	grant core.AccessGrant,
	method string,
	resource string,
	params apiParams,
	body []byte,
) (transport.Response, error) {
	realmID := strings.TrimSpace(grant.RealmID)
	if realmID == "" {
		return transport.Response{}, badInput("accounting: connection has no realm id")
	}
	params.MinorVersion = c.minorVersion
	values, err := query.Values(params)
	if err != nil {
		return transport.Response{}, fmt.Errorf("accounting: encode query: %w", err)
	}
	queryParams := make(map[string]string, len(values))
	for key := range values {
		queryParams[key] = values.Get(key)
	}

	baseURL := c.baseURL
	if baseURL == "" {
		baseURL = intuit.APIBaseURL(grant.Environment)
	}
	return c.rest.Do(ctx, grant, transport.Request{
		Method: method,
		URL:    fmt.Sprintf("%s/v3/company/%s/%s", baseURL, url.PathEscape(realmID), resource),
		Query:  queryParams,
		Body:   body,
	})
}

func decodeCustomer(body []byte) (Customer, error) {
	var envelope customerEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Customer{}, decodeError(err)
	}
	return envelope.Customer, nil
}

func isObjectNotFound(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorProviderRequestFailed {
		return false
	}
	return fmt.Sprint(rich.Metadata["fault_code"]) == objectNotFoundFaultCode
}

// IsCustomerNotFound reports whether err is the not-found error returned by
// the customer operations.
func IsCustomerNotFound(err error) bool {
	return core.IsKind(err, ErrorCustomerNotFound)
}

func notFound(id string) error {
	return goerrors.New("quickbooks customer not found", goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorCustomerNotFound).
		WithMetadata(map[string]any{"customer_id": id})
}

func badInput(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput)
}

func decodeError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, "accounting: decode quickbooks response").
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ErrorProviderRequestFailed)
}
