package intuit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-quickbooks/core"
	"golang.org/x/oauth2"
)

const (
	AuthorizationURL = "https://appcenter.intuit.com/connect/oauth2"
	TokenURL         = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	RevokeURL        = "https://developer.api.intuit.com/v2/oauth2/tokens/revoke"

	SandboxAPIBaseURL    = "https://sandbox-quickbooks.api.intuit.com"
	ProductionAPIBaseURL = "https://quickbooks.api.intuit.com"

	refreshTokenExpiresInKey = "x_refresh_token_expires_in"
	// Intuit documents a 100 day refresh token lifetime when the field is
	// missing from the response.
	defaultRefreshTokenTTL = 100 * 24 * time.Hour
)

// APIBaseURL returns the accounting API host for env.
func APIBaseURL(env core.Environment) string {
	if env == core.EnvironmentProduction {
		return ProductionAPIBaseURL
	}
	return SandboxAPIBaseURL
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithEndpoints overrides the Intuit endpoints, e.g. with an httptest server.
func WithEndpoints(authURL string, tokenURL string, revokeURL string) Option {
	return func(c *Client) {
		if strings.TrimSpace(authURL) != "" {
			c.oauth.Endpoint.AuthURL = strings.TrimSpace(authURL)
		}
		if strings.TrimSpace(tokenURL) != "" {
			c.oauth.Endpoint.TokenURL = strings.TrimSpace(tokenURL)
		}
		if strings.TrimSpace(revokeURL) != "" {
			c.revokeURL = strings.TrimSpace(revokeURL)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client is the Intuit OAuth 2.0 client: consent URL, code exchange,
// refresh and revocation.
type Client struct {
	oauth      oauth2.Config
	revokeURL  string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(cfg core.Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("intuit: client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("intuit: client secret is required")
	}
	timeout := cfg.HTTP.RequestTimeout
	if timeout <= 0 {
		timeout = core.DefaultRequestTimeout
	}
	client := &Client{
		oauth: oauth2.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			RedirectURL:  strings.TrimSpace(cfg.RedirectURI),
			Scopes:       cfg.Scopes(),
			Endpoint: oauth2.Endpoint{
				AuthURL:   AuthorizationURL,
				TokenURL:  TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		revokeURL:  RevokeURL,
		httpClient: &http.Client{Timeout: timeout},
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// NewFactory adapts NewClient to core.WithOAuthClientFactory.
func NewFactory(opts ...Option) core.OAuthClientFactory {
	return func(cfg core.Config) (core.OAuthClient, error) {
		return NewClient(cfg, opts...)
	}
}

func (c *Client) AuthorizationURL(req core.AuthorizationURLRequest) (string, error) {
	if c == nil {
		return "", fmt.Errorf("intuit: client is nil")
	}
	if strings.TrimSpace(req.State) == "" {
		return "", fmt.Errorf("intuit: state is required")
	}
	cfg := c.configFor(req.RedirectURI)
	if len(req.Scopes) > 0 {
		cfg.Scopes = append([]string(nil), req.Scopes...)
	}
	return cfg.AuthCodeURL(req.State), nil
}

func (c *Client) ExchangeCode(ctx context.Context, req core.ExchangeRequest) (core.TokenSet, error) {
	if c == nil {
		return core.TokenSet{}, fmt.Errorf("intuit: client is nil")
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return core.TokenSet{}, fmt.Errorf("intuit: authorization code is required")
	}
	cfg := c.configFor(req.RedirectURI)
	token, err := cfg.Exchange(c.httpContext(ctx), code)
	if err != nil {
		return core.TokenSet{}, c.classify(err, "exchange authorization code")
	}
	return c.tokenSet(token)
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (core.TokenSet, error) {
	if c == nil {
		return core.TokenSet{}, fmt.Errorf("intuit: client is nil")
	}
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return core.TokenSet{}, fmt.Errorf("intuit: refresh token is required")
	}
	// An empty access token forces the token source to hit the token endpoint.
	source := c.oauth.TokenSource(c.httpContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return core.TokenSet{}, c.classify(err, "refresh access token")
	}
	return c.tokenSet(token)
}

func (c *Client) configFor(redirectURI string) oauth2.Config {
	cfg := c.oauth
	cfg.Scopes = append([]string(nil), c.oauth.Scopes...)
	if trimmed := strings.TrimSpace(redirectURI); trimmed != "" {
		cfg.RedirectURL = trimmed
	}
	return cfg
}

func (c *Client) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *Client) tokenSet(token *oauth2.Token) (core.TokenSet, error) {
	if token == nil || strings.TrimSpace(token.AccessToken) == "" {
		return core.TokenSet{}, fmt.Errorf("intuit: token endpoint returned no access token")
	}
	now := c.now()
	accessExpiry := token.Expiry.UTC()
	if token.Expiry.IsZero() {
		accessExpiry = now.Add(time.Hour)
	}
	tokenType := strings.ToLower(strings.TrimSpace(token.TokenType))
	if tokenType == "" {
		tokenType = "bearer"
	}
	return core.TokenSet{
		AccessToken:           token.AccessToken,
		RefreshToken:          token.RefreshToken,
		TokenType:             tokenType,
		AccessTokenExpiresAt:  accessExpiry,
		RefreshTokenExpiresAt: now.Add(refreshTokenTTL(token)),
	}, nil
}

func refreshTokenTTL(token *oauth2.Token) time.Duration {
	switch value := token.Extra(refreshTokenExpiresInKey).(type) {
	case float64:
		if value > 0 {
			return time.Duration(value) * time.Second
		}
	case int64:
		if value > 0 {
			return time.Duration(value) * time.Second
		}
	case string:
		if seconds, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultRefreshTokenTTL
}

// classify separates network trouble from rejected grants. Only the former
// becomes a transport error; a rejection keeps the OAuth error code without
// the response body.
func (c *Client) classify(err error, action string) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		if status >= http.StatusInternalServerError {
			return core.NewTransportError(fmt.Errorf("intuit: token endpoint status %d", status), action)
		}
		code := strings.TrimSpace(retrieveErr.ErrorCode)
		if code == "" {
			code = "unknown_error"
		}
		return fmt.Errorf("intuit: %s rejected with %s (status %d)", action, code, status)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return core.NewTransportError(err, action)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return core.NewTransportError(err, action)
	}
	return fmt.Errorf("intuit: %s: %w", action, err)
}

var _ core.OAuthClient = (*Client)(nil)
