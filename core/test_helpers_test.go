package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type testSecretProvider struct{}

func (testSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("test secret provider: plaintext is required")
	}
	encoded := base64.StdEncoding.EncodeToString(plaintext)
	return []byte("enc:" + encoded), nil
}

func (testSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	value := string(ciphertext)
	if !strings.HasPrefix(value, "enc:") {
		return nil, fmt.Errorf("test secret provider: invalid ciphertext")
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "enc:"))
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeOAuthClient struct {
	clock *testClock

	mu            sync.Mutex
	exchangeErr   error
	refreshErr    error
	refreshDelay  time.Duration
	refreshCalls  atomic.Int32
	exchangeCalls atomic.Int32
	revokeCalls   atomic.Int32
	lastCode      string
	lastRefresh   string
	revoked       []string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issued        int
}

func newFakeOAuthClient(clock *testClock) *fakeOAuthClient {
	return &fakeOAuthClient{
		clock:      clock,
		accessTTL:  time.Hour,
		refreshTTL: 100 * 24 * time.Hour,
	}
}

func (c *fakeOAuthClient) AuthorizationURL(req AuthorizationURLRequest) (string, error) {
	return "https://appcenter.example/connect/oauth2?client_id=client&redirect_uri=" + req.RedirectURI +
		"&response_type=code&scope=" + strings.Join(req.Scopes, "+") + "&state=" + req.State, nil
}

func (c *fakeOAuthClient) ExchangeCode(ctx context.Context, req ExchangeRequest) (TokenSet, error) {
	c.exchangeCalls.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastCode = req.Code
	if c.exchangeErr != nil {
		return TokenSet{}, c.exchangeErr
	}
	return c.issueLocked(), nil
}

func (c *fakeOAuthClient) Refresh(ctx context.Context, refreshToken string) (TokenSet, error) {
	c.refreshCalls.Add(1)
	if c.refreshDelay > 0 {
		select {
		case <-ctx.Done():
			return TokenSet{}, ctx.Err()
		case <-time.After(c.refreshDelay):
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRefresh = refreshToken
	if c.refreshErr != nil {
		return TokenSet{}, c.refreshErr
	}
	return c.issueLocked(), nil
}

func (c *fakeOAuthClient) Revoke(_ context.Context, token string) error {
	c.revokeCalls.Add(1)
	c.mu.Lock()
	c.revoked = append(c.revoked, token)
	c.mu.Unlock()
	return nil
}

func (c *fakeOAuthClient) issueLocked() TokenSet {
	c.issued++
	now := c.clock.Now()
	return TokenSet{
		AccessToken:           fmt.Sprintf("access-%d", c.issued),
		RefreshToken:          fmt.Sprintf("refresh-%d", c.issued),
		TokenType:             "bearer",
		AccessTokenExpiresAt:  now.Add(c.accessTTL),
		RefreshTokenExpiresAt: now.Add(c.refreshTTL),
	}
}

func (c *fakeOAuthClient) setRefreshErr(err error) {
	c.mu.Lock()
	c.refreshErr = err
	c.mu.Unlock()
}

type testTimeoutError struct{}

func (testTimeoutError) Error() string   { return "i/o timeout" }
func (testTimeoutError) Timeout() bool   { return true }
func (testTimeoutError) Temporary() bool { return true }

func testConfig() Config {
	return Config{
		ClientID:      "client",
		ClientSecret:  "secret",
		RedirectURI:   "https://app.example/quickbooks/callback",
		EncryptionKey: "test-key",
	}
}

type testHarness struct {
	svc    *Service
	clock  *testClock
	oauth  *fakeOAuthClient
	store  *MemoryConnectionStore
	states *MemoryAttemptStore
}

func newTestHarness(opts ...Option) (*testHarness, error) {
	clock := newTestClock()
	oauth := newFakeOAuthClient(clock)
	store := NewMemoryConnectionStore(NewSecretTokenCodec(testSecretProvider{}))
	store.nowFn = clock.Now
	states := NewMemoryAttemptStoreWithLimits(DefaultStateTTL, 16)
	states.nowFn = clock.Now

	base := []Option{
		WithOAuthClient(oauth),
		WithConnectionStore(store),
		WithAttemptStore(states),
		WithSecretProvider(testSecretProvider{}),
		WithClock(clock.Now),
	}
	svc, err := NewService(testConfig(), append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return &testHarness{svc: svc, clock: clock, oauth: oauth, store: store, states: states}, nil
}

func (h *testHarness) connect(ctx context.Context, ownerID string, realmID string) (ConnectionRecord, error) {
	begin, err := h.svc.BeginAuthorization(ctx, BeginAuthorizationRequest{OwnerID: ownerID})
	if err != nil {
		return ConnectionRecord{}, err
	}
	return h.svc.CompleteAuthorization(ctx, CompleteAuthorizationRequest{
		Code:    "code-" + ownerID,
		RealmID: realmID,
		State:   begin.State,
	})
}
