package quickbooks_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	quickbooks "github.com/goliatone/go-quickbooks"
	"github.com/goliatone/go-quickbooks/accounting"
	"github.com/goliatone/go-quickbooks/core"
	quickbooksmigrations "github.com/goliatone/go-quickbooks/migrations"
	"github.com/goliatone/go-quickbooks/providers/intuit"
	sqlstore "github.com/goliatone/go-quickbooks/store/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type compositionPersistenceConfig struct {
	dsn string
}

func (compositionPersistenceConfig) GetDebug() bool                { return false }
func (compositionPersistenceConfig) GetDriver() string             { return "sqlite3" }
func (c compositionPersistenceConfig) GetServer() string           { return c.dsn }
func (compositionPersistenceConfig) GetPingTimeout() time.Duration { return time.Second }
func (compositionPersistenceConfig) GetOtelIdentifier() string     { return "go-quickbooks-composition" }

// fakeIntuit serves the token endpoint and a single customer resource.
type fakeIntuit struct {
	server        *httptest.Server
	exchanges     atomic.Int32
	refreshes     atomic.Int32
	apiCalls      atomic.Int32
	currentAccess atomic.Value
}

func newFakeIntuit(t *testing.T) *fakeIntuit {
	t.Helper()
	f := &fakeIntuit{}
	f.currentAccess.Store("")
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/v1/tokens/bearer", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var access, refresh string
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			n := f.exchanges.Add(1)
			access, refresh = fmt.Sprintf("access-code-%d", n), fmt.Sprintf("refresh-code-%d", n)
		case "refresh_token":
			n := f.refreshes.Add(1)
			access, refresh = fmt.Sprintf("access-refresh-%d", n), fmt.Sprintf("refresh-refresh-%d", n)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"unsupported_grant_type"}`))
			return
		}
		f.currentAccess.Store(access)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":               access,
			"refresh_token":              refresh,
			"token_type":                 "bearer",
			"expires_in":                 3600,
			"x_refresh_token_expires_in": 8726400,
		})
	})
	mux.HandleFunc("/v3/company/9130/customer/58", func(w http.ResponseWriter, r *http.Request) {
		f.apiCalls.Add(1)
		expected := "Bearer " + f.currentAccess.Load().(string)
		if r.Header.Get("Authorization") != expected {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"Fault":{"Error":[{"Message":"AuthenticationFailed","code":"3200"}],"type":"AUTHENTICATION"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Customer":{"Id":"58","SyncToken":"0","DisplayName":"Amy's Bird Sanctuary","Active":true}}`))
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeIntuit) expireAccessToken() {
	f.currentAccess.Store("rotated-elsewhere")
}

func TestComposition_ConnectCallAndRefreshThroughSQLStore(t *testing.T) {
	ctx := context.Background()
	intuitServer := newFakeIntuit(t)
	client := newCompositionClient(t)

	factory := sqlstore.NewRepositoryFactory()
	svc, err := quickbooks.Setup(ctx, nil, quickbooks.Config{
		ClientID:      "client-123",
		ClientSecret:  "secret-456",
		RedirectURI:   "https://app.example/quickbooks/callback",
		EncryptionKey: "primary:1:composition-secret",
	},
		quickbooks.WithPersistenceClient(client),
		quickbooks.WithRepositoryFactory(factory),
		quickbooks.WithOAuthClientFactory(intuit.NewFactory(intuit.WithEndpoints(
			intuitServer.server.URL+"/connect/oauth2",
			intuitServer.server.URL+"/oauth2/v1/tokens/bearer",
			intuitServer.server.URL+"/v2/oauth2/tokens/revoke",
		))),
	)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	begin, err := svc.BeginAuthorization(ctx, quickbooks.BeginAuthorizationRequest{OwnerID: "u1"})
	if err != nil {
		t.Fatalf("begin authorization: %v", err)
	}
	if !strings.HasPrefix(begin.URL, intuitServer.server.URL+"/connect/oauth2?") {
		t.Fatalf("unexpected authorization url %q", begin.URL)
	}

	record, err := svc.CompleteAuthorization(ctx, quickbooks.CompleteAuthorizationRequest{
		Code:    "auth-code",
		RealmID: "9130",
		State:   begin.State,
	})
	if err != nil {
		t.Fatalf("complete authorization: %v", err)
	}
	if record.OwnerID != "u1" || record.RealmID != "9130" {
		t.Fatalf("unexpected connection %#v", record)
	}

	var rawAccess string
	if err := client.DB().NewRaw(
		"SELECT access_token FROM quickbooks_tokens WHERE owner_id = ?", "u1",
	).Scan(ctx, &rawAccess); err != nil {
		t.Fatalf("read raw token row: %v", err)
	}
	if rawAccess == "" || rawAccess == "access-code-1" {
		t.Fatalf("expected ciphertext at rest, got %q", rawAccess)
	}

	customers, err := quickbooks.NewCustomerClient(svc, accounting.WithBaseURL(intuitServer.server.URL))
	if err != nil {
		t.Fatalf("customer client: %v", err)
	}
	customer, err := customers.GetCustomer(ctx, "u1", "58")
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if customer.DisplayName != "Amy's Bird Sanctuary" {
		t.Fatalf("unexpected customer %#v", customer)
	}
	if intuitServer.refreshes.Load() != 0 {
		t.Fatalf("expected no refresh while the access token is live")
	}

	intuitServer.expireAccessToken()
	if _, err := customers.GetCustomer(ctx, "u1", "58"); err != nil {
		t.Fatalf("get customer after rejection: %v", err)
	}
	if intuitServer.refreshes.Load() != 1 {
		t.Fatalf("expected one forced refresh after a 401, got %d", intuitServer.refreshes.Load())
	}
	if intuitServer.apiCalls.Load() != 3 {
		t.Fatalf("expected the rejected call to be retried once, got %d api calls", intuitServer.apiCalls.Load())
	}

	status, err := svc.ConnectionStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Connected || status.State != core.TokenStateValid {
		t.Fatalf("unexpected status %#v", status)
	}

	if err := svc.Disconnect(ctx, "u1"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := svc.Disconnect(ctx, "u1"); err != nil {
		t.Fatalf("second disconnect should be a no-op: %v", err)
	}
	if _, err := svc.GetValidAccessToken(ctx, "u1"); !core.IsNotConnected(err) {
		t.Fatalf("expected not connected after disconnect, got %v", err)
	}
}

func TestSetup_RejectsMissingEncryptionKey(t *testing.T) {
	_, err := quickbooks.Setup(context.Background(), core.NewStaticConfigLoader(map[string]any{
		"client_id":     "client-123",
		"client_secret": "secret-456",
		"redirect_uri":  "https://app.example/quickbooks/callback",
	}), quickbooks.Config{})
	if err == nil {
		t.Fatalf("expected setup without an encryption key or codec to fail")
	}
}

func TestResolveConfig_LayersLoaderUnderRuntime(t *testing.T) {
	cfg, err := quickbooks.ResolveConfig(context.Background(), core.NewStaticConfigLoader(map[string]any{
		"client_id":     "from-loader",
		"client_secret": "secret-456",
		"redirect_uri":  "https://app.example/quickbooks/callback",
		"environment":   "production",
	}), quickbooks.Config{ClientID: "from-runtime"})
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if cfg.ClientID != "from-runtime" {
		t.Fatalf("expected runtime layer to win, got %q", cfg.ClientID)
	}
	if cfg.ResolvedEnvironment() != core.EnvironmentProduction {
		t.Fatalf("expected production from the loader, got %q", cfg.Environment)
	}
	if cfg.API.MinorVersion == "" {
		t.Fatalf("expected defaults to fill the minor version")
	}
}

func newCompositionClient(t *testing.T) *persistence.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:quickbooks-composition-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano())
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	client, err := persistence.New(compositionPersistenceConfig{dsn: dsn}, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	if err := quickbooksmigrations.Apply(context.Background(), client, quickbooksmigrations.DialectSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return client
}
