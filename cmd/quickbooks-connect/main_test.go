package main

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-quickbooks/core"
	"github.com/goliatone/go-quickbooks/security"
	sqlstore "github.com/goliatone/go-quickbooks/store/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func TestNewRepositoryFactory_CachesOnlyWithoutRedis(t *testing.T) {
	single := buildFactoryStores(t, settings{})
	if _, ok := single.ConnectionStore().(*sqlstore.CachedConnectionStore); !ok {
		t.Fatalf("expected cached connection store for a single instance, got %T", single.ConnectionStore())
	}

	shared := buildFactoryStores(t, settings{RedisAddr: "localhost:6379"})
	if _, ok := shared.ConnectionStore().(*sqlstore.CachedConnectionStore); ok {
		t.Fatalf("expected uncached connection store when redis coordinates instances")
	}
	if shared.ConnectionStore() != core.ConnectionStore(shared.TokenStore()) {
		t.Fatalf("expected connection reads to hit the sql store directly")
	}
}

func buildFactoryStores(t *testing.T, s settings) *sqlstore.RepositoryFactory {
	t.Helper()
	sqlDB, err := sql.Open("sqlite3", fmt.Sprintf("file:quickbooks-main-%d?mode=memory&cache=shared", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ring, err := security.ParseKeyring("app-secret", nil)
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	factory, err := newRepositoryFactory(s)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	factory.UseTokenCodec(core.NewSecretTokenCodec(ring))
	if _, err := factory.BuildStores(db); err != nil {
		t.Fatalf("build stores: %v", err)
	}
	return factory
}
