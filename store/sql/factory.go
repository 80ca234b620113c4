package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-quickbooks/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type FactoryOption func(*RepositoryFactory)

// WithTokenCodec sets the codec explicitly. Without it the factory waits for
// the service to hand over its codec before building stores.
func WithTokenCodec(codec core.TokenCodec) FactoryOption {
	return func(f *RepositoryFactory) {
		f.codec = codec
	}
}

// WithCacheService wraps the connection store in a CachedConnectionStore.
func WithCacheService(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cacheService = cacheService
	}
}

type RepositoryFactory struct {
	db           *bun.DB
	codec        core.TokenCodec
	cacheService repositorycache.CacheService

	tokenStore      *ConnectionStore
	connectionStore core.ConnectionStore
	attemptStore    *AttemptStore
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(factory)
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// UseTokenCodec adopts the service codec unless one was configured.
func (f *RepositoryFactory) UseTokenCodec(codec core.TokenCodec) {
	if f == nil || f.codec != nil {
		return
	}
	f.codec = codec
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.connectionStore != nil && f.attemptStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) ConnectionStore() core.ConnectionStore {
	if f == nil {
		return nil
	}
	return f.connectionStore
}

func (f *RepositoryFactory) AttemptStore() core.AttemptStore {
	if f == nil || f.attemptStore == nil {
		return nil
	}
	return f.attemptStore
}

// TokenStore returns the uncached SQL store, for key usage reports.
func (f *RepositoryFactory) TokenStore() *ConnectionStore {
	if f == nil {
		return nil
	}
	return f.tokenStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	if f.codec == nil {
		return fmt.Errorf("sqlstore: token codec is required")
	}
	tokenStore, err := NewConnectionStore(f.db, f.codec)
	if err != nil {
		return err
	}
	f.tokenStore = tokenStore
	f.connectionStore = tokenStore
	if f.cacheService != nil {
		cached, err := NewCachedConnectionStore(tokenStore, f.cacheService)
		if err != nil {
			return err
		}
		f.connectionStore = cached
	}

	attemptStore, err := NewAttemptStore(f.db)
	if err != nil {
		return err
	}
	f.attemptStore = attemptStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
