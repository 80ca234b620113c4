package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config            Config
	environment       Environment
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	tokenCodec        TokenCodec
	persistenceClient any
	repositoryFactory any
	attemptStore      AttemptStore
	connectionStore   ConnectionStore
	connectionLocker  ConnectionLocker
	oauthClient       OAuthClient
	now               Clock
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorMapper       ErrorMapper
	TokenCodec        TokenCodec
	PersistenceClient any
	RepositoryFactory any
	AttemptStore      AttemptStore
	ConnectionStore   ConnectionStore
	ConnectionLocker  ConnectionLocker
	OAuthClient       OAuthClient
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("quickbooks", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("quickbooks"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.tokenCodec == nil && builder.secretProvider != nil {
		builder.tokenCodec = NewSecretTokenCodec(builder.secretProvider)
	}

	if builder.connectionStore == nil && builder.repositoryFactory != nil {
		if receiver, ok := builder.repositoryFactory.(TokenCodecReceiver); ok && builder.tokenCodec != nil {
			receiver.UseTokenCodec(builder.tokenCodec)
		}
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			stores, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if stores != nil {
				builder.connectionStore = stores.ConnectionStore()
			}
		} else if stores, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.connectionStore = stores.ConnectionStore()
		}
	}
	if builder.attemptStore == nil && builder.repositoryFactory != nil {
		if stores, ok := builder.repositoryFactory.(interface{ AttemptStore() AttemptStore }); ok {
			builder.attemptStore = stores.AttemptStore()
		}
	}
	if builder.connectionStore == nil {
		if builder.tokenCodec == nil {
			return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: token codec is required: set encryption_key or inject a codec"))
		}
		builder.connectionStore = NewMemoryConnectionStore(builder.tokenCodec)
	}
	if builder.attemptStore == nil {
		builder.attemptStore = NewMemoryAttemptStoreWithLimits(finalConfig.stateTTL(), finalConfig.OAuth.StateCapacity)
	}
	if builder.connectionLocker == nil {
		builder.connectionLocker = NewMemoryConnectionLocker()
	}
	if builder.oauthClient == nil && builder.oauthFactory != nil {
		client, buildErr := builder.oauthFactory(finalConfig)
		if buildErr != nil {
			return nil, mapBuildError(builder.errorMapper, buildErr)
		}
		builder.oauthClient = client
	}
	if builder.oauthClient == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: oauth client is required"))
	}

	return &Service{
		config:            finalConfig,
		environment:       finalConfig.ResolvedEnvironment(),
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorMapper:       builder.errorMapper,
		tokenCodec:        builder.tokenCodec,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		attemptStore:      builder.attemptStore,
		connectionStore:   builder.connectionStore,
		connectionLocker:  builder.connectionLocker,
		oauthClient:       builder.oauthClient,
		now:               builder.clock,
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Environment() Environment {
	if s == nil {
		return EnvironmentSandbox
	}
	return s.environment
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorMapper:       s.errorMapper,
		TokenCodec:        s.tokenCodec,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		AttemptStore:      s.attemptStore,
		ConnectionStore:   s.connectionStore,
		ConnectionLocker:  s.connectionLocker,
		OAuthClient:       s.oauthClient,
	}
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) clock() time.Time {
	if s == nil || s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

// withRequestTimeout bounds a single outbound call.
func (s *Service) withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.requestTimeout())
}

func (s *Service) loadConnection(ctx context.Context, ownerID string) (ConnectionRecord, error) {
	if s.connectionStore == nil {
		return ConnectionRecord{}, fmt.Errorf("core: connection store is not configured")
	}
	record, found, err := s.connectionStore.FindByOwner(ctx, ownerID)
	if err != nil {
		return ConnectionRecord{}, err
	}
	if !found || !record.HasTokens() {
		return ConnectionRecord{}, NewNotConnectedError(ownerID)
	}
	return record, nil
}

func normalizeOwnerID(ownerID string) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", newBadInputError("owner id is required")
	}
	return ownerID, nil
}
