package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type OAuthClientFactory func(cfg Config) (OAuthClient, error)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// StoreProvider is implemented by repository factories that can hand out the
// stores the service needs.
type StoreProvider interface {
	ConnectionStore() ConnectionStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// TokenCodecReceiver lets a repository factory pick up the service codec
// when the host did not hand it one directly.
type TokenCodecReceiver interface {
	UseTokenCodec(codec TokenCodec)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	secretProvider    SecretProvider
	tokenCodec        TokenCodec
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	attemptStore      AttemptStore
	connectionStore   ConnectionStore
	connectionLocker  ConnectionLocker
	oauthClient       OAuthClient
	oauthFactory      OAuthClientFactory
	clock             Clock
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

// WithSecretProvider sets the cipher used by the default token codec.
func WithSecretProvider(provider SecretProvider) Option {
	return func(b *serviceBuilder) {
		b.secretProvider = provider
	}
}

func WithTokenCodec(codec TokenCodec) Option {
	return func(b *serviceBuilder) {
		b.tokenCodec = codec
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithAttemptStore(store AttemptStore) Option {
	return func(b *serviceBuilder) {
		b.attemptStore = store
	}
}

func WithConnectionStore(store ConnectionStore) Option {
	return func(b *serviceBuilder) {
		b.connectionStore = store
	}
}

func WithConnectionLocker(locker ConnectionLocker) Option {
	return func(b *serviceBuilder) {
		b.connectionLocker = locker
	}
}

func WithOAuthClient(client OAuthClient) Option {
	return func(b *serviceBuilder) {
		b.oauthClient = client
	}
}

// WithOAuthClientFactory builds the OAuth client from the resolved config
// when no client was injected directly.
func WithOAuthClientFactory(factory OAuthClientFactory) Option {
	return func(b *serviceBuilder) {
		b.oauthFactory = factory
	}
}

func WithClock(clock Clock) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("quickbooks", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		clock:           func() time.Time { return time.Now().UTC() },
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return quickBooksErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// NewStaticConfigLoader serves a fixed raw map, mostly for tests and hosts
// that already parsed their configuration.
func NewStaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

// Load decodes the raw layer over defaults. Validation runs after the
// runtime layer is merged, since required keys may only arrive there.
func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw, cfgx.WithDefaults(defaults))
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString := func(target map[string]any, key string, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			target[key] = value
		}
	}
	putDuration := func(target map[string]any, key string, value time.Duration) {
		if includeZero || value != 0 {
			target[key] = value
		}
	}

	putString(layer, "service_name", cfg.ServiceName)
	putString(layer, "client_id", cfg.ClientID)
	putString(layer, "client_secret", cfg.ClientSecret)
	putString(layer, "redirect_uri", cfg.RedirectURI)
	putString(layer, "scope", cfg.Scope)
	putString(layer, "environment", cfg.Environment)
	putString(layer, "encryption_key", cfg.EncryptionKey)
	putString(layer, "retired_encryption_keys", cfg.RetiredEncryptionKeys)

	oauth := map[string]any{}
	putDuration(oauth, "state_ttl", cfg.OAuth.StateTTL)
	if includeZero || cfg.OAuth.StateCapacity != 0 {
		oauth["state_capacity"] = cfg.OAuth.StateCapacity
	}
	if includeZero || cfg.OAuth.RevokeOnDisconnect {
		oauth["revoke_on_disconnect"] = cfg.OAuth.RevokeOnDisconnect
	}
	if len(oauth) > 0 {
		layer["oauth"] = oauth
	}

	refresh := map[string]any{}
	putDuration(refresh, "safety_margin", cfg.Refresh.SafetyMargin)
	putDuration(refresh, "lock_ttl", cfg.Refresh.LockTTL)
	putDuration(refresh, "lead_window", cfg.Refresh.LeadWindow)
	if len(refresh) > 0 {
		layer["refresh"] = refresh
	}

	httpLayer := map[string]any{}
	putDuration(httpLayer, "request_timeout", cfg.HTTP.RequestTimeout)
	if len(httpLayer) > 0 {
		layer["http"] = httpLayer
	}

	api := map[string]any{}
	putString(api, "minor_version", cfg.API.MinorVersion)
	if len(api) > 0 {
		layer["api"] = api
	}
	return layer
}
