package quickbooks

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-quickbooks/core"
	"github.com/goliatone/go-quickbooks/providers/intuit"
	"github.com/goliatone/go-quickbooks/security"
)

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type ConnectionStore = core.ConnectionStore
type AttemptStore = core.AttemptStore
type ConnectionLocker = core.ConnectionLocker
type TokenCodec = core.TokenCodec
type SecretProvider = core.SecretProvider
type OAuthClient = core.OAuthClient
type RawConfigLoader = core.RawConfigLoader

type ConnectionRecord = core.ConnectionRecord
type ConnectionStatus = core.ConnectionStatus
type AccessGrant = core.AccessGrant
type Operation = core.Operation

type BeginAuthorizationRequest = core.BeginAuthorizationRequest
type BeginAuthorizationResponse = core.BeginAuthorizationResponse
type CompleteAuthorizationRequest = core.CompleteAuthorizationRequest
type RefreshSweepRequest = core.RefreshSweepRequest
type RefreshSweepResult = core.RefreshSweepResult

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorMapper        = core.WithErrorMapper
	WithSecretProvider     = core.WithSecretProvider
	WithTokenCodec         = core.WithTokenCodec
	WithPersistenceClient  = core.WithPersistenceClient
	WithRepositoryFactory  = core.WithRepositoryFactory
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithAttemptStore       = core.WithAttemptStore
	WithConnectionStore    = core.WithConnectionStore
	WithConnectionLocker   = core.WithConnectionLocker
	WithOAuthClient        = core.WithOAuthClient
	WithOAuthClientFactory = core.WithOAuthClientFactory
	WithClock              = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewService builds a service without any default wiring; callers provide the
// OAuth client and token codec through options.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

// NewEnvConfigLoader reads the QUICKBOOKS_* environment variables.
func NewEnvConfigLoader() RawConfigLoader {
	return core.NewEnvConfigLoader()
}

// ResolveConfig merges defaults, the raw layer from loader (if any) and the
// runtime config, then validates the result.
func ResolveConfig(ctx context.Context, loader RawConfigLoader, runtime Config) (Config, error) {
	defaults := core.DefaultConfig()
	loaded, err := core.NewCfgxConfigProvider(loader).Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return core.GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
}

// Setup resolves the configuration and builds a service talking to Intuit,
// with tokens encrypted by a keyring derived from encryption_key and
// retired_encryption_keys. Options passed by the caller win over the defaults.
func Setup(ctx context.Context, loader RawConfigLoader, runtime Config, opts ...Option) (*Service, error) {
	cfg, err := ResolveConfig(ctx, loader, runtime)
	if err != nil {
		return nil, err
	}

	defaults := []Option{core.WithOAuthClientFactory(intuit.NewFactory())}
	if strings.TrimSpace(cfg.EncryptionKey) != "" {
		keyring, err := security.ParseKeyring(cfg.EncryptionKey, cfg.RetiredKeys())
		if err != nil {
			return nil, fmt.Errorf("quickbooks: encryption key: %w", err)
		}
		defaults = append(defaults, core.WithSecretProvider(keyring))
	}
	return core.NewService(cfg, append(defaults, opts...)...)
}
