package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultScope               = "com.intuit.quickbooks.accounting"
	DefaultStateTTL            = 10 * time.Minute
	DefaultStateCapacity       = 10000
	DefaultRefreshSafetyMargin = 60 * time.Second
	DefaultRefreshLockTTL      = 30 * time.Second
	DefaultRefreshLeadWindow   = 24 * time.Hour
	DefaultRequestTimeout      = 30 * time.Second
	DefaultMinorVersion        = "75"
)

type OAuthConfig struct {
	StateTTL           time.Duration `koanf:"state_ttl" mapstructure:"state_ttl"`
	StateCapacity      int           `koanf:"state_capacity" mapstructure:"state_capacity"`
	RevokeOnDisconnect bool          `koanf:"revoke_on_disconnect" mapstructure:"revoke_on_disconnect"`
}

type RefreshConfig struct {
	SafetyMargin time.Duration `koanf:"safety_margin" mapstructure:"safety_margin"`
	LockTTL      time.Duration `koanf:"lock_ttl" mapstructure:"lock_ttl"`
	LeadWindow   time.Duration `koanf:"lead_window" mapstructure:"lead_window"`
}

type HTTPConfig struct {
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
}

type APIConfig struct {
	MinorVersion string `koanf:"minor_version" mapstructure:"minor_version"`
}

type Config struct {
	ServiceName           string        `koanf:"service_name" mapstructure:"service_name"`
	ClientID              string        `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret          string        `koanf:"client_secret" mapstructure:"client_secret"`
	RedirectURI           string        `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	Scope                 string        `koanf:"scope" mapstructure:"scope"`
	Environment           string        `koanf:"environment" mapstructure:"environment"`
	EncryptionKey         string        `koanf:"encryption_key" mapstructure:"encryption_key"`
	RetiredEncryptionKeys string        `koanf:"retired_encryption_keys" mapstructure:"retired_encryption_keys"`
	OAuth                 OAuthConfig   `koanf:"oauth" mapstructure:"oauth"`
	Refresh               RefreshConfig `koanf:"refresh" mapstructure:"refresh"`
	HTTP                  HTTPConfig    `koanf:"http" mapstructure:"http"`
	API                   APIConfig     `koanf:"api" mapstructure:"api"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "quickbooks",
		Scope:       DefaultScope,
		Environment: string(EnvironmentSandbox),
		OAuth: OAuthConfig{
			StateTTL:      DefaultStateTTL,
			StateCapacity: DefaultStateCapacity,
		},
		Refresh: RefreshConfig{
			SafetyMargin: DefaultRefreshSafetyMargin,
			LockTTL:      DefaultRefreshLockTTL,
			LeadWindow:   DefaultRefreshLeadWindow,
		},
		HTTP: HTTPConfig{RequestTimeout: DefaultRequestTimeout},
		API:  APIConfig{MinorVersion: DefaultMinorVersion},
	}
}

// Validate checks the keys every deployment needs. The encryption key is
// checked by the service because hosts may inject their own codec instead.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("core: client_id is required")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		return fmt.Errorf("core: client_secret is required")
	}
	if strings.TrimSpace(c.RedirectURI) == "" {
		return fmt.Errorf("core: redirect_uri is required")
	}
	if parsed, err := url.Parse(c.RedirectURI); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("core: redirect_uri %q is invalid", c.RedirectURI)
	}
	if len(c.Scopes()) == 0 {
		return fmt.Errorf("core: scope is required")
	}
	if _, err := ParseEnvironment(c.Environment); err != nil {
		return err
	}
	if c.OAuth.StateTTL < 0 || c.Refresh.SafetyMargin < 0 || c.HTTP.RequestTimeout < 0 {
		return fmt.Errorf("core: durations must not be negative")
	}
	return nil
}

// RetiredKeys splits retired_encryption_keys, a comma separated list of
// "kid:version:secret" keys that may still decrypt stored tokens but never
// encrypt new ones.
func (c Config) RetiredKeys() []string {
	out := []string{}
	for _, entry := range strings.Split(c.RetiredEncryptionKeys, ",") {
		if trimmed := strings.TrimSpace(entry); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Scopes splits the space delimited scope setting.
func (c Config) Scopes() []string {
	return strings.Fields(c.Scope)
}

func (c Config) ResolvedEnvironment() Environment {
	env, err := ParseEnvironment(c.Environment)
	if err != nil {
		return EnvironmentSandbox
	}
	return env
}

func (c Config) stateTTL() time.Duration {
	if c.OAuth.StateTTL <= 0 {
		return DefaultStateTTL
	}
	return c.OAuth.StateTTL
}

func (c Config) safetyMargin() time.Duration {
	if c.Refresh.SafetyMargin <= 0 {
		return DefaultRefreshSafetyMargin
	}
	return c.Refresh.SafetyMargin
}

func (c Config) lockTTL() time.Duration {
	if c.Refresh.LockTTL <= 0 {
		return DefaultRefreshLockTTL
	}
	return c.Refresh.LockTTL
}

func (c Config) leadWindow() time.Duration {
	if c.Refresh.LeadWindow <= 0 {
		return DefaultRefreshLeadWindow
	}
	return c.Refresh.LeadWindow
}

func (c Config) requestTimeout() time.Duration {
	if c.HTTP.RequestTimeout <= 0 {
		return DefaultRequestTimeout
	}
	return c.HTTP.RequestTimeout
}
