package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvConfigLoader reads QUICKBOOKS_* variables into the raw config layer.
// QUICKBOOKS_BASE_URL accepts "development" for sandbox and "production".
type EnvConfigLoader struct {
	Prefix string
	Lookup func(key string) (string, bool)
}

func NewEnvConfigLoader() EnvConfigLoader {
	return EnvConfigLoader{Prefix: "QUICKBOOKS_", Lookup: os.LookupEnv}
}

type envValueKind int

const (
	envString envValueKind = iota
	envDuration
	envInt
	envBool
)

var envConfigKeys = []struct {
	env  string
	path []string
	kind envValueKind
}{
	{"SERVICE_NAME", []string{"service_name"}, envString},
	{"CLIENT_ID", []string{"client_id"}, envString},
	{"CLIENT_SECRET", []string{"client_secret"}, envString},
	{"REDIRECT_URI", []string{"redirect_uri"}, envString},
	{"SCOPE", []string{"scope"}, envString},
	{"ENVIRONMENT", []string{"environment"}, envString},
	{"BASE_URL", []string{"environment"}, envString},
	{"ENCRYPTION_KEY", []string{"encryption_key"}, envString},
	{"RETIRED_ENCRYPTION_KEYS", []string{"retired_encryption_keys"}, envString},
	{"STATE_TTL", []string{"oauth", "state_ttl"}, envDuration},
	{"STATE_CAPACITY", []string{"oauth", "state_capacity"}, envInt},
	{"REVOKE_ON_DISCONNECT", []string{"oauth", "revoke_on_disconnect"}, envBool},
	{"REFRESH_SAFETY_MARGIN", []string{"refresh", "safety_margin"}, envDuration},
	{"REFRESH_LOCK_TTL", []string{"refresh", "lock_ttl"}, envDuration},
	{"REFRESH_LEAD_WINDOW", []string{"refresh", "lead_window"}, envDuration},
	{"REQUEST_TIMEOUT", []string{"http", "request_timeout"}, envDuration},
	{"MINOR_VERSION", []string{"api", "minor_version"}, envString},
}

func (l EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	prefix := l.Prefix
	if prefix == "" {
		prefix = "QUICKBOOKS_"
	}

	raw := map[string]any{}
	for _, entry := range envConfigKeys {
		value, ok := lookup(prefix + entry.env)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		parsed, err := parseEnvValue(entry.kind, strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("core: %s%s: %w", prefix, entry.env, err)
		}
		setNested(raw, entry.path, parsed)
	}
	return raw, nil
}

func parseEnvValue(kind envValueKind, value string) (any, error) {
	switch kind {
	case envDuration:
		return time.ParseDuration(value)
	case envInt:
		return strconv.Atoi(value)
	case envBool:
		return strconv.ParseBool(value)
	default:
		return value, nil
	}
}

func setNested(target map[string]any, path []string, value any) {
	current := target
	for _, key := range path[:len(path)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
	// QUICKBOOKS_ENVIRONMENT wins over the legacy QUICKBOOKS_BASE_URL.
	if _, exists := current[path[len(path)-1]]; exists {
		return
	}
	current[path[len(path)-1]] = value
}

var _ RawConfigLoader = EnvConfigLoader{}
