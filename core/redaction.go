package core

import "strings"

const RedactedValue = "[REDACTED]"

// RedactSensitiveMap returns a copy of metadata with credential-like keys
// replaced. Nested maps and slices are walked.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(metadata)
}

func redactSensitiveMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactSensitiveValue(value)
	}
	return target
}

func redactSensitiveValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactSensitiveValue(typed[i])
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(typed))
		for i := range typed {
			out[i] = redactSensitiveMap(typed[i])
		}
		return out
	case string:
		return redactAuthorizationValue(typed)
	default:
		return value
	}
}

// redactAuthorizationValue masks header-shaped values such as "Bearer eyJ..."
// that end up under neutral keys like "header" or "detail".
func redactAuthorizationValue(value string) string {
	scheme, _, found := strings.Cut(strings.TrimSpace(value), " ")
	if !found {
		return value
	}
	switch strings.ToLower(scheme) {
	case "bearer", "basic":
		return scheme + " " + RedactedValue
	default:
		return value
	}
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityKey(key) {
		return false
	}
	sensitiveTokens := []string{
		"password",
		"secret",
		"token",
		"authorization",
		"code",
		"state",
		"encryption_key",
		"refresh",
		"credential",
		"assertion",
	}
	for _, token := range sensitiveTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

func isTraceabilityKey(key string) bool {
	switch key {
	case "owner_id",
		"realm_id",
		"environment",
		"token_state",
		"status_code",
		"error_code",
		"text_code",
		"request_id",
		"intuit_tid",
		"fault_code":
		return true
	default:
		return false
	}
}
