package core

import (
	"net/url"
	"strings"
)

const RedactedValue = "[REDACTED]"

// exactSensitiveKeys are OAuth parameters that are only sensitive under
// their exact name.
var exactSensitiveKeys = map[string]struct{}{
	"code":  {},
	"state": {},
}

var sensitiveKeyFragments = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"api_key",
	"apikey",
	"access_key",
	"refresh",
	"credential",
	"signature",
}

// traceabilityKeys name identifiers that must survive redaction even when
// they contain a sensitive fragment.
var traceabilityKeys = map[string]struct{}{
	"provider_id":            {},
	"user_id":                {},
	"org_id":                 {},
	"state_key":              {},
	"credentials_key":        {},
	"credentials_ready":      {},
	"credentials_expires_at": {},
	"event_type":             {},
	"trace_id":               {},
	"request_id":             {},
}

// RedactSensitiveMap returns a copy of metadata with secrets masked. Nested
// maps and slices are walked; URL strings have their sensitive query
// parameters masked.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	target := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactValue(value)
	}
	return target
}

func redactValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return RedactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = redactValue(item)
		}
		return out
	case string:
		return RedactURL(typed)
	default:
		return value
	}
}

// RedactURL masks sensitive query parameters of an absolute URL. Other
// strings are returned unchanged.
func RedactURL(raw string) string {
	if !strings.Contains(raw, "://") || !strings.Contains(raw, "?") {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.RawQuery == "" {
		return raw
	}
	query := parsed.Query()
	changed := false
	for key := range query {
		if shouldRedactKey(key) {
			query.Set(key, RedactedValue)
			changed = true
		}
	}
	if !changed {
		return raw
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	if _, ok := traceabilityKeys[key]; ok {
		return false
	}
	if _, ok := exactSensitiveKeys[key]; ok {
		return true
	}
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(key, fragment) {
			return true
		}
	}
	return false
}
