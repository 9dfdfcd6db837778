package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces secrets in log output.
const RedactedValue = "[REDACTED]"

// fingerprintChars is how much of a persona hash survives masking, enough to
// correlate log lines without exposing the binding.
const fingerprintChars = 10

// sensitiveKeys are always masked by the JSON handler, whatever the caller
// passes. Keys compare case-insensitively.
var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"token":         {},
	"secret":        {},
	"signature":     {},
	"persona":       {},
	"personahash":   {},
	"hash":          {},
}

// IsSensitive reports whether values logged under key are masked.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskValue shortens a persona hash or other identifier to a fingerprint.
// Values too short to fingerprint are fully redacted; empty values pass
// through.
func MaskValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return value
	}
	if len(trimmed) <= fingerprintChars {
		return RedactedValue
	}
	return trimmed[:fingerprintChars] + "…"
}

// MaskField returns an attribute with the value masked when key is sensitive.
func MaskField(key, value string) slog.Attr {
	if IsSensitive(key) {
		return slog.String(key, MaskValue(value))
	}
	return slog.String(key, value)
}

// redactAttr is applied to every attribute by the JSON handler. Tokens and
// secrets are dropped entirely; hashes keep their fingerprint.
func redactAttr(attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) || attr.Value.Kind() != slog.KindString {
		return attr
	}
	value := attr.Value.String()
	if strings.HasSuffix(value, "…") || value == RedactedValue {
		return attr
	}
	switch strings.ToLower(attr.Key) {
	case "persona", "personahash", "hash":
		return slog.String(attr.Key, MaskValue(value))
	default:
		if value == "" {
			return attr
		}
		return slog.String(attr.Key, RedactedValue)
	}
}
