package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces revealed secrets and key material in log output.
const RedactedValue = "[REDACTED]"

// sensitivePrefixes match attribute keys that carry secret preimages or key
// material. Commitments (secretHash*) are public and stay readable.
var sensitivePrefixes = []string{"secret", "passphrase", "privatekey"}

// IsSensitive reports whether values logged under key must be masked.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if strings.HasPrefix(normalized, "secrethash") {
		return false
	}
	for _, prefix := range sensitivePrefixes {
		if strings.HasPrefix(normalized, prefix) {
			return true
		}
	}
	return false
}

// MaskField returns a string attribute, redacting non-empty sensitive values.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) != "" && IsSensitive(key) {
		return slog.String(key, RedactedValue)
	}
	return slog.String(key, value)
}

// MaskAttributes renders an event attribute map as log attributes sorted by
// key, masking sensitive entries.
func MaskAttributes(attributes map[string]string) []slog.Attr {
	keys := make([]string, 0, len(attributes))
	for key := range attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]slog.Attr, 0, len(keys))
	for _, key := range keys {
		out = append(out, MaskField(key, attributes[key]))
	}
	return out
}
