package deadletter

import "strings"

// maxStringLen bounds every stored string argument; dead-letter entries
// are diagnostics, not payload archives.
const maxStringLen = 256

const redactedPlaceholder = "[REDACTED]"

// sensitiveMarkers flag argument names whose values must never be stored
// at rest in the dead-letter queue.
var sensitiveMarkers = []string{
	"password", "secret", "token", "key", "credential", "auth",
}

// SanitizeArgs returns a copy of args safe for at-rest storage: values
// under sensitive names are redacted and long strings truncated. Nested
// maps and slices are walked recursively.
func SanitizeArgs(args map[string]interface{}) map[string]interface{} {
	if args == nil {
		return nil
	}

	out := make(map[string]interface{}, len(args))
	for name, value := range args {
		if isSensitive(name) {
			out[name] = redactedPlaceholder
			continue
		}
		out[name] = sanitizeValue(value)
	}
	return out
}

func sanitizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return Truncate(v, maxStringLen)
	case map[string]interface{}:
		return SanitizeArgs(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return value
	}
}

func isSensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Truncate bounds s to max runes, marking the cut. The cut never lands
// inside a multi-byte character, so the result stays valid UTF-8.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "...(truncated)"
}
