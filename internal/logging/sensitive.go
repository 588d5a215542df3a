package logging

import (
	"regexp"
	"strings"
)

// sensitiveFields contains context field names whose values are never logged.
// Device events sometimes carry credentials alongside the fields the rules read.
var sensitiveFields = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"private_key",
	"credentials",
	"authorization",
	"bearer",
	"cookie",
	"session_id",
	"pin",
	"otp",
	"webhook_url",
}

// MaskedValue is the string used to replace sensitive values.
const MaskedValue = "[REDACTED]"

// maxLoggedString bounds raw string values copied into log records.
const maxLoggedString = 256

// IsSensitiveField reports whether fieldName names or contains a sensitive key.
func IsSensitiveField(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	for _, s := range sensitiveFields {
		if lower == s || strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// MaskSensitiveValue masks value if fieldName is sensitive.
func MaskSensitiveValue(fieldName, value string) string {
	if value == "" || !IsSensitiveField(fieldName) {
		return value
	}
	return MaskedValue
}

// MaskString masks the middle of s, keeping showFirst and showLast characters.
// Short strings are masked completely.
func MaskString(s string, showFirst, showLast int) string {
	if s == "" {
		return s
	}
	if len(s) <= showFirst+showLast+3 {
		return MaskedValue
	}
	return s[:showFirst] + "***" + s[len(s)-showLast:]
}

// sensitivePatterns match secrets embedded in free-form strings.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|passwd|auth)['":\s]*[=:]\s*['"]?([a-zA-Z0-9_\-\.]+)['"]?`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.]+`),
	regexp.MustCompile(`(?i)basic\s+[a-zA-Z0-9+/=]+`),
}

// MaskSensitivePatterns masks embedded secrets in a raw string.
func MaskSensitivePatterns(s string) string {
	for _, p := range sensitivePatterns {
		s = p.ReplaceAllString(s, MaskedValue)
	}
	return s
}

// SafeLogValue returns a version of value that is safe to put in a log
// record. Sensitive fields are redacted; other strings have embedded
// secrets masked and are truncated.
func SafeLogValue(fieldName string, value any) any {
	if value == nil {
		return nil
	}

	if IsSensitiveField(fieldName) {
		if v, ok := value.([]string); ok {
			masked := make([]string, len(v))
			for i := range v {
				masked[i] = MaskedValue
			}
			return masked
		}
		return MaskedValue
	}

	switch v := value.(type) {
	case string:
		v = MaskSensitivePatterns(v)
		if len(v) > maxLoggedString {
			v = v[:maxLoggedString] + "..."
		}
		return v
	case []byte:
		return SafeLogValue(fieldName, string(v))
	default:
		return value
	}
}

// SafeContext returns a copy of an event context map with every value
// passed through SafeLogValue.
func SafeContext(ctx map[string]any) map[string]any {
	if ctx == nil {
		return nil
	}
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		out[k] = SafeLogValue(k, v)
	}
	return out
}
