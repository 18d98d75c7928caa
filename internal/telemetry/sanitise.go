package telemetry

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

var (
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|token|secret|password|passwd|pwd|auth|authorization)[\s:=]+["']?([^\s"'&]+)`)

	sensitiveNames = []string{"key", "token", "secret", "password", "passwd", "auth", "credential"}
)

func isSensitiveName(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range sensitiveNames {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// SanitiseURL strips userinfo and redacts sensitive query parameters
func SanitiseURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Scheme == "" {
		return "[INVALID_URL]"
	}

	parsedURL.User = nil

	if parsedURL.RawQuery != "" {
		query := parsedURL.Query()
		for key := range query {
			if isSensitiveName(key) {
				query.Set(key, redacted)
			}
		}
		parsedURL.RawQuery = query.Encode()
	}

	return parsedURL.String()
}

// SanitiseArguments renders tool arguments as JSON with sensitive values redacted
func SanitiseArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}

	jsonBytes, err := json.Marshal(sanitiseMap(args))
	if err != nil {
		return `{"error": "failed to serialise arguments"}`
	}
	return string(jsonBytes)
}

func sanitiseMap(m map[string]any) map[string]any {
	sanitised := make(map[string]any, len(m))
	for key, value := range m {
		if isSensitiveName(key) {
			sanitised[key] = redacted
			continue
		}

		switch v := value.(type) {
		case map[string]any:
			sanitised[key] = sanitiseMap(v)
		case string:
			sanitised[key] = sanitiseString(v)
		default:
			sanitised[key] = value
		}
	}
	return sanitised
}

func sanitiseString(s string) string {
	if strings.Contains(s, "://") {
		if parsed, err := url.Parse(s); err == nil && parsed.Scheme != "" {
			return SanitiseURL(s)
		}
	}
	if apiKeyPattern.MatchString(s) {
		return apiKeyPattern.ReplaceAllString(s, "$1="+redacted)
	}
	return s
}

// TruncateString truncates a string to a maximum length with ellipsis
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
