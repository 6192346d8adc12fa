package logging

import "strings"

// IsRateLimit reports whether err looks like an upstream 429 (RPC node, oracle, Discord).
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests")
}

// Describe returns a short log-friendly label for err.
func Describe(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsRateLimit(err):
		return "rate limited: " + err.Error()
	default:
		return err.Error()
	}
}
