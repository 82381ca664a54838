package provider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrLLMUnavailable is returned once retries are exhausted or the
	// failure is not worth retrying.
	ErrLLMUnavailable = errors.New("language model unavailable")
	ErrInvalidRequest = errors.New("invalid completion request")
)

// HTTPError is a non-200 answer from the completion endpoint.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the status is a rate limit or server error.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// NetworkError wraps transport failures (refused, reset, timeout).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, friendlyProviderError(e.Err))
}

func (e *NetworkError) Unwrap() error { return e.Err }

// parseProviderError extracts a human-readable error from provider API responses.
func parseProviderError(statusCode int, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "message", "error"} {
			if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
		}
	}

	switch statusCode {
	case 401:
		return "authentication failed: check your API key"
	case 403:
		return "access denied: your API key may not have the required permissions"
	case 404:
		return "model or endpoint not found"
	case 429:
		return "rate limited: too many requests, please wait"
	case 500:
		return "internal server error on the provider side"
	case 502, 503:
		return "provider service temporarily unavailable"
	}

	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		s = "empty response body"
	}
	return s
}

// friendlyProviderError converts common network errors to user-friendly messages.
func friendlyProviderError(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return "connection refused (is LM Studio running?)"
	case strings.Contains(msg, "no such host"):
		return "host not found (check the URL)"
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return "connection timed out (model may still be loading)"
	case strings.Contains(msg, "EOF"):
		return "connection closed unexpectedly"
	case strings.Contains(msg, "reset by peer"):
		return "connection reset by server"
	}
	return msg
}
