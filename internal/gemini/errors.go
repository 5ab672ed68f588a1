package gemini

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// ErrorKind is the fixed failure taxonomy upstream policy dispatches on.
// Retry/fallback decisions never look at provider wording, only at the kind.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuth
	KindQuotaExceeded
	KindRateLimited
	KindTransientNetwork
)

// String returns the stable name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth_error"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindRateLimited:
		return "rate_limited"
	case KindTransientNetwork:
		return "transient_network"
	default:
		return "unknown"
	}
}

// Retryable reports whether a local retry can help.
func (k ErrorKind) Retryable() bool {
	return k == KindRateLimited || k == KindTransientNetwork
}

// CallError is a provider failure normalized into the taxonomy.
type CallError struct {
	Kind    ErrorKind
	Message string
	err     error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CallError) Unwrap() error { return e.err }

// AsCallError extracts a CallError from an error chain.
func AsCallError(err error) (*CallError, bool) {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Classify normalizes a provider error into the taxonomy. Structured API
// error codes are mapped first; substring sniffing against the raw message
// is the last-resort fallback for errors the SDK did not type.
func Classify(err error) *CallError {
	if err == nil {
		return nil
	}
	if ce, ok := AsCallError(err); ok {
		return ce
	}

	msg := err.Error()
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &CallError{Kind: classifyCode(apiErr.Code, apiErr.Status, msg), Message: msg, err: err}
	}
	return &CallError{Kind: classifyMessage(msg), Message: msg, err: err}
}

// classifyCode maps a structured HTTP-style code plus status to a kind.
func classifyCode(code int, status, msg string) ErrorKind {
	quotaWorded := containsAny(msg+" "+status, "resource_exhausted", "resource exhausted", "quota")
	switch {
	case code == 429:
		// Both RPM throttling and hard quota exhaustion arrive as 429;
		// only the latter justifies switching models.
		if quotaWorded {
			return KindQuotaExceeded
		}
		return KindRateLimited
	case code == 401:
		return KindAuth
	case code == 403:
		if quotaWorded {
			return KindQuotaExceeded
		}
		return KindAuth
	case code == 400 && containsAny(msg, "api key"):
		return KindAuth
	case code >= 500 && code <= 599:
		return KindTransientNetwork
	}
	return classifyMessage(msg + " " + status)
}

// classifyMessage matches known substrings case-insensitively. Quota beats
// rate-limit because quota messages usually contain "429" too and fallback
// is the stronger recovery.
func classifyMessage(msg string) ErrorKind {
	switch {
	case containsAny(msg, "resource_exhausted", "resource exhausted", "quota"):
		return KindQuotaExceeded
	case containsAny(msg, "429", "rate limit", "too many requests"):
		return KindRateLimited
	case containsAny(msg, "api key", "unauthorized", "unauthenticated", "permission denied", "401", "403"):
		return KindAuth
	case containsAny(msg, "unavailable", "deadline exceeded", "internal error", "connection", "network", "timeout", "temporarily", "500", "502", "503", "504", "overloaded"):
		return KindTransientNetwork
	}
	return KindUnknown
}

func containsAny(s string, subs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
