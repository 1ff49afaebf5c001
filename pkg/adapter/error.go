package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// Failure codes shared across adapters. Backend-specific codes are passed
// through unchanged.
const (
	CodeUnknown       = "unknown"
	CodeMissingAPIKey = "missing_api_key"
	CodeRateLimit     = "rate_limit_exceeded"
	CodeTimeout       = "timeout"
	CodeMalformed     = "malformed_response"
	CodeEmptyContent  = "empty_content"
)

// Failure is a provider-scoped error. It never carries state from sibling
// adapters.
type Failure struct {
	Provider  string `json:"provider"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"isRetryable"`
	Status    int    `json:"status,omitempty"`
	Err       error  `json:"-"`
}

func (f *Failure) Error() string {
	if f == nil {
		return "adapter failure"
	}
	if f.Provider == "" {
		return f.Message
	}
	return fmt.Sprintf("%s: %s", f.Provider, f.Message)
}

func (f *Failure) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Err
}

// NewFailure builds a Failure from a backend status, code and message. An
// empty code falls back to the status, then to "unknown".
func NewFailure(provider string, status int, code, message string, err error) *Failure {
	if code == "" && status > 0 {
		code = strconv.Itoa(status)
	}
	if code == "" {
		code = CodeUnknown
	}
	if message == "" && err != nil {
		message = err.Error()
	}
	if message == "" {
		message = "request failed"
	}
	return &Failure{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Retryable: isRateLimit(status, code, message),
		Status:    status,
		Err:       err,
	}
}

// AsFailure converts any error into a *Failure attributed to provider.
func AsFailure(provider string, err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		if f.Provider == "" {
			f.Provider = provider
		}
		return f
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewFailure(provider, 0, CodeTimeout, err.Error(), err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewFailure(provider, 0, CodeTimeout, err.Error(), err)
	}
	return NewFailure(provider, 0, CodeUnknown, err.Error(), err)
}

// IsRetryable reports whether err is a rate-limit failure.
func IsRetryable(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Retryable
}

func isRateLimit(status int, code, message string) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	if code == CodeRateLimit || code == "429" || code == "RESOURCE_EXHAUSTED" {
		return true
	}
	return strings.Contains(strings.ToLower(message), "rate limit")
}

func missingKey(provider string) *Failure {
	return NewFailure(provider, 0, CodeMissingAPIKey, provider+" API key is not configured", nil)
}
