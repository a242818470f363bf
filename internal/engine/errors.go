// Package engine holds the error taxonomy, retry policy and the small
// shared types that flow through a turn.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// RetryClass indicates whether an error should be retried.
type RetryClass string

const (
	RetryClassRetryable    RetryClass = "retryable"     // Definitely retry
	RetryClassMaybe        RetryClass = "maybe"         // Retry with caution (limited attempts)
	RetryClassNonRetryable RetryClass = "non_retryable" // Never retry
)

// ProviderError reports a failed call to an embedding or completion
// provider. It is fatal to the current turn.
type ProviderError struct {
	Op         string // "embed", "complete", ...
	Err        error
	Class      RetryClass
	HTTPStatus int    // HTTP status code if known
	RetryAfter string // Retry-After value if present
}

func (e *ProviderError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("provider %s failed (status %d): %v", e.Op, e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ParseError describes a fragment of a model reply that could not be
// turned into a change. Parsers log it and skip the fragment.
type ParseError struct {
	Format   string
	Fragment string
	Reason   string
}

func (e *ParseError) Error() string {
	frag := strings.TrimSpace(e.Fragment)
	if len(frag) > 60 {
		frag = frag[:60] + "..."
	}
	if frag == "" {
		return fmt.Sprintf("%s: %s", e.Format, e.Reason)
	}
	return fmt.Sprintf("%s: %s (near %q)", e.Format, e.Reason, frag)
}

// ApplyError is recorded on a patch result when a file could not be
// changed.
type ApplyError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ApplyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("apply %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("apply %s: %s", e.Path, e.Reason)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// ConfigurationError is returned when a template, format or provider is
// missing or declared twice.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %q: %s", e.Key, e.Reason)
}

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(key, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

// IsProviderError reports whether err wraps a ProviderError.
func IsProviderError(err error) bool {
	var providerErr *ProviderError
	return errors.As(err, &providerErr)
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// errorMarkers maps lowercase message fragments to a class. The first
// matching group wins, so order matters.
var errorMarkers = []struct {
	class   RetryClass
	markers []string
}{
	{RetryClassRetryable, []string{"429", "rate limit", "too many requests"}},
	{RetryClassRetryable, []string{
		"500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable", "overloaded",
	}},
	{RetryClassRetryable, []string{
		"timeout", "connection reset", "connection refused", "no such host", "temporary failure",
	}},
	// The same prompt will overflow again unless the caller trims it.
	{RetryClassMaybe, []string{"context length", "too many tokens"}},
}

// ClassifyError decides how a failed provider call may be retried.
// Anything unrecognised (auth, bad request, quota) is not retried.
func ClassifyError(err error) RetryClass {
	if err == nil {
		return RetryClassNonRetryable
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) && providerErr.Class != "" {
		return providerErr.Class
	}

	switch {
	case errors.Is(err, context.Canceled):
		return RetryClassNonRetryable
	case errors.Is(err, context.DeadlineExceeded):
		return RetryClassMaybe
	}

	msg := strings.ToLower(err.Error())
	for _, group := range errorMarkers {
		if slices.ContainsFunc(group.markers, func(m string) bool { return strings.Contains(msg, m) }) {
			return group.class
		}
	}
	return RetryClassNonRetryable
}

// WrapProviderError wraps err as a classified ProviderError. An error that
// already is a ProviderError is returned unchanged.
func WrapProviderError(op string, err error, httpStatus int, retryAfter string) error {
	if err == nil {
		return nil
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return err
	}

	return &ProviderError{
		Op:         op,
		Err:        err,
		Class:      ClassifyError(err),
		HTTPStatus: httpStatus,
		RetryAfter: retryAfter,
	}
}

// ExtractRetryAfter extracts the Retry-After value from an error.
// Returns 0 if not found or invalid.
func ExtractRetryAfter(err error) time.Duration {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) && providerErr.RetryAfter != "" {
		var seconds int
		if _, err := fmt.Sscanf(providerErr.RetryAfter, "%d", &seconds); err == nil {
			return time.Duration(seconds) * time.Second
		}
		if t, err := time.Parse(time.RFC1123, providerErr.RetryAfter); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
		}
	}

	errStr := strings.ToLower(err.Error())
	if i := strings.Index(errStr, "retry after "); i >= 0 {
		var seconds int
		if _, err := fmt.Sscanf(errStr[i:], "retry after %d", &seconds); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	return 0
}

// RetryExhaustedError indicates that all retry attempts have been exhausted.
type RetryExhaustedError struct {
	Err       error
	Attempts  int
	IsGuarded bool // True if this was a "maybe" class error with limited retries
}

func (e *RetryExhaustedError) Error() string {
	if e.IsGuarded {
		return fmt.Sprintf("guarded retries exhausted after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}
