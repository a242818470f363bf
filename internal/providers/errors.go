package providers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
)

// wrapOpenAIError wraps an SDK error as a classified ProviderError.
func wrapOpenAIError(op string, err error) error {
	status, retryAfter := extractErrorMetadata(err)

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0:
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0:
		status = reqErr.HTTPStatusCode
	}

	return wrapWithStatus(op, err, status, retryAfter)
}

// wrapAnthropicError wraps an SDK error as a classified ProviderError.
func wrapAnthropicError(op string, err error) error {
	status, retryAfter := extractErrorMetadata(err)

	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode != 0 {
		status = reqErr.StatusCode
	}

	return wrapWithStatus(op, err, status, retryAfter)
}

func wrapWithStatus(op string, err error, status int, retryAfter string) error {
	wrapped := engine.WrapProviderError(op, err, status, retryAfter)

	var providerErr *engine.ProviderError
	if errors.As(wrapped, &providerErr) && status != 0 {
		providerErr.Class = classifyStatus(status, providerErr.Class)
	}
	return wrapped
}

// classifyStatus refines the class from the HTTP status when known.
func classifyStatus(status int, fallback engine.RetryClass) engine.RetryClass {
	switch {
	case status == http.StatusTooManyRequests, status >= 500:
		return engine.RetryClassRetryable
	case status == http.StatusRequestTimeout:
		return engine.RetryClassMaybe
	case status >= 400:
		return engine.RetryClassNonRetryable
	}
	return fallback
}

// extractErrorMetadata extracts HTTP status code and Retry-After from an
// error message when the SDK does not expose them.
func extractErrorMetadata(err error) (int, string) {
	if err == nil {
		return 0, ""
	}

	errStr := err.Error()
	var httpStatus int
	var retryAfter string

	for _, code := range []int{
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusBadRequest,
		http.StatusPaymentRequired,
	} {
		if strings.Contains(errStr, strconv.Itoa(code)) {
			httpStatus = code
			break
		}
	}

	lower := strings.ToLower(errStr)
	for _, marker := range []string{"retry-after", "retry after"} {
		if idx := strings.Index(lower, marker); idx != -1 {
			parts := strings.Fields(strings.TrimLeft(errStr[idx+len(marker):], ": "))
			if len(parts) > 0 {
				retryAfter = strings.TrimRight(parts[0], ",;.")
			}
			break
		}
	}

	return httpStatus, retryAfter
}
