package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want RetryClass
	}{
		{"nil", nil, RetryClassNonRetryable},
		{"rate limit", errors.New("status 429: Too Many Requests"), RetryClassRetryable},
		{"server", errors.New("503 service unavailable"), RetryClassRetryable},
		{"network", errors.New("dial tcp: connection refused"), RetryClassRetryable},
		{"auth", errors.New("401 unauthorized: invalid api key"), RetryClassNonRetryable},
		{"context length", errors.New("maximum context length is 8192 tokens"), RetryClassMaybe},
		{"cancelled", fmt.Errorf("stream: %w", context.Canceled), RetryClassNonRetryable},
		{"deadline", context.DeadlineExceeded, RetryClassMaybe},
		{"classified", &ProviderError{Op: "embed", Err: errors.New("x"), Class: RetryClassRetryable}, RetryClassRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapProviderError(t *testing.T) {
	if WrapProviderError("embed", nil, 0, "") != nil {
		t.Fatal("expected nil for nil error")
	}

	base := errors.New("429 rate limit")
	err := WrapProviderError("embed", base, 429, "2")
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected ProviderError, got %T", err)
	}
	if providerErr.Class != RetryClassRetryable || providerErr.HTTPStatus != 429 {
		t.Errorf("unexpected metadata %+v", providerErr)
	}
	if !errors.Is(err, base) {
		t.Error("expected wrapped error to unwrap to base")
	}
	if again := WrapProviderError("complete", err, 0, ""); again != err {
		t.Error("expected an existing ProviderError to be returned unchanged")
	}
	if !IsProviderError(fmt.Errorf("turn: %w", err)) {
		t.Error("IsProviderError should see through wrapping")
	}
}

func TestExtractRetryAfter(t *testing.T) {
	err := &ProviderError{Op: "complete", Err: errors.New("limited"), RetryAfter: "3"}
	if got := ExtractRetryAfter(err); got != 3*time.Second {
		t.Errorf("ExtractRetryAfter() = %v, want 3s", got)
	}
	if got := ExtractRetryAfter(errors.New("please retry after 5 seconds")); got != 5*time.Second {
		t.Errorf("ExtractRetryAfter() = %v, want 5s", got)
	}
	if got := ExtractRetryAfter(errors.New("boom")); got != 0 {
		t.Errorf("ExtractRetryAfter() = %v, want 0", got)
	}
}

func TestErrorMessages(t *testing.T) {
	cfg := NewConfigurationError("diff_format", "unknown format %q", "xml")
	if cfg.Error() != `configuration error for "diff_format": unknown format "xml"` {
		t.Errorf("unexpected message %q", cfg.Error())
	}
	if !IsConfigurationError(fmt.Errorf("load: %w", cfg)) {
		t.Error("IsConfigurationError should see through wrapping")
	}

	apply := &ApplyError{Path: "a.go", Reason: "search text not found"}
	if apply.Error() != "apply a.go: search text not found" {
		t.Errorf("unexpected message %q", apply.Error())
	}

	parse := &ParseError{Format: "unified", Reason: "malformed hunk header", Fragment: "@@ -x +y @@"}
	if parse.Error() != `unified: malformed hunk header (near "@@ -x +y @@")` {
		t.Errorf("unexpected message %q", parse.Error())
	}
}
