package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/codepair/internal/config"
	"github.com/ChamsBouzaiene/codepair/internal/engine"
	"github.com/ChamsBouzaiene/codepair/internal/indexer"
)

func fastRetry() engine.RetryPolicy {
	return engine.RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func collect(out <-chan string, errCh <-chan error) (string, error) {
	var b strings.Builder
	for frag := range out {
		b.WriteString(frag)
	}
	return b.String(), <-errCh
}

func TestOpenAIClient_CompleteStream(t *testing.T) {
	chunks := []string{"Hel", "lo", ", world"}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for i, c := range chunks {
			fmt.Fprintf(w, "data: {\"id\":\"c%d\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", i, c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key", "m", server.URL)
	text, err := collect(client.CompleteStream(context.Background(), "system", "user"))
	if err != nil {
		t.Fatalf("CompleteStream failed: %v", err)
	}
	if text != "Hello, world" {
		t.Errorf("Expected %q, got %q", "Hello, world", text)
	}
}

func TestOpenAIClient_RetriesStreamCreation(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"c\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"ok\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key", "m", server.URL)
	client.retry = fastRetry()

	text, err := collect(client.CompleteStream(context.Background(), "s", "u"))
	if err != nil {
		t.Fatalf("CompleteStream failed: %v", err)
	}
	if text != "ok" || calls.Load() != 2 {
		t.Errorf("Expected one retry and %q, got %q after %d calls", "ok", text, calls.Load())
	}
}

func TestOpenAIClient_NonRetryableError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer server.Close()

	client := NewOpenAIClient("bad", "m", server.URL)
	client.retry = fastRetry()

	_, err := collect(client.CompleteStream(context.Background(), "s", "u"))
	var providerErr *engine.ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("Expected ProviderError, got %v", err)
	}
	if providerErr.HTTPStatus != http.StatusUnauthorized || providerErr.Class != engine.RetryClassNonRetryable {
		t.Errorf("Unexpected error: %+v", providerErr)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected no retry, got %d calls", calls.Load())
	}
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","model":"m","data":[
			{"object":"embedding","index":1,"embedding":[0.3,0.4]},
			{"object":"embedding","index":0,"embedding":[0.1,0.2]}
		],"usage":{"prompt_tokens":7,"total_tokens":7}}`)
	}))
	defer server.Close()

	emb := NewOpenAIEmbedder("key", "m", server.URL, 2)
	vecs, tokens, err := emb.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if tokens != 7 {
		t.Errorf("Expected 7 tokens, got %d", tokens)
	}
	if len(vecs) != 2 || vecs[0][0] != 0.1 || vecs[1][0] != 0.3 {
		t.Errorf("Expected vectors ordered by index, got %v", vecs)
	}

	empty, n, err := emb.Embed(context.Background(), nil)
	if err != nil || len(empty) != 0 || n != 0 {
		t.Errorf("Expected empty result for no input, got %v %d %v", empty, n, err)
	}
}

func TestOpenAIEmbedder_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","model":"m","data":[{"object":"embedding","index":0,"embedding":[1]}],"usage":{"total_tokens":1}}`)
	}))
	defer server.Close()

	_, _, err := NewOpenAIEmbedder("key", "m", server.URL, 1).Embed(context.Background(), []string{"a", "b"})
	if !engine.IsProviderError(err) {
		t.Errorf("Expected ProviderError, got %v", err)
	}
}

func TestAnthropicClient_Error(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad request"}}`)
	}))
	defer server.Close()

	client := NewAnthropicClient("key", "claude", server.URL)
	client.retry = fastRetry()

	text, err := collect(client.CompleteStream(context.Background(), "s", "u"))
	if !engine.IsProviderError(err) {
		t.Fatalf("Expected ProviderError, got %v", err)
	}
	if text != "" {
		t.Errorf("Expected no output, got %q", text)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected no retry for a bad request, got %d calls", calls.Load())
	}
}

func TestExtractErrorMetadata(t *testing.T) {
	tests := []struct {
		msg        string
		status     int
		retryAfter string
	}{
		{"error, status code: 429, message: slow down. Retry-After: 12", 429, "12"},
		{"upstream returned 503", 503, ""},
		{"please retry after 30s", 0, "30s"},
		{"connection reset", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			status, retryAfter := extractErrorMetadata(errors.New(tt.msg))
			if status != tt.status || retryAfter != tt.retryAfter {
				t.Errorf("got (%d, %q), want (%d, %q)", status, retryAfter, tt.status, tt.retryAfter)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   engine.RetryClass
	}{
		{429, engine.RetryClassRetryable},
		{500, engine.RetryClassRetryable},
		{408, engine.RetryClassMaybe},
		{401, engine.RetryClassNonRetryable},
		{0, engine.RetryClassMaybe},
	}
	for _, tt := range tests {
		if got := classifyStatus(tt.status, engine.RetryClassMaybe); got != tt.want {
			t.Errorf("classifyStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestNewCompletionProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	tests := []struct {
		name      string
		cfg       config.Config
		wantModel string
		wantType  string
		wantErr   string
	}{
		{"openai with key", config.Config{Provider: "openai", APIKey: "k"}, "gpt-4o-mini", "*providers.OpenAIClient", ""},
		{"anthropic from env", config.Config{Provider: "anthropic", Model: "claude-x"}, "claude-x", "*providers.AnthropicClient", ""},
		{"ollama needs no key", config.Config{Provider: "ollama"}, "llama3.1", "*providers.OpenAIClient", ""},
		{"missing key", config.Config{Provider: "openai"}, "", "", "api_key"},
		{"unknown provider", config.Config{Provider: "skynet"}, "", "", "provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, model, err := NewCompletionProvider(&tt.cfg)
			if tt.wantErr != "" {
				var cfgErr *engine.ConfigurationError
				if !errors.As(err, &cfgErr) || cfgErr.Key != tt.wantErr {
					t.Fatalf("Expected ConfigurationError for %s, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewCompletionProvider failed: %v", err)
			}
			if model != tt.wantModel {
				t.Errorf("Expected model %s, got %s", tt.wantModel, model)
			}
			if got := fmt.Sprintf("%T", p); got != tt.wantType {
				t.Errorf("Expected %s, got %s", tt.wantType, got)
			}
		})
	}
}

func TestNewEmbedder(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	if _, ok := NewEmbedder(&config.Config{Provider: "anthropic", EmbeddingModel: "text-embedding-3-small"}).(*indexer.HashEmbedder); !ok {
		t.Error("Expected hash embedder without a key")
	}
	if _, ok := NewEmbedder(&config.Config{Provider: "openai", APIKey: "k", EmbeddingModel: LocalEmbeddingModel}).(*indexer.HashEmbedder); !ok {
		t.Error("Expected hash embedder for the local model")
	}

	emb, ok := NewEmbedder(&config.Config{Provider: "openai", APIKey: "k", EmbeddingModel: "text-embedding-3-large"}).(*OpenAIEmbedder)
	if !ok {
		t.Fatal("Expected OpenAI embedder when the provider key is usable")
	}
	if emb.Dimension() != 3072 {
		t.Errorf("Expected 3072 dims, got %d", emb.Dimension())
	}
}
