package providers

import (
	"context"
	"errors"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
)

// AnthropicClient streams completions from the Anthropic Messages API.
type AnthropicClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int
	retry     engine.RetryPolicy
}

// NewAnthropicClient creates a completion client. baseURL is optional.
func NewAnthropicClient(apiKey, modelName, baseURL string) *AnthropicClient {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(apiKey, opts...),
		model:     modelName,
		maxTokens: 8192,
		retry:     engine.DefaultRetryPolicy(),
	}
}

// CompleteStream implements engine.CompletionProvider.
func (c *AnthropicClient) CompleteStream(ctx context.Context, systemPrompt, userMessage string) (<-chan string, <-chan error) {
	out := make(chan string, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(out)

		temperature := float32(0.1)
		started := false
		var streamErr error

		req := anthropic.MessagesStreamRequest{
			MessagesRequest: anthropic.MessagesRequest{
				Model: anthropic.Model(c.model),
				MultiSystem: []anthropic.MessageSystemPart{
					{Type: "text", Text: systemPrompt},
				},
				Messages: []anthropic.Message{
					anthropic.NewUserTextMessage(userMessage),
				},
				MaxTokens:   c.maxTokens,
				Temperature: &temperature,
			},
		}

		req.OnError = func(errResp anthropic.ErrorResponse) {
			if streamErr == nil {
				streamErr = fmt.Errorf("anthropic streaming error: %s", errResp.Error.Message)
			}
		}

		req.OnContentBlockDelta = func(delta anthropic.MessagesEventContentBlockDeltaData) {
			if delta.Delta.Type != "text_delta" || delta.Delta.Text == nil {
				return
			}
			started = true
			select {
			case out <- *delta.Delta.Text:
			case <-ctx.Done():
			}
		}

		// Retrying after fragments were forwarded would duplicate output,
		// so errors after the first delta are returned as they are.
		_, err := engine.RetryWithPolicy(ctx, c.retry,
			func(ctx context.Context) (struct{}, error) {
				_, err := c.client.CreateMessagesStream(ctx, req)
				if err == nil && streamErr != nil {
					err = streamErr
				}
				if err == nil {
					return struct{}{}, nil
				}
				wrapped := wrapAnthropicError("complete", err)
				var providerErr *engine.ProviderError
				if started && errors.As(wrapped, &providerErr) {
					providerErr.Class = engine.RetryClassNonRetryable
				}
				streamErr = nil
				return struct{}{}, wrapped
			},
			engine.ClassifyError,
			logRetry("complete"),
		)

		switch {
		case ctx.Err() != nil:
			errCh <- ctx.Err()
		case err != nil:
			errCh <- err
		}
	}()

	return out, errCh
}
