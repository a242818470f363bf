package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
)

// OpenAIClient streams completions from OpenAI or any OpenAI-compatible API.
type OpenAIClient struct {
	client *openai.Client
	model  string
	retry  engine.RetryPolicy
}

// NewOpenAIClient creates a completion client. baseURL is optional.
func NewOpenAIClient(apiKey, modelName, baseURL string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  modelName,
		retry:  engine.DefaultRetryPolicy(),
	}
}

// CompleteStream implements engine.CompletionProvider.
func (c *OpenAIClient) CompleteStream(ctx context.Context, systemPrompt, userMessage string) (<-chan string, <-chan error) {
	out := make(chan string, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(out)

		req := openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userMessage},
			},
			Stream: true,
		}

		// Only stream creation is retried; once fragments flow a retry
		// would duplicate output.
		stream, err := engine.RetryWithPolicy(ctx, c.retry,
			func(ctx context.Context) (*openai.ChatCompletionStream, error) {
				s, err := c.client.CreateChatCompletionStream(ctx, req)
				if err != nil {
					return nil, wrapOpenAIError("complete", err)
				}
				return s, nil
			},
			engine.ClassifyError,
			logRetry("complete"),
		)
		if err != nil {
			errCh <- err
			return
		}
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errCh <- wrapOpenAIError("complete", err)
				return
			}
			if len(response.Choices) == 0 {
				continue
			}
			if text := response.Choices[0].Delta.Content; text != "" {
				select {
				case out <- text:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
		}
	}()

	return out, errCh
}

// OpenAIEmbedder embeds texts with the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	retry     engine.RetryPolicy
}

// NewOpenAIEmbedder creates an embedder.
// Common models: "text-embedding-3-small" (1536 dims), "text-embedding-3-large" (3072 dims)
func NewOpenAIEmbedder(apiKey, model, baseURL string, dimension int) *OpenAIEmbedder {
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dimension == 0 {
		dimension = 1536
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(config),
		model:     model,
		dimension: dimension,
		retry:     engine.DefaultRetryPolicy(),
	}
}

// Dimension returns the embedding dimension.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// Embed implements indexer.Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, int, error) {
	if len(texts) == 0 {
		return [][]float32{}, 0, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}

	resp, err := engine.RetryWithPolicy(ctx, e.retry,
		func(ctx context.Context) (openai.EmbeddingResponse, error) {
			resp, err := e.client.CreateEmbeddings(ctx, req)
			if err != nil {
				return resp, wrapOpenAIError("embed", err)
			}
			return resp, nil
		},
		engine.ClassifyError,
		logRetry("embed"),
	)
	if err != nil {
		return nil, 0, err
	}

	if len(resp.Data) != len(texts) {
		return nil, 0, &engine.ProviderError{
			Op:    "embed",
			Err:   fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)),
			Class: engine.RetryClassNonRetryable,
		}
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, resp.Usage.TotalTokens, nil
}

func logRetry(op string) func(int, time.Duration, error) {
	return func(attempt int, delay time.Duration, err error) {
		log.Printf("⚠️  Provider %s failed (attempt %d), retrying in %v: %v", op, attempt, delay, err)
	}
}
