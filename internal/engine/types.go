package engine

import "context"

// MessageRole represents the role of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatMessage is the provider-agnostic message kept in session history.
type ChatMessage struct {
	Role    MessageRole
	Content string
}

// CompletionProvider streams a model reply for a system prompt and a user
// message. The fragment channel is closed when the reply ends; the error
// channel then yields at most one error and is closed. Cancelling ctx
// stops the stream.
type CompletionProvider interface {
	CompleteStream(ctx context.Context, systemPrompt, userMessage string) (<-chan string, <-chan error)
}

// Usage accumulates token and cost accounting for embeddings.
type Usage struct {
	Tokens int
	Cost   float64
}

// Add returns the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{Tokens: u.Tokens + other.Tokens, Cost: u.Cost + other.Cost}
}
