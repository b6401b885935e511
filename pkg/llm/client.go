// Package llm provides the chat-completions client used by the stage
// executors, with per-call token usage and cost accounting.
package llm

import (
	"context"

	"github.com/civitas-labs/agora/pkg/models"
)

// Request is a single chat-completions call. Every stage issues requests of
// this shape: one system prompt, one user prompt, JSON-object output.
type Request struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
}

// Result is the typed outcome of one call.
type Result struct {
	// Content is the raw JSON object returned by the model.
	Content string
	Usage   models.Usage
	Cost    float64
}

// Client is the provider interface. Implementations must honor ctx
// cancellation on the underlying HTTP request.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Result, error)
}
