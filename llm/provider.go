package llm

import "context"

// Provider is the minimal interface an LLM backend must implement.
//
// Implementations are expected to:
// - treat the request as read-only
// - return an LLMError (or wrap one) for vendor/HTTP errors
// - honor ctx cancellation
// - perform exactly one attempt per call; retries are a caller policy
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	ChatStream(ctx context.Context, req ChatRequest) (Stream, error)
}
