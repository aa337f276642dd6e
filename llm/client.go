package llm

import "context"

// Client is the provider-agnostic entrypoint handed to callers by llm/adapter.
type Client struct {
	provider Provider
}

func NewClient(provider Provider) *Client {
	return &Client{provider: provider}
}

func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	return c.provider.Chat(ctx, req)
}

func (c *Client) ChatStream(ctx context.Context, req ChatRequest) (Stream, error) {
	return c.provider.ChatStream(ctx, req)
}

func (c *Client) Provider() Provider {
	return c.provider
}
