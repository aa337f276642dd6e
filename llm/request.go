package llm

// RequestOption mutates a ChatRequest.
type RequestOption func(*ChatRequest)

func newChatRequest(model string, messages ...Message) ChatRequest {
	return ChatRequest{
		Model:    model,
		Messages: cloneMessages(messages),
		Extra:    map[string]any{},
	}
}

// BuildChatRequest creates a request from model + messages and applies opts.
func BuildChatRequest(model string, messages []Message, opts ...RequestOption) ChatRequest {
	req := newChatRequest(model, messages...)
	for _, opt := range opts {
		if opt != nil {
			opt(&req)
		}
	}
	return req
}

func WithModel(model string) RequestOption {
	return func(r *ChatRequest) { r.Model = model }
}

func WithTemperature(v float64) RequestOption {
	return func(r *ChatRequest) { r.Temperature = &v }
}

func WithTopP(v float64) RequestOption {
	return func(r *ChatRequest) { r.TopP = &v }
}

func WithMaxTokens(v int) RequestOption {
	return func(r *ChatRequest) { r.MaxTokens = &v }
}

func WithStop(stop ...string) RequestOption {
	return func(r *ChatRequest) {
		if stop == nil {
			r.Stop = nil
			return
		}
		r.Stop = append([]string(nil), stop...)
	}
}

func WithStreamIncludeUsage(enabled bool) RequestOption {
	return func(r *ChatRequest) { r.StreamOptions = &StreamOptions{IncludeUsage: enabled} }
}

func WithTools(tools ...ToolDefinition) RequestOption {
	return func(r *ChatRequest) { r.Tools = append([]ToolDefinition(nil), tools...) }
}

func WithToolChoice(choice ToolChoice) RequestOption {
	return func(r *ChatRequest) { r.ToolChoice = &choice }
}

func WithExtra(key string, value any) RequestOption {
	return func(r *ChatRequest) {
		if r.Extra == nil {
			r.Extra = make(map[string]any)
		}
		r.Extra[key] = value
	}
}

func WithHeader(key, value string) RequestOption {
	return func(r *ChatRequest) {
		if r.Transport == nil {
			r.Transport = &TransportOptions{}
		}
		if r.Transport.Headers == nil {
			r.Transport.Headers = make(map[string][]string)
		}
		r.Transport.Headers.Set(key, value)
	}
}

func cloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	for i := range messages {
		out[i] = messages[i].Clone()
	}
	return out
}
