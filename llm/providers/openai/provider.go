// Package openai implements the OpenAI-style vendor provider.
//
// Two request schemas exist for this vendor: the legacy chat-completions
// schema and the next-generation responses schema. Which one a call uses is
// purely a function of the model name, via the capability table.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/chipp-ai/dispatch-sub022/llm"
	"github.com/chipp-ai/dispatch-sub022/llm/catalog"
	"github.com/chipp-ai/dispatch-sub022/llm/internal/transport"
)

const (
	defaultBaseURL   = "https://api.openai.com"
	chatPath         = "/v1/chat/completions"
	responsesPath    = "/v1/responses"
	providerDefaults = "openai"
)

type Provider struct {
	name   string
	apiKey string

	tr *transport.Client
}

type Option func(*Provider) error

func New(apiKey string, opts ...Option) (*Provider, error) {
	tr, err := transport.New(defaultBaseURL, nil)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		name:   providerDefaults,
		apiKey: apiKey,
		tr:     tr,
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	if p.tr == nil {
		return nil, errors.New("openai: nil transport")
	}
	if p.tr.Logger == nil {
		p.tr.Logger = slog.Default()
	}
	return p, nil
}

func WithProviderName(name string) Option {
	return func(p *Provider) error {
		p.name = name
		return nil
	}
}

func WithBaseURL(baseURL string) Option {
	return func(p *Provider) error {
		tr, err := transport.New(baseURL, p.tr.HTTPClient)
		if err != nil {
			return err
		}
		tr.DefaultHeaders = p.tr.DefaultHeaders.Clone()
		tr.UserAgent = p.tr.UserAgent
		tr.Logger = p.tr.Logger
		p.tr = tr
		return nil
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) error {
		p.tr.HTTPClient = c
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) error {
		if logger != nil {
			p.tr.Logger = logger
		}
		return nil
	}
}

func WithDefaultHeader(key, value string) Option {
	return func(p *Provider) error {
		p.tr.DefaultHeaders.Add(key, value)
		return nil
	}
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if err := p.validateRequest(req); err != nil {
		return llm.ChatResponse{}, err
	}
	caps := capabilitiesFor(req.Model)

	if caps.UsesResponsesEndpoint {
		return p.chatResponses(ctx, req, caps)
	}
	return p.chatCompletions(ctx, req, caps)
}

func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest) (llm.Stream, error) {
	if err := p.validateRequest(req); err != nil {
		return nil, err
	}
	caps := capabilitiesFor(req.Model)

	hdr := p.defaultHeaders("text/event-stream")
	if caps.UsesResponsesEndpoint {
		wreq, err := p.mapResponsesRequest(req, caps)
		if err != nil {
			return nil, err
		}
		wreq["stream"] = true

		resp, err := p.tr.DoStream(ctx, http.MethodPost, responsesPath, mergeRequestHeaders(hdr, req), wreq)
		if err != nil {
			return nil, p.mapError(err, nil)
		}
		return newResponsesStream(p.name, resp), nil
	}

	wreq, err := p.mapChatRequest(req, caps)
	if err != nil {
		return nil, err
	}
	wreq["stream"] = true
	// Without this flag the terminal chunk carries no usage and the call
	// becomes unattributable. Unconditional.
	wreq["stream_options"] = llm.StreamOptions{IncludeUsage: true}

	resp, err := p.tr.DoStream(ctx, http.MethodPost, chatPath, mergeRequestHeaders(hdr, req), wreq)
	if err != nil {
		return nil, p.mapError(err, nil)
	}
	return newChatStream(p.name, resp), nil
}

func (p *Provider) chatCompletions(ctx context.Context, req llm.ChatRequest, caps catalog.Capabilities) (llm.ChatResponse, error) {
	wreq, err := p.mapChatRequest(req, caps)
	if err != nil {
		return llm.ChatResponse{}, err
	}

	hdr := p.defaultHeaders("application/json")
	_, raw, err := p.tr.DoJSON(ctx, http.MethodPost, chatPath, mergeRequestHeaders(hdr, req), wreq)
	if err != nil {
		return llm.ChatResponse{}, p.mapError(err, raw)
	}

	var wresp chatCompletionResponse
	if err := json.Unmarshal(raw, &wresp); err != nil {
		return llm.ChatResponse{}, &llm.LLMError{Provider: p.name, Kind: llm.ErrKindParse, Message: "failed to decode response", Raw: raw, Cause: err}
	}

	out := p.mapChatResponse(wresp)
	out.RawJSON = append([]byte(nil), raw...)
	return out, nil
}

func (p *Provider) chatResponses(ctx context.Context, req llm.ChatRequest, caps catalog.Capabilities) (llm.ChatResponse, error) {
	wreq, err := p.mapResponsesRequest(req, caps)
	if err != nil {
		return llm.ChatResponse{}, err
	}

	hdr := p.defaultHeaders("application/json")
	_, raw, err := p.tr.DoJSON(ctx, http.MethodPost, responsesPath, mergeRequestHeaders(hdr, req), wreq)
	if err != nil {
		return llm.ChatResponse{}, p.mapError(err, raw)
	}

	var wresp responsesResponse
	if err := json.Unmarshal(raw, &wresp); err != nil {
		return llm.ChatResponse{}, &llm.LLMError{Provider: p.name, Kind: llm.ErrKindParse, Message: "failed to decode response", Raw: raw, Cause: err}
	}

	out := p.mapResponsesResponse(wresp)
	out.RawJSON = append([]byte(nil), raw...)
	return out, nil
}

func (p *Provider) defaultHeaders(accept string) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	if accept != "" {
		h.Set("Accept", accept)
	}
	if p.apiKey != "" {
		h.Set("Authorization", "Bearer "+p.apiKey)
	}
	return h
}

func (p *Provider) validateRequest(req llm.ChatRequest) error {
	if req.Model == "" {
		return &llm.LLMError{Provider: p.name, Kind: llm.ErrKindBadRequest, Message: "model is required"}
	}
	return llm.ValidateMessages(req.Messages)
}

func capabilitiesFor(model string) catalog.Capabilities {
	caps, ok := catalog.Resolve(model)
	if !ok {
		// Unknown models default to the legacy schema with sampling allowed.
		return catalog.Capabilities{Vendor: catalog.VendorOpenAI, SupportsTemperature: true}
	}
	return caps
}

func mergeRequestHeaders(hdr http.Header, req llm.ChatRequest) http.Header {
	if req.Transport == nil || req.Transport.Headers == nil {
		return hdr
	}
	out := hdr.Clone()
	for k, vs := range req.Transport.Headers {
		for _, v := range vs {
			out.Set(k, v)
		}
	}
	return out
}
