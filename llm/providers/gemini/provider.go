// Package gemini implements the Google-style vendor provider.
//
// This vendor correlates tool results by function name; there is no call ID
// on the wire. Arguments travel as structured objects in both directions.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/chipp-ai/dispatch-sub022/llm"
	"github.com/chipp-ai/dispatch-sub022/llm/internal/transport"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	apiPrefix      = "/v1beta/models/"
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
		name:   "gemini",
		apiKey: apiKey,
		tr:     tr,
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	if p.tr == nil {
		return nil, errors.New("gemini: nil transport")
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

	wreq, err := p.mapRequest(req)
	if err != nil {
		return llm.ChatResponse{}, err
	}

	path := apiPrefix + url.PathEscape(req.Model) + ":generateContent"
	hdr := p.headers("application/json", req)
	_, raw, err := p.tr.DoJSON(ctx, http.MethodPost, path, hdr, wreq)
	if err != nil {
		return llm.ChatResponse{}, p.mapError(err, raw)
	}

	var wresp generateContentResponse
	if err := json.Unmarshal(raw, &wresp); err != nil {
		return llm.ChatResponse{}, &llm.LLMError{Provider: p.name, Kind: llm.ErrKindParse, Message: "failed to decode response", Raw: raw, Cause: err}
	}

	out, err := p.mapResponse(req.Model, wresp)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	out.RawJSON = append([]byte(nil), raw...)
	return out, nil
}

func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest) (llm.Stream, error) {
	if err := p.validateRequest(req); err != nil {
		return nil, err
	}

	wreq, err := p.mapRequest(req)
	if err != nil {
		return nil, err
	}

	// Usage arrives on the last SSE chunk's usageMetadata natively.
	path := apiPrefix + url.PathEscape(req.Model) + ":streamGenerateContent?alt=sse"
	hdr := p.headers("text/event-stream", req)
	resp, err := p.tr.DoStream(ctx, http.MethodPost, path, hdr, wreq)
	if err != nil {
		return nil, p.mapError(err, nil)
	}
	return newStream(p.name, resp), nil
}

func (p *Provider) headers(accept string, req llm.ChatRequest) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	if accept != "" {
		h.Set("Accept", accept)
	}
	if p.apiKey != "" {
		h.Set("x-goog-api-key", p.apiKey)
	}
	if req.Transport != nil {
		for k, vs := range req.Transport.Headers {
			for _, v := range vs {
				h.Set(k, v)
			}
		}
	}
	return h
}

func (p *Provider) validateRequest(req llm.ChatRequest) error {
	if req.Model == "" {
		return &llm.LLMError{Provider: p.name, Kind: llm.ErrKindBadRequest, Message: "model is required"}
	}
	return llm.ValidateMessages(req.Messages)
}
