// Package adapter turns a model name plus a billing context into a ready
// client. It is the only place that decides which vendor serves a model and
// which endpoint (proxy or direct) the call goes through.
package adapter

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/chipp-ai/dispatch-sub022/llm"
	"github.com/chipp-ai/dispatch-sub022/llm/billing"
	"github.com/chipp-ai/dispatch-sub022/llm/catalog"
	"github.com/chipp-ai/dispatch-sub022/llm/providers/anthropic"
	"github.com/chipp-ai/dispatch-sub022/llm/providers/gemini"
	"github.com/chipp-ai/dispatch-sub022/llm/providers/openai"
)

// Config carries everything the factory needs to construct clients.
//
// Vendor API keys are used only by the unbilled diagnostic path and by the
// Gemini large-media bypass; billed traffic authenticates to the proxy with
// the billing credential, and the proxy holds the vendor keys.
type Config struct {
	Billing billing.Config

	OpenAIAPIKey    string
	AnthropicAPIKey string
	GeminiAPIKey    string
}

type Factory struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	audit      *billing.Audit
}

type FactoryOption func(*Factory)

func WithHTTPClient(c *http.Client) FactoryOption {
	return func(f *Factory) { f.httpClient = c }
}

func WithLogger(logger *slog.Logger) FactoryOption {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func WithAudit(a *billing.Audit) FactoryOption {
	return func(f *Factory) {
		if a != nil {
			f.audit = a
		}
	}
}

func NewFactory(cfg Config, opts ...FactoryOption) *Factory {
	f := &Factory{
		cfg:    cfg,
		logger: slog.Default(),
		audit:  billing.DefaultAudit(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create builds a billed client for the given model. Every token-generating
// call from the returned client carries billing attribution and goes through
// the metering proxy.
func (f *Factory) Create(model string, bctx billing.Context) (*llm.Client, error) {
	if err := bctx.Validate(); err != nil {
		return nil, err
	}
	caps, err := f.resolve(model)
	if err != nil {
		return nil, err
	}
	cred, err := f.cfg.Billing.Credential(bctx.Sandbox)
	if err != nil {
		return nil, err
	}

	inner, err := f.proxyProvider(caps.Vendor, cred)
	if err != nil {
		return nil, err
	}

	opts := []billing.Option{
		billing.WithAudit(f.audit),
		billing.WithLogger(f.logger),
	}
	if caps.Vendor == catalog.VendorGoogle && f.cfg.GeminiAPIKey != "" {
		// The proxy rejects oversized bodies, and only this vendor accepts
		// the inline media that can exceed the ceiling.
		direct, err := f.vendorProvider(catalog.VendorGoogle, "")
		if err != nil {
			return nil, err
		}
		opts = append(opts, billing.WithDirectClient(direct, f.cfg.Billing.PayloadCeilingBytes))
	}

	billed, err := billing.NewProvider(inner, bctx, cred, opts...)
	if err != nil {
		return nil, err
	}
	return llm.NewClient(billed), nil
}

// CreateUnbilled builds a client that talks to the vendor directly with the
// configured vendor key and NO billing attribution.
//
// This path exists for internal diagnostics (the CLI's chat command) only.
// Anything serving end users must use Create; traffic through this client is
// invisible to the metering proxy.
func (f *Factory) CreateUnbilled(model string) (*llm.Client, error) {
	caps, err := f.resolve(model)
	if err != nil {
		return nil, err
	}
	p, err := f.vendorProvider(caps.Vendor, "")
	if err != nil {
		return nil, err
	}
	return llm.NewClient(p), nil
}

func (f *Factory) resolve(model string) (catalog.Capabilities, error) {
	if model == "" {
		return catalog.Capabilities{}, &llm.LLMError{Provider: "adapter", Kind: llm.ErrKindConfig, Message: "model is required"}
	}
	caps, ok := catalog.Resolve(model)
	if !ok {
		return catalog.Capabilities{}, &llm.LLMError{Provider: "adapter", Kind: llm.ErrKindConfig, Message: "model " + model + " is not in the capability table"}
	}
	return caps, nil
}

// proxyProvider builds a vendor client pointed at the proxy's per-vendor
// segment. No vendor key: the proxy injects it after verifying attribution.
func (f *Factory) proxyProvider(vendor catalog.Vendor, cred billing.Credential) (llm.Provider, error) {
	base := strings.TrimSuffix(cred.ProxyURL, "/") + "/" + string(vendor)
	return f.build(vendor, "", base)
}

func (f *Factory) vendorProvider(vendor catalog.Vendor, baseURL string) (llm.Provider, error) {
	switch vendor {
	case catalog.VendorOpenAI:
		return f.build(vendor, f.cfg.OpenAIAPIKey, baseURL)
	case catalog.VendorAnthropic:
		return f.build(vendor, f.cfg.AnthropicAPIKey, baseURL)
	case catalog.VendorGoogle:
		return f.build(vendor, f.cfg.GeminiAPIKey, baseURL)
	default:
		return nil, &llm.LLMError{Provider: "adapter", Kind: llm.ErrKindConfig, Message: "no provider for vendor " + string(vendor)}
	}
}

func (f *Factory) build(vendor catalog.Vendor, apiKey, baseURL string) (llm.Provider, error) {
	switch vendor {
	case catalog.VendorOpenAI:
		opts := []openai.Option{openai.WithLogger(f.logger)}
		if f.httpClient != nil {
			opts = append(opts, openai.WithHTTPClient(f.httpClient))
		}
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		return openai.New(apiKey, opts...)
	case catalog.VendorAnthropic:
		opts := []anthropic.Option{anthropic.WithLogger(f.logger)}
		if f.httpClient != nil {
			opts = append(opts, anthropic.WithHTTPClient(f.httpClient))
		}
		if baseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(baseURL))
		}
		return anthropic.New(apiKey, opts...)
	case catalog.VendorGoogle:
		opts := []gemini.Option{gemini.WithLogger(f.logger)}
		if f.httpClient != nil {
			opts = append(opts, gemini.WithHTTPClient(f.httpClient))
		}
		if baseURL != "" {
			opts = append(opts, gemini.WithBaseURL(baseURL))
		}
		return gemini.New(apiKey, opts...)
	default:
		return nil, &llm.LLMError{Provider: "adapter", Kind: llm.ErrKindConfig, Message: "no provider for vendor " + string(vendor)}
	}
}
