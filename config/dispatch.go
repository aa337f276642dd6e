package config

import (
	"fmt"
	"time"

	"github.com/chipp-ai/dispatch-sub022/llm/adapter"
	"github.com/chipp-ai/dispatch-sub022/llm/billing"
	"github.com/chipp-ai/dispatch-sub022/llm/catalog"
)

// EnvPrefix is the environment variable prefix for all settings.
const EnvPrefix = "DISPATCH"

// Config is the full application configuration.
type Config struct {
	Vendors VendorConfig  `mapstructure:"vendors" json:"vendors"`
	Billing BillingConfig `mapstructure:"billing" json:"billing"`

	// Models overrides the built-in capability table when non-empty. It is
	// read once at startup; file reloads never touch the installed table.
	Models []ModelConfig `mapstructure:"models" json:"models"`
}

// VendorConfig holds direct vendor API keys. Billed traffic does not use
// them; they serve the diagnostic path and the Gemini large-media bypass.
type VendorConfig struct {
	OpenAIKey    string `mapstructure:"openai_key" json:"openai_key"`
	AnthropicKey string `mapstructure:"anthropic_key" json:"anthropic_key"`
	GeminiKey    string `mapstructure:"gemini_key" json:"gemini_key"`
}

type BillingConfig struct {
	Live    EndpointConfig `mapstructure:"live" json:"live"`
	Sandbox EndpointConfig `mapstructure:"sandbox" json:"sandbox"`

	PayloadCeilingBytes int64  `mapstructure:"payload_ceiling_bytes" json:"payload_ceiling_bytes"`
	TokenTTLSeconds     int    `mapstructure:"token_ttl_seconds" json:"token_ttl_seconds"`
	Issuer              string `mapstructure:"issuer" json:"issuer"`
}

type EndpointConfig struct {
	ProxyURL string `mapstructure:"proxy_url" json:"proxy_url"`
	Secret   string `mapstructure:"secret" json:"secret"`
}

type ModelConfig struct {
	Prefix string `mapstructure:"prefix" json:"prefix"`
	Vendor string `mapstructure:"vendor" json:"vendor"`

	SupportsTemperature   bool `mapstructure:"supports_temperature" json:"supports_temperature"`
	UsesResponsesEndpoint bool `mapstructure:"uses_responses_endpoint" json:"uses_responses_endpoint"`
	SupportsBYOK          bool `mapstructure:"supports_byok" json:"supports_byok"`

	PromptUSDPerMTok     float64 `mapstructure:"prompt_usd_per_mtok" json:"prompt_usd_per_mtok"`
	CompletionUSDPerMTok float64 `mapstructure:"completion_usd_per_mtok" json:"completion_usd_per_mtok"`
}

func defaults() map[string]any {
	return map[string]any{
		"billing.payload_ceiling_bytes": billing.DefaultPayloadCeilingBytes,
		"billing.token_ttl_seconds":     120,
		"billing.issuer":                "dispatch",
	}
}

// LoadDispatch loads the application configuration from path, with DISPATCH_
// environment overrides, and installs the capability table once if the file
// declares model entries.
func LoadDispatch(path string) (*Store[Config], error) {
	store, err := Load[Config](path,
		WithDefaults[Config](defaults()),
		WithEnv[Config](EnvPrefix),
	)
	if err != nil {
		return nil, err
	}

	cfg := store.Get()
	if len(cfg.Models) > 0 {
		entries, err := cfg.CatalogEntries()
		if err != nil {
			return nil, err
		}
		if err := catalog.Install(entries); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// AdapterConfig converts the file shape into the adapter factory's config.
func (c Config) AdapterConfig() adapter.Config {
	return adapter.Config{
		Billing: billing.Config{
			Live:                billing.Credential{ProxyURL: c.Billing.Live.ProxyURL, Secret: c.Billing.Live.Secret},
			Sandbox:             billing.Credential{ProxyURL: c.Billing.Sandbox.ProxyURL, Secret: c.Billing.Sandbox.Secret},
			PayloadCeilingBytes: c.Billing.PayloadCeilingBytes,
			TokenTTL:            time.Duration(c.Billing.TokenTTLSeconds) * time.Second,
			Issuer:              c.Billing.Issuer,
		},
		OpenAIAPIKey:    c.Vendors.OpenAIKey,
		AnthropicAPIKey: c.Vendors.AnthropicKey,
		GeminiAPIKey:    c.Vendors.GeminiKey,
	}
}

// CatalogEntries converts the model list into capability table entries.
func (c Config) CatalogEntries() ([]catalog.Entry, error) {
	entries := make([]catalog.Entry, 0, len(c.Models))
	for _, m := range c.Models {
		vendor, err := parseVendor(m.Vendor)
		if err != nil {
			return nil, fmt.Errorf("config: model %q: %w", m.Prefix, err)
		}
		entries = append(entries, catalog.Entry{
			Prefix: m.Prefix,
			Capabilities: catalog.Capabilities{
				Vendor:                vendor,
				SupportsTemperature:   m.SupportsTemperature,
				UsesResponsesEndpoint: m.UsesResponsesEndpoint,
				SupportsBYOK:          m.SupportsBYOK,
				PromptUSDPerMTok:      m.PromptUSDPerMTok,
				CompletionUSDPerMTok:  m.CompletionUSDPerMTok,
			},
		})
	}
	return entries, nil
}

func parseVendor(s string) (catalog.Vendor, error) {
	switch catalog.Vendor(s) {
	case catalog.VendorOpenAI, catalog.VendorAnthropic, catalog.VendorGoogle:
		return catalog.Vendor(s), nil
	default:
		return catalog.VendorUnknown, fmt.Errorf("unknown vendor %q", s)
	}
}
