package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chipp-ai/dispatch-sub022/llm/catalog"
)

const testYAML = `
vendors:
  openai_key: sk-direct
  gemini_key: gk-direct
billing:
  live:
    proxy_url: https://proxy.live.test
    secret: live-secret
  sandbox:
    proxy_url: https://proxy.sandbox.test
    secret: sandbox-secret
  token_ttl_seconds: 300
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dispatch.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDispatch(t *testing.T) {
	store, err := LoadDispatch(writeConfig(t, testYAML))
	if err != nil {
		t.Fatalf("LoadDispatch: %v", err)
	}

	cfg := store.Get()
	if cfg.Vendors.OpenAIKey != "sk-direct" {
		t.Fatalf("OpenAIKey=%q", cfg.Vendors.OpenAIKey)
	}
	if cfg.Billing.Live.ProxyURL != "https://proxy.live.test" {
		t.Fatalf("Live.ProxyURL=%q", cfg.Billing.Live.ProxyURL)
	}
	if cfg.Billing.TokenTTLSeconds != 300 {
		t.Fatalf("TokenTTLSeconds=%d", cfg.Billing.TokenTTLSeconds)
	}

	// Defaults fill in what the file omits.
	if cfg.Billing.PayloadCeilingBytes != 8<<20 {
		t.Fatalf("PayloadCeilingBytes=%d", cfg.Billing.PayloadCeilingBytes)
	}
	if cfg.Billing.Issuer != "dispatch" {
		t.Fatalf("Issuer=%q", cfg.Billing.Issuer)
	}
}

func TestLoadDispatch_EnvOverride(t *testing.T) {
	t.Setenv("DISPATCH_BILLING_LIVE_PROXY_URL", "https://proxy.override.test")

	store, err := LoadDispatch(writeConfig(t, testYAML))
	if err != nil {
		t.Fatalf("LoadDispatch: %v", err)
	}
	if got := store.Get().Billing.Live.ProxyURL; got != "https://proxy.override.test" {
		t.Fatalf("Live.ProxyURL=%q", got)
	}
}

func TestLoadDispatch_MissingFile(t *testing.T) {
	if _, err := LoadDispatch(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestAdapterConfig(t *testing.T) {
	cfg := Config{
		Vendors: VendorConfig{OpenAIKey: "a", AnthropicKey: "b", GeminiKey: "c"},
		Billing: BillingConfig{
			Live:                EndpointConfig{ProxyURL: "https://l.test", Secret: "ls"},
			Sandbox:             EndpointConfig{ProxyURL: "https://s.test", Secret: "ss"},
			PayloadCeilingBytes: 1 << 20,
			TokenTTLSeconds:     60,
			Issuer:              "billing-test",
		},
	}

	ac := cfg.AdapterConfig()
	if ac.Billing.Live.ProxyURL != "https://l.test" || ac.Billing.Live.Secret != "ls" {
		t.Fatalf("Live=%+v", ac.Billing.Live)
	}
	if ac.Billing.Sandbox.ProxyURL != "https://s.test" {
		t.Fatalf("Sandbox=%+v", ac.Billing.Sandbox)
	}
	if ac.Billing.TokenTTL != 60*time.Second {
		t.Fatalf("TokenTTL=%v", ac.Billing.TokenTTL)
	}
	if ac.Billing.PayloadCeilingBytes != 1<<20 {
		t.Fatalf("PayloadCeilingBytes=%d", ac.Billing.PayloadCeilingBytes)
	}
	if ac.OpenAIAPIKey != "a" || ac.AnthropicAPIKey != "b" || ac.GeminiAPIKey != "c" {
		t.Fatalf("vendor keys=%q %q %q", ac.OpenAIAPIKey, ac.AnthropicAPIKey, ac.GeminiAPIKey)
	}
}

func TestCatalogEntries(t *testing.T) {
	cfg := Config{Models: []ModelConfig{{
		Prefix:               "gpt-4o",
		Vendor:               "openai",
		SupportsTemperature:  true,
		PromptUSDPerMTok:     2.5,
		CompletionUSDPerMTok: 10,
	}}}

	entries, err := cfg.CatalogEntries()
	if err != nil {
		t.Fatalf("CatalogEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries=%d", len(entries))
	}
	e := entries[0]
	if e.Prefix != "gpt-4o" || e.Capabilities.Vendor != catalog.VendorOpenAI {
		t.Fatalf("entry=%+v", e)
	}
	if e.Capabilities.PromptUSDPerMTok != 2.5 {
		t.Fatalf("pricing=%+v", e.Capabilities)
	}
}

func TestCatalogEntries_UnknownVendor(t *testing.T) {
	cfg := Config{Models: []ModelConfig{{Prefix: "x-", Vendor: "acme"}}}
	if _, err := cfg.CatalogEntries(); err == nil {
		t.Fatalf("expected error for unknown vendor")
	}
}

func TestChanged(t *testing.T) {
	a := Config{Vendors: VendorConfig{OpenAIKey: "a"}}
	b := Config{Vendors: VendorConfig{OpenAIKey: "b"}}
	if !Changed(a, b) {
		t.Fatalf("Changed(a,b)=false")
	}
	if Changed(a, a) {
		t.Fatalf("Changed(a,a)=true")
	}
}
