// Package catalog holds the model capability table: which vendor serves a
// model name and which request features that model accepts.
//
// The table is process-wide read-only configuration. Install may be called at
// most once, before any traffic; after that every lookup sees the same
// immutable snapshot.
package catalog

import (
	"errors"
	"sort"
	"strings"
	"sync/atomic"
)

type Vendor string

const (
	VendorUnknown   Vendor = "unknown"
	VendorOpenAI    Vendor = "openai"
	VendorAnthropic Vendor = "anthropic"
	VendorGoogle    Vendor = "google"
)

// Capabilities describes what a model family accepts.
type Capabilities struct {
	Vendor Vendor

	// SupportsTemperature is false for model families that reject sampling
	// parameters (temperature/top_p). Per model family, not per vendor.
	SupportsTemperature bool

	// UsesResponsesEndpoint selects the next-generation request schema and
	// path for OpenAI-style models on the allow-list.
	UsesResponsesEndpoint bool

	// SupportsBYOK marks models that may be served with a customer-supplied
	// vendor key instead of the platform credential.
	SupportsBYOK bool

	// Pricing in USD per million tokens. Zero means unknown; the billing
	// layer leaves cost unset rather than guessing.
	PromptUSDPerMTok     float64
	CompletionUSDPerMTok float64
}

// Entry binds a model-name prefix to capabilities. The longest matching
// prefix wins, so "gpt-4o" can override "gpt-".
type Entry struct {
	Prefix string
	Capabilities
}

var defaultEntries = []Entry{
	{Prefix: "gpt-4o", Capabilities: Capabilities{Vendor: VendorOpenAI, SupportsTemperature: true, SupportsBYOK: true, PromptUSDPerMTok: 2.5, CompletionUSDPerMTok: 10}},
	{Prefix: "gpt-4.1", Capabilities: Capabilities{Vendor: VendorOpenAI, SupportsTemperature: true, SupportsBYOK: true, PromptUSDPerMTok: 2, CompletionUSDPerMTok: 8}},
	{Prefix: "gpt-4", Capabilities: Capabilities{Vendor: VendorOpenAI, SupportsTemperature: true, SupportsBYOK: true}},
	{Prefix: "gpt-5", Capabilities: Capabilities{Vendor: VendorOpenAI, SupportsTemperature: false, UsesResponsesEndpoint: true, SupportsBYOK: true, PromptUSDPerMTok: 1.25, CompletionUSDPerMTok: 10}},
	{Prefix: "o1", Capabilities: Capabilities{Vendor: VendorOpenAI, SupportsTemperature: false, SupportsBYOK: true}},
	{Prefix: "o3", Capabilities: Capabilities{Vendor: VendorOpenAI, SupportsTemperature: false, UsesResponsesEndpoint: true, SupportsBYOK: true}},
	{Prefix: "o4", Capabilities: Capabilities{Vendor: VendorOpenAI, SupportsTemperature: false, UsesResponsesEndpoint: true, SupportsBYOK: true}},
	{Prefix: "claude-", Capabilities: Capabilities{Vendor: VendorAnthropic, SupportsTemperature: true, SupportsBYOK: true, PromptUSDPerMTok: 3, CompletionUSDPerMTok: 15}},
	{Prefix: "gemini-", Capabilities: Capabilities{Vendor: VendorGoogle, SupportsTemperature: true, PromptUSDPerMTok: 1.25, CompletionUSDPerMTok: 5}},
}

type table struct {
	entries []Entry
}

var current atomic.Pointer[table]
var installed atomic.Bool

func init() {
	current.Store(newTable(defaultEntries))
}

func newTable(entries []Entry) *table {
	sorted := append([]Entry(nil), entries...)
	// Longest prefix first so Resolve can stop at the first match.
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &table{entries: sorted}
}

// Install replaces the default table. It may be called at most once, during
// startup, before any adapter is created.
func Install(entries []Entry) error {
	if len(entries) == 0 {
		return errors.New("catalog: empty capability table")
	}
	for _, e := range entries {
		if e.Prefix == "" {
			return errors.New("catalog: entry with empty prefix")
		}
		if e.Vendor == "" || e.Vendor == VendorUnknown {
			return errors.New("catalog: entry " + e.Prefix + " with no vendor")
		}
	}
	if !installed.CompareAndSwap(false, true) {
		return errors.New("catalog: capability table already installed")
	}
	current.Store(newTable(entries))
	return nil
}

// Resolve returns the capabilities for a model name. Resolution is a pure
// prefix match, deterministic and offline.
func Resolve(model string) (Capabilities, bool) {
	t := current.Load()
	for _, e := range t.entries {
		if strings.HasPrefix(model, e.Prefix) {
			return e.Capabilities, true
		}
	}
	return Capabilities{Vendor: VendorUnknown}, false
}

// Entries returns a copy of the active table, longest prefix first.
func Entries() []Entry {
	t := current.Load()
	return append([]Entry(nil), t.entries...)
}
