// Package billing wraps a provider so that every outbound call carries
// billing attribution for the metering proxy, and so that completed work is
// always accounted for (or loudly reported as unaccounted).
package billing

import "github.com/chipp-ai/dispatch-sub022/llm"

// Context identifies who a logical request is billed to. It is built per
// request, passed through, and never persisted by this layer.
type Context struct {
	// CustomerID is required; calls with an empty customer are refused
	// before any network traffic.
	CustomerID string

	OrganizationID string

	// Sandbox selects the sandbox credential/endpoint pair. Attribution
	// logic is identical in both modes.
	Sandbox bool
}

func (c Context) Validate() error {
	if c.CustomerID == "" {
		return &llm.LLMError{Provider: "billing", Kind: llm.ErrKindConfig, Message: "billing context has empty customer ID"}
	}
	return nil
}
