package billing

import (
	"time"

	"github.com/chipp-ai/dispatch-sub022/llm"
)

const (
	// DefaultPayloadCeilingBytes is the proxy's request body ceiling. Inline
	// media beyond this routes around the proxy when a direct client exists.
	DefaultPayloadCeilingBytes int64 = 8 << 20

	defaultTokenTTL = 2 * time.Minute
)

// Credential is one proxy endpoint plus its token-signing secret.
type Credential struct {
	ProxyURL string
	Secret   string
}

func (c Credential) configured() bool { return c.ProxyURL != "" && c.Secret != "" }

// Config holds the live and sandbox credential pairs.
type Config struct {
	Live    Credential
	Sandbox Credential

	// PayloadCeilingBytes overrides DefaultPayloadCeilingBytes when positive.
	PayloadCeilingBytes int64

	// TokenTTL bounds the attribution token lifetime.
	TokenTTL time.Duration

	// Issuer is stamped into minted tokens.
	Issuer string
}

// Credential selects the live or sandbox pair and fails with a configuration
// error when the selected pair is absent.
func (c Config) Credential(sandbox bool) (Credential, error) {
	cred := c.Live
	mode := "live"
	if sandbox {
		cred = c.Sandbox
		mode = "sandbox"
	}
	if !cred.configured() {
		return Credential{}, &llm.LLMError{Provider: "billing", Kind: llm.ErrKindConfig, Message: "billing proxy " + mode + " credentials are not configured"}
	}
	return cred, nil
}

func (c Config) ceiling() int64 {
	if c.PayloadCeilingBytes > 0 {
		return c.PayloadCeilingBytes
	}
	return DefaultPayloadCeilingBytes
}

func (c Config) tokenTTL() time.Duration {
	if c.TokenTTL > 0 {
		return c.TokenTTL
	}
	return defaultTokenTTL
}
