package billing

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/chipp-ai/dispatch-sub022/llm"
	"github.com/chipp-ai/dispatch-sub022/llm/catalog"
)

// Provider wraps an llm.Provider with billing attribution.
//
// Every outbound call carries customer headers plus a short-lived signed
// token; completed calls have their usage priced from the catalog. A stream
// that finishes without a usage payload is an UnbilledCompletionError, and a
// stream abandoned before its terminal event is counted as
// unbilled-by-cancellation.
type Provider struct {
	inner llm.Provider
	bctx  Context
	cred  Credential

	// direct, when set, is an unattributed client used only for requests
	// whose inline media exceeds ceilingBytes. The proxy rejects oversized
	// bodies, so those calls must go straight to the vendor.
	direct       llm.Provider
	ceilingBytes int64

	issuer   string
	tokenTTL time.Duration
	now      func() time.Time

	audit  *Audit
	logger *slog.Logger
}

type Option func(*Provider)

// WithDirectClient enables the large-media bypass via an unattributed vendor
// client. Requests with inline payloads above ceilingBytes skip the proxy.
func WithDirectClient(direct llm.Provider, ceilingBytes int64) Option {
	return func(p *Provider) {
		p.direct = direct
		if ceilingBytes > 0 {
			p.ceilingBytes = ceilingBytes
		}
	}
}

func WithAudit(a *Audit) Option {
	return func(p *Provider) {
		if a != nil {
			p.audit = a
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithIssuer(issuer string) Option {
	return func(p *Provider) { p.issuer = issuer }
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.tokenTTL = ttl
		}
	}
}

// withNow pins the token clock in tests.
func withNow(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

func NewProvider(inner llm.Provider, bctx Context, cred Credential, opts ...Option) (*Provider, error) {
	if err := bctx.Validate(); err != nil {
		return nil, err
	}
	if !cred.configured() {
		return nil, &llm.LLMError{Provider: "billing", Kind: llm.ErrKindConfig, Message: "billing proxy credentials are not configured"}
	}

	p := &Provider{
		inner:        inner,
		bctx:         bctx,
		cred:         cred,
		ceilingBytes: DefaultPayloadCeilingBytes,
		tokenTTL:     defaultTokenTTL,
		now:          time.Now,
		audit:        DefaultAudit(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if target, bypass := p.route(req); bypass {
		resp, err := target.Chat(ctx, req)
		if err == nil {
			p.priceUsage(req.Model, resp.Usage)
		}
		return resp, err
	}

	attributed, err := p.attribute(req)
	if err != nil {
		return llm.ChatResponse{}, err
	}

	resp, err := p.inner.Chat(ctx, attributed)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	if resp.Usage == nil {
		p.audit.unbilledCompletion.Add(1)
		p.logger.Error("completion finished without usage", "customer_id", p.bctx.CustomerID, "model", req.Model)
		return llm.ChatResponse{}, p.unbilledError(req.Model)
	}
	p.priceUsage(req.Model, resp.Usage)
	p.audit.billed.Add(1)
	return resp, nil
}

func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest) (llm.Stream, error) {
	// An explicitly disabled include-usage flag would make every completion
	// unattributable, so it is a configuration error, not a preference.
	if req.StreamOptions != nil && !req.StreamOptions.IncludeUsage {
		return nil, &llm.LLMError{Provider: "billing", Kind: llm.ErrKindConfig, Message: "streaming with include-usage disabled cannot be billed"}
	}

	if target, bypass := p.route(req); bypass {
		inner, err := target.ChatStream(ctx, req)
		if err != nil {
			return nil, err
		}
		return &billedStream{p: p, inner: inner, model: req.Model, bypass: true}, nil
	}

	attributed, err := p.attribute(req)
	if err != nil {
		return nil, err
	}
	attributed.StreamOptions = &llm.StreamOptions{IncludeUsage: true}

	inner, err := p.inner.ChatStream(ctx, attributed)
	if err != nil {
		return nil, err
	}
	return &billedStream{p: p, inner: inner, model: req.Model}, nil
}

// route decides whether a request takes the large-media bypass.
func (p *Provider) route(req llm.ChatRequest) (llm.Provider, bool) {
	if p.direct == nil {
		return nil, false
	}
	size := req.InlineBytes()
	if size <= p.ceilingBytes {
		return nil, false
	}
	p.audit.bypass.Add(1)
	p.logger.Warn("inline media exceeds proxy payload ceiling; routing direct",
		"customer_id", p.bctx.CustomerID,
		"model", req.Model,
		"inline_bytes", size,
		"ceiling_bytes", p.ceilingBytes)
	return p.direct, true
}

// attribute returns a copy of req with the billing headers attached.
func (p *Provider) attribute(req llm.ChatRequest) (llm.ChatRequest, error) {
	token, err := mintToken(p.cred.Secret, p.issuer, p.tokenTTL, p.bctx, p.now())
	if err != nil {
		return llm.ChatRequest{}, &llm.LLMError{Provider: "billing", Kind: llm.ErrKindConfig, Message: "failed to mint attribution token", Cause: err}
	}

	out := req.Clone()
	if out.Transport == nil {
		out.Transport = &llm.TransportOptions{}
	}
	if out.Transport.Headers == nil {
		out.Transport.Headers = make(http.Header)
	}
	out.Transport.Headers.Set("X-Customer-Id", p.bctx.CustomerID)
	if p.bctx.OrganizationID != "" {
		out.Transport.Headers.Set("X-Organization-Id", p.bctx.OrganizationID)
	}
	out.Transport.Headers.Set("Authorization", "Bearer "+token)
	return out, nil
}

// priceUsage fills CostUSD from catalog pricing. Unknown pricing leaves the
// cost unset rather than guessing.
func (p *Provider) priceUsage(model string, u *llm.Usage) {
	if u == nil {
		return
	}
	caps, ok := catalog.Resolve(model)
	if !ok || (caps.PromptUSDPerMTok == 0 && caps.CompletionUSDPerMTok == 0) {
		return
	}
	cost := float64(u.PromptTokens)*caps.PromptUSDPerMTok/1e6 +
		float64(u.CompletionTokens)*caps.CompletionUSDPerMTok/1e6
	u.CostUSD = &cost
}

func (p *Provider) unbilledError(model string) error {
	return &llm.LLMError{
		Provider: "billing",
		Kind:     llm.ErrKindUnbilled,
		Message:  "completion for model " + model + " finished without usage; tokens were generated but not attributed",
	}
}

// billedStream watches for the terminal event and settles the outcome:
// billed on usage, unbilled-completion when the terminal event has none,
// unbilled-by-cancellation when closed early.
type billedStream struct {
	p      *Provider
	inner  llm.Stream
	model  string
	bypass bool

	settled bool
	closed  bool
}

func (s *billedStream) Recv() (llm.StreamEvent, error) {
	ev, err := s.inner.Recv()
	if err != nil {
		return ev, err
	}
	if !ev.Done() {
		return ev, nil
	}

	s.settled = true
	if s.bypass {
		// Bypassed calls were already counted at routing time and carry no
		// attribution; pricing still applies for the caller's books.
		s.p.priceUsage(s.model, ev.Usage)
		return ev, nil
	}
	if ev.Usage == nil {
		s.p.audit.unbilledCompletion.Add(1)
		s.p.logger.Error("stream finished without usage", "customer_id", s.p.bctx.CustomerID, "model", s.model)
		return llm.StreamEvent{}, s.p.unbilledError(s.model)
	}
	s.p.priceUsage(s.model, ev.Usage)
	s.p.audit.billed.Add(1)
	return ev, nil
}

func (s *billedStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.settled && !s.bypass {
		s.p.audit.unbilledCancellation.Add(1)
		s.p.logger.Warn("stream closed before terminal event; completion is unbilled",
			"customer_id", s.p.bctx.CustomerID,
			"model", s.model)
	}
	return s.inner.Close()
}
