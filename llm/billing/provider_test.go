package billing

import (
	"context"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/chipp-ai/dispatch-sub022/llm"
)

type fakeProvider struct {
	lastReq llm.ChatRequest
	calls   int
	resp    llm.ChatResponse
	events  []llm.StreamEvent
	err     error
}

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	f.lastReq = req
	f.calls++
	return f.resp, f.err
}

func (f *fakeProvider) ChatStream(ctx context.Context, req llm.ChatRequest) (llm.Stream, error) {
	f.lastReq = req
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &fakeStream{events: f.events}, nil
}

type fakeStream struct {
	events []llm.StreamEvent
	pos    int
	closed bool
}

func (s *fakeStream) Recv() (llm.StreamEvent, error) {
	if s.pos >= len(s.events) {
		return llm.StreamEvent{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

var testCred = Credential{ProxyURL: "https://proxy.test", Secret: "sekrit"}

func testContext() Context {
	return Context{CustomerID: "cus_1", OrganizationID: "org_1"}
}

func okResponse() llm.ChatResponse {
	return llm.ChatResponse{
		Choices: []llm.ChatChoice{{Message: llm.Assistant("ok"), FinishReason: llm.FinishReasonStop}},
		Usage:   &llm.Usage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000},
	}
}

func newTestProvider(t *testing.T, inner llm.Provider, bctx Context, opts ...Option) (*Provider, *Audit) {
	t.Helper()
	audit := &Audit{}
	now := time.Now().UTC()
	opts = append(opts, WithAudit(audit), withNow(func() time.Time {
		return now
	}))
	p, err := NewProvider(inner, bctx, testCred, opts...)
	if err != nil {
		t.Fatalf("NewProvider() err=%v", err)
	}
	return p, audit
}

func TestNewProvider_EmptyCustomerID(t *testing.T) {
	_, err := NewProvider(&fakeProvider{}, Context{}, testCred)
	if !llm.IsConfig(err) {
		t.Fatalf("err=%v, want config error", err)
	}
}

func TestNewProvider_MissingCredentials(t *testing.T) {
	_, err := NewProvider(&fakeProvider{}, testContext(), Credential{})
	if !llm.IsConfig(err) {
		t.Fatalf("err=%v, want config error", err)
	}
}

func TestChat_AttachesAttribution(t *testing.T) {
	inner := &fakeProvider{resp: okResponse()}
	p, audit := newTestProvider(t, inner, testContext())

	resp, err := p.Chat(context.Background(), llm.ChatRequest{Model: "gpt-4o", Messages: []llm.Message{llm.User("hi")}})
	if err != nil {
		t.Fatalf("Chat() err=%v", err)
	}

	hdr := inner.lastReq.Transport.Headers
	if got := hdr.Get("X-Customer-Id"); got != "cus_1" {
		t.Fatalf("X-Customer-Id=%q", got)
	}
	if got := hdr.Get("X-Organization-Id"); got != "org_1" {
		t.Fatalf("X-Organization-Id=%q", got)
	}
	auth := hdr.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		t.Fatalf("Authorization=%q", auth)
	}
	claims, err := ParseToken(testCred.Secret, strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		t.Fatalf("ParseToken() err=%v", err)
	}
	if claims.CustomerID != "cus_1" || claims.OrganizationID != "org_1" || claims.Sandbox {
		t.Fatalf("claims=%+v", claims)
	}

	// gpt-4o pricing: 2.5/10 USD per MTok, 1000/1000 tokens.
	if resp.Usage.CostUSD == nil || math.Abs(*resp.Usage.CostUSD-0.0125) > 1e-9 {
		t.Fatalf("CostUSD=%v", resp.Usage.CostUSD)
	}
	if got := audit.Snapshot().Billed; got != 1 {
		t.Fatalf("billed=%d", got)
	}
}

func TestChat_DoesNotMutateCallerRequest(t *testing.T) {
	inner := &fakeProvider{resp: okResponse()}
	p, _ := newTestProvider(t, inner, testContext())

	req := llm.ChatRequest{Model: "gpt-4o", Messages: []llm.Message{llm.User("hi")}}
	if _, err := p.Chat(context.Background(), req); err != nil {
		t.Fatalf("Chat() err=%v", err)
	}
	if req.Transport != nil {
		t.Fatalf("caller request was mutated")
	}
}

func TestChat_MissingUsageIsUnbilled(t *testing.T) {
	inner := &fakeProvider{resp: llm.ChatResponse{
		Choices: []llm.ChatChoice{{Message: llm.Assistant("ok")}},
	}}
	p, audit := newTestProvider(t, inner, testContext())

	_, err := p.Chat(context.Background(), llm.ChatRequest{Model: "gpt-4o", Messages: []llm.Message{llm.User("hi")}})
	if !llm.IsUnbilled(err) {
		t.Fatalf("err=%v, want unbilled error", err)
	}
	if got := audit.Snapshot().UnbilledCompletion; got != 1 {
		t.Fatalf("unbilled_completion=%d", got)
	}
}

func TestChatStream_ExplicitIncludeUsageDisabled(t *testing.T) {
	p, _ := newTestProvider(t, &fakeProvider{}, testContext())

	_, err := p.ChatStream(context.Background(), llm.ChatRequest{
		Model:         "gpt-4o",
		Messages:      []llm.Message{llm.User("hi")},
		StreamOptions: &llm.StreamOptions{IncludeUsage: false},
	})
	if !llm.IsConfig(err) {
		t.Fatalf("err=%v, want config error", err)
	}
}

func TestChatStream_ForcesIncludeUsage(t *testing.T) {
	inner := &fakeProvider{events: []llm.StreamEvent{
		{Kind: llm.StreamEventDone, ChoiceIndex: -1, Usage: &llm.Usage{TotalTokens: 1}},
	}}
	p, _ := newTestProvider(t, inner, testContext())

	stream, err := p.ChatStream(context.Background(), llm.ChatRequest{Model: "gpt-4o", Messages: []llm.Message{llm.User("hi")}})
	if err != nil {
		t.Fatalf("ChatStream() err=%v", err)
	}
	defer stream.Close()

	if so := inner.lastReq.StreamOptions; so == nil || !so.IncludeUsage {
		t.Fatalf("StreamOptions=%+v", so)
	}
}

func TestChatStream_BilledOnTerminalUsage(t *testing.T) {
	inner := &fakeProvider{events: []llm.StreamEvent{
		{Kind: llm.StreamEventPartDelta, PartDelta: &llm.PartDelta{Type: llm.ContentPartText, TextDelta: "ok"}},
		{Kind: llm.StreamEventChoiceDone, FinishReason: llm.FinishReasonStop},
		{Kind: llm.StreamEventDone, ChoiceIndex: -1, Usage: &llm.Usage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000}},
	}}
	p, audit := newTestProvider(t, inner, testContext())

	stream, err := p.ChatStream(context.Background(), llm.ChatRequest{Model: "gpt-4o", Messages: []llm.Message{llm.User("hi")}})
	if err != nil {
		t.Fatalf("ChatStream() err=%v", err)
	}
	resp, err := llm.DrainStream(stream)
	if err != nil {
		t.Fatalf("DrainStream() err=%v", err)
	}
	if resp.Usage == nil || resp.Usage.CostUSD == nil || math.Abs(*resp.Usage.CostUSD-0.0125) > 1e-9 {
		t.Fatalf("Usage=%+v", resp.Usage)
	}
	snap := audit.Snapshot()
	if snap.Billed != 1 || snap.UnbilledCancellation != 0 {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestChatStream_TerminalWithoutUsage(t *testing.T) {
	inner := &fakeProvider{events: []llm.StreamEvent{
		{Kind: llm.StreamEventPartDelta, PartDelta: &llm.PartDelta{Type: llm.ContentPartText, TextDelta: "ok"}},
		{Kind: llm.StreamEventDone, ChoiceIndex: -1},
	}}
	p, audit := newTestProvider(t, inner, testContext())

	stream, err := p.ChatStream(context.Background(), llm.ChatRequest{Model: "gpt-4o", Messages: []llm.Message{llm.User("hi")}})
	if err != nil {
		t.Fatalf("ChatStream() err=%v", err)
	}
	defer stream.Close()

	_, err = stream.Recv() // part delta
	if err != nil {
		t.Fatalf("Recv() err=%v", err)
	}
	_, err = stream.Recv() // terminal, no usage
	if !llm.IsUnbilled(err) {
		t.Fatalf("err=%v, want unbilled error", err)
	}
	if got := audit.Snapshot().UnbilledCompletion; got != 1 {
		t.Fatalf("unbilled_completion=%d", got)
	}
}

func TestChatStream_CancellationCountedOnEarlyClose(t *testing.T) {
	inner := &fakeProvider{events: []llm.StreamEvent{
		{Kind: llm.StreamEventPartDelta, PartDelta: &llm.PartDelta{Type: llm.ContentPartText, TextDelta: "chunk1"}},
		{Kind: llm.StreamEventPartDelta, PartDelta: &llm.PartDelta{Type: llm.ContentPartText, TextDelta: "chunk2"}},
		{Kind: llm.StreamEventPartDelta, PartDelta: &llm.PartDelta{Type: llm.ContentPartText, TextDelta: "chunk3"}},
		{Kind: llm.StreamEventPartDelta, PartDelta: &llm.PartDelta{Type: llm.ContentPartText, TextDelta: "chunk4"}},
		{Kind: llm.StreamEventDone, ChoiceIndex: -1, Usage: &llm.Usage{TotalTokens: 9}},
	}}
	p, audit := newTestProvider(t, inner, testContext())

	stream, err := p.ChatStream(context.Background(), llm.ChatRequest{Model: "gpt-4o", Messages: []llm.Message{llm.User("hi")}})
	if err != nil {
		t.Fatalf("ChatStream() err=%v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := stream.Recv(); err != nil {
			t.Fatalf("Recv() err=%v", err)
		}
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close() err=%v", err)
	}

	snap := audit.Snapshot()
	if snap.UnbilledCancellation != 1 {
		t.Fatalf("unbilled_cancellation=%d", snap.UnbilledCancellation)
	}
	if snap.Billed != 0 {
		t.Fatalf("billed=%d, nothing should be billed", snap.Billed)
	}
	// Double close is idempotent.
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close() err=%v", err)
	}
	if audit.Snapshot().UnbilledCancellation != 1 {
		t.Fatalf("cancellation counted twice")
	}
}

func TestChat_OversizedMediaBypassesProxy(t *testing.T) {
	proxy := &fakeProvider{resp: okResponse()}
	direct := &fakeProvider{resp: okResponse()}
	p, audit := newTestProvider(t, proxy, testContext(), WithDirectClient(direct, 1024))

	big := llm.Message{Role: llm.RoleUser, Parts: []llm.ContentPart{
		llm.BinaryPart(make([]byte, 2048), "video/mp4"),
	}}
	_, err := p.Chat(context.Background(), llm.ChatRequest{Model: "gemini-2.0-flash", Messages: []llm.Message{big}})
	if err != nil {
		t.Fatalf("Chat() err=%v", err)
	}

	if proxy.calls != 0 {
		t.Fatalf("proxy calls=%d, want 0", proxy.calls)
	}
	if direct.calls != 1 {
		t.Fatalf("direct calls=%d, want 1", direct.calls)
	}
	// Bypassed calls carry no attribution headers.
	if direct.lastReq.Transport != nil {
		t.Fatalf("attribution attached on bypass: %+v", direct.lastReq.Transport)
	}
	if got := audit.Snapshot().Bypass; got != 1 {
		t.Fatalf("bypass=%d", got)
	}
}

func TestChat_SmallMediaStaysOnProxy(t *testing.T) {
	proxy := &fakeProvider{resp: okResponse()}
	direct := &fakeProvider{resp: okResponse()}
	p, audit := newTestProvider(t, proxy, testContext(), WithDirectClient(direct, 1024))

	small := llm.Message{Role: llm.RoleUser, Parts: []llm.ContentPart{
		llm.BinaryPart(make([]byte, 100), "image/png"),
	}}
	_, err := p.Chat(context.Background(), llm.ChatRequest{Model: "gemini-2.0-flash", Messages: []llm.Message{small}})
	if err != nil {
		t.Fatalf("Chat() err=%v", err)
	}
	if proxy.calls != 1 || direct.calls != 0 {
		t.Fatalf("proxy=%d direct=%d", proxy.calls, direct.calls)
	}
	if got := audit.Snapshot().Bypass; got != 0 {
		t.Fatalf("bypass=%d", got)
	}
}
