package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/chipp-ai/dispatch-sub022/llm"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(r *http.Request, status int, body string) *http.Response {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: h, Request: r}
}

func sseResponse(r *http.Request, events ...string) *http.Response {
	var lines []string
	for _, e := range events {
		lines = append(lines, "data: "+e, "")
	}
	h := make(http.Header)
	h.Set("Content-Type", "text/event-stream")
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(strings.Join(lines, "\n"))), Header: h, Request: r}
}

func newTestProvider(t *testing.T, rt roundTripperFunc) *Provider {
	t.Helper()
	p, err := New("test-key",
		WithBaseURL("https://example.test"),
		WithHTTPClient(&http.Client{Transport: rt}),
	)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return p
}

func TestChat_PathAndAuth(t *testing.T) {
	p := newTestProvider(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1beta/models/gemini-2.0-flash:generateContent" {
			t.Errorf("path=%q", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("x-goog-api-key=%q", got)
		}
		return jsonResponse(r, http.StatusOK,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"hello"}]},"finishReason":"STOP","index":0}],`+
				`"usageMetadata":{"promptTokenCount":6,"candidatesTokenCount":1,"totalTokenCount":7}}`), nil
	})

	resp, err := p.Chat(context.Background(), llm.ChatRequest{Model: "gemini-2.0-flash", Messages: []llm.Message{llm.User("hi")}})
	if err != nil {
		t.Fatalf("Chat() err=%v", err)
	}
	if resp.FirstText() != "hello" {
		t.Fatalf("FirstText()=%q", resp.FirstText())
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 7 {
		t.Fatalf("Usage=%+v", resp.Usage)
	}
}

func TestChat_FunctionCallWithoutID(t *testing.T) {
	p := newTestProvider(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusOK,
			`{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"get_weather","args":{"city":"SF"}}}]},"finishReason":"STOP","index":0}]}`), nil
	})

	resp, err := p.Chat(context.Background(), llm.ChatRequest{Model: "gemini-2.0-flash", Messages: []llm.Message{llm.User("hi")}})
	if err != nil {
		t.Fatalf("Chat() err=%v", err)
	}
	tc := resp.Choices[0].Message.ToolCalls[0]
	// No call IDs on this wire.
	if tc.ID != "" {
		t.Fatalf("ID=%q, want empty", tc.ID)
	}
	if tc.Name != "get_weather" {
		t.Fatalf("Name=%q", tc.Name)
	}
	var args map[string]string
	if err := json.Unmarshal(tc.Arguments, &args); err != nil || args["city"] != "SF" {
		t.Fatalf("Arguments=%q err=%v", tc.Arguments, err)
	}
	if resp.Choices[0].FinishReason != llm.FinishReasonToolCalls {
		t.Fatalf("FinishReason=%q", resp.Choices[0].FinishReason)
	}
}

func TestMapRequest_SystemAndToolResultByName(t *testing.T) {
	var body []byte
	p := newTestProvider(t, func(r *http.Request) (*http.Response, error) {
		body, _ = io.ReadAll(r.Body)
		return jsonResponse(r, http.StatusOK,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"ok"}]},"finishReason":"STOP","index":0}]}`), nil
	})

	result := llm.ToolResult("", `{"temp": 18}`)
	result.Name = "get_weather"
	_, err := p.Chat(context.Background(), llm.ChatRequest{
		Model: "gemini-2.0-flash",
		Messages: []llm.Message{
			llm.System("be brief"),
			llm.User("weather?"),
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{Name: "get_weather", Arguments: json.RawMessage(`{"city":"SF"}`)}}},
			result,
		},
	})
	if err != nil {
		t.Fatalf("Chat() err=%v", err)
	}

	var wreq struct {
		SystemInstruction *struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"systemInstruction"`
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text             string `json:"text"`
				FunctionCall     *struct{ Name string } `json:"functionCall"`
				FunctionResponse *struct {
					Name     string         `json:"name"`
					Response map[string]any `json:"response"`
				} `json:"functionResponse"`
			} `json:"parts"`
		} `json:"contents"`
	}
	if err := json.Unmarshal(body, &wreq); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if wreq.SystemInstruction == nil || wreq.SystemInstruction.Parts[0].Text != "be brief" {
		t.Fatalf("systemInstruction=%+v", wreq.SystemInstruction)
	}
	if len(wreq.Contents) != 3 {
		t.Fatalf("contents=%d", len(wreq.Contents))
	}
	if wreq.Contents[1].Role != "model" || wreq.Contents[1].Parts[0].FunctionCall == nil {
		t.Fatalf("assistant turn=%+v", wreq.Contents[1])
	}
	fr := wreq.Contents[2].Parts[0].FunctionResponse
	if fr == nil || fr.Name != "get_weather" {
		t.Fatalf("functionResponse=%+v", fr)
	}
	// JSON-object results pass through unwrapped.
	if fr.Response["temp"] != float64(18) {
		t.Fatalf("response=%v", fr.Response)
	}
}

func TestMapRequest_GenerationConfig(t *testing.T) {
	var body []byte
	p := newTestProvider(t, func(r *http.Request) (*http.Response, error) {
		body, _ = io.ReadAll(r.Body)
		return jsonResponse(r, http.StatusOK,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"ok"}]},"finishReason":"STOP","index":0}]}`), nil
	})

	temp := 0.4
	maxTokens := 100
	_, err := p.Chat(context.Background(), llm.ChatRequest{
		Model:       "gemini-2.0-flash",
		Messages:    []llm.Message{llm.User("hi")},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		Stop:        []string{"END"},
	})
	if err != nil {
		t.Fatalf("Chat() err=%v", err)
	}
	if !bytes.Contains(body, []byte(`"temperature":0.4`)) ||
		!bytes.Contains(body, []byte(`"maxOutputTokens":100`)) ||
		!bytes.Contains(body, []byte(`"stopSequences":["END"]`)) {
		t.Fatalf("generationConfig incomplete: %s", body)
	}
}

func TestChatStream_TextAndUsageAtEOF(t *testing.T) {
	p := newTestProvider(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1beta/models/gemini-2.0-flash:streamGenerateContent" {
			t.Errorf("path=%q", r.URL.Path)
		}
		if got := r.URL.Query().Get("alt"); got != "sse" {
			t.Errorf("alt=%q", got)
		}
		return sseResponse(r,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hel"}]},"index":0}]}`,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"lo"}]},"finishReason":"STOP","index":0}],`+
				`"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":2,"totalTokenCount":6}}`,
		), nil
	})

	stream, err := p.ChatStream(context.Background(), llm.ChatRequest{Model: "gemini-2.0-flash", Messages: []llm.Message{llm.User("hi")}})
	if err != nil {
		t.Fatalf("ChatStream() err=%v", err)
	}
	defer stream.Close()

	var doneEvents int
	var acc llm.Accumulator
	for {
		ev, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				break
			}
			t.Fatalf("Recv() err=%v", err)
		}
		if ev.Usage != nil && !ev.Done() {
			t.Fatalf("usage on non-terminal event %q", ev.Kind)
		}
		if ev.Done() {
			doneEvents++
		}
		acc.Apply(ev)
		if ev.Done() {
			break
		}
	}
	if doneEvents != 1 {
		t.Fatalf("done events=%d", doneEvents)
	}
	if acc.Usage() == nil || acc.Usage().TotalTokens != 6 {
		t.Fatalf("Usage=%+v", acc.Usage())
	}
	if got := acc.FinalResponse().FirstText(); got != "Hello" {
		t.Fatalf("FirstText()=%q", got)
	}
}

func TestChatStream_FunctionCallArrivesWhole(t *testing.T) {
	p := newTestProvider(t, func(r *http.Request) (*http.Response, error) {
		return sseResponse(r,
			`{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"lookup","args":{"q":"go"}}}]},"finishReason":"STOP","index":0}]}`,
		), nil
	})

	stream, err := p.ChatStream(context.Background(), llm.ChatRequest{Model: "gemini-2.0-flash", Messages: []llm.Message{llm.User("hi")}})
	if err != nil {
		t.Fatalf("ChatStream() err=%v", err)
	}

	resp, err := llm.DrainStream(stream)
	if err != nil {
		t.Fatalf("DrainStream() err=%v", err)
	}
	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("ToolCalls=%d", len(msg.ToolCalls))
	}
	tc := msg.ToolCalls[0]
	if tc.Name != "lookup" || tc.ID != "" {
		t.Fatalf("ToolCall=%+v", tc)
	}
	var args map[string]string
	if err := json.Unmarshal(tc.Arguments, &args); err != nil || args["q"] != "go" {
		t.Fatalf("Arguments=%q err=%v", tc.Arguments, err)
	}
	if resp.Choices[0].FinishReason != llm.FinishReasonToolCalls {
		t.Fatalf("FinishReason=%q", resp.Choices[0].FinishReason)
	}
}

func TestChat_HTTPErrorMapping(t *testing.T) {
	p := newTestProvider(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusNotFound,
			`{"error":{"code":404,"message":"model not found","status":"NOT_FOUND"}}`), nil
	})

	_, err := p.Chat(context.Background(), llm.ChatRequest{Model: "gemini-nope", Messages: []llm.Message{llm.User("hi")}})
	llme, ok := llm.AsLLMError(err)
	if !ok {
		t.Fatalf("expected LLMError, got %v", err)
	}
	if llme.Kind != llm.ErrKindNotFound {
		t.Fatalf("Kind=%q", llme.Kind)
	}
	if llme.ProviderCode != "NOT_FOUND" {
		t.Fatalf("ProviderCode=%q", llme.ProviderCode)
	}
}
