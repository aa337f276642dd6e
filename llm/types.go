package llm

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonUnknown   FinishReason = "unknown"
)

type ContentPartType string

const (
	ContentPartText      ContentPartType = "text"
	ContentPartReasoning ContentPartType = "reasoning"
	ContentPartBinary    ContentPartType = "binary"
)

// ContentPart is a provider-agnostic "message content segment".
//
// Many vendors represent message content as an array of parts (text, media, etc.).
// Keeping this as a first-class concept makes it easier to map to/from different APIs.
type ContentPart struct {
	Type ContentPartType `json:"type"`

	// Text is used by ContentPartText and ContentPartReasoning.
	Text string `json:"text,omitempty"`

	// Data/MIME are for inline binary payloads (e.g. images/audio/video).
	// Only some vendors accept them; their size also drives billing bypass routing.
	Data []byte `json:"data,omitempty"`
	MIME string `json:"mime,omitempty"`
}

func TextPart(text string) ContentPart { return ContentPart{Type: ContentPartText, Text: text} }
func ReasoningPart(text string) ContentPart {
	return ContentPart{Type: ContentPartReasoning, Text: text}
}
func BinaryPart(data []byte, mime string) ContentPart {
	return ContentPart{Type: ContentPartBinary, Data: append([]byte(nil), data...), MIME: mime}
}

// Message is a canonical chat message.
//
// For tool results, use RoleTool with ToolCallID set (or Name for vendors that
// correlate by function name). For assistant tool calls, use ToolCalls.
type Message struct {
	Role Role

	// Name is an optional sender name. For RoleTool messages it carries the
	// tool name, which is the correlation key for vendors without call IDs.
	Name string

	Parts []ContentPart

	ToolCallID string
	ToolCalls  []ToolCall
}

func System(text string) Message {
	return Message{Role: RoleSystem, Parts: []ContentPart{TextPart(text)}}
}
func User(text string) Message { return Message{Role: RoleUser, Parts: []ContentPart{TextPart(text)}} }
func Assistant(text string) Message {
	return Message{Role: RoleAssistant, Parts: []ContentPart{TextPart(text)}}
}
func ToolResult(toolCallID string, text string) Message {
	return Message{Role: RoleTool, ToolCallID: toolCallID, Parts: []ContentPart{TextPart(text)}}
}

func (m Message) Clone() Message {
	out := m
	if m.Parts != nil {
		out.Parts = make([]ContentPart, len(m.Parts))
		copy(out.Parts, m.Parts)
		for i := range out.Parts {
			out.Parts[i].Data = append([]byte(nil), out.Parts[i].Data...)
		}
	}
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(out.ToolCalls, m.ToolCalls)
		for i := range out.ToolCalls {
			out.ToolCalls[i].Arguments = append([]byte(nil), out.ToolCalls[i].Arguments...)
		}
	}
	return out
}

func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == ContentPartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func (m Message) Reasoning() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == ContentPartReasoning {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// InlineBytes reports the total size of inline binary payloads in the message.
func (m Message) InlineBytes() int64 {
	var n int64
	for _, p := range m.Parts {
		n += int64(len(p.Data))
	}
	return n
}

type ToolDefinition struct {
	Name        string
	Description string

	// InputSchema is typically a JSON Schema object.
	InputSchema json.RawMessage
}

type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceFunction ToolChoiceMode = "function"
)

// ToolChoice models the caller's preference for tool usage.
//
// For ToolChoiceFunction, set FunctionName.
type ToolChoice struct {
	Mode         ToolChoiceMode
	FunctionName string
}

func AutoToolChoice() ToolChoice     { return ToolChoice{Mode: ToolChoiceAuto} }
func NoneToolChoice() ToolChoice     { return ToolChoice{Mode: ToolChoiceNone} }
func RequiredToolChoice() ToolChoice { return ToolChoice{Mode: ToolChoiceRequired} }
func FunctionToolChoice(name string) ToolChoice {
	return ToolChoice{Mode: ToolChoiceFunction, FunctionName: name}
}

// ToolCall is a canonical representation of a tool/function call.
//
// Arguments is always parsed JSON in the canonical model, regardless of whether
// the vendor transmitted it as a serialized string or a structured object.
// ArgumentsText holds in-flight streamed fragments that may not yet be valid JSON.
type ToolCall struct {
	ID            string
	Name          string
	Arguments     json.RawMessage
	ArgumentsText string
}

// Usage is token accounting for one completed call.
//
// CostUSD is computed by the billing layer from catalog pricing; providers
// leave it nil and never fabricate it mid-stream.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int

	CostUSD *float64
}

type TransportOptions struct {
	// Headers contains per-request header overrides/additions.
	//
	// This is an escape hatch for request-scoped headers (billing attribution,
	// beta flags). Providers may ignore unsupported headers.
	Headers http.Header
}

type ChatRequest struct {
	Model    string
	Messages []Message

	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Stop        []string

	StreamOptions *StreamOptions

	Tools      []ToolDefinition
	ToolChoice *ToolChoice

	Transport *TransportOptions

	// Extra carries vendor-specific JSON fields. Keys should be top-level fields.
	// Values should be JSON-marshalable.
	Extra map[string]any
}

func (r ChatRequest) Clone() ChatRequest {
	out := r
	out.Messages = append([]Message(nil), r.Messages...)
	for i := range out.Messages {
		out.Messages[i] = out.Messages[i].Clone()
	}
	if r.Tools != nil {
		out.Tools = append([]ToolDefinition(nil), r.Tools...)
	}
	if r.ToolChoice != nil {
		v := *r.ToolChoice
		out.ToolChoice = &v
	}
	if r.Stop != nil {
		out.Stop = append([]string(nil), r.Stop...)
	}
	if r.StreamOptions != nil {
		v := *r.StreamOptions
		out.StreamOptions = &v
	}
	if r.Transport != nil {
		v := *r.Transport
		v.Headers = r.Transport.Headers.Clone()
		out.Transport = &v
	}
	if r.Extra != nil {
		out.Extra = make(map[string]any, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// InlineBytes reports the total inline binary payload across all messages.
func (r ChatRequest) InlineBytes() int64 {
	var n int64
	for _, m := range r.Messages {
		n += m.InlineBytes()
	}
	return n
}

type StreamOptions struct {
	// IncludeUsage asks the vendor to report usage on the final streaming chunk.
	// Encoders set this unconditionally for streaming requests; omitting it
	// makes usage unattributable.
	IncludeUsage bool `json:"include_usage,omitempty"`
}

type ChatChoice struct {
	Index        int
	Message      Message
	FinishReason FinishReason
}

type ChatResponse struct {
	ID      string
	Model   string
	Created time.Time

	Choices []ChatChoice
	Usage   *Usage

	RawJSON json.RawMessage
}

func (r ChatResponse) FirstText() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Text()
}

func (r ChatResponse) ChoiceIndexes() []int {
	if len(r.Choices) == 0 {
		return nil
	}
	idxs := make([]int, 0, len(r.Choices))
	for _, c := range r.Choices {
		idxs = append(idxs, c.Index)
	}
	sort.Ints(idxs)
	return idxs
}
