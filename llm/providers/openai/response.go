package openai

import (
	"encoding/json"
	"strings"

	"github.com/chipp-ai/dispatch-sub022/llm"
)

func (p *Provider) mapChatResponse(r chatCompletionResponse) llm.ChatResponse {
	out := llm.ChatResponse{
		ID:      r.ID,
		Model:   r.Model,
		Created: r.CreatedTime(),
		Choices: make([]llm.ChatChoice, 0, len(r.Choices)),
	}
	out.Usage = mapAPIUsage(r.Usage)

	for _, c := range r.Choices {
		msg := llm.Message{Role: llm.RoleAssistant}
		if c.Message.Role != "" {
			msg.Role = llm.Role(c.Message.Role)
		}
		if text := contentText(c.Message.Content); text != "" {
			msg.Parts = append(msg.Parts, llm.TextPart(text))
		}
		msg.Name = c.Message.Name
		if len(c.Message.ToolCalls) > 0 {
			msg.ToolCalls = make([]llm.ToolCall, 0, len(c.Message.ToolCalls))
			for _, tc := range c.Message.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, parseToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
			}
		}
		out.Choices = append(out.Choices, llm.ChatChoice{
			Index:        c.Index,
			Message:      msg,
			FinishReason: mapFinishReason(c.FinishReason),
		})
	}
	return out
}

func (p *Provider) mapResponsesResponse(r responsesResponse) llm.ChatResponse {
	out := llm.ChatResponse{ID: r.ID, Model: r.Model}
	if r.Usage != nil {
		out.Usage = &llm.Usage{
			PromptTokens:     r.Usage.InputTokens,
			CompletionTokens: r.Usage.OutputTokens,
			TotalTokens:      r.Usage.TotalTokens,
		}
	}

	msg := llm.Message{Role: llm.RoleAssistant}
	finish := llm.FinishReasonStop
	for _, item := range r.Output {
		switch item.Type {
		case "message":
			for _, part := range item.Content {
				if part.Type == "output_text" && part.Text != "" {
					msg.Parts = append(msg.Parts, llm.TextPart(part.Text))
				}
			}
		case "function_call":
			msg.ToolCalls = append(msg.ToolCalls, parseToolCall(item.CallID, item.Name, item.Arguments))
			finish = llm.FinishReasonToolCalls
		}
	}
	out.Choices = []llm.ChatChoice{{Index: 0, Message: msg, FinishReason: finish}}
	return out
}

// parseToolCall reconstructs structured arguments from the vendor's
// string-serialized form. Invalid JSON stays in ArgumentsText only.
func parseToolCall(id, name, arguments string) llm.ToolCall {
	tc := llm.ToolCall{ID: id, Name: name, ArgumentsText: arguments}
	if arguments != "" && json.Valid([]byte(arguments)) {
		tc.Arguments = json.RawMessage(arguments)
	}
	return tc
}

func mapAPIUsage(u *apiUsage) *llm.Usage {
	if u == nil {
		return nil
	}
	return &llm.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

func mapFinishReason(fr string) llm.FinishReason {
	switch fr {
	case "stop":
		return llm.FinishReasonStop
	case "length":
		return llm.FinishReasonLength
	case "tool_calls", "function_call":
		return llm.FinishReasonToolCalls
	case "":
		return ""
	default:
		return llm.FinishReasonUnknown
	}
}

func contentText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []any:
		var b strings.Builder
		for _, it := range x {
			if m, ok := it.(map[string]any); ok {
				if t, ok := m["text"].(string); ok {
					b.WriteString(t)
				}
			}
		}
		return b.String()
	case map[string]any:
		t, _ := x["text"].(string)
		return t
	default:
		return ""
	}
}
