package anthropic

import (
	"github.com/chipp-ai/dispatch-sub022/llm"
)

func (p *Provider) mapResponse(r messageResponse) llm.ChatResponse {
	out := llm.ChatResponse{ID: r.ID, Model: r.Model}
	if r.Usage != nil {
		out.Usage = mapUsage(*r.Usage)
	}

	msg := llm.Message{Role: llm.RoleAssistant}
	for _, b := range r.Content {
		switch b.Type {
		case "text":
			if b.Text != "" {
				msg.Parts = append(msg.Parts, llm.TextPart(b.Text))
			}
		case "thinking":
			if b.Text != "" {
				msg.Parts = append(msg.Parts, llm.ReasoningPart(b.Text))
			}
		case "tool_use":
			// Input is already structured on the wire; pass it through.
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: append([]byte(nil), b.Input...),
			})
		}
	}

	out.Choices = []llm.ChatChoice{{
		Index:        0,
		Message:      msg,
		FinishReason: mapStopReason(r.StopReason),
	}}
	return out
}

func mapUsage(u apiUsage) *llm.Usage {
	return &llm.Usage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.InputTokens + u.OutputTokens,
	}
}

func mapStopReason(sr string) llm.FinishReason {
	switch sr {
	case "end_turn", "stop_sequence":
		return llm.FinishReasonStop
	case "max_tokens":
		return llm.FinishReasonLength
	case "tool_use":
		return llm.FinishReasonToolCalls
	case "":
		return ""
	default:
		return llm.FinishReasonUnknown
	}
}
