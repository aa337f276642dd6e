package gemini

import (
	"encoding/json"

	"github.com/chipp-ai/dispatch-sub022/llm"
)

func (p *Provider) mapResponse(model string, r generateContentResponse) (llm.ChatResponse, error) {
	out := llm.ChatResponse{Model: model}
	if r.UsageMetadata != nil {
		out.Usage = mapUsage(*r.UsageMetadata)
	}

	for i, cand := range r.Candidates {
		msg := llm.Message{Role: llm.RoleAssistant}
		for _, part := range cand.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				// No call ID on this wire; the ID stays empty and callers
				// correlate tool results by function name.
				msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
					Name:      part.FunctionCall.Name,
					Arguments: normalizeArgs(part.FunctionCall.Args),
				})
			case part.Text != "":
				msg.Parts = append(msg.Parts, llm.TextPart(part.Text))
			}
		}

		idx := cand.Index
		if idx == 0 && len(out.Choices) > 0 {
			idx = i
		}
		out.Choices = append(out.Choices, llm.ChatChoice{
			Index:        idx,
			Message:      msg,
			FinishReason: mapFinishReason(cand.FinishReason, len(msg.ToolCalls) > 0),
		})
	}
	return out, nil
}

func mapUsage(u apiUsageMetadata) *llm.Usage {
	total := u.TotalTokenCount
	if total == 0 {
		total = u.PromptTokenCount + u.CandidatesTokenCount
	}
	return &llm.Usage{
		PromptTokens:     u.PromptTokenCount,
		CompletionTokens: u.CandidatesTokenCount,
		TotalTokens:      total,
	}
}

// mapFinishReason folds the vendor's reason strings into the canonical set.
// The wire reports STOP even when the model called a function, so tool
// presence wins over the literal reason.
func mapFinishReason(fr string, hasToolCalls bool) llm.FinishReason {
	if hasToolCalls {
		return llm.FinishReasonToolCalls
	}
	switch fr {
	case "STOP":
		return llm.FinishReasonStop
	case "MAX_TOKENS":
		return llm.FinishReasonLength
	case "":
		return ""
	default:
		return llm.FinishReasonUnknown
	}
}

func normalizeArgs(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append([]byte(nil), raw...)
}
