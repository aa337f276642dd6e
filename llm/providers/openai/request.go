package openai

import (
	"encoding/base64"
	"strings"

	"github.com/chipp-ai/dispatch-sub022/llm"
	"github.com/chipp-ai/dispatch-sub022/llm/catalog"
)

func (p *Provider) mapChatRequest(req llm.ChatRequest, caps catalog.Capabilities) (map[string]any, error) {
	wmessages := make([]apiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		wm := apiMessage{Role: string(m.Role)}
		if m.Role != llm.RoleTool {
			wm.Name = m.Name
		}
		content, err := p.mapMessageContent(m)
		if err != nil {
			return nil, err
		}
		wm.Content = content
		if m.Role == llm.RoleTool {
			wm.ToolCallID = m.ToolCallID
		}
		if len(m.ToolCalls) > 0 {
			wm.ToolCalls = make([]apiToolCall, 0, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				wm.ToolCalls = append(wm.ToolCalls, apiToolCall{
					Index: i,
					ID:    tc.ID,
					Type:  "function",
					Function: apiFunctionCall{
						Name: tc.Name,
						// This vendor transmits arguments as a JSON string.
						Arguments: argumentsString(tc),
					},
				})
			}
		}
		wmessages = append(wmessages, wm)
	}

	m := map[string]any{
		"model":    req.Model,
		"messages": wmessages,
	}

	applySampling(m, req, caps)
	if req.MaxTokens != nil {
		m["max_tokens"] = *req.MaxTokens
	}
	if len(req.Stop) > 0 {
		m["stop"] = req.Stop
	}

	if len(req.Tools) > 0 {
		wtools := make([]apiTool, 0, len(req.Tools))
		for _, t := range req.Tools {
			wtools = append(wtools, apiTool{
				Type: "function",
				Function: apiFunctionDef{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.InputSchema,
				},
			})
		}
		m["tools"] = wtools
	}
	if req.ToolChoice != nil {
		m["tool_choice"] = mapToolChoice(*req.ToolChoice)
	}

	for k, v := range req.Extra {
		m[k] = v
	}
	return m, nil
}

func (p *Provider) mapResponsesRequest(req llm.ChatRequest, caps catalog.Capabilities) (map[string]any, error) {
	input := make([]responsesInputItem, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch {
		case msg.Role == llm.RoleTool:
			input = append(input, responsesInputItem{
				Type:   "function_call_output",
				CallID: msg.ToolCallID,
				Output: msg.Text(),
			})
		case msg.Role == llm.RoleAssistant && len(msg.ToolCalls) > 0:
			if text := msg.Text(); text != "" {
				input = append(input, responsesInputItem{
					Role:    string(llm.RoleAssistant),
					Content: []responsesInputPart{{Type: "output_text", Text: text}},
				})
			}
			for _, tc := range msg.ToolCalls {
				input = append(input, responsesInputItem{
					Type:      "function_call",
					CallID:    tc.ID,
					Name:      tc.Name,
					Arguments: argumentsString(tc),
				})
			}
		default:
			partType := "input_text"
			if msg.Role == llm.RoleAssistant {
				partType = "output_text"
			}
			parts := make([]responsesInputPart, 0, len(msg.Parts))
			for _, part := range msg.Parts {
				switch part.Type {
				case llm.ContentPartText, llm.ContentPartReasoning:
					parts = append(parts, responsesInputPart{Type: partType, Text: part.Text})
				default:
					return nil, &llm.LLMError{
						Provider: p.name,
						Kind:     llm.ErrKindBadRequest,
						Message:  "unsupported message content part type: " + string(part.Type),
					}
				}
			}
			input = append(input, responsesInputItem{Role: string(msg.Role), Content: parts})
		}
	}

	m := map[string]any{
		"model": req.Model,
		"input": input,
	}

	applySampling(m, req, caps)
	if req.MaxTokens != nil {
		m["max_output_tokens"] = *req.MaxTokens
	}

	if len(req.Tools) > 0 {
		wtools := make([]responsesTool, 0, len(req.Tools))
		for _, t := range req.Tools {
			wtools = append(wtools, responsesTool{
				Type:        "function",
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			})
		}
		m["tools"] = wtools
	}
	if req.ToolChoice != nil {
		m["tool_choice"] = mapToolChoice(*req.ToolChoice)
	}

	for k, v := range req.Extra {
		m[k] = v
	}
	return m, nil
}

// applySampling copies sampling parameters unless the model family rejects
// them; in that case supplied values are dropped, never forwarded.
func applySampling(m map[string]any, req llm.ChatRequest, caps catalog.Capabilities) {
	if !caps.SupportsTemperature {
		return
	}
	if req.Temperature != nil {
		m["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		m["top_p"] = *req.TopP
	}
}

func mapToolChoice(tc llm.ToolChoice) any {
	switch tc.Mode {
	case llm.ToolChoiceNone:
		return "none"
	case llm.ToolChoiceRequired:
		return "required"
	case llm.ToolChoiceFunction:
		return map[string]any{
			"type": "function",
			"function": map[string]any{
				"name": tc.FunctionName,
			},
		}
	case llm.ToolChoiceAuto:
		fallthrough
	default:
		return "auto"
	}
}

func (p *Provider) mapMessageContent(msg llm.Message) (any, error) {
	// Tool outputs are mapped to a plain string.
	if msg.Role == llm.RoleTool {
		return msg.Text(), nil
	}

	parts := msg.Parts
	if len(parts) == 0 {
		return "", nil
	}
	if len(parts) == 1 && parts[0].Type == llm.ContentPartText {
		return parts[0].Text, nil
	}

	out := make([]any, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case llm.ContentPartText, llm.ContentPartReasoning:
			// Reasoning is a response-side concept; treat it as text when sending.
			out = append(out, map[string]any{"type": "text", "text": part.Text})
		case llm.ContentPartBinary:
			if strings.HasPrefix(part.MIME, "image/") {
				out = append(out, map[string]any{
					"type": "image_url",
					"image_url": map[string]any{
						"url": "data:" + part.MIME + ";base64," + base64.StdEncoding.EncodeToString(part.Data),
					},
				})
				continue
			}
			return nil, &llm.LLMError{
				Provider: p.name,
				Kind:     llm.ErrKindBadRequest,
				Message:  "unsupported inline media type: " + part.MIME,
			}
		default:
			return nil, &llm.LLMError{
				Provider: p.name,
				Kind:     llm.ErrKindBadRequest,
				Message:  "unsupported message content part type: " + string(part.Type),
			}
		}
	}
	return out, nil
}

func argumentsString(tc llm.ToolCall) string {
	if len(tc.Arguments) > 0 {
		return string(tc.Arguments)
	}
	if tc.ArgumentsText != "" {
		return tc.ArgumentsText
	}
	return "{}"
}
