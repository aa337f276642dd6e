package anthropic

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/chipp-ai/dispatch-sub022/llm"
	"github.com/chipp-ai/dispatch-sub022/llm/catalog"
)

func (p *Provider) mapRequest(req llm.ChatRequest) (map[string]any, error) {
	system, rest := splitSystem(req.Messages)

	msgs := make([]apiMessage, 0, len(rest))
	for _, m := range rest {
		switch {
		case m.Role == llm.RoleTool:
			// Merge consecutive tool results into a single user message.
			block := map[string]any{
				"type":        "tool_result",
				"tool_use_id": m.ToolCallID,
				"content":     m.Text(),
			}
			if n := len(msgs); n > 0 && msgs[n-1].Role == "user" {
				if blocks, ok := msgs[n-1].Content.([]any); ok {
					msgs[n-1].Content = append(blocks, block)
					continue
				}
			}
			msgs = append(msgs, apiMessage{Role: "user", Content: []any{block}})
		case m.Role == llm.RoleAssistant && len(m.ToolCalls) > 0:
			content := make([]any, 0, len(m.ToolCalls)+1)
			if text := m.Text(); text != "" {
				content = append(content, map[string]any{"type": "text", "text": text})
			}
			for _, tc := range m.ToolCalls {
				content = append(content, map[string]any{
					"type": "tool_use",
					"id":   tc.ID,
					"name": tc.Name,
					// This vendor expects structured arguments, not a JSON string.
					"input": argumentsObject(tc),
				})
			}
			msgs = append(msgs, apiMessage{Role: "assistant", Content: content})
		default:
			content, err := p.mapContent(m)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, apiMessage{Role: string(m.Role), Content: content})
		}
	}

	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	m := map[string]any{
		"model":      req.Model,
		"max_tokens": maxTokens,
		"messages":   msgs,
	}
	if system != "" {
		m["system"] = system
	}

	if caps, ok := catalog.Resolve(req.Model); !ok || caps.SupportsTemperature {
		if req.Temperature != nil {
			m["temperature"] = *req.Temperature
		}
		if req.TopP != nil {
			m["top_p"] = *req.TopP
		}
	}
	if len(req.Stop) > 0 {
		m["stop_sequences"] = req.Stop
	}

	if len(req.Tools) > 0 {
		wtools := make([]apiTool, 0, len(req.Tools))
		for _, t := range req.Tools {
			schema := t.InputSchema
			if len(schema) == 0 {
				schema = json.RawMessage(`{"type":"object"}`)
			}
			wtools = append(wtools, apiTool{Name: t.Name, Description: t.Description, InputSchema: schema})
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

// splitSystem extracts leading system messages into the top-level system
// string, which is this vendor's only system channel.
func splitSystem(messages []llm.Message) (string, []llm.Message) {
	var b strings.Builder
	rest := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(m.Text())
			continue
		}
		rest = append(rest, m)
	}
	return b.String(), rest
}

func (p *Provider) mapContent(m llm.Message) (any, error) {
	parts := m.Parts
	if len(parts) == 1 && parts[0].Type == llm.ContentPartText {
		return parts[0].Text, nil
	}
	if len(parts) == 0 {
		return "", nil
	}

	out := make([]any, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case llm.ContentPartText, llm.ContentPartReasoning:
			out = append(out, map[string]any{"type": "text", "text": part.Text})
		case llm.ContentPartBinary:
			if strings.HasPrefix(part.MIME, "image/") {
				out = append(out, map[string]any{
					"type": "image",
					"source": map[string]any{
						"type":       "base64",
						"media_type": part.MIME,
						"data":       base64.StdEncoding.EncodeToString(part.Data),
					},
				})
				continue
			}
			return nil, &llm.LLMError{Provider: p.name, Kind: llm.ErrKindBadRequest, Message: "unsupported inline media type: " + part.MIME}
		default:
			return nil, &llm.LLMError{Provider: p.name, Kind: llm.ErrKindBadRequest, Message: "unsupported message content part type: " + string(part.Type)}
		}
	}
	return out, nil
}

func mapToolChoice(tc llm.ToolChoice) any {
	switch tc.Mode {
	case llm.ToolChoiceNone:
		return map[string]any{"type": "none"}
	case llm.ToolChoiceRequired:
		return map[string]any{"type": "any"}
	case llm.ToolChoiceFunction:
		return map[string]any{"type": "tool", "name": tc.FunctionName}
	case llm.ToolChoiceAuto:
		fallthrough
	default:
		return map[string]any{"type": "auto"}
	}
}

// argumentsObject yields structured tool-call arguments for the wire.
func argumentsObject(tc llm.ToolCall) any {
	raw := tc.Arguments
	if len(raw) == 0 && tc.ArgumentsText != "" {
		raw = json.RawMessage(tc.ArgumentsText)
	}
	var v any
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return map[string]any{}
	}
	return v
}
