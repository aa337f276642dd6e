package gemini

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/chipp-ai/dispatch-sub022/llm"
	"github.com/chipp-ai/dispatch-sub022/llm/catalog"
)

func (p *Provider) mapRequest(req llm.ChatRequest) (map[string]any, error) {
	system, rest := splitSystem(req.Messages)

	contents := make([]apiContent, 0, len(rest))
	for _, m := range rest {
		switch {
		case m.Role == llm.RoleTool:
			// Correlation is by function name; call IDs do not exist on this wire.
			name := m.Name
			if name == "" {
				name = m.ToolCallID
			}
			part := apiPart{FunctionResponse: &apiFunctionResponse{
				Name:     name,
				Response: responseObject(m.Text()),
			}}
			if n := len(contents); n > 0 && contents[n-1].Role == "user" && contents[n-1].Parts[0].FunctionResponse != nil {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, apiContent{Role: "user", Parts: []apiPart{part}})
		case m.Role == llm.RoleAssistant && len(m.ToolCalls) > 0:
			parts := make([]apiPart, 0, len(m.ToolCalls)+1)
			if text := m.Text(); text != "" {
				parts = append(parts, apiPart{Text: text})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, apiPart{FunctionCall: &apiFunctionCall{
					Name: tc.Name,
					Args: argumentsObject(tc),
				}})
			}
			contents = append(contents, apiContent{Role: "model", Parts: parts})
		default:
			parts, err := p.mapParts(m)
			if err != nil {
				return nil, err
			}
			contents = append(contents, apiContent{Role: mapRole(m.Role), Parts: parts})
		}
	}

	m := map[string]any{"contents": contents}
	if system != "" {
		m["systemInstruction"] = apiContent{Parts: []apiPart{{Text: system}}}
	}

	gen := map[string]any{}
	if caps, ok := catalog.Resolve(req.Model); !ok || caps.SupportsTemperature {
		if req.Temperature != nil {
			gen["temperature"] = *req.Temperature
		}
		if req.TopP != nil {
			gen["topP"] = *req.TopP
		}
	}
	if req.MaxTokens != nil {
		gen["maxOutputTokens"] = *req.MaxTokens
	}
	if len(req.Stop) > 0 {
		gen["stopSequences"] = req.Stop
	}
	if len(gen) > 0 {
		m["generationConfig"] = gen
	}

	if len(req.Tools) > 0 {
		decls := make([]apiFunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, apiFunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			})
		}
		m["tools"] = []map[string]any{{"functionDeclarations": decls}}
	}
	if req.ToolChoice != nil {
		m["toolConfig"] = map[string]any{"functionCallingConfig": mapToolChoice(*req.ToolChoice)}
	}

	for k, v := range req.Extra {
		m[k] = v
	}
	return m, nil
}

func mapRole(r llm.Role) string {
	if r == llm.RoleAssistant {
		return "model"
	}
	return "user"
}

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

func (p *Provider) mapParts(m llm.Message) ([]apiPart, error) {
	if len(m.Parts) == 0 {
		return []apiPart{{Text: ""}}, nil
	}
	out := make([]apiPart, 0, len(m.Parts))
	for _, part := range m.Parts {
		switch part.Type {
		case llm.ContentPartText, llm.ContentPartReasoning:
			out = append(out, apiPart{Text: part.Text})
		case llm.ContentPartBinary:
			out = append(out, apiPart{InlineData: &apiInlineData{
				MIMEType: part.MIME,
				Data:     base64.StdEncoding.EncodeToString(part.Data),
			}})
		default:
			return nil, &llm.LLMError{Provider: p.name, Kind: llm.ErrKindBadRequest, Message: "unsupported message content part type: " + string(part.Type)}
		}
	}
	return out, nil
}

func mapToolChoice(tc llm.ToolChoice) map[string]any {
	switch tc.Mode {
	case llm.ToolChoiceNone:
		return map[string]any{"mode": "NONE"}
	case llm.ToolChoiceRequired:
		return map[string]any{"mode": "ANY"}
	case llm.ToolChoiceFunction:
		return map[string]any{"mode": "ANY", "allowedFunctionNames": []string{tc.FunctionName}}
	case llm.ToolChoiceAuto:
		fallthrough
	default:
		return map[string]any{"mode": "AUTO"}
	}
}

func argumentsObject(tc llm.ToolCall) json.RawMessage {
	raw := tc.Arguments
	if len(raw) == 0 && tc.ArgumentsText != "" {
		raw = json.RawMessage(tc.ArgumentsText)
	}
	if len(raw) == 0 || !json.Valid(raw) {
		return json.RawMessage(`{}`)
	}
	return raw
}

// responseObject wraps a tool result for the wire, which requires an object.
// Results that already parse as JSON objects pass through unchanged.
func responseObject(text string) any {
	var v map[string]any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v
	}
	return map[string]any{"content": text}
}
