package llm

import "fmt"

// ValidateMessages checks the structural invariants of a conversation before
// it is handed to an encoder.
//
// Invariants:
//   - the message list is non-empty
//   - every RoleTool message resolves to a tool call on a preceding assistant
//     message, by ID when set, otherwise by tool name
func ValidateMessages(messages []Message) error {
	if len(messages) == 0 {
		return &LLMError{Kind: ErrKindBadRequest, Message: "messages is required"}
	}

	seenIDs := make(map[string]bool)
	seenNames := make(map[string]bool)
	for i, m := range messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		default:
			return &LLMError{Kind: ErrKindBadRequest, Message: fmt.Sprintf("messages[%d]: unknown role %q", i, m.Role)}
		}

		if m.Role == RoleAssistant {
			for _, tc := range m.ToolCalls {
				if tc.Name == "" {
					return &LLMError{Kind: ErrKindBadRequest, Message: fmt.Sprintf("messages[%d]: tool call without a name", i)}
				}
				if tc.ID != "" {
					seenIDs[tc.ID] = true
				}
				seenNames[tc.Name] = true
			}
			continue
		}

		if m.Role != RoleTool {
			continue
		}
		switch {
		case m.ToolCallID != "":
			if !seenIDs[m.ToolCallID] {
				return &LLMError{Kind: ErrKindBadRequest, Message: fmt.Sprintf("messages[%d]: tool result references unknown call id %q", i, m.ToolCallID)}
			}
		case m.Name != "":
			if !seenNames[m.Name] {
				return &LLMError{Kind: ErrKindBadRequest, Message: fmt.Sprintf("messages[%d]: tool result references unknown tool %q", i, m.Name)}
			}
		default:
			return &LLMError{Kind: ErrKindBadRequest, Message: fmt.Sprintf("messages[%d]: tool result with neither call id nor tool name", i)}
		}
	}
	return nil
}
