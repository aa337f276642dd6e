// Package normalize rewrites tool-call correlation in a chat history so it
// can be replayed against a different vendor.
//
// OpenAI-style and Anthropic-style APIs correlate tool results to calls by
// call ID; the Google-style API has no call IDs and correlates by function
// name. Switching vendors mid-conversation therefore requires rewriting the
// history's correlation keys. Normalization never fails: problems surface as
// Warnings and the offending messages are repaired or dropped.
package normalize

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/chipp-ai/dispatch-sub022/llm"
	"github.com/chipp-ai/dispatch-sub022/llm/catalog"
)

const (
	WarnOrphanToolResult = "orphan_tool_result"
	WarnPositionalMatch  = "positional_match"
)

// Warning reports a non-fatal normalization decision. Callers typically log
// these and continue.
type Warning struct {
	Code    string
	Message string
}

func (w Warning) String() string { return w.Code + ": " + w.Message }

// callRec tracks one assistant tool call during the rewrite pass.
type callRec struct {
	id       string
	name     string
	turn     int
	consumed bool
}

// ForVendor returns a copy of msgs with tool-call correlation rewritten for
// the target vendor. The input is not modified.
//
// ID-correlating targets get stable synthesized IDs where the source history
// has none. The name-correlating target gets the function name on every tool
// result; duplicate tool names within one assistant turn degrade to positional
// matching with a Warning. Tool results that cannot be matched to any call are
// dropped with a Warning.
func ForVendor(vendor catalog.Vendor, msgs []llm.Message) ([]llm.Message, []Warning) {
	out := make([]llm.Message, 0, len(msgs))
	var warnings []Warning

	var calls []*callRec
	byID := make(map[string]*callRec)
	turn := 0

	// names seen per turn, to detect ambiguous name correlation
	dupTurns := make(map[int]map[string]int)

	for _, m := range msgs {
		m = m.Clone()

		if m.Role == llm.RoleAssistant && len(m.ToolCalls) > 0 {
			turn++
			counts := make(map[string]int, len(m.ToolCalls))
			for i := range m.ToolCalls {
				tc := &m.ToolCalls[i]
				if tc.ID == "" {
					tc.ID = "call_" + uuid.NewString()
				}
				rec := &callRec{id: tc.ID, name: tc.Name, turn: turn}
				calls = append(calls, rec)
				byID[tc.ID] = rec
				counts[tc.Name]++
			}
			dupTurns[turn] = counts
			out = append(out, m)
			continue
		}

		if m.Role != llm.RoleTool {
			out = append(out, m)
			continue
		}

		var rec *callRec
		switch {
		case m.ToolCallID != "" && byID[m.ToolCallID] != nil && !byID[m.ToolCallID].consumed:
			rec = byID[m.ToolCallID]
		case m.Name != "":
			rec = matchByName(calls, dupTurns, m.Name, &warnings)
		default:
			rec = nextUnconsumed(calls)
		}
		if rec == nil {
			warnings = append(warnings, Warning{
				Code:    WarnOrphanToolResult,
				Message: fmt.Sprintf("tool result %q has no matching call; dropped", orDefault(m.Name, m.ToolCallID)),
			})
			continue
		}
		rec.consumed = true

		// Both keys are carried: ID-correlating vendors read ToolCallID,
		// the name-correlating vendor reads Name.
		m.ToolCallID = rec.id
		m.Name = rec.name
		out = append(out, m)
	}

	return out, warnings
}

// matchByName finds the first unconsumed call with the given name. When the
// owning assistant turn declared the name more than once, name correlation is
// ambiguous and matching degrades to positional order within that turn.
func matchByName(calls []*callRec, dupTurns map[int]map[string]int, name string, warnings *[]Warning) *callRec {
	for _, rec := range calls {
		if rec.consumed || rec.name != name {
			continue
		}
		if dupTurns[rec.turn][name] > 1 {
			*warnings = append(*warnings, Warning{
				Code:    WarnPositionalMatch,
				Message: fmt.Sprintf("tool name %q is ambiguous in its turn; matched positionally", name),
			})
			if pos := nextUnconsumedInTurn(calls, rec.turn); pos != nil {
				return pos
			}
		}
		return rec
	}
	return nil
}

func nextUnconsumed(calls []*callRec) *callRec {
	for _, rec := range calls {
		if !rec.consumed {
			return rec
		}
	}
	return nil
}

// nextUnconsumedInTurn keeps positional fallback inside the turn that owns
// the ambiguity, so a stale call from an earlier turn can never absorb a
// later turn's result.
func nextUnconsumedInTurn(calls []*callRec, turn int) *callRec {
	for _, rec := range calls {
		if rec.turn == turn && !rec.consumed {
			return rec
		}
	}
	return nil
}

func orDefault(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
