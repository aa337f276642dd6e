package anthropic

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/chipp-ai/dispatch-sub022/llm"
	"github.com/chipp-ai/dispatch-sub022/llm/internal/transport"
)

// stream decodes this vendor's SSE events. Prompt tokens arrive on
// message_start, completion tokens on message_delta; both are stashed and
// combined onto the single terminal done event at message_stop.
type stream struct {
	provider string
	resp     *http.Response
	dec      *transport.SSEDecoder

	closed bool
	done   bool

	inputTokens  int
	outputTokens int
	sawUsage     bool
	stopReason   llm.FinishReason

	// content_block index -> tool call slot, for tool_use blocks only.
	toolSlots map[int]int
	pending   []llm.StreamEvent
}

func newStream(provider string, resp *http.Response) *stream {
	return &stream{
		provider:  provider,
		resp:      resp,
		dec:       transport.NewSSEDecoder(resp.Body),
		toolSlots: make(map[int]int),
	}
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.resp != nil && s.resp.Body != nil {
		return s.resp.Body.Close()
	}
	return nil
}

func (s *stream) Recv() (llm.StreamEvent, error) {
	if s.closed {
		return llm.StreamEvent{}, llm.ErrStreamClosed
	}
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.done {
			return llm.StreamEvent{}, io.EOF
		}

		data, err := s.dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.done = true
				return s.terminalEvent(), nil
			}
			return llm.StreamEvent{}, err
		}

		var ev streamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return llm.StreamEvent{}, &llm.LLMError{Provider: s.provider, Kind: llm.ErrKindParse, Message: "failed to decode stream event", Raw: append([]byte(nil), data...), Cause: err}
		}

		switch ev.Type {
		case "message_start":
			if ev.Message != nil && ev.Message.Usage != nil {
				s.inputTokens = ev.Message.Usage.InputTokens
				s.sawUsage = true
			}
		case "content_block_start":
			if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
				slot := len(s.toolSlots)
				s.toolSlots[ev.Index] = slot
				s.pending = append(s.pending, llm.StreamEvent{
					Kind: llm.StreamEventToolCallDelta,
					ToolCallDelta: &llm.ToolCallDelta{
						Index: slot,
						ID:    ev.ContentBlock.ID,
						Name:  ev.ContentBlock.Name,
					},
				})
			}
		case "content_block_delta":
			if ev.Delta == nil {
				continue
			}
			switch ev.Delta.Type {
			case "text_delta":
				if ev.Delta.Text != "" {
					s.pending = append(s.pending, llm.StreamEvent{
						Kind:      llm.StreamEventPartDelta,
						PartDelta: &llm.PartDelta{Type: llm.ContentPartText, TextDelta: ev.Delta.Text},
					})
				}
			case "thinking_delta":
				if ev.Delta.Text != "" {
					s.pending = append(s.pending, llm.StreamEvent{
						Kind:      llm.StreamEventPartDelta,
						PartDelta: &llm.PartDelta{Type: llm.ContentPartReasoning, TextDelta: ev.Delta.Text},
					})
				}
			case "input_json_delta":
				// Partial tool arguments; the accumulator holds them until
				// the block completes and they parse as JSON.
				if slot, ok := s.toolSlots[ev.Index]; ok && ev.Delta.PartialJSON != "" {
					s.pending = append(s.pending, llm.StreamEvent{
						Kind:          llm.StreamEventToolCallDelta,
						ToolCallDelta: &llm.ToolCallDelta{Index: slot, ArgumentsDelta: ev.Delta.PartialJSON},
					})
				}
			}
		case "message_delta":
			if ev.Usage != nil {
				s.outputTokens = ev.Usage.OutputTokens
				s.sawUsage = true
			}
			if ev.Delta != nil && ev.Delta.StopReason != "" {
				s.stopReason = mapStopReason(ev.Delta.StopReason)
				s.pending = append(s.pending, llm.StreamEvent{
					Kind:         llm.StreamEventChoiceDone,
					FinishReason: s.stopReason,
				})
			}
		case "message_stop":
			s.done = true
			return s.terminalEvent(), nil
		case "error":
			msg := "stream error"
			if ev.Error != nil {
				msg = ev.Error.Message
			}
			return llm.StreamEvent{}, &llm.LLMError{Provider: s.provider, Kind: llm.ErrKindServer, Message: msg, Raw: append([]byte(nil), data...)}
		}
	}
}

func (s *stream) terminalEvent() llm.StreamEvent {
	ev := llm.StreamEvent{Kind: llm.StreamEventDone, ChoiceIndex: -1}
	if s.sawUsage {
		ev.Usage = &llm.Usage{
			PromptTokens:     s.inputTokens,
			CompletionTokens: s.outputTokens,
			TotalTokens:      s.inputTokens + s.outputTokens,
		}
	}
	return ev
}
