package openai

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/chipp-ai/dispatch-sub022/llm"
	"github.com/chipp-ai/dispatch-sub022/llm/internal/transport"
)

// chatStream decodes legacy chat-completions SSE chunks.
//
// Usage arrives on the final pre-[DONE] chunk (stream_options.include_usage).
// It is stashed and attached to the single terminal done event, never emitted
// mid-stream.
type chatStream struct {
	provider string
	resp     *http.Response
	dec      *transport.SSEDecoder

	closed bool
	done   bool

	usage   *llm.Usage
	pending []llm.StreamEvent
}

func newChatStream(provider string, resp *http.Response) *chatStream {
	return &chatStream{
		provider: provider,
		resp:     resp,
		dec:      transport.NewSSEDecoder(resp.Body),
	}
}

func (s *chatStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.resp != nil && s.resp.Body != nil {
		return s.resp.Body.Close()
	}
	return nil
}

func (s *chatStream) Recv() (llm.StreamEvent, error) {
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
				// Some vendors close the connection without sending [DONE].
				s.done = true
				return s.terminalEvent(), nil
			}
			return llm.StreamEvent{}, err
		}

		data = bytes.TrimSpace(data)
		if bytes.Equal(data, []byte("[DONE]")) {
			s.done = true
			return s.terminalEvent(), nil
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return llm.StreamEvent{}, &llm.LLMError{Provider: s.provider, Kind: llm.ErrKindParse, Message: "failed to decode stream chunk", Raw: append([]byte(nil), data...), Cause: err}
		}
		if chunk.Error != nil {
			return llm.StreamEvent{}, &llm.LLMError{Provider: s.provider, Kind: llm.ErrKindServer, Message: chunk.Error.Message, Raw: append([]byte(nil), data...)}
		}

		if chunk.Usage != nil {
			s.usage = mapAPIUsage(chunk.Usage)
		}

		for _, choice := range chunk.Choices {
			if text := contentText(choice.Delta.Content); text != "" {
				s.pending = append(s.pending, llm.StreamEvent{
					Kind:        llm.StreamEventPartDelta,
					ChoiceIndex: choice.Index,
					PartDelta:   &llm.PartDelta{Type: llm.ContentPartText, TextDelta: text},
				})
			}
			for _, tc := range choice.Delta.ToolCalls {
				s.pending = append(s.pending, llm.StreamEvent{
					Kind:        llm.StreamEventToolCallDelta,
					ChoiceIndex: choice.Index,
					ToolCallDelta: &llm.ToolCallDelta{
						Index:          tc.Index,
						ID:             tc.ID,
						Name:           tc.Function.Name,
						ArgumentsDelta: tc.Function.Arguments,
					},
				})
			}
			// A chunk can carry a finish_reason alongside its last delta;
			// the choice must not be reported done before that delta.
			if choice.FinishReason != "" {
				s.pending = append(s.pending, llm.StreamEvent{
					Kind:         llm.StreamEventChoiceDone,
					ChoiceIndex:  choice.Index,
					FinishReason: mapFinishReason(choice.FinishReason),
				})
			}
		}
	}
}

func (s *chatStream) terminalEvent() llm.StreamEvent {
	return llm.StreamEvent{Kind: llm.StreamEventDone, ChoiceIndex: -1, Usage: s.usage}
}

// responsesStream decodes the typed SSE events of the responses endpoint.
type responsesStream struct {
	provider string
	resp     *http.Response
	dec      *transport.SSEDecoder

	closed bool
	done   bool

	usage *llm.Usage

	// output_index of function_call items -> tool call slot.
	toolSlots map[int]int
	pending   []llm.StreamEvent
}

func newResponsesStream(provider string, resp *http.Response) *responsesStream {
	return &responsesStream{
		provider:  provider,
		resp:      resp,
		dec:       transport.NewSSEDecoder(resp.Body),
		toolSlots: make(map[int]int),
	}
}

func (s *responsesStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.resp != nil && s.resp.Body != nil {
		return s.resp.Body.Close()
	}
	return nil
}

func (s *responsesStream) Recv() (llm.StreamEvent, error) {
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
				return llm.StreamEvent{Kind: llm.StreamEventDone, ChoiceIndex: -1, Usage: s.usage}, nil
			}
			return llm.StreamEvent{}, err
		}

		data = bytes.TrimSpace(data)
		if bytes.Equal(data, []byte("[DONE]")) {
			s.done = true
			return llm.StreamEvent{Kind: llm.StreamEventDone, ChoiceIndex: -1, Usage: s.usage}, nil
		}

		var ev responsesStreamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return llm.StreamEvent{}, &llm.LLMError{Provider: s.provider, Kind: llm.ErrKindParse, Message: "failed to decode stream event", Raw: append([]byte(nil), data...), Cause: err}
		}

		switch ev.Type {
		case "response.output_text.delta":
			if ev.Delta != "" {
				s.pending = append(s.pending, llm.StreamEvent{
					Kind:      llm.StreamEventPartDelta,
					PartDelta: &llm.PartDelta{Type: llm.ContentPartText, TextDelta: ev.Delta},
				})
			}
		case "response.reasoning_text.delta":
			if ev.Delta != "" {
				s.pending = append(s.pending, llm.StreamEvent{
					Kind:      llm.StreamEventPartDelta,
					PartDelta: &llm.PartDelta{Type: llm.ContentPartReasoning, TextDelta: ev.Delta},
				})
			}
		case "response.output_item.added":
			if ev.Item != nil && ev.Item.Type == "function_call" {
				slot := len(s.toolSlots)
				s.toolSlots[ev.OutputIndex] = slot
				s.pending = append(s.pending, llm.StreamEvent{
					Kind: llm.StreamEventToolCallDelta,
					ToolCallDelta: &llm.ToolCallDelta{
						Index:          slot,
						ID:             ev.Item.CallID,
						Name:           ev.Item.Name,
						ArgumentsDelta: ev.Item.Arguments,
					},
				})
			}
		case "response.function_call_arguments.delta":
			slot, ok := s.toolSlots[ev.OutputIndex]
			if ok && ev.Delta != "" {
				s.pending = append(s.pending, llm.StreamEvent{
					Kind:          llm.StreamEventToolCallDelta,
					ToolCallDelta: &llm.ToolCallDelta{Index: slot, ArgumentsDelta: ev.Delta},
				})
			}
		case "response.completed":
			if ev.Response != nil && ev.Response.Usage != nil {
				s.usage = &llm.Usage{
					PromptTokens:     ev.Response.Usage.InputTokens,
					CompletionTokens: ev.Response.Usage.OutputTokens,
					TotalTokens:      ev.Response.Usage.TotalTokens,
				}
			}
			finish := llm.FinishReasonStop
			if len(s.toolSlots) > 0 {
				finish = llm.FinishReasonToolCalls
			}
			s.pending = append(s.pending, llm.StreamEvent{
				Kind:         llm.StreamEventChoiceDone,
				FinishReason: finish,
			})
		case "response.failed":
			return llm.StreamEvent{}, &llm.LLMError{Provider: s.provider, Kind: llm.ErrKindServer, Message: "response failed", Raw: append([]byte(nil), data...)}
		}
	}
}
