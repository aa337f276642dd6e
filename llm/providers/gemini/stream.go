package gemini

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/chipp-ai/dispatch-sub022/llm"
	"github.com/chipp-ai/dispatch-sub022/llm/internal/transport"
)

// stream decodes this vendor's SSE chunks, each of which is a full
// generateContentResponse fragment. There is no end-of-stream sentinel;
// the terminal done event fires at EOF with the last stashed usageMetadata.
type stream struct {
	provider string
	resp     *http.Response
	dec      *transport.SSEDecoder

	closed bool
	done   bool

	usage     *llm.Usage
	toolCount int
	sawTools  bool
	finish    llm.FinishReason

	pending []llm.StreamEvent
}

func newStream(provider string, resp *http.Response) *stream {
	return &stream{
		provider: provider,
		resp:     resp,
		dec:      transport.NewSSEDecoder(resp.Body),
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

		var chunk generateContentResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			return llm.StreamEvent{}, &llm.LLMError{Provider: s.provider, Kind: llm.ErrKindParse, Message: "failed to decode stream chunk", Raw: append([]byte(nil), data...), Cause: err}
		}

		if chunk.UsageMetadata != nil {
			// Later chunks carry cumulative counts; the last one wins.
			s.usage = mapUsage(*chunk.UsageMetadata)
		}

		for _, cand := range chunk.Candidates {
			for _, part := range cand.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					// Function calls arrive whole in a single chunk, so the
					// delta carries the complete argument payload at once.
					slot := s.toolCount
					s.toolCount++
					s.sawTools = true
					s.pending = append(s.pending, llm.StreamEvent{
						Kind:        llm.StreamEventToolCallDelta,
						ChoiceIndex: cand.Index,
						ToolCallDelta: &llm.ToolCallDelta{
							Index:          slot,
							Name:           part.FunctionCall.Name,
							ArgumentsDelta: string(normalizeArgs(part.FunctionCall.Args)),
						},
					})
				case part.Text != "":
					s.pending = append(s.pending, llm.StreamEvent{
						Kind:        llm.StreamEventPartDelta,
						ChoiceIndex: cand.Index,
						PartDelta:   &llm.PartDelta{Type: llm.ContentPartText, TextDelta: part.Text},
					})
				}
			}
			if cand.FinishReason != "" {
				s.finish = mapFinishReason(cand.FinishReason, s.sawTools)
				s.pending = append(s.pending, llm.StreamEvent{
					Kind:         llm.StreamEventChoiceDone,
					ChoiceIndex:  cand.Index,
					FinishReason: s.finish,
				})
			}
		}
	}
}

func (s *stream) terminalEvent() llm.StreamEvent {
	ev := llm.StreamEvent{Kind: llm.StreamEventDone, ChoiceIndex: -1}
	ev.Usage = s.usage
	return ev
}
