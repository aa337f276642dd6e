package llm

import (
	"encoding/json"
	"errors"
	"io"
	"sort"
)

// Stream yields StreamEvent values until io.EOF.
//
// Implementations should return io.EOF once the stream finishes normally and
// release the underlying transport connection on Close, without waiting for
// the vendor to finish.
type Stream interface {
	Recv() (StreamEvent, error)
	Close() error
}

type StreamEventKind string

const (
	StreamEventPartDelta     StreamEventKind = "part_delta"
	StreamEventToolCallDelta StreamEventKind = "tool_call_delta"
	StreamEventChoiceDone    StreamEventKind = "choice_done"
	StreamEventDone          StreamEventKind = "done"
)

type PartDelta struct {
	Type      ContentPartType
	TextDelta string
}

type ToolCallDelta struct {
	Index int
	ID    string
	Name  string

	ArgumentsDelta string
}

// StreamEvent is one decoded increment of a vendor stream.
//
// Usage is set only on the terminal StreamEventDone event. A stream emits
// exactly one done event per successful completion.
type StreamEvent struct {
	Kind        StreamEventKind
	ChoiceIndex int

	PartDelta     *PartDelta
	ToolCallDelta *ToolCallDelta
	Usage         *Usage

	FinishReason FinishReason
	RawJSON      json.RawMessage
}

func (e StreamEvent) Done() bool { return e.Kind == StreamEventDone }

var ErrStreamClosed = errors.New("llm: stream closed")

type choiceAccumulator struct {
	text      string
	reasoning string

	// firstPart remembers which content kind streamed first, so the final
	// message keeps the vendor's part order.
	firstPart ContentPartType

	toolCalls    []ToolCall
	finishReason FinishReason
}

// Accumulator helps build a final response from a stream.
//
// It is intentionally tolerant to partial tool call deltas: a tool call is
// only materialized with parsed Arguments once its streamed fragments form
// valid JSON, which happens when the vendor finishes that call.
type Accumulator struct {
	choices map[int]*choiceAccumulator
	usage   *Usage
	done    bool
}

func (a *Accumulator) choice(idx int) *choiceAccumulator {
	if idx < 0 {
		idx = 0
	}
	if a.choices == nil {
		a.choices = make(map[int]*choiceAccumulator)
	}
	c, ok := a.choices[idx]
	if !ok {
		c = &choiceAccumulator{}
		a.choices[idx] = c
	}
	return c
}

func (a *Accumulator) Apply(ev StreamEvent) {
	switch ev.Kind {
	case StreamEventPartDelta:
		if ev.PartDelta == nil {
			return
		}
		c := a.choice(ev.ChoiceIndex)
		switch ev.PartDelta.Type {
		case ContentPartReasoning:
			if c.firstPart == "" {
				c.firstPart = ContentPartReasoning
			}
			c.reasoning += ev.PartDelta.TextDelta
		default:
			if c.firstPart == "" {
				c.firstPart = ContentPartText
			}
			c.text += ev.PartDelta.TextDelta
		}
	case StreamEventToolCallDelta:
		if ev.ToolCallDelta == nil {
			return
		}
		c := a.choice(ev.ChoiceIndex)
		idx := ev.ToolCallDelta.Index
		for len(c.toolCalls) <= idx {
			c.toolCalls = append(c.toolCalls, ToolCall{})
		}
		tc := &c.toolCalls[idx]
		if ev.ToolCallDelta.ID != "" {
			tc.ID = ev.ToolCallDelta.ID
		}
		if ev.ToolCallDelta.Name != "" {
			tc.Name = ev.ToolCallDelta.Name
		}
		tc.ArgumentsText += ev.ToolCallDelta.ArgumentsDelta
	case StreamEventChoiceDone:
		c := a.choice(ev.ChoiceIndex)
		if ev.FinishReason != "" {
			c.finishReason = ev.FinishReason
		}
	case StreamEventDone:
		a.done = true
		if ev.Usage != nil {
			cpy := *ev.Usage
			a.usage = &cpy
		}
	}
}

// Usage returns the usage from the terminal event, or nil if none arrived.
func (a *Accumulator) Usage() *Usage { return a.usage }

// Completed reports whether the terminal done event was applied.
func (a *Accumulator) Completed() bool { return a.done }

func (a *Accumulator) FinalResponse() ChatResponse {
	idxs := make([]int, 0, len(a.choices))
	for idx := range a.choices {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)

	out := ChatResponse{Usage: a.usage}
	for _, idx := range idxs {
		c := a.choices[idx]
		msg := Message{Role: RoleAssistant}
		if c.firstPart == ContentPartReasoning {
			if c.reasoning != "" {
				msg.Parts = append(msg.Parts, ReasoningPart(c.reasoning))
			}
			if c.text != "" {
				msg.Parts = append(msg.Parts, TextPart(c.text))
			}
		} else {
			if c.text != "" {
				msg.Parts = append(msg.Parts, TextPart(c.text))
			}
			if c.reasoning != "" {
				msg.Parts = append(msg.Parts, ReasoningPart(c.reasoning))
			}
		}
		if len(c.toolCalls) > 0 {
			msg.ToolCalls = append([]ToolCall(nil), c.toolCalls...)
			for i := range msg.ToolCalls {
				tc := &msg.ToolCalls[i]
				if len(tc.Arguments) == 0 && tc.ArgumentsText != "" && json.Valid([]byte(tc.ArgumentsText)) {
					tc.Arguments = json.RawMessage(tc.ArgumentsText)
				}
			}
		}
		out.Choices = append(out.Choices, ChatChoice{
			Index:        idx,
			Message:      msg,
			FinishReason: c.finishReason,
		})
	}
	return out
}

func DrainStream(stream Stream) (ChatResponse, error) {
	defer stream.Close()

	var acc Accumulator
	for {
		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return ChatResponse{}, err
		}
		acc.Apply(ev)
		if ev.Done() {
			break
		}
	}

	return acc.FinalResponse(), nil
}
