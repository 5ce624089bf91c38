package protocol

import "time"

// Encoder shapes pipeline results into chat-completion payloads. The id
// generator and clock are injectable so tests can pin them.
type Encoder struct {
	now   func() time.Time
	newID func() string
}

// NewEncoder returns an encoder backed by the real clock and id generator.
func NewEncoder() *Encoder {
	return &Encoder{now: time.Now, newID: NewCompletionID}
}

// Completion builds the single-object response. An empty content string is
// surfaced as null when tool calls are present, and as "" otherwise.
func (e *Encoder) Completion(model, content string, calls []ToolCall, usage Usage) *ChatCompletion {
	msg := AssistantMessage{Role: RoleAssistant}
	finish := FinishStop
	if len(calls) > 0 {
		finish = FinishToolCalls
		msg.ToolCalls = calls
		if content != "" {
			msg.Content = &content
		}
	} else {
		msg.Content = &content
	}
	return &ChatCompletion{
		ID:      e.newID(),
		Object:  ObjectChatCompletion,
		Created: e.now().Unix(),
		Model:   model,
		Choices: []Choice{{Index: 0, Message: msg, FinishReason: finish}},
		Usage:   usage,
	}
}

// Chunks explodes one reply into the ordered streaming sequence: a content
// delta (always present without tool calls, only when non-empty with them),
// one delta per tool call, then a terminal empty delta carrying the finish
// reason. All chunks share one id and creation time.
func (e *Encoder) Chunks(model, content string, calls []ToolCall) []ChatCompletionChunk {
	id := e.newID()
	created := e.now().Unix()
	chunk := func(delta Delta, finish *string) ChatCompletionChunk {
		return ChatCompletionChunk{
			ID:      id,
			Object:  ObjectChatCompletionChunk,
			Created: created,
			Model:   model,
			Choices: []ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
		}
	}

	chunks := make([]ChatCompletionChunk, 0, len(calls)+2)
	if len(calls) == 0 || content != "" {
		chunks = append(chunks, chunk(Delta{Role: RoleAssistant, Content: &content}, nil))
	}
	for i := range calls {
		call := calls[i]
		delta := Delta{ToolCalls: []ToolCallDelta{{
			Index:    i,
			ID:       call.ID,
			Type:     call.Type,
			Function: &FunctionCall{Name: call.Function.Name, Arguments: call.Function.Arguments},
		}}}
		if len(chunks) == 0 {
			delta.Role = RoleAssistant
		}
		chunks = append(chunks, chunk(delta, nil))
	}
	finish := FinishStop
	if len(calls) > 0 {
		finish = FinishToolCalls
	}
	chunks = append(chunks, chunk(Delta{}, &finish))
	return chunks
}
