package protocol

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func fixedEncoder(id string, sec int64) *Encoder {
	return &Encoder{
		now:   func() time.Time { return time.Unix(sec, 0) },
		newID: func() string { return id },
	}
}

func TestMessageContentUnmarshalString(t *testing.T) {
	var c MessageContent
	if err := json.Unmarshal([]byte(`"hello"`), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := c.Text(); got != "hello" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestMessageContentUnmarshalParts(t *testing.T) {
	payload := `[{"type":"text","text":"one"},{"type":"image_url"},{"type":"text","text":"two"}]`
	var c MessageContent
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := c.Text(); got != "one\ntwo" {
		t.Fatalf("expected newline join, got %q", got)
	}
}

func TestMessageContentUnmarshalNull(t *testing.T) {
	var c MessageContent
	if err := json.Unmarshal([]byte(`null`), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c != nil {
		t.Fatalf("expected nil content, got %#v", c)
	}
}

func TestMessageContentUnmarshalOtherShape(t *testing.T) {
	var c MessageContent
	if err := json.Unmarshal([]byte(`{"k":1}`), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := c.Text(); got != `{"k":1}` {
		t.Fatalf("expected raw representation, got %q", got)
	}
}

func TestMessageContentMarshalRoundTrip(t *testing.T) {
	var c MessageContent
	if err := json.Unmarshal([]byte(`"plain"`), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `"plain"` {
		t.Fatalf("expected plain string, got %s", out)
	}
}

func TestValidateRejectsEmptyMessages(t *testing.T) {
	req := &ChatCompletionRequest{}
	err := req.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != 400 || apiErr.Type != ErrTypeInvalidRequest {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestValidateRejectsUnknownRole(t *testing.T) {
	req := &ChatCompletionRequest{Messages: []ChatMessageParam{{Role: "oracle"}}}
	if err := req.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestValidateAcceptsKnownRoles(t *testing.T) {
	req := &ChatCompletionRequest{Messages: []ChatMessageParam{
		{Role: RoleSystem},
		{Role: RoleUser},
		{Role: RoleAssistant},
		{Role: RoleTool},
	}}
	if err := req.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEncoderCompletionStop(t *testing.T) {
	enc := fixedEncoder("chatcmpl-test", 1700000000)
	resp := enc.Completion("claude-sonnet", "hi there", nil, Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5})
	if resp.Object != ObjectChatCompletion || resp.ID != "chatcmpl-test" || resp.Created != 1700000000 {
		t.Fatalf("unexpected envelope %+v", resp)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("expected one choice, got %d", len(resp.Choices))
	}
	choice := resp.Choices[0]
	if choice.FinishReason != FinishStop {
		t.Fatalf("expected stop, got %q", choice.FinishReason)
	}
	if choice.Message.Content == nil || *choice.Message.Content != "hi there" {
		t.Fatalf("unexpected content %v", choice.Message.Content)
	}
	if choice.Message.ToolCalls != nil {
		t.Fatalf("expected no tool calls, got %v", choice.Message.ToolCalls)
	}
}

func TestEncoderCompletionToolCalls(t *testing.T) {
	enc := fixedEncoder("chatcmpl-test", 1700000000)
	calls := []ToolCall{{
		ID:       "call_1",
		Type:     ToolTypeFunction,
		Function: FunctionCall{Name: "get_weather", Arguments: `{"city":"Oslo"}`},
	}}
	resp := enc.Completion("claude-sonnet", "", calls, Usage{})
	choice := resp.Choices[0]
	if choice.FinishReason != FinishToolCalls {
		t.Fatalf("expected tool_calls, got %q", choice.FinishReason)
	}
	if choice.Message.Content != nil {
		t.Fatalf("expected null content, got %q", *choice.Message.Content)
	}
	if len(choice.Message.ToolCalls) != 1 || choice.Message.ToolCalls[0].Function.Name != "get_weather" {
		t.Fatalf("unexpected tool calls %+v", choice.Message.ToolCalls)
	}

	out, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"content":null`) {
		t.Fatalf("expected explicit null content, got %s", out)
	}
}

func TestEncoderChunksContentOnly(t *testing.T) {
	enc := fixedEncoder("chatcmpl-test", 1700000000)
	chunks := enc.Chunks("claude-sonnet", "hello", nil)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	first := chunks[0].Choices[0]
	if first.Delta.Role != RoleAssistant || first.Delta.Content == nil || *first.Delta.Content != "hello" {
		t.Fatalf("unexpected first delta %+v", first.Delta)
	}
	if first.FinishReason != nil {
		t.Fatalf("expected nil finish reason on content chunk")
	}
	last := chunks[1].Choices[0]
	if last.FinishReason == nil || *last.FinishReason != FinishStop {
		t.Fatalf("unexpected terminal chunk %+v", last)
	}
	for _, ch := range chunks {
		if ch.ID != "chatcmpl-test" || ch.Created != 1700000000 || ch.Object != ObjectChatCompletionChunk {
			t.Fatalf("chunk envelope not shared: %+v", ch)
		}
	}
}

func TestEncoderChunksTwoToolCalls(t *testing.T) {
	enc := fixedEncoder("chatcmpl-test", 1700000000)
	calls := []ToolCall{
		{ID: "call_a", Type: ToolTypeFunction, Function: FunctionCall{Name: "first", Arguments: "{}"}},
		{ID: "call_b", Type: ToolTypeFunction, Function: FunctionCall{Name: "second", Arguments: "{}"}},
	}
	chunks := enc.Chunks("claude-sonnet", "working on it", calls)
	if len(chunks) != 4 {
		t.Fatalf("expected content + 2 calls + terminal, got %d chunks", len(chunks))
	}
	if chunks[0].Choices[0].Delta.Content == nil {
		t.Fatal("expected leading content delta")
	}
	for i, name := range []string{"first", "second"} {
		delta := chunks[i+1].Choices[0].Delta
		if len(delta.ToolCalls) != 1 {
			t.Fatalf("chunk %d: expected exactly one call, got %d", i+1, len(delta.ToolCalls))
		}
		tc := delta.ToolCalls[0]
		if tc.Index != i || tc.Function == nil || tc.Function.Name != name {
			t.Fatalf("chunk %d: unexpected call %+v", i+1, tc)
		}
	}
	last := chunks[3].Choices[0]
	if last.FinishReason == nil || *last.FinishReason != FinishToolCalls {
		t.Fatalf("unexpected terminal %+v", last)
	}
	if last.Delta.Content != nil || len(last.Delta.ToolCalls) != 0 {
		t.Fatalf("terminal delta not empty: %+v", last.Delta)
	}
}

func TestEncoderChunksToolCallsWithoutResidual(t *testing.T) {
	enc := fixedEncoder("chatcmpl-test", 1700000000)
	calls := []ToolCall{{ID: "call_a", Type: ToolTypeFunction, Function: FunctionCall{Name: "only", Arguments: "{}"}}}
	chunks := enc.Chunks("claude-sonnet", "", calls)
	if len(chunks) != 2 {
		t.Fatalf("expected call + terminal, got %d chunks", len(chunks))
	}
	first := chunks[0].Choices[0].Delta
	if first.Role != RoleAssistant {
		t.Fatalf("expected role on first delta, got %+v", first)
	}
	if len(first.ToolCalls) != 1 {
		t.Fatalf("expected tool call delta, got %+v", first)
	}
}

func TestNewCompletionIDUnique(t *testing.T) {
	a, b := NewCompletionID(), NewCompletionID()
	if !strings.HasPrefix(a, "chatcmpl-") {
		t.Fatalf("unexpected prefix: %s", a)
	}
	if a == b {
		t.Fatalf("ids collided: %s", a)
	}
}

func TestNewToolCallIDUnique(t *testing.T) {
	a, b := NewToolCallID(), NewToolCallID()
	if !strings.HasPrefix(a, "call_") {
		t.Fatalf("unexpected prefix: %s", a)
	}
	if a == b {
		t.Fatalf("ids collided: %s", a)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{StatusCode: 400, Type: ErrTypeInvalidRequest, Message: "messages must not be empty"}
	want := "chat completions error (400, invalid_request_error): messages must not be empty"
	if err.Error() != want {
		t.Fatalf("unexpected error string %q", err.Error())
	}
}
