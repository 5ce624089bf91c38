package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"

	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"

	ToolTypeFunction = "function"
)

// ChatCompletionRequest models the inbound Chat Completions payload.
// Sampling parameters are accepted for wire compatibility and ignored.
type ChatCompletionRequest struct {
	Model       string             `json:"model,omitempty"`
	Messages    []ChatMessageParam `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Stop        []string           `json:"stop,omitempty"`
	Tools       []ToolDefinition   `json:"tools,omitempty"`
	ToolChoice  json.RawMessage    `json:"tool_choice,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
	User        string             `json:"user,omitempty"`
}

// Validate rejects payloads the pipeline cannot process.
func (r *ChatCompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return &APIError{
			StatusCode: http.StatusBadRequest,
			Type:       ErrTypeInvalidRequest,
			Param:      "messages",
			Message:    "messages must not be empty",
		}
	}
	for i, msg := range r.Messages {
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		default:
			return &APIError{
				StatusCode: http.StatusBadRequest,
				Type:       ErrTypeInvalidRequest,
				Param:      fmt.Sprintf("messages[%d].role", i),
				Message:    fmt.Sprintf("unsupported role %q", msg.Role),
			}
		}
	}
	return nil
}

// ChatMessageParam describes a single request message.
type ChatMessageParam struct {
	Role       string                   `json:"role"`
	Content    MessageContent           `json:"content"`
	Name       string                   `json:"name,omitempty"`
	ToolCallID string                   `json:"tool_call_id,omitempty"`
	ToolCalls  []AssistantToolCallParam `json:"tool_calls,omitempty"`
}

// AssistantToolCallParam serializes prior assistant tool calls.
type AssistantToolCallParam struct {
	ID       string        `json:"id,omitempty"`
	Type     string        `json:"type"`
	Function *FunctionCall `json:"function,omitempty"`
}

// MessageContent normalizes string vs array payloads.
type MessageContent []MessageContentPart

// MessageContentPart is a single segment of message content.
type MessageContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Text collapses all text parts into a single newline-joined string.
func (c MessageContent) Text() string {
	if len(c) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range c {
		if part.Type != "text" || part.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

// UnmarshalJSON accepts a simple string, an array of typed parts, or any
// other JSON shape, which is kept as its raw textual representation.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = nil
		return nil
	}
	if data[0] == '[' {
		var parts []MessageContentPart
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		*c = MessageContent(parts)
		return nil
	}
	if data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*c = MessageContent{{Type: "text", Text: text}}
		return nil
	}
	*c = MessageContent{{Type: "text", Text: string(data)}}
	return nil
}

// MarshalJSON re-emits single text parts as plain strings so decoded
// requests round-trip in their most common shape.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if len(c) == 1 && c[0].Type == "text" {
		return json.Marshal(c[0].Text)
	}
	return json.Marshal([]MessageContentPart(c))
}

// ToolDefinition describes a function definition supplied by the caller.
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition contains the schema for a callable function.
type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  *FunctionParams `json:"parameters,omitempty"`
}

// FunctionParams is the subset of JSON-schema the tool menu renders.
type FunctionParams struct {
	Type       string                    `json:"type,omitempty"`
	Properties map[string]PropertySchema `json:"properties,omitempty"`
	Required   []string                  `json:"required,omitempty"`
}

// PropertySchema carries the per-parameter type and description.
type PropertySchema struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// ChatCompletion is the non-streaming response envelope.
type ChatCompletion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice wraps a single assistant message.
type Choice struct {
	Index        int              `json:"index"`
	Message      AssistantMessage `json:"message"`
	FinishReason string           `json:"finish_reason"`
}

// AssistantMessage is the assistant payload. Content is null when the
// reply consists solely of tool calls.
type AssistantMessage struct {
	Role      string     `json:"role"`
	Content   *string    `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall represents a full tool call emitted toward the caller.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall contains the executable details of a function call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Usage reports token counts; values are estimates when the backend
// does not supply real ones.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionChunk is a single streaming delta envelope.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice carries one delta update.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta provides incremental content or tool-call fragments.
type Delta struct {
	Role      string          `json:"role,omitempty"`
	Content   *string         `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta carries one tool call inside a streaming delta.
type ToolCallDelta struct {
	Index    int           `json:"index"`
	ID       string        `json:"id,omitempty"`
	Type     string        `json:"type,omitempty"`
	Function *FunctionCall `json:"function,omitempty"`
}

// Model is one entry of the model listing endpoint.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the /v1/models response envelope.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

const (
	ErrTypeInvalidRequest = "invalid_request_error"
	ErrTypeServer         = "server_error"
)

// ErrorResponse models the error payload sent to clients.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody contains the API error details.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

// APIError surfaces HTTP metadata along with API error info.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Param      string
	Message    string
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "chat completions error (%d", e.StatusCode)
	if e.Type != "" {
		b.WriteString(", ")
		b.WriteString(e.Type)
	}
	b.WriteString(")")
	if e.Code != "" {
		b.WriteString(" code=")
		b.WriteString(e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Response converts the error into its wire representation.
func (e *APIError) Response() ErrorResponse {
	return ErrorResponse{Error: ErrorBody{
		Message: e.Message,
		Type:    e.Type,
		Param:   e.Param,
		Code:    e.Code,
	}}
}
