package runner

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnthropicRunnerInvoke(t *testing.T) {
	payloadCh := make(chan map[string]any, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			http.Error(w, "decode body", http.StatusBadRequest)
			return
		}
		select {
		case payloadCh <- payload:
		default:
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_test","type":"message","role":"assistant","model":"claude-sonnet-4-20250514","content":[{"type":"text","text":"first"},{"type":"text","text":"second"}],"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`))
	}))
	t.Cleanup(srv.Close)

	r := NewAnthropicRunnerWithBaseURL("test-key", srv.URL, 128)
	result, err := r.Invoke(context.Background(), Request{
		Prompt:       "hello",
		SystemPrompt: "stay brief",
		Model:        "claude-sonnet-4-20250514",
	})
	require.NoError(t, err)
	require.Equal(t, "first\nsecond", result.Text)
	require.Equal(t, 1, result.NumTurns)

	payload := <-payloadCh
	require.Equal(t, "claude-sonnet-4-20250514", payload["model"])
	require.EqualValues(t, 128, payload["max_tokens"])

	system, ok := payload["system"].([]any)
	require.True(t, ok, "system blocks missing: %v", payload["system"])
	require.Len(t, system, 1)
	block, _ := system[0].(map[string]any)
	require.Equal(t, "stay brief", block["text"])

	msgs, ok := payload["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	msg0, _ := msgs[0].(map[string]any)
	require.Equal(t, "user", msg0["role"])
}

func TestAnthropicRunnerOmitsEmptySystem(t *testing.T) {
	payloadCh := make(chan map[string]any, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(body, &payload)
		select {
		case payloadCh <- payload:
		default:
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_test","type":"message","role":"assistant","model":"claude-sonnet-4-20250514","content":[{"type":"text","text":"ok"}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`))
	}))
	t.Cleanup(srv.Close)

	r := NewAnthropicRunnerWithBaseURL("test-key", srv.URL, 0)
	_, err := r.Invoke(context.Background(), Request{Prompt: "hello", Model: "claude-sonnet-4-20250514"})
	require.NoError(t, err)

	payload := <-payloadCh
	_, hasSystem := payload["system"]
	require.False(t, hasSystem, "system should be omitted when empty")
	require.EqualValues(t, defaultMaxTokens, payload["max_tokens"])
}

func TestAnthropicRunnerAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad prompt"}}`))
	}))
	t.Cleanup(srv.Close)

	r := NewAnthropicRunnerWithBaseURL("test-key", srv.URL, 16)
	_, err := r.Invoke(context.Background(), Request{Prompt: "hello", Model: "claude-sonnet-4-20250514"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "anthropic sdk call")
}
