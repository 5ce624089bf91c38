package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cexll/clawbridge/pkg/protocol"
)

const doneFrame = "data: [DONE]\n\n"

// sseWriter frames completion chunks as server-sent events, flushing
// after every frame so clients see deltas as they are produced.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response does not support streaming")
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, nil
}

// WriteChunk implements bridge.StreamWriter.
func (s *sseWriter) WriteChunk(chunk protocol.ChatCompletionChunk) error {
	body, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", body); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Done writes the terminal sentinel that ends an OpenAI-style stream.
func (s *sseWriter) Done() error {
	if _, err := io.WriteString(s.w, doneFrame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
