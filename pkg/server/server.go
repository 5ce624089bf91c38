// Package server exposes the bridge over the OpenAI chat-completions
// wire protocol, plus a model listing and a health probe.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cexll/clawbridge/pkg/bridge"
	"github.com/cexll/clawbridge/pkg/protocol"
)

// Server routes chat-completions traffic onto a Bridge.
type Server struct {
	bridge *bridge.Bridge
	log    *slog.Logger
	mux    *http.ServeMux
}

// New creates a Server with pre-wired routes.
func New(b *bridge.Bridge, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		bridge: b,
		log:    logger.With("component", "server"),
		mux:    http.NewServeMux(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	s.mux.HandleFunc("/v1/models", s.handleModels)
	s.mux.HandleFunc("/health", s.handleHealth)
}

// ServeHTTP implements http.Handler and logs one line per request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(sw, r)
	s.log.Info("http request",
		"method", r.Method, "path", r.URL.Path,
		"status", sw.status, "duration_ms", time.Since(start).Milliseconds())
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeAPIError(w, &protocol.APIError{
			StatusCode: http.StatusMethodNotAllowed,
			Type:       protocol.ErrTypeInvalidRequest,
			Message:    "method not allowed",
		})
		return
	}
	defer r.Body.Close()

	var req protocol.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeAPIError(w, &protocol.APIError{
			StatusCode: http.StatusBadRequest,
			Type:       protocol.ErrTypeInvalidRequest,
			Message:    "invalid JSON payload: " + err.Error(),
		})
		return
	}
	// Reject before any agent work happens.
	if err := req.Validate(); err != nil {
		s.writeAPIError(w, err)
		return
	}

	if req.Stream {
		s.streamCompletion(w, r, &req)
		return
	}

	completion, err := s.bridge.Complete(r.Context(), &req)
	if err != nil {
		s.writeAPIError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, completion)
}

func (s *Server) streamCompletion(w http.ResponseWriter, r *http.Request, req *protocol.ChatCompletionRequest) {
	sse, err := newSSEWriter(w)
	if err != nil {
		s.writeAPIError(w, &protocol.APIError{
			StatusCode: http.StatusInternalServerError,
			Type:       protocol.ErrTypeServer,
			Message:    err.Error(),
		})
		return
	}
	if err := s.bridge.CompleteStream(r.Context(), req, sse); err != nil {
		// Headers are already out; stop the stream and log.
		s.log.Error("stream aborted", "error", err)
		return
	}
	if err := sse.Done(); err != nil {
		s.log.Debug("write stream sentinel", "error", err)
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeAPIError(w, &protocol.APIError{
			StatusCode: http.StatusMethodNotAllowed,
			Type:       protocol.ErrTypeInvalidRequest,
			Message:    "method not allowed",
		})
		return
	}
	ids := s.bridge.Models().List()
	created := time.Now().Unix()
	list := protocol.ModelList{Object: "list", Data: make([]protocol.Model, 0, len(ids))}
	for _, id := range ids {
		list.Data = append(list.Data, protocol.Model{
			ID:      id,
			Object:  "model",
			Created: created,
			OwnedBy: "clawbridge",
		})
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) writeAPIError(w http.ResponseWriter, err error) {
	var apiErr *protocol.APIError
	if !errors.As(err, &apiErr) {
		apiErr = &protocol.APIError{
			StatusCode: http.StatusInternalServerError,
			Type:       protocol.ErrTypeServer,
			Message:    err.Error(),
		}
	}
	s.writeJSON(w, apiErr.StatusCode, apiErr.Response())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

// statusWriter captures the response code for the request log while
// keeping http.Flusher available to the SSE path.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
