package toolcall

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cexll/clawbridge/pkg/protocol"
)

// Reply is the decoded form of the agent's raw output: the residual
// natural-language content plus the inline calls in document order.
type Reply struct {
	Content string
	Calls   []protocol.ToolCall
}

// Parser extracts inline tool-call blocks from agent text. The id
// generator is injectable for tests.
type Parser struct {
	log   *slog.Logger
	newID func() string
}

// NewParser builds a parser logging through the given logger.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		log:   logger.With("component", "toolcall"),
		newID: protocol.NewToolCallID,
	}
}

// Parse scans raw text for delimited call spans. Every span is removed
// from the residual content; malformed spans are logged and dropped
// without aborting the scan. A dangling open delimiter is left in place.
func (p *Parser) Parse(raw string) Reply {
	var calls []protocol.ToolCall
	var residual strings.Builder
	rest := raw
	for {
		start := strings.Index(rest, OpenDelimiter)
		if start < 0 {
			residual.WriteString(rest)
			break
		}
		spanStart := start + len(OpenDelimiter)
		end := strings.Index(rest[spanStart:], CloseDelimiter)
		if end < 0 {
			residual.WriteString(rest)
			break
		}
		residual.WriteString(rest[:start])
		span := rest[spanStart : spanStart+end]
		rest = rest[spanStart+end+len(CloseDelimiter):]

		call, err := p.decode(span)
		if err != nil {
			p.log.Warn("dropping malformed inline tool call", "error", err, "span", snippet(span))
			continue
		}
		calls = append(calls, call)
	}
	return Reply{Content: strings.TrimSpace(residual.String()), Calls: calls}
}

func (p *Parser) decode(span string) (protocol.ToolCall, error) {
	var payload struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(span)), &payload); err != nil {
		return protocol.ToolCall{}, fmt.Errorf("decode inline call: %w", err)
	}
	if strings.TrimSpace(payload.Name) == "" {
		return protocol.ToolCall{}, errors.New("inline call missing name")
	}
	args := "{}"
	if payload.Arguments != nil {
		encoded, err := json.Marshal(payload.Arguments)
		if err != nil {
			return protocol.ToolCall{}, fmt.Errorf("encode arguments: %w", err)
		}
		args = string(encoded)
	}
	return protocol.ToolCall{
		ID:       p.newID(),
		Type:     protocol.ToolTypeFunction,
		Function: protocol.FunctionCall{Name: payload.Name, Arguments: args},
	}, nil
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
