package toolcall

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cexll/clawbridge/pkg/protocol"
)

func testParser() *Parser {
	p := NewParser(nil)
	n := 0
	p.newID = func() string {
		n++
		return fmt.Sprintf("call_%d", n)
	}
	return p
}

func TestParsePlainText(t *testing.T) {
	reply := testParser().Parse("just a normal answer")
	if len(reply.Calls) != 0 {
		t.Fatalf("unexpected calls %+v", reply.Calls)
	}
	if reply.Content != "just a normal answer" {
		t.Fatalf("unexpected content %q", reply.Content)
	}
}

func TestParseSingleCall(t *testing.T) {
	raw := "Let me check.\n" + OpenDelimiter + "\n" +
		`{"name": "get_weather", "arguments": {"city": "Oslo"}}` + "\n" +
		CloseDelimiter + "\nBack with results soon."
	reply := testParser().Parse(raw)
	if len(reply.Calls) != 1 {
		t.Fatalf("expected one call, got %d", len(reply.Calls))
	}
	call := reply.Calls[0]
	if call.ID != "call_1" || call.Type != protocol.ToolTypeFunction {
		t.Fatalf("unexpected call %+v", call)
	}
	if call.Function.Name != "get_weather" || call.Function.Arguments != `{"city":"Oslo"}` {
		t.Fatalf("unexpected function %+v", call.Function)
	}
	if reply.Content != "Let me check.\n\nBack with results soon." {
		t.Fatalf("unexpected residual %q", reply.Content)
	}
}

func TestParseOrderAndMalformedSpans(t *testing.T) {
	raw := strings.Join([]string{
		"intro",
		OpenDelimiter, `{"name": "first"}`, CloseDelimiter,
		"middle",
		OpenDelimiter, `{not json`, CloseDelimiter,
		OpenDelimiter, `{"arguments": {"x": 1}}`, CloseDelimiter,
		OpenDelimiter, `{"name": "second", "arguments": {"n": 2}}`, CloseDelimiter,
		"outro",
	}, "\n")
	reply := testParser().Parse(raw)
	if len(reply.Calls) != 2 {
		t.Fatalf("expected 2 well-formed calls, got %d", len(reply.Calls))
	}
	if reply.Calls[0].Function.Name != "first" || reply.Calls[1].Function.Name != "second" {
		t.Fatalf("order not preserved: %+v", reply.Calls)
	}
	if reply.Calls[0].ID == reply.Calls[1].ID {
		t.Fatal("call ids must be unique")
	}
	if strings.Contains(reply.Content, "TOOL_CALL") || strings.Contains(reply.Content, "not json") {
		t.Fatalf("malformed span not removed from residual: %q", reply.Content)
	}
	if !strings.Contains(reply.Content, "intro") || !strings.Contains(reply.Content, "middle") || !strings.Contains(reply.Content, "outro") {
		t.Fatalf("residual text lost: %q", reply.Content)
	}
}

func TestParseOnlyCallsLeavesEmptyContent(t *testing.T) {
	raw := OpenDelimiter + `{"name": "solo"}` + CloseDelimiter
	reply := testParser().Parse(raw)
	if reply.Content != "" {
		t.Fatalf("expected empty residual, got %q", reply.Content)
	}
	if len(reply.Calls) != 1 || reply.Calls[0].Function.Arguments != "{}" {
		t.Fatalf("expected default arguments, got %+v", reply.Calls)
	}
}

func TestParseDanglingOpenDelimiter(t *testing.T) {
	raw := "text " + OpenDelimiter + ` {"name": "never closed"}`
	reply := testParser().Parse(raw)
	if len(reply.Calls) != 0 {
		t.Fatalf("unexpected calls %+v", reply.Calls)
	}
	if !strings.Contains(reply.Content, OpenDelimiter) {
		t.Fatalf("dangling delimiter should stay in residual: %q", reply.Content)
	}
}

func TestFormatMenuEmpty(t *testing.T) {
	if got := FormatMenu(nil); got != "" {
		t.Fatalf("expected empty menu, got %q", got)
	}
}

func TestFormatMenu(t *testing.T) {
	tools := []protocol.ToolDefinition{
		{
			Type: protocol.ToolTypeFunction,
			Function: protocol.FunctionDefinition{
				Name:        "get_weather",
				Description: "Look up current weather.",
				Parameters: &protocol.FunctionParams{
					Type: "object",
					Properties: map[string]protocol.PropertySchema{
						"city": {Type: "string", Description: "City name"},
						"unit": {Type: "string", Description: "celsius or fahrenheit"},
					},
					Required: []string{"city"},
				},
			},
		},
		{
			Type:     protocol.ToolTypeFunction,
			Function: protocol.FunctionDefinition{Name: "ping"},
		},
	}
	menu := FormatMenu(tools)

	for _, want := range []string{
		OpenDelimiter,
		CloseDelimiter,
		"## get_weather",
		"Look up current weather.",
		"- city (string) (required): City name",
		"- unit (string): celsius or fahrenheit",
		"## ping",
	} {
		if !strings.Contains(menu, want) {
			t.Fatalf("menu missing %q:\n%s", want, menu)
		}
	}
	if strings.Index(menu, "## get_weather") > strings.Index(menu, "## ping") {
		t.Fatalf("tool order not preserved:\n%s", menu)
	}
	if strings.Index(menu, "- city") > strings.Index(menu, "- unit") {
		t.Fatalf("parameters not sorted:\n%s", menu)
	}
}

func TestMenuAndParserRoundTrip(t *testing.T) {
	menu := FormatMenu([]protocol.ToolDefinition{{
		Type:     protocol.ToolTypeFunction,
		Function: protocol.FunctionDefinition{Name: "echo"},
	}})
	// The usage example inside the menu must itself parse as a call.
	reply := testParser().Parse(menu)
	if len(reply.Calls) != 1 || reply.Calls[0].Function.Name != "tool_name" {
		t.Fatalf("menu example does not round-trip: %+v", reply.Calls)
	}
}
