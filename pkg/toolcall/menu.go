package toolcall

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cexll/clawbridge/pkg/protocol"
)

// Delimiters of the inline call micro-protocol. The menu teaches them to
// the agent and Parse scans replies for them; the two must stay in sync.
const (
	OpenDelimiter  = "<<<TOOL_CALL>>>"
	CloseDelimiter = "<<<END_TOOL_CALL>>>"
)

// FormatMenu renders caller-supplied tool definitions as the textual menu
// appended to the agent's system prompt. Empty input yields an empty
// string so no tool section is emitted.
func FormatMenu(tools []protocol.ToolDefinition) string {
	if len(tools) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("# Available Tools\n\n")
	b.WriteString("You may call the tools listed below. To call one, wrap a single-line JSON object in the delimiters, one block per call:\n")
	b.WriteString(OpenDelimiter + "\n")
	b.WriteString(`{"name": "tool_name", "arguments": {"param": "value"}}` + "\n")
	b.WriteString(CloseDelimiter + "\n")
	b.WriteString("Text outside the blocks is treated as your reply to the user.\n")
	for _, tool := range tools {
		fn := tool.Function
		if fn.Name == "" {
			continue
		}
		b.WriteString("\n## " + fn.Name + "\n")
		if fn.Description != "" {
			b.WriteString(fn.Description + "\n")
		}
		writeParams(&b, fn.Parameters)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeParams(b *strings.Builder, params *protocol.FunctionParams) {
	if params == nil || len(params.Properties) == 0 {
		return
	}
	required := make(map[string]bool, len(params.Required))
	for _, name := range params.Required {
		required[name] = true
	}
	names := make([]string, 0, len(params.Properties))
	for name := range params.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString("Parameters:\n")
	for _, name := range names {
		prop := params.Properties[name]
		typ := prop.Type
		if typ == "" {
			typ = "any"
		}
		fmt.Fprintf(b, "- %s (%s)", name, typ)
		if required[name] {
			b.WriteString(" (required)")
		}
		if prop.Description != "" {
			b.WriteString(": " + prop.Description)
		}
		b.WriteByte('\n')
	}
}
