package conversation

import (
	"regexp"
	"strings"

	"github.com/cexll/clawbridge/pkg/protocol"
)

// CompactionMarker prefixes synthetic notices some clients inject after
// trimming their own history. Such messages carry no actionable content.
const CompactionMarker = "[HISTORY COMPACTED]"

// Message is one normalized exchange: the role and its flattened text.
type Message struct {
	Role string
	Text string
}

// Chat platforms whose bracketed relay markers are stripped from the start
// of user text, e.g. "[Telegram Alice Smith 2026-01-02 10:04 UTC]: hey".
var platformPrefixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\[(?:telegram|discord|slack|whatsapp|signal|matrix|imessage)\b[^\]]*\]\s*:?\s*`),
	regexp.MustCompile(`(?i)^\[[^\]]*\bvia\s+(?:telegram|discord|slack|whatsapp|signal|matrix|imessage)\][:\s]*`),
}

var messageIDTag = regexp.MustCompile(`(?i)\s*\[message_id:\s*[^\]]*\]`)

// Normalize flattens raw request messages into plain-text form, scrubbing
// relay markers from user text and dropping compaction notices. It is a
// pure function and idempotent over its own output.
func Normalize(msgs []protocol.ChatMessageParam) []Message {
	out := make([]Message, 0, len(msgs))
	for _, msg := range msgs {
		text := msg.Content.Text()
		if msg.Role == protocol.RoleUser {
			text = CleanUserText(text)
		} else {
			text = strings.TrimSpace(text)
		}
		if strings.HasPrefix(text, CompactionMarker) {
			continue
		}
		out = append(out, Message{Role: msg.Role, Text: text})
	}
	return out
}

// CleanUserText strips platform relay prefixes from the start of the text
// and message-id tags anywhere in it. Repeated prefixes are all removed so
// a second pass is a no-op.
func CleanUserText(text string) string {
	text = messageIDTag.ReplaceAllString(text, "")
	for {
		trimmed := strings.TrimSpace(text)
		stripped := trimmed
		for _, re := range platformPrefixes {
			stripped = re.ReplaceAllString(stripped, "")
		}
		if stripped == trimmed {
			return trimmed
		}
		text = stripped
	}
}
