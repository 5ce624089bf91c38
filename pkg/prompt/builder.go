package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cexll/clawbridge/pkg/conversation"
	"github.com/cexll/clawbridge/pkg/dispatch"
	"github.com/cexll/clawbridge/pkg/protocol"
)

const (
	defaultWindow     = 8
	defaultTruncateAt = 500
	ellipsis          = "..."
)

// executorDirective prefixes a sole-question coding prompt so the agent
// executes instead of negotiating.
const executorDirective = "Complete the following task. Work autonomously and do not ask for confirmation before acting."

const contextFraming = "Conversation context (for reference only; the final question is what you must answer):"

// Input is everything one request contributes to the outbound prompt.
type Input struct {
	Messages []conversation.Message
	Decision dispatch.Decision
	Persona  string
	// SkillBody is the skill instruction file content; empty when the
	// file was unreadable, in which case the prompt is built unmodified.
	SkillBody string
	// ToolMenu is the pre-rendered tool section; conversational mode
	// suppresses it.
	ToolMenu string
	Executor bool
}

// Result carries the two outbound strings for the agent call.
type Result struct {
	Prompt string
	System string
}

// Builder assembles outbound prompts from typed sections so ordering,
// windowing, and truncation live in one place.
type Builder struct {
	window     int
	truncateAt int
}

// NewBuilder returns a builder with the default context window and
// per-message truncation cap.
func NewBuilder() *Builder {
	return &Builder{window: defaultWindow, truncateAt: defaultTruncateAt}
}

// Build renders the prompt for one classified request.
func (b *Builder) Build(in Input) Result {
	question, context := splitQuestion(exchangesOf(in.Messages))

	var sections []string
	switch in.Decision.Mode {
	case dispatch.ModeSkill:
		if in.SkillBody != "" {
			sections = append(sections, skillSection(in.Decision.Skill.Name, in.SkillBody))
		}
	case dispatch.ModeConversational:
		if in.Persona != "" {
			sections = append(sections, personaSection(in.Persona))
		}
	case dispatch.ModeCoding:
		if in.Executor && len(context) == 0 {
			sections = append(sections, executorDirective)
		}
	}
	sections = append(sections, b.taskSection(question, context))

	res := Result{Prompt: joinSections(sections)}
	if in.Decision.Mode != dispatch.ModeConversational {
		res.System = in.ToolMenu
	}
	return res
}

// exchangesOf keeps the user/assistant turns with content.
func exchangesOf(msgs []conversation.Message) []conversation.Message {
	out := make([]conversation.Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role != protocol.RoleUser && msg.Role != protocol.RoleAssistant {
			continue
		}
		if msg.Text == "" {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// splitQuestion locates the last user exchange as the question and returns
// everything before it as candidate context.
func splitQuestion(exchanges []conversation.Message) (string, []conversation.Message) {
	for i := len(exchanges) - 1; i >= 0; i-- {
		if exchanges[i].Role == protocol.RoleUser {
			return exchanges[i].Text, exchanges[:i]
		}
	}
	if len(exchanges) == 0 {
		return "", nil
	}
	return exchanges[len(exchanges)-1].Text, exchanges[:len(exchanges)-1]
}

func (b *Builder) taskSection(question string, context []conversation.Message) string {
	if len(context) == 0 {
		return question
	}
	if len(context) > b.window {
		context = context[len(context)-b.window:]
	}
	lines := make([]string, 0, len(context))
	for _, msg := range context {
		lines = append(lines, roleLabel(msg.Role)+": "+truncate(msg.Text, b.truncateAt))
	}
	return contextFraming + "\n" + strings.Join(lines, "\n") + "\n\nQuestion: " + question
}

func skillSection(name, body string) string {
	return fmt.Sprintf("Apply the %q skill for this request. Skill instructions:\n\n%s", name, body)
}

func personaSection(persona string) string {
	return "Respond conversationally only for this turn: no tools, no file changes, no task execution.\n\nStay in character:\n\n" + persona
}

func roleLabel(role string) string {
	if role == protocol.RoleAssistant {
		return "Assistant"
	}
	return "User"
}

func joinSections(sections []string) string {
	nonEmpty := sections[:0]
	for _, s := range sections {
		if strings.TrimSpace(s) != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

// truncate cuts text at limit bytes without splitting a rune and marks the
// cut with an ellipsis.
func truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + ellipsis
}
