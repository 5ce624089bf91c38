package prompt

import (
	"strings"
	"testing"

	"github.com/cexll/clawbridge/pkg/conversation"
	"github.com/cexll/clawbridge/pkg/dispatch"
	"github.com/cexll/clawbridge/pkg/protocol"
	"github.com/cexll/clawbridge/pkg/skills"
)

func user(text string) conversation.Message {
	return conversation.Message{Role: protocol.RoleUser, Text: text}
}

func assistant(text string) conversation.Message {
	return conversation.Message{Role: protocol.RoleAssistant, Text: text}
}

func TestBuildSoleQuestion(t *testing.T) {
	res := NewBuilder().Build(Input{
		Messages: []conversation.Message{user("fix the login bug")},
		Decision: dispatch.Decision{Mode: dispatch.ModeCoding},
	})
	if res.Prompt != "fix the login bug" {
		t.Fatalf("unexpected prompt %q", res.Prompt)
	}
	if res.System != "" {
		t.Fatalf("unexpected system prompt %q", res.System)
	}
}

func TestBuildExecutorDirective(t *testing.T) {
	res := NewBuilder().Build(Input{
		Messages: []conversation.Message{user("fix the login bug")},
		Decision: dispatch.Decision{Mode: dispatch.ModeCoding},
		Executor: true,
	})
	if !strings.HasPrefix(res.Prompt, executorDirective) {
		t.Fatalf("missing executor directive: %q", res.Prompt)
	}
	if !strings.HasSuffix(res.Prompt, "fix the login bug") {
		t.Fatalf("question lost: %q", res.Prompt)
	}
}

func TestBuildExecutorSkippedWithContext(t *testing.T) {
	res := NewBuilder().Build(Input{
		Messages: []conversation.Message{
			user("the login page 500s"),
			assistant("which browser?"),
			user("all of them, fix it"),
		},
		Decision: dispatch.Decision{Mode: dispatch.ModeCoding},
		Executor: true,
	})
	if strings.Contains(res.Prompt, executorDirective) {
		t.Fatalf("directive must not apply with context: %q", res.Prompt)
	}
	if !strings.Contains(res.Prompt, contextFraming) {
		t.Fatalf("missing context framing: %q", res.Prompt)
	}
	if !strings.Contains(res.Prompt, "User: the login page 500s") {
		t.Fatalf("missing context line: %q", res.Prompt)
	}
	if !strings.Contains(res.Prompt, "Assistant: which browser?") {
		t.Fatalf("missing assistant line: %q", res.Prompt)
	}
	if !strings.HasSuffix(res.Prompt, "Question: all of them, fix it") {
		t.Fatalf("question must come last: %q", res.Prompt)
	}
}

func TestBuildWindowBound(t *testing.T) {
	msgs := make([]conversation.Message, 0, 24)
	for i := 0; i < 11; i++ {
		msgs = append(msgs, user("older question"), assistant("older answer"))
	}
	msgs = append(msgs, user("latest question"))

	res := NewBuilder().Build(Input{
		Messages: msgs,
		Decision: dispatch.Decision{Mode: dispatch.ModeCoding},
	})
	if got := strings.Count(res.Prompt, "\nUser: ")+strings.Count(res.Prompt, "\nAssistant: "); got != defaultWindow {
		t.Fatalf("expected %d context lines, got %d\n%s", defaultWindow, got, res.Prompt)
	}
}

func TestBuildTruncatesContext(t *testing.T) {
	long := strings.Repeat("x", defaultTruncateAt+50)
	res := NewBuilder().Build(Input{
		Messages: []conversation.Message{user(long), assistant("noted"), user("short q")},
		Decision: dispatch.Decision{Mode: dispatch.ModeCoding},
	})
	if strings.Contains(res.Prompt, long) {
		t.Fatal("context message was not truncated")
	}
	if !strings.Contains(res.Prompt, strings.Repeat("x", defaultTruncateAt)+ellipsis) {
		t.Fatal("missing ellipsis marker")
	}
}

func TestBuildDoesNotTruncateQuestion(t *testing.T) {
	long := strings.Repeat("q", defaultTruncateAt+50)
	res := NewBuilder().Build(Input{
		Messages: []conversation.Message{user("context"), assistant("ack"), user(long)},
		Decision: dispatch.Decision{Mode: dispatch.ModeCoding},
	})
	if !strings.Contains(res.Prompt, long) {
		t.Fatal("question must never be truncated")
	}
}

func TestBuildSkillPreamble(t *testing.T) {
	res := NewBuilder().Build(Input{
		Messages: []conversation.Message{user("use wingman skill to draft an email")},
		Decision: dispatch.Decision{
			Mode:  dispatch.ModeSkill,
			Skill: skills.Skill{Name: "wingman"},
		},
		SkillBody: "# Wingman\n\nDraft the email, keep it short.",
	})
	if !strings.Contains(res.Prompt, `Apply the "wingman" skill`) {
		t.Fatalf("missing skill preamble: %q", res.Prompt)
	}
	if !strings.Contains(res.Prompt, "Draft the email, keep it short.") {
		t.Fatalf("skill instructions must appear verbatim: %q", res.Prompt)
	}
	if !strings.HasSuffix(res.Prompt, "use wingman skill to draft an email") {
		t.Fatalf("question must follow the preamble: %q", res.Prompt)
	}
}

func TestBuildSkillUnreadableBodyLeavesPromptUnmodified(t *testing.T) {
	res := NewBuilder().Build(Input{
		Messages:  []conversation.Message{user("use wingman skill to draft an email")},
		Decision:  dispatch.Decision{Mode: dispatch.ModeSkill, Skill: skills.Skill{Name: "wingman"}},
		SkillBody: "",
	})
	if res.Prompt != "use wingman skill to draft an email" {
		t.Fatalf("prompt should be unmodified, got %q", res.Prompt)
	}
}

func TestBuildConversationalPersona(t *testing.T) {
	res := NewBuilder().Build(Input{
		Messages: []conversation.Message{user("hey, what's up?")},
		Decision: dispatch.Decision{Mode: dispatch.ModeConversational},
		Persona:  "Name: Claw\nBe warm and direct.",
		ToolMenu: "# Available Tools\n...",
	})
	if !strings.Contains(res.Prompt, "Respond conversationally only") {
		t.Fatalf("missing conversational framing: %q", res.Prompt)
	}
	if !strings.Contains(res.Prompt, "Be warm and direct.") {
		t.Fatalf("missing persona text: %q", res.Prompt)
	}
	if res.System != "" {
		t.Fatalf("tool menu must be suppressed in conversational mode, got %q", res.System)
	}
}

func TestBuildConversationalWithoutPersona(t *testing.T) {
	res := NewBuilder().Build(Input{
		Messages: []conversation.Message{user("hey, what's up?")},
		Decision: dispatch.Decision{Mode: dispatch.ModeConversational},
	})
	if res.Prompt != "hey, what's up?" {
		t.Fatalf("unexpected prompt %q", res.Prompt)
	}
}

func TestBuildToolMenuSurvivesCodingMode(t *testing.T) {
	menu := "# Available Tools\n..."
	res := NewBuilder().Build(Input{
		Messages: []conversation.Message{user("fix the login bug")},
		Decision: dispatch.Decision{Mode: dispatch.ModeCoding},
		ToolMenu: menu,
	})
	if res.System != menu {
		t.Fatalf("tool menu must ride the system prompt, got %q", res.System)
	}
}

func TestBuildIgnoresToolRoleMessages(t *testing.T) {
	res := NewBuilder().Build(Input{
		Messages: []conversation.Message{
			{Role: protocol.RoleTool, Text: `{"ok":true}`},
			user("thanks, now what?"),
		},
		Decision: dispatch.Decision{Mode: dispatch.ModeConversational},
	})
	if strings.Contains(res.Prompt, `{"ok":true}`) {
		t.Fatalf("tool messages must not leak into the prompt: %q", res.Prompt)
	}
}

func TestTruncateRespectsRuneBoundary(t *testing.T) {
	text := strings.Repeat("ä", 10) // two bytes per rune
	got := truncate(text, 5)
	if !strings.HasSuffix(got, ellipsis) {
		t.Fatalf("missing ellipsis: %q", got)
	}
	for _, r := range got {
		if r == '�' {
			t.Fatalf("rune split in %q", got)
		}
	}
}
