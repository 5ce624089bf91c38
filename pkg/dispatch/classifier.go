package dispatch

import (
	"regexp"
	"strings"

	"github.com/cexll/clawbridge/pkg/skills"
)

// Mode is the per-request classification governing prompt shape and
// whether the agent may use its own tools.
type Mode string

const (
	ModeSkill          Mode = "skill"
	ModeCoding         Mode = "coding"
	ModeConversational Mode = "conversational"
)

// Decision is the classifier output. Skill is set only for ModeSkill.
type Decision struct {
	Mode  Mode
	Skill skills.Skill
}

// Skill-invocation phrasings, tried in order. Each captures the candidate
// skill name, which still has to resolve against the request's catalog.
var skillPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\buse\s+(?:the\s+)?([\w-]+(?:\s+[\w-]+)?)\s+skill\b`),
	regexp.MustCompile(`(?i)\b([\w-]+(?:\s+[\w-]+)?)\s+skill\s+to\b`),
	regexp.MustCompile(`(?i)\buse\s+(?:the\s+)?([\w-]+)\s+to\b`),
}

type rule struct {
	pattern *regexp.Regexp
	mode    Mode
}

// The rule table is ordered: coding indicators run before conversational
// ones so short technical requests ("fix login bug?") do not misclassify
// on the trailing question mark.
var modeRules = []rule{
	{regexp.MustCompile(`\b(fix|implement|create|write|add|remove|delete|refactor|rename|debug|build|deploy|install|upgrade|migrate|optimi[sz]e|test)\b`), ModeCoding},
	{regexp.MustCompile(`\b(function|class|method|variable|file|code|script|program|package|module|repo|repository|branch|api|endpoint|database|schema|server|config)\b`), ModeCoding},
	{regexp.MustCompile(`\b(bug|issue|error|crash|regression|commit|merge|rebase|pull request|ticket|stack ?trace|lint|compile|pipeline)\b`), ModeCoding},
	{regexp.MustCompile(`^(hi|hey|hello|yo|sup|howdy|good (morning|afternoon|evening))\b`), ModeConversational},
	{regexp.MustCompile(`^(what|who|when|where|why|how|is|are|was|were|do|does|did|can|could|should|would|will)\b`), ModeConversational},
	{regexp.MustCompile(`\?\s*$`), ModeConversational},
	{regexp.MustCompile(`^(thanks|thank you|thx|ty|ok|okay|cool|nice|great|awesome|got it|sounds good|lol)\b`), ModeConversational},
}

const lengthFallbackLimit = 100

// Classify decides the dispatch mode for the latest user text. Precedence
// is fixed: explicit skill invocation, then the rule table, then a length
// heuristic. Heuristics degrade to the next-closest mode, never fail.
func Classify(text string, catalog skills.Catalog) Decision {
	trimmed := strings.TrimSpace(text)
	if skill, ok := detectSkill(trimmed, catalog); ok {
		return Decision{Mode: ModeSkill, Skill: skill}
	}
	lower := strings.ToLower(trimmed)
	for _, r := range modeRules {
		if r.pattern.MatchString(lower) {
			return Decision{Mode: r.mode}
		}
	}
	if len(trimmed) < lengthFallbackLimit &&
		!strings.Contains(lower, "file") && !strings.Contains(lower, "code") {
		return Decision{Mode: ModeConversational}
	}
	return Decision{Mode: ModeCoding}
}

func detectSkill(text string, catalog skills.Catalog) (skills.Skill, bool) {
	if len(catalog) == 0 {
		return skills.Skill{}, false
	}
	for _, pattern := range skillPatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if skill, ok := catalog.Resolve(m[1]); ok {
			return skill, true
		}
	}
	return skills.Skill{}, false
}
