package conversation

import (
	"regexp"
	"strings"

	"github.com/cexll/clawbridge/pkg/protocol"
	"github.com/cexll/clawbridge/pkg/skills"
)

// Context is everything worth pulling out of the system message: the skill
// catalog, persona text, and the declared working directory. Fields are
// empty when the corresponding sub-document is absent.
type Context struct {
	Skills    skills.Catalog
	Persona   string
	Workspace string
}

var (
	skillBlock = regexp.MustCompile(`(?s)<skill>\s*<name>(.*?)</name>\s*<description>(.*?)</description>\s*<location>(.*?)</location>\s*</skill>`)
	workingDir = regexp.MustCompile(`(?i)working directory is:\s*([^\n]+)`)
	mdHeader   = regexp.MustCompile(`(?m)^(#{1,6})\s*(.+?)\s*$`)
)

const soulParagraphLimit = 3

// Extract scans the first system message for the three embedded
// sub-documents. Extraction is read-only and idempotent.
func Extract(msgs []protocol.ChatMessageParam) Context {
	system := ""
	for _, msg := range msgs {
		if msg.Role == protocol.RoleSystem {
			system = msg.Content.Text()
			break
		}
	}
	if system == "" {
		return Context{}
	}
	return Context{
		Skills:    extractSkills(system),
		Persona:   extractPersona(system),
		Workspace: extractWorkspace(system),
	}
}

func extractSkills(system string) skills.Catalog {
	matches := skillBlock.FindAllStringSubmatch(system, -1)
	if len(matches) == 0 {
		return nil
	}
	catalog := make(skills.Catalog, 0, len(matches))
	for _, m := range matches {
		catalog = append(catalog, skills.Skill{
			Name:        strings.TrimSpace(m[1]),
			Description: strings.TrimSpace(m[2]),
			Location:    strings.TrimSpace(m[3]),
		})
	}
	return catalog
}

// extractPersona keeps the full "identity" section and the first few
// paragraphs of the "soul" section, joined by a blank line.
func extractPersona(system string) string {
	var parts []string
	if identity := sectionBody(system, "identity"); identity != "" {
		parts = append(parts, identity)
	}
	if soul := sectionBody(system, "soul"); soul != "" {
		parts = append(parts, firstParagraphs(soul, soulParagraphLimit))
	}
	return strings.Join(parts, "\n\n")
}

// sectionBody returns the body of the first markdown section whose header
// text contains keyword, up to the next header of the same or higher level.
func sectionBody(doc, keyword string) string {
	headers := mdHeader.FindAllStringSubmatchIndex(doc, -1)
	for i, h := range headers {
		level := h[3] - h[2]
		title := strings.ToLower(doc[h[4]:h[5]])
		if !strings.Contains(title, keyword) {
			continue
		}
		end := len(doc)
		for _, next := range headers[i+1:] {
			if next[3]-next[2] <= level {
				end = next[0]
				break
			}
		}
		return strings.TrimSpace(doc[h[1]:end])
	}
	return ""
}

var blankLines = regexp.MustCompile(`\n\s*\n`)

func firstParagraphs(text string, n int) string {
	blocks := blankLines.Split(strings.TrimSpace(text), -1)
	if len(blocks) > n {
		blocks = blocks[:n]
	}
	for i := range blocks {
		blocks[i] = strings.TrimSpace(blocks[i])
	}
	return strings.Join(blocks, "\n\n")
}

func extractWorkspace(system string) string {
	m := workingDir.FindStringSubmatch(system)
	if m == nil {
		return ""
	}
	path := strings.TrimSuffix(strings.TrimSpace(m[1]), ".")
	if path == "" {
		return ""
	}
	if expanded, err := skills.ExpandPath(path); err == nil {
		return expanded
	}
	return path
}
