package skills

import "strings"

// VendorPrefix is stripped from skill names when building match variants,
// so "openclaw-deploy-helper" also answers to "deploy-helper".
const VendorPrefix = "openclaw-"

// Skill is a named capability extracted from the system message. Location
// points at the instruction file; it may carry a leading "~".
type Skill struct {
	Name        string
	Description string
	Location    string
}

// Variants returns the lowercase name forms a skill answers to: the exact
// name, hyphens removed, hyphens as spaces, and the same three with the
// vendor prefix stripped.
func (s Skill) Variants() []string {
	name := strings.ToLower(strings.TrimSpace(s.Name))
	if name == "" {
		return nil
	}
	seen := make(map[string]struct{}, 6)
	var out []string
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, base := range []string{name, strings.TrimPrefix(name, VendorPrefix)} {
		add(base)
		add(strings.ReplaceAll(base, "-", ""))
		add(strings.ReplaceAll(base, "-", " "))
	}
	return out
}

// Matches reports whether candidate names this skill, by variant equality
// or by sharing a variant's first four characters.
func (s Skill) Matches(candidate string) bool {
	candidate = strings.ToLower(strings.TrimSpace(candidate))
	if candidate == "" {
		return false
	}
	for _, v := range s.Variants() {
		if v == candidate {
			return true
		}
		if len(candidate) >= 4 && len(v) >= 4 && v[:4] == candidate[:4] {
			return true
		}
	}
	return false
}

// Catalog is the ordered skill list extracted from one request.
type Catalog []Skill

// Resolve returns the first catalog entry matching candidate, in document
// order. Ties between similarly named skills go to the earlier entry.
func (c Catalog) Resolve(candidate string) (Skill, bool) {
	for _, s := range c {
		if s.Matches(candidate) {
			return s, true
		}
	}
	return Skill{}, false
}
