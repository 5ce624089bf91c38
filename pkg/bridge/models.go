package bridge

import (
	"sort"
	"strings"
)

// DefaultModel is the backend model used when the request names nothing
// resolvable.
const DefaultModel = "claude-sonnet-4-20250514"

// vendorToken marks model names that are already backend-native and pass
// through untouched.
const vendorToken = "claude"

// tierOrder fixes the alias lookup order so names containing more than
// one tier word resolve deterministically.
var tierOrder = []string{"opus", "sonnet", "haiku"}

// Models maps requested model names onto backend model names.
type Models struct {
	// Default is used for empty or unresolvable names.
	Default string
	// Tiers maps the tier words to full backend model names.
	Tiers map[string]string
}

// DefaultModels returns the built-in alias table.
func DefaultModels() Models {
	return Models{
		Default: DefaultModel,
		Tiers: map[string]string{
			"opus":   "claude-opus-4-20250514",
			"sonnet": "claude-sonnet-4-20250514",
			"haiku":  "claude-3-5-haiku-20241022",
		},
	}
}

// normalized fills zero fields from the built-in table.
func (m Models) normalized() Models {
	base := DefaultModels()
	if strings.TrimSpace(m.Default) != "" {
		base.Default = m.Default
	}
	for tier, model := range m.Tiers {
		if strings.TrimSpace(model) != "" {
			base.Tiers[strings.ToLower(tier)] = model
		}
	}
	return base
}

// Resolve maps a requested name to a backend model. Names carrying the
// vendor token pass through; tier words match by substring; anything else
// falls back to the default. The second return reports whether the name
// resolved without falling back, so callers can log the miss.
func (m Models) Resolve(requested string) (string, bool) {
	name := strings.ToLower(strings.TrimSpace(requested))
	if name == "" {
		return m.Default, true
	}
	if strings.Contains(name, vendorToken) {
		return strings.TrimSpace(requested), true
	}
	for _, tier := range tierOrder {
		model, ok := m.Tiers[tier]
		if !ok {
			continue
		}
		if strings.Contains(name, tier) {
			return model, true
		}
	}
	return m.Default, false
}

// List returns the advertised model ids: the tier aliases plus the
// default backend model, sorted and deduplicated.
func (m Models) List() []string {
	ids := make([]string, 0, len(m.Tiers)+1)
	for tier := range m.Tiers {
		ids = append(ids, tier)
	}
	ids = append(ids, m.Default)
	sort.Strings(ids)

	out := make([]string, 0, len(ids))
	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		out = append(out, id)
	}
	return out
}
