package telemetry

import (
	"regexp"

	"go.opentelemetry.io/otel/attribute"
)

const defaultMask = "[REDACTED]"

// FilterConfig tunes sensitive-data masking. Patterns are regular
// expressions appended to the built-in set; invalid ones are skipped.
type FilterConfig struct {
	Mask     string
	Patterns []string
}

// builtinPatterns cover the credential shapes that show up in prompts and
// headers regardless of deployment: provider API keys, bearer tokens, and
// key=value style secrets.
var builtinPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{8,}\b`),
	regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]{8,}`),
	regexp.MustCompile(`(?i)\b(api[_-]?key|access[_-]?token|secret|password)\s*[=:]\s*\S+`),
}

type sensitiveFilter struct {
	replacement string
	patterns    []*regexp.Regexp
}

func newSensitiveFilter(cfg FilterConfig) *sensitiveFilter {
	f := &sensitiveFilter{replacement: cfg.Mask}
	if f.replacement == "" {
		f.replacement = defaultMask
	}
	f.patterns = append(f.patterns, builtinPatterns...)
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		f.patterns = append(f.patterns, re)
	}
	return f
}

func (f *sensitiveFilter) mask(text string) string {
	for _, re := range f.patterns {
		text = re.ReplaceAllString(text, f.replacement)
	}
	return text
}

func (f *sensitiveFilter) sanitize(attrs []attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, kv := range attrs {
		switch kv.Value.Type() {
		case attribute.STRING:
			out = append(out, attribute.String(string(kv.Key), f.mask(kv.Value.AsString())))
		case attribute.STRINGSLICE:
			values := kv.Value.AsStringSlice()
			masked := make([]string, len(values))
			for i, v := range values {
				masked[i] = f.mask(v)
			}
			out = append(out, attribute.StringSlice(string(kv.Key), masked))
		default:
			out = append(out, kv)
		}
	}
	return out
}
