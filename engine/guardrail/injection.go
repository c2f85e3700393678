package guardrail

import (
	"regexp"
	"strings"
)

// defaultInjectionPatterns are literal phrases removed from user input before
// any text reaches generation.
var defaultInjectionPatterns = []string{
	"ignore previous instructions",
	"disregard previous instructions",
	"act as system",
	"you are now system",
	"developer mode",
	"sudo",
	"system prompt",
	"reveal password",
	"leak secrets",
	"override guardrails",
}

type injectionPattern struct {
	value string
	re    *regexp.Regexp
}

// InjectionFilter removes prompt-injection spans from text.
type InjectionFilter struct {
	patterns []injectionPattern
}

// NewInjectionFilter merges the default pattern set with configured extras
// (semicolon-separated), deduplicated case-insensitively.
func NewInjectionFilter(configured string) *InjectionFilter {
	merged := make([]string, 0, len(defaultInjectionPatterns)+4)
	merged = append(merged, defaultInjectionPatterns...)
	for _, raw := range strings.Split(configured, ";") {
		if text := strings.TrimSpace(raw); text != "" {
			merged = append(merged, strings.ToLower(text))
		}
	}
	seen := make(map[string]struct{}, len(merged))
	patterns := make([]injectionPattern, 0, len(merged))
	for _, value := range merged {
		key := strings.ToLower(value)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		patterns = append(patterns, injectionPattern{
			value: value,
			re:    regexp.MustCompile(`(?i)` + regexp.QuoteMeta(value)),
		})
	}
	return &InjectionFilter{patterns: patterns}
}

// Cleanse removes every matched span and reports the patterns that fired.
func (f *InjectionFilter) Cleanse(text string) (string, bool, []string) {
	if text == "" {
		return "", false, nil
	}
	var detected []string
	cleaned := text
	for _, pattern := range f.patterns {
		if pattern.re.MatchString(cleaned) {
			detected = append(detected, pattern.value)
			cleaned = pattern.re.ReplaceAllString(cleaned, "")
		}
	}
	cleaned = whitespaceRuns.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned), len(detected) > 0, detected
}

// Detect reports whether text trips any injection pattern without mutating it.
func (f *InjectionFilter) Detect(text string) bool {
	for _, pattern := range f.patterns {
		if pattern.re.MatchString(text) {
			return true
		}
	}
	return false
}
