package guardrail

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var whitespaceRuns = regexp.MustCompile(`\s{2,}`)

// Normalizer produces deterministic text for downstream matching: optional
// diacritic removal, configured symbol stripping and whitespace collapsing.
type Normalizer struct {
	removeAccents bool
	symbols       map[rune]struct{}
}

// NewNormalizer builds a normalizer. stripSymbols is a comma-separated list
// of symbol tokens whose runes are replaced by spaces.
func NewNormalizer(removeAccents bool, stripSymbols string) *Normalizer {
	symbols := make(map[rune]struct{})
	for _, part := range strings.Split(stripSymbols, ",") {
		token := strings.TrimSpace(part)
		for _, r := range token {
			symbols[r] = struct{}{}
		}
	}
	return &Normalizer{removeAccents: removeAccents, symbols: symbols}
}

// Normalize returns the normalized text and whether it differs from the input.
func (n *Normalizer) Normalize(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	normalized := text
	if n.removeAccents {
		normalized = stripDiacritics(normalized)
	}
	if len(n.symbols) > 0 {
		normalized = strings.Map(func(r rune) rune {
			if _, ok := n.symbols[r]; ok {
				return ' '
			}
			return r
		}, normalized)
	}
	normalized = whitespaceRuns.ReplaceAllString(normalized, " ")
	normalized = strings.TrimSpace(normalized)
	return normalized, normalized != text
}

// stripDiacritics decomposes to NFD, drops combining marks and recomposes.
func stripDiacritics(text string) string {
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(chain, text)
	if err != nil {
		return text
	}
	return out
}

// normalizeForMatching lowercases and collapses whitespace; shared by the
// router fallback and the handoff reply classifier.
func normalizeForMatching(text string) string {
	cleaned := whitespaceRuns.ReplaceAllString(text, " ")
	cleaned = strings.TrimSpace(strings.ToLower(cleaned))
	if cleaned == "" {
		return ""
	}
	return stripDiacritics(cleaned)
}

// NormalizeForMatching exposes the matching normalization used across the
// router and handoff components.
func NormalizeForMatching(text string) string {
	return normalizeForMatching(text)
}
