package router

import (
	"strings"

	"github.com/paylane/concierge/engine/core"
	"github.com/paylane/concierge/engine/guardrail"
)

// directHandoffPhrases are explicit, unambiguous requests for a human. They
// route to handoff before any classifier or confidence gate runs.
var directHandoffPhrases = []string{
	"falar com humano",
	"quero humano",
	"quero um humano",
	"atendimento humano",
	"suporte humano",
	"pessoa de verdade",
	"falar com atendente",
	"preciso de humano",
	"talk to a human",
	"human agent",
}

var directHumanTerms = map[string]struct{}{
	"humano":    {},
	"atendente": {},
}

var handoffNegativeTerms = map[string]struct{}{
	"nao":      {},
	"negativo": {},
	"dispensa": {},
}

var supportKeywords = map[string]struct{}{
	"pagamento":  {},
	"pagamentos": {},
	"fraude":     {},
	"cobranca":   {},
	"chargeback": {},
	"suporte":    {},
}

var knowledgeKeywords = map[string]struct{}{
	"politica":     {},
	"privacidade":  {},
	"privacy":      {},
	"documentacao": {},
}

// MatchesDirectHandoff reports whether the message explicitly asks for a
// human. Negative terms suppress the match ("nao preciso de humano").
func MatchesDirectHandoff(message string) bool {
	text := guardrail.NormalizeForMatching(message)
	if text == "" {
		return false
	}
	words := strings.Fields(text)
	for _, word := range words {
		if _, negative := handoffNegativeTerms[word]; negative {
			return false
		}
	}
	for _, phrase := range directHandoffPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	hasHumanTerm := false
	for _, word := range words {
		if _, ok := directHumanTerms[word]; ok {
			hasHumanTerm = true
			break
		}
	}
	if hasHumanTerm {
		for _, intent := range []string{"quero", "preciso", "falar", "fala"} {
			if strings.Contains(text, intent) {
				return true
			}
		}
	}
	return false
}

// heuristicRoute is the deterministic keyword classifier used when the
// provider is unavailable or returns garbage. No randomness: identical input
// always yields the same decision.
func heuristicRoute(message string) *Decision {
	text := guardrail.NormalizeForMatching(message)
	if text == "" {
		return &Decision{Route: core.RouteCustom, Rationale: "fallback_empty"}
	}
	for keyword := range supportKeywords {
		if strings.Contains(text, keyword) {
			return &Decision{Route: core.RouteSupport, Confidence: ptr(0.4), Rationale: "fallback_support"}
		}
	}
	for keyword := range knowledgeKeywords {
		if strings.Contains(text, keyword) {
			return &Decision{Route: core.RouteKnowledge, Confidence: ptr(0.4), Rationale: "fallback_knowledge"}
		}
	}
	return &Decision{Route: core.RouteCustom, Confidence: ptr(0.3), Rationale: "fallback_custom"}
}

func ptr(v float64) *float64 {
	return &v
}
