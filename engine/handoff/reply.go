package handoff

import (
	"strings"

	"github.com/paylane/concierge/engine/guardrail"
)

// Reply is the classification of a user message answering a pending
// confirmation prompt.
type Reply string

const (
	ReplyConfirm   Reply = "confirm"
	ReplyDeny      Reply = "deny"
	ReplyAmbiguous Reply = "ambiguous"
)

var confirmTerms = map[string]struct{}{
	"sim": {}, "claro": {}, "pode": {},
	"positivo": {}, "confirmo": {}, "yes": {},
}

var confirmPhrases = []string{
	"por favor",
	"pode escalar",
	"pode chamar",
	"pode acionar",
	"quero falar com humano",
	"quero um humano",
	"me chama no slack",
	"atendimento humano",
}

var denyTerms = map[string]struct{}{
	"nao": {}, "negativo": {}, "dispensa": {}, "depois": {}, "no": {},
}

var denyPhrases = []string{
	"nao precisa",
	"nao agora",
	"pode deixar",
}

var humanTerms = []string{"humano", "atendente", "pessoa"}

var intentTerms = []string{"quero", "preciso", "falar", "fala"}

// ClassifyReply maps a reply message onto confirm, deny or ambiguous.
// Negative phrases win over affirmative ones so "nao precisa, pode deixar"
// never escalates.
func ClassifyReply(message string) Reply {
	text := guardrail.NormalizeForMatching(message)
	if text == "" {
		return ReplyAmbiguous
	}
	for _, phrase := range denyPhrases {
		if strings.Contains(text, phrase) {
			return ReplyDeny
		}
	}
	for _, phrase := range confirmPhrases {
		if strings.Contains(text, phrase) {
			return ReplyConfirm
		}
	}
	words := strings.Fields(text)
	for _, word := range words {
		if _, ok := denyTerms[word]; ok {
			return ReplyDeny
		}
	}
	for _, word := range words {
		if _, ok := confirmTerms[word]; ok {
			return ReplyConfirm
		}
	}
	if containsAnyTerm(text, humanTerms) && containsAnyTerm(text, intentTerms) {
		return ReplyConfirm
	}
	return ReplyAmbiguous
}

func containsAnyTerm(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
