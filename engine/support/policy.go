package support

import (
	"strings"

	"github.com/paylane/concierge/engine/guardrail"
)

// PolicyDecision is the triage outcome for a ticket: routing category,
// priority and whether the ticket starts escalated.
type PolicyDecision struct {
	Category   string
	Priority   string
	Escalation bool
}

type categoryRule struct {
	category string
	terms    []string
}

// categoryRules are evaluated in order; the first hit wins.
var categoryRules = []categoryRule{
	{"pagamentos", []string{"pagamento", "cobranca", "fatura", "credito", "debito", "boleto"}},
	{"acesso", []string{"acesso", "acessar", "login", "senha", "entrar", "bloqueado"}},
	{"dispositivo", []string{"maquininha", "pos", "terminal", "tap to pay", "tap"}},
	{"conta", []string{"cadastro", "conta", "dados", "perfil", "atualizar cadastro"}},
}

var criticalTerms = []string{
	"queda geral", "fora do ar", "indisponivel", "fraude", "cobranca duplicada", "vazamento",
}

var highTerms = []string{
	"nao consigo acessar", "nao recebi", "pagamento travado", "erro geral",
}

var escalationRequestTerms = []string{"falar com humano", "atendente", "suporte humano", "pessoa"}

var repeatIssueTerms = []string{"de novo", "novamente", "mais uma vez", "continua", "nada resolvido"}

// Decide triages a message into category, priority and escalation. Critical
// and high severities escalate automatically.
func Decide(message string) PolicyDecision {
	text := guardrail.NormalizeForMatching(message)
	category := classifyCategory(text)
	priority, escalation := classifyPriority(text)
	if !escalation && (containsAny(text, escalationRequestTerms) || containsAny(text, repeatIssueTerms)) {
		escalation = true
	}
	return PolicyDecision{Category: category, Priority: priority, Escalation: escalation}
}

func classifyCategory(text string) string {
	for _, rule := range categoryRules {
		if containsAny(text, rule.terms) {
			return rule.category
		}
	}
	return "outros"
}

func classifyPriority(text string) (string, bool) {
	if containsAny(text, criticalTerms) {
		return "critical", true
	}
	if containsAny(text, highTerms) {
		return "high", true
	}
	if containsAny(text, []string{"nao funciona", "nao consigo"}) {
		return "medium", false
	}
	return "low", false
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if term != "" && strings.Contains(text, term) {
			return true
		}
	}
	return false
}
