// Package support answers support-routed requests: FAQ matching first,
// ticket creation when no FAQ entry clears the score threshold.
package support

import (
	"regexp"
	"strings"

	"github.com/paylane/concierge/engine/guardrail"
)

// FAQItem is one entry of the built-in knowledge-free FAQ set.
type FAQItem struct {
	ID       string
	Question string
	Answer   string
	Tags     []string
	Category string
}

// FAQMatch pairs a matched item with its score and the tokens that matched.
type FAQMatch struct {
	Item          FAQItem
	Score         float64
	MatchedTokens []string
}

// defaultFAQItems covers the recurring questions that never need retrieval.
var defaultFAQItems = []FAQItem{
	{
		ID:       "faq-pix-receber",
		Question: "Como recebo pagamentos por Pix?",
		Answer:   "Receber por Pix e gratuito e o valor cai na sua conta em segundos. Compartilhe sua chave Pix ou o QR Code gerado no app.",
		Tags:     []string{"pix", "receber", "pagamento"},
		Category: "pagamentos",
	},
	{
		ID:       "faq-maquininha-prazo",
		Question: "Qual o prazo de entrega da maquininha?",
		Answer:   "A maquininha chega em ate 7 dias uteis apos a confirmacao do pedido. Voce acompanha o rastreio pelo app.",
		Tags:     []string{"maquininha", "entrega", "prazo"},
		Category: "dispositivo",
	},
	{
		ID:       "faq-senha-reset",
		Question: "Esqueci minha senha, como recupero o acesso?",
		Answer:   "Na tela de login toque em 'Esqueci minha senha' e siga as instrucoes enviadas para o email cadastrado.",
		Tags:     []string{"senha", "login", "acesso"},
		Category: "acesso",
	},
	{
		ID:       "faq-boleto-compensacao",
		Question: "Quanto tempo demora a compensacao de um boleto?",
		Answer:   "Boletos compensam em ate 2 dias uteis apos o pagamento. Fins de semana e feriados nao contam como dia util.",
		Tags:     []string{"boleto", "compensacao", "prazo"},
		Category: "pagamentos",
	},
	{
		ID:       "faq-cadastro-atualizar",
		Question: "Como atualizo os dados do meu cadastro?",
		Answer:   "Acesse Perfil > Dados cadastrais no app para atualizar endereco, telefone e email. Alteracoes de CPF/CNPJ exigem contato com o suporte.",
		Tags:     []string{"cadastro", "dados", "perfil"},
		Category: "conta",
	},
}

var faqNonAlnum = regexp.MustCompile(`[^a-z0-9 ]+`)

// FAQMatcher scores the FAQ set against request tokens.
type FAQMatcher struct {
	items     []FAQItem
	threshold float64
}

// NewFAQMatcher builds a matcher over the built-in set. Items may be replaced
// for tests via NewFAQMatcherWithItems.
func NewFAQMatcher(threshold float64) *FAQMatcher {
	return NewFAQMatcherWithItems(threshold, defaultFAQItems)
}

func NewFAQMatcherWithItems(threshold float64, items []FAQItem) *FAQMatcher {
	return &FAQMatcher{items: items, threshold: threshold}
}

// Search returns the best match at or above the threshold, or nil.
func (m *FAQMatcher) Search(message string) *FAQMatch {
	if len(m.items) == 0 {
		return nil
	}
	tokens := faqTokens(message)
	if len(tokens) == 0 {
		return nil
	}

	var best *FAQMatch
	for i := range m.items {
		score := scoreItem(&m.items[i], tokens)
		if score < m.threshold {
			continue
		}
		if best == nil || score > best.Score {
			best = &FAQMatch{
				Item:          m.items[i],
				Score:         score,
				MatchedTokens: matchedTokens(&m.items[i], tokens),
			}
		}
	}
	return best
}

// faqNormalize folds to ASCII lowercase and keeps only [a-z0-9 ] so the
// scoring never depends on accents or punctuation.
func faqNormalize(text string) string {
	folded := guardrail.NormalizeForMatching(text)
	folded = faqNonAlnum.ReplaceAllString(folded, " ")
	return strings.Join(strings.Fields(folded), " ")
}

func faqTokens(message string) []string {
	fields := strings.Fields(faqNormalize(message))
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if len(field) > 1 {
			tokens = append(tokens, field)
		}
	}
	return tokens
}

// scoreItem weighs question hits over answer hits, with a flat bonus per tag
// hit, normalized into [0, 1].
func scoreItem(item *FAQItem, tokens []string) float64 {
	question := faqNormalize(item.Question)
	answer := faqNormalize(item.Answer)
	if question == "" && answer == "" {
		return 0
	}

	total := 0.0
	matched := 0
	for _, token := range tokens {
		hit := false
		occurrences := float64(strings.Count(question, token))*0.6 +
			float64(strings.Count(answer, token))*0.4
		if occurrences > 0 {
			total += occurrences
			hit = true
		}
		if containsTag(item.Tags, token) {
			total += 1.0
			hit = true
		}
		if hit {
			matched++
		}
	}
	if total <= 0 {
		return 0
	}

	denominator := len(tokens)
	if matched > denominator {
		denominator = matched
	}
	if denominator == 0 {
		denominator = 1
	}
	maxScore := float64(denominator) * 1.5
	if total > maxScore {
		total = maxScore
	}
	score := total / maxScore
	if score > 1 {
		score = 1
	}
	return score
}

func matchedTokens(item *FAQItem, tokens []string) []string {
	question := faqNormalize(item.Question)
	matched := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if strings.Contains(question, token) || containsTag(item.Tags, token) {
			matched = append(matched, token)
		}
	}
	return matched
}

func containsTag(tags []string, token string) bool {
	for _, tag := range tags {
		if tag == token {
			return true
		}
	}
	return false
}
