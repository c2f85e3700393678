package support

import (
	"context"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paylane/concierge/engine/core"
	"github.com/paylane/concierge/engine/guardrail"
	"github.com/paylane/concierge/pkg/config"
)

func newService(t *testing.T) *Service {
	t.Helper()
	cfg := config.Default()
	guard := guardrail.NewService(cfg.Guardrails)
	return NewService(cfg.Support, NewTicketStore(), guard)
}

func envelope(message, userID string) *core.RequestEnvelope {
	return core.NewRequestEnvelope(message, userID, nil, "")
}

func TestHandle(t *testing.T) {
	t.Run("Should answer from the FAQ when a question matches", func(t *testing.T) {
		svc := newService(t)
		response := svc.Handle(context.Background(),
			envelope("", "user-1"), "qual o prazo de entrega da maquininha")
		require.NotNil(t, response)
		assert.Equal(t, "support", response.Agent)
		assert.Contains(t, response.Content, "7 dias uteis")
		assert.Equal(t, "faq-maquininha-prazo", response.Meta["faq_id"])
		assert.Equal(t, []string{"faq"}, response.Meta["tools_used"])
		assert.Equal(t, 0, svc.store.Len())
	})
	t.Run("Should open a ticket when no FAQ entry matches", func(t *testing.T) {
		svc := newService(t)
		response := svc.Handle(context.Background(),
			envelope("", "user-1"), "minha transferencia caiu duas vezes e nada resolvido")
		require.NotNil(t, response)
		ticketID, ok := response.Meta["ticket_id"].(string)
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(ticketID, "TCK-"))
		assert.Contains(t, response.Content, ticketID)
		assert.Equal(t, 1, svc.store.Len())
	})
	t.Run("Should classify payment issues with escalation on fraud", func(t *testing.T) {
		svc := newService(t)
		response := svc.Handle(context.Background(),
			envelope("", "user-1"), "sofri uma fraude na cobranca do cartao")
		assert.Equal(t, "pagamentos", response.Meta["category"])
		assert.Equal(t, "critical", response.Meta["priority"])
		assert.Equal(t, true, response.Meta["escalation"])
	})
	t.Run("Should mask pii in the stored ticket", func(t *testing.T) {
		svc := newService(t)
		response := svc.Handle(context.Background(),
			envelope("", "client789@example.com"),
			"nao recebi o estorno, meu email é billing.team@example.com")
		ticketID := response.Meta["ticket_id"].(string)
		ticket, ok := svc.store.Get(ticketID)
		require.True(t, ok)
		assert.NotContains(t, ticket.Summary, "billing.team@example.com")
		assert.NotContains(t, ticket.Description, "billing.team@example.com")
		assert.NotContains(t, ticket.UserRef, "client789@example.com")
	})
	t.Run("Should cap accented summaries in characters not bytes", func(t *testing.T) {
		svc := newService(t)
		response := svc.Handle(context.Background(),
			envelope("", "user-1"), strings.Repeat("situação irregular ", 12))
		ticket, ok := svc.store.Get(response.Meta["ticket_id"].(string))
		require.True(t, ok)
		assert.True(t, utf8.ValidString(ticket.Summary))
		assert.Equal(t, 120, utf8.RuneCountInString(ticket.Summary))
		assert.True(t, strings.HasSuffix(ticket.Summary, "..."))
	})
	t.Run("Should count faq hits and tickets separately", func(t *testing.T) {
		svc := newService(t)
		svc.Handle(context.Background(), envelope("", "u"), "como recebo pagamentos por pix")
		svc.Handle(context.Background(), envelope("", "u"), "perdi o acesso e nada resolvido ainda")
		snap := svc.Metrics().Snapshot()
		assert.Equal(t, int64(2), snap["requests_total"])
		assert.Equal(t, int64(1), snap["faq_hits_total"])
		assert.Equal(t, int64(1), snap["tickets_created_total"])
	})
}

func TestCreateRedirectTicket(t *testing.T) {
	t.Run("Should open an escalated human-queue ticket", func(t *testing.T) {
		svc := newService(t)
		ticket := svc.CreateRedirectTicket(context.Background(),
			envelope("", "user-1"), "mensagem ambigua sem rota clara")
		assert.True(t, strings.HasPrefix(ticket.ID, "HUM-"))
		assert.Equal(t, "redirect", ticket.Category)
		assert.Equal(t, "high", ticket.Priority)
		assert.True(t, ticket.Escalation)
		view, ok := svc.TicketView(ticket.ID)
		require.True(t, ok)
		assert.Equal(t, "open", view.Status)
	})
}

func TestTicketStore(t *testing.T) {
	t.Run("Should list tickets by user in creation order", func(t *testing.T) {
		store := NewTicketStore()
		first := store.Create(Ticket{Summary: "primeiro", UserID: "u1"})
		store.Create(Ticket{Summary: "de outro usuario", UserID: "u2"})
		second := store.Create(Ticket{Summary: "segundo", UserID: "u1"})
		tickets := store.ListByUser("u1")
		require.Len(t, tickets, 2)
		assert.Equal(t, first.ID, tickets[0].ID)
		assert.Equal(t, second.ID, tickets[1].ID)
	})
	t.Run("Should assign unique ids under concurrency", func(t *testing.T) {
		store := NewTicketStore()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				store.Create(Ticket{Summary: "concorrente", UserID: "u"})
			}()
		}
		wg.Wait()
		assert.Equal(t, 50, store.Len())
	})
	t.Run("Should miss on unknown id", func(t *testing.T) {
		store := NewTicketStore()
		_, ok := store.Get("TCK-00000000-001")
		assert.False(t, ok)
	})
}

func TestDecide(t *testing.T) {
	t.Run("Should default to low priority for generic messages", func(t *testing.T) {
		decision := Decide("gostaria de entender uma notificacao")
		assert.Equal(t, "outros", decision.Category)
		assert.Equal(t, "low", decision.Priority)
		assert.False(t, decision.Escalation)
	})
	t.Run("Should escalate repeated issues", func(t *testing.T) {
		decision := Decide("o login falhou de novo")
		assert.Equal(t, "acesso", decision.Category)
		assert.True(t, decision.Escalation)
	})
	t.Run("Should rate access loss as high severity", func(t *testing.T) {
		decision := Decide("nao consigo acessar minha conta")
		assert.Equal(t, "high", decision.Priority)
		assert.True(t, decision.Escalation)
	})
	t.Run("Should match categories ignoring accents", func(t *testing.T) {
		decision := Decide("problema na cobrança da fatura")
		assert.Equal(t, "pagamentos", decision.Category)
	})
}

func TestFAQMatcher(t *testing.T) {
	t.Run("Should return nil below the threshold", func(t *testing.T) {
		matcher := NewFAQMatcher(0.99)
		assert.Nil(t, matcher.Search("prazo entrega navio"))
	})
	t.Run("Should prefer the highest scoring item", func(t *testing.T) {
		matcher := NewFAQMatcherWithItems(0.1, []FAQItem{
			{ID: "weak", Question: "entrega", Answer: ""},
			{ID: "strong", Question: "prazo de entrega da maquininha", Answer: "", Tags: []string{"maquininha", "entrega", "prazo"}},
		})
		match := matcher.Search("prazo de entrega da maquininha")
		require.NotNil(t, match)
		assert.Equal(t, "strong", match.Item.ID)
	})
	t.Run("Should ignore accents and punctuation in queries", func(t *testing.T) {
		matcher := NewFAQMatcher(0.3)
		match := matcher.Search("Qual o prazo de entrega da maquininha?!")
		require.NotNil(t, match)
		assert.Equal(t, "faq-maquininha-prazo", match.Item.ID)
	})
	t.Run("Should return nil for empty messages", func(t *testing.T) {
		matcher := NewFAQMatcher(0.1)
		assert.Nil(t, matcher.Search("   "))
	})
}
