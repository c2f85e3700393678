package support

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/paylane/concierge/engine/core"
	"github.com/paylane/concierge/pkg/config"
	"github.com/paylane/concierge/pkg/logger"
)

// Masker redacts PII from ticket fields before they are stored or exposed.
// Satisfied by the guardrail service.
type Masker interface {
	MaskForExposure(text string) string
}

// Service is the support handler: FAQ match first, ticket fallback.
type Service struct {
	cfg     config.SupportConfig
	store   *TicketStore
	faq     *FAQMatcher
	masker  Masker
	metrics *Metrics
}

func NewService(cfg config.SupportConfig, store *TicketStore, masker Masker) *Service {
	return &Service{
		cfg:     cfg,
		store:   store,
		faq:     NewFAQMatcher(cfg.FAQScoreThreshold),
		masker:  masker,
		metrics: NewMetrics(),
	}
}

func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// Handle answers a support-routed request. The message is the sanitized text
// produced by the guardrail preprocess stage.
func (s *Service) Handle(ctx context.Context, envelope *core.RequestEnvelope, message string) *core.AgentResponse {
	start := time.Now()
	log := logger.FromContext(ctx)
	s.metrics.requests.Add(1)

	if s.cfg.FAQEnabled {
		if match := s.faq.Search(message); match != nil {
			s.metrics.faqHits.Add(1)
			log.Info("Support request answered from FAQ",
				"faq_id", match.Item.ID,
				"score", match.Score,
				"duration_ms", time.Since(start).Milliseconds())
			response := core.NewAgentResponse(string(core.RouteSupport), match.Item.Answer)
			response.Meta["faq_id"] = match.Item.ID
			response.Meta["faq_score"] = match.Score
			response.Meta["tools_used"] = []string{"faq"}
			return response
		}
	}

	policy := Decide(message)
	ticket := s.store.Create(Ticket{
		Summary:     s.masker.MaskForExposure(buildSummary(message)),
		Description: s.masker.MaskForExposure(normalizeDescription(message, s.cfg.MaxResponseChars)),
		UserID:      envelope.UserID,
		UserRef:     s.maskUserRef(envelope.UserID),
		Priority:    policy.Priority,
		Category:    policy.Category,
		Escalation:  policy.Escalation,
	})
	s.metrics.ticketsCreated.Add(1)
	if ticket.Escalation {
		s.metrics.escalations.Add(1)
	}
	log.Info("Support ticket created",
		"ticket_id", ticket.ID,
		"category", ticket.Category,
		"priority", ticket.Priority,
		"escalation", ticket.Escalation,
		"duration_ms", time.Since(start).Milliseconds())

	response := core.NewAgentResponse(string(core.RouteSupport),
		"Registrei sua solicitacao no chamado "+ticket.ID+". Nossa equipe vai te responder em breve.")
	response.Meta["ticket_id"] = ticket.ID
	response.Meta["category"] = ticket.Category
	response.Meta["priority"] = ticket.Priority
	response.Meta["escalation"] = ticket.Escalation
	response.Meta["tools_used"] = []string{"support_policy", "ticket"}
	return response
}

// CreateRedirectTicket opens the human-queue ticket synthesized when the
// router confidence gate fires.
func (s *Service) CreateRedirectTicket(ctx context.Context, envelope *core.RequestEnvelope, summary string) Ticket {
	ticket := s.store.Create(Ticket{
		Summary:    s.masker.MaskForExposure(buildSummary(summary)),
		UserID:     envelope.UserID,
		UserRef:    s.maskUserRef(envelope.UserID),
		Priority:   "high",
		Category:   "redirect",
		Escalation: true,
	})
	s.metrics.ticketsCreated.Add(1)
	s.metrics.escalations.Add(1)
	logger.FromContext(ctx).Info("Redirect ticket created", "ticket_id", ticket.ID)
	return ticket
}

// TicketView returns the public shape of a ticket, or false when unknown.
func (s *Service) TicketView(id string) (PublicView, bool) {
	ticket, ok := s.store.Get(id)
	if !ok {
		return PublicView{}, false
	}
	return ticket.View(), true
}

// ListByUser returns the public views of a user's tickets in creation order.
func (s *Service) ListByUser(userID string) []PublicView {
	tickets := s.store.ListByUser(userID)
	views := make([]PublicView, 0, len(tickets))
	for _, ticket := range tickets {
		views = append(views, ticket.View())
	}
	return views
}

var userRefDigits = regexp.MustCompile(`\d{5,}`)

// maskUserRef redacts emails and long digit runs from a user identifier so
// ticket views and logs never leak it.
func (s *Service) maskUserRef(userID string) string {
	if userID == "" {
		return ""
	}
	masked := s.masker.MaskForExposure(userID)
	return userRefDigits.ReplaceAllString(masked, "***")
}

// buildSummary keeps the first sentence, capped at 120 characters.
func buildSummary(message string) string {
	text := strings.TrimSpace(message)
	if idx := strings.Index(text, "."); idx >= 0 {
		text = text[:idx]
	}
	if runes := []rune(text); len(runes) > 120 {
		text = string(runes[:117]) + "..."
	}
	if text == "" {
		return "Support"
	}
	return text
}

var descriptionWhitespace = regexp.MustCompile(`\s+`)

func normalizeDescription(message string, limit int) string {
	text := strings.TrimSpace(descriptionWhitespace.ReplaceAllString(message, " "))
	if runes := []rune(text); limit > 0 && len(runes) > limit {
		text = string(runes[:limit])
	}
	return text
}
