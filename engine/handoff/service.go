package handoff

import (
	"context"
	"errors"
	"time"

	"github.com/paylane/concierge/engine/core"
	"github.com/paylane/concierge/pkg/config"
	"github.com/paylane/concierge/pkg/logger"
)

// Masker redacts PII before text enters the registry. Satisfied by the
// guardrail service.
type Masker interface {
	MaskForExposure(text string) string
}

// RequestInput describes a new handoff request.
type RequestInput struct {
	Summary  string
	Details  string
	TicketID string
	Category string
	Priority string
	Source   string
}

// Service drives the confirmation state machine end to end: request →
// pending token → reply classification → delivery.
type Service struct {
	cfg      config.HandoffConfig
	registry *Registry
	builder  *PayloadBuilder
	client   DeliveryClient
	masker   Masker
	metrics  *Metrics
}

func NewService(cfg config.HandoffConfig, client DeliveryClient, masker Masker) *Service {
	if client == nil {
		client = MockDeliveryClient{}
	}
	return &Service{
		cfg:      cfg,
		registry: NewRegistry(cfg.ConfirmTTL),
		builder:  NewPayloadBuilder(cfg.Channel, cfg.SummaryMaxChars, cfg.DetailsMaxChars),
		client:   client,
		masker:   masker,
		metrics:  NewMetrics(),
	}
}

func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// Request registers a pending handoff and returns the confirmation prompt.
// The token is created only after every field is masked and stored; there is
// no partially registered state.
func (s *Service) Request(ctx context.Context, envelope *core.RequestEnvelope, input RequestInput) *core.AgentResponse {
	if !s.cfg.Enabled {
		return s.disabledResponse()
	}

	record := s.registry.Register(Record{
		CorrelationID: envelope.CorrelationID,
		UserID:        envelope.UserID,
		TicketID:      input.TicketID,
		Category:      input.Category,
		Priority:      input.Priority,
		Summary:       s.masker.MaskForExposure(input.Summary),
		Details:       s.masker.MaskForExposure(input.Details),
		Source:        input.Source,
	})
	logger.FromContext(ctx).Info("Handoff requested",
		"token", record.Token[:8],
		"source", record.Source,
		"expires_at", record.ExpiresAt.Format(time.RFC3339))

	response := core.NewAgentResponse(string(core.RouteHandoff),
		"Posso acionar nosso time humano para este atendimento. Confirma o encaminhamento?")
	response.Meta["handoff_status"] = string(StatusPending)
	response.Meta["handoff_token"] = record.Token
	response.Meta["handoff_channel"] = s.cfg.Channel
	if record.TicketID != "" {
		response.Meta["ticket_id"] = record.TicketID
	}
	return response
}

// HasPending reports whether the envelope maps onto a pending confirmation.
func (s *Service) HasPending(envelope *core.RequestEnvelope) bool {
	_, err := s.registry.FetchPending(
		envelope.MetadataString("handoff_token"), envelope.CorrelationID, envelope.UserID)
	return err == nil
}

// Resolve consumes a reply to a pending confirmation. A confirm transitions
// the record exactly once; replays and expired tokens report their status
// without reaching the delivery transport.
func (s *Service) Resolve(ctx context.Context, envelope *core.RequestEnvelope, reply string) *core.AgentResponse {
	log := logger.FromContext(ctx)
	token := envelope.MetadataString("handoff_token")

	pending, err := s.registry.FetchPending(token, envelope.CorrelationID, envelope.UserID)
	if err != nil {
		return s.missingResponse(err)
	}

	switch ClassifyReply(reply) {
	case ReplyDeny:
		record, resolveErr := s.registry.Resolve(pending.Token, StatusCancelled)
		if resolveErr != nil {
			return s.missingResponse(resolveErr)
		}
		log.Info("Handoff cancelled", "token", record.Token[:8])
		response := core.NewAgentResponse(string(core.RouteHandoff),
			"Sem problemas, seguimos por aqui. Se precisar escalar de novo, e so pedir.")
		response.Meta["handoff_status"] = string(StatusCancelled)
		return response
	case ReplyAmbiguous:
		response := core.NewAgentResponse(string(core.RouteHandoff),
			"So confirmando: voce quer que eu acione nosso time humano? Responda sim ou nao.")
		response.Meta["handoff_status"] = string(StatusPending)
		response.Meta["handoff_token"] = pending.Token
		return response
	}

	record, resolveErr := s.registry.Resolve(pending.Token, StatusConfirmed)
	if resolveErr != nil {
		return s.missingResponse(resolveErr)
	}
	return s.deliver(ctx, record)
}

// deliver sends the escalation for a confirmed record and finalizes it.
func (s *Service) deliver(ctx context.Context, record Record) *core.AgentResponse {
	log := logger.FromContext(ctx)

	if !s.cfg.Enabled {
		if _, err := s.registry.Complete(record.Token, StatusDisabled); err != nil {
			log.Error("Handoff finalize failed", "error", err)
		}
		return s.disabledResponse()
	}

	message := s.builder.Build(record, ticketLinks(record))
	s.metrics.RecordAttempt()
	start := time.Now()

	deliverCtx, cancel := context.WithTimeout(ctx, s.cfg.DeliveryTimeout)
	defer cancel()
	result := s.client.Send(deliverCtx, message)
	latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
	s.metrics.RecordOutcome(result.OK, latencyMS)

	status := StatusDelivered
	if !result.OK {
		status = StatusFailed
	}
	if _, err := s.registry.Complete(record.Token, status); err != nil {
		log.Error("Handoff finalize failed", "error", err)
	}

	response := core.NewAgentResponse(string(core.RouteHandoff), "")
	response.Meta["handoff_status"] = string(status)
	response.Meta["handoff_channel"] = s.cfg.Channel
	response.Meta["handoff_latency_ms"] = latencyMS
	if record.TicketID != "" {
		response.Meta["ticket_id"] = record.TicketID
	}
	if result.OK {
		log.Info("Handoff delivered",
			"token", record.Token[:8],
			"message_id", result.MessageID,
			"latency_ms", latencyMS)
		response.Content = "Acionei nosso time humano. Eles vao acompanhar o caso e responder em breve."
		response.Meta["handoff_message_id"] = result.MessageID
	} else {
		log.Error("Handoff delivery exhausted retries",
			"token", record.Token[:8], "error", result.Err)
		response.Content = "Nao consegui falar com o time humano agora, mas o caso ja esta registrado internamente."
		response.Meta["handoff_error"] = result.Err
	}
	return response
}

// Lookup returns a retained record by token.
func (s *Service) Lookup(token string) (Record, bool) {
	return s.registry.Get(token)
}

func (s *Service) missingResponse(err error) *core.AgentResponse {
	status := "not_found"
	content := "Nao encontrei um pedido de escalada pendente. Se ainda precisar, me avise que eu crio um agora."
	if errors.Is(err, core.ErrHandoffExpired) {
		status = string(StatusExpired)
		content = "O pedido de escalada expirou. Se ainda precisar de um humano, me avise que eu crio um novo."
	}
	response := core.NewAgentResponse(string(core.RouteHandoff), content)
	response.Meta["handoff_status"] = status
	return response
}

func (s *Service) disabledResponse() *core.AgentResponse {
	response := core.NewAgentResponse(string(core.RouteHandoff),
		"O canal de atendimento humano esta desativado no momento. Nosso time segue acompanhando por aqui.")
	response.Meta["handoff_status"] = string(StatusDisabled)
	response.Meta["handoff_channel"] = s.cfg.Channel
	return response
}

func ticketLinks(record Record) []string {
	if record.TicketID == "" {
		return nil
	}
	return []string{"https://www.infinitepay.io/support/tickets/" + record.TicketID}
}
