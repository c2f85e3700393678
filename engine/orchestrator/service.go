// Package orchestrator sequences one chat request through the core:
// guardrail preprocess, pending-handoff resolution, routing, handler dispatch
// and guardrail postprocess, attaching telemetry to every response.
package orchestrator

import (
	"context"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/paylane/concierge/engine/core"
	"github.com/paylane/concierge/engine/guardrail"
	"github.com/paylane/concierge/engine/handoff"
	"github.com/paylane/concierge/engine/knowledge"
	"github.com/paylane/concierge/engine/router"
	"github.com/paylane/concierge/engine/support"
	"github.com/paylane/concierge/pkg/config"
	"github.com/paylane/concierge/pkg/logger"
)

const guardrailAgent = "guardrails"

const injectionBlockedContent = "Nao posso atender a essa solicitacao. " +
	"Se precisar de ajuda com pagamentos, sua conta ou a maquininha, e so perguntar."

// Service is the request orchestrator.
type Service struct {
	cfg       *config.Config
	guard     *guardrail.Service
	router    *router.Service
	knowledge *KnowledgeAgent
	custom    *CustomAgent
	support   *support.Service
	handoff   *handoff.Service
}

func NewService(
	cfg *config.Config,
	guard *guardrail.Service,
	routerSvc *router.Service,
	retriever *knowledge.Service,
	supportSvc *support.Service,
	handoffSvc *handoff.Service,
	model llms.Model,
) *Service {
	return &Service{
		cfg:       cfg,
		guard:     guard,
		router:    routerSvc,
		knowledge: NewKnowledgeAgent(cfg.Knowledge, retriever, model),
		custom:    NewCustomAgent(model, cfg.Router.Timeout),
		support:   supportSvc,
		handoff:   handoffSvc,
	}
}

// Handle processes one request end to end. Only invalid input surfaces as an
// error; every other outcome is a success response with explicit flags.
func (s *Service) Handle(ctx context.Context, envelope *core.RequestEnvelope) (*core.AgentResponse, error) {
	start := time.Now()
	log := logger.FromContext(ctx).With("correlation_id", envelope.CorrelationID)
	ctx = logger.ContextWithLogger(ctx, log)

	pre, err := s.guard.Preprocess(ctx, envelope.Message)
	if err != nil {
		return nil, err
	}
	log.Info("Request accepted",
		"masked_preview", pre.MaskedPreview(200),
		"injection_detected", pre.InjectionDetected)

	response, route := s.dispatch(ctx, envelope, pre)

	post := s.guard.Postprocess(ctx, response.Content)
	response.Content = post.Content
	if post.ModerationBlocked {
		response.Agent = guardrailAgent
	}

	s.applyMeta(response, route, envelope, pre, post, start)
	log.Info("Request completed",
		"agent", response.Agent,
		"route", string(route),
		"latency_ms", response.Meta["latency_ms"])
	return response, nil
}

// dispatch picks and runs the handler for the request.
func (s *Service) dispatch(
	ctx context.Context,
	envelope *core.RequestEnvelope,
	pre *guardrail.PreprocessResult,
) (*core.AgentResponse, core.Route) {
	// A pending confirmation consumes the reply before any routing.
	if s.handoff.HasPending(envelope) {
		return s.handoff.Resolve(ctx, envelope, pre.Message), core.RouteHandoff
	}

	// Inputs that tripped the injection filter never reach generation.
	if pre.InjectionDetected {
		response := core.NewAgentResponse(guardrailAgent, injectionBlockedContent)
		return response, core.RouteCustom
	}

	decision := s.router.Classify(ctx, pre.Message)

	if decision.Route == core.RouteHandoff {
		source := "router"
		if decision.Rationale == "user_requested_human" {
			source = "direct"
		}
		return s.handoff.Request(ctx, envelope, handoff.RequestInput{
			Summary: pre.Message,
			Details: pre.Message,
			Source:  source,
		}), core.RouteHandoff
	}

	if s.shouldRedirect(decision) {
		return s.redirect(ctx, envelope, pre, decision), core.RouteRedirect
	}

	switch decision.Route {
	case core.RouteKnowledge:
		response := s.knowledge.Handle(ctx, pre.Message)
		s.attachDecision(response, decision)
		return response, core.RouteKnowledge
	case core.RouteSupport:
		response := s.support.Handle(ctx, envelope, pre.Message)
		s.attachDecision(response, decision)
		return response, core.RouteSupport
	default:
		response := s.custom.Handle(ctx, pre.Message)
		s.attachDecision(response, decision)
		return response, core.RouteCustom
	}
}

// shouldRedirect applies the confidence gate: strictly below the threshold on
// a non-handoff route. A provider that returned no confidence never gates.
func (s *Service) shouldRedirect(decision *router.Decision) bool {
	if !s.cfg.Redirect.Enabled || decision.Confidence == nil {
		return false
	}
	return *decision.Confidence < s.cfg.Redirect.ConfidenceThreshold
}

// redirect synthesizes a human-queue ticket instead of invoking a downstream
// handler.
func (s *Service) redirect(
	ctx context.Context,
	envelope *core.RequestEnvelope,
	pre *guardrail.PreprocessResult,
	decision *router.Decision,
) *core.AgentResponse {
	ticket := s.support.CreateRedirectTicket(ctx, envelope, pre.Message)
	response := core.NewAgentResponse(string(core.RouteRedirect),
		"Encaminhei sua solicitacao para um atendente humano. Um chamado foi criado para acompanhamento.")
	response.Meta["redirect_reason"] = "low_confidence"
	response.Meta["redirected"] = true
	response.Meta["ticket_id"] = ticket.ID
	if decision.Confidence != nil {
		response.Meta["confidence"] = *decision.Confidence
	}
	return response
}

func (s *Service) attachDecision(response *core.AgentResponse, decision *router.Decision) {
	if decision.Confidence != nil {
		response.Meta["confidence"] = *decision.Confidence
	}
	if decision.Fallback {
		response.Meta["router_fallback"] = true
	}
}

// applyMeta merges the uniform telemetry into the response.
func (s *Service) applyMeta(
	response *core.AgentResponse,
	route core.Route,
	envelope *core.RequestEnvelope,
	pre *guardrail.PreprocessResult,
	post *guardrail.PostprocessResult,
	start time.Time,
) {
	meta := response.Meta
	if _, ok := meta["route"]; !ok {
		meta["route"] = string(route)
	}
	meta["correlation_id"] = envelope.CorrelationID
	meta["guardrails_mode"] = s.cfg.Guardrails.Mode
	meta["guardrails_accents_stripped"] = pre.AccentsStripped
	meta["guardrails_injection_detected"] = pre.InjectionDetected
	meta["guardrails_pii_masked"] = pre.PIIMasked
	meta["guardrails_masked_input_preview"] = pre.MaskedPreview(200)
	meta["guardrails_pre_ms"] = pre.LatencyMS
	meta["guardrails_post_ms"] = post.LatencyMS
	meta["moderation_blocked"] = post.ModerationBlocked
	if post.ModerationReason != nil {
		meta["moderation_reason"] = post.ModerationReason.String()
	}
	meta["output_truncated"] = post.OutputTruncated
	meta["pii_masked"] = pre.PIIMasked || post.PIIMaskedResponse
	meta["latency_ms"] = float64(time.Since(start).Microseconds()) / 1000.0
}
