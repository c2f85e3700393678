package router

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/paylane/concierge/engine/core"
	"github.com/paylane/concierge/pkg/config"
	"github.com/paylane/concierge/pkg/logger"
)

const systemPrompt = "You classify user intents for a customer support system." +
	" Return a JSON object with keys 'route' (knowledge, support, custom, handoff)," +
	" optional 'hint', and optional 'confidence' (0-1)." +
	" Use 'handoff' when the user explicitly requests human assistance or escalation." +
	" Respond with strict JSON."

// Decision is the routing outcome for one request. Read-only after creation.
type Decision struct {
	Route      core.Route
	Confidence *float64
	Rationale  string
	// Fallback marks decisions produced by the deterministic heuristic.
	Fallback bool
}

// Service routes incoming messages to the appropriate downstream handler.
// Provider failures always fall back to the keyword heuristic.
type Service struct {
	model   llms.Model
	name    string
	timeout time.Duration
}

// NewService wires the classification model. A nil model forces heuristic
// mode, which tests rely on for reproducibility.
func NewService(model llms.Model, cfg config.RouterConfig) *Service {
	return &Service{model: model, name: cfg.Model, timeout: cfg.Timeout}
}

// NewOpenAIModel builds the langchaingo model used for classification and
// generation. Returns nil without error when no API key is configured, which
// switches every consumer to its local fallback.
func NewOpenAIModel(cfg config.RouterConfig) (llms.Model, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	return openai.New(openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model))
}

// Classify decides the route for a normalized message. The direct-handoff
// check runs before the provider call and before any confidence gating.
func (s *Service) Classify(ctx context.Context, message string) *Decision {
	if strings.TrimSpace(message) == "" {
		return &Decision{Route: core.RouteCustom, Rationale: "empty_message"}
	}
	if MatchesDirectHandoff(message) {
		return &Decision{Route: core.RouteHandoff, Confidence: ptr(1.0), Rationale: "user_requested_human"}
	}
	if s.model == nil {
		return fallback(heuristicRoute(message))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, message),
	}
	response, err := s.model.GenerateContent(callCtx, content,
		llms.WithTemperature(0),
		llms.WithJSONMode(),
	)
	if err != nil {
		logger.FromContext(ctx).Warn("Classification provider failed, using heuristic fallback",
			"model", s.name, "error", err)
		return fallback(heuristicRoute(message))
	}
	decision := parseDecision(response)
	if decision == nil {
		logger.FromContext(ctx).Warn("Classification provider returned malformed output",
			"model", s.name)
		return fallback(heuristicRoute(message))
	}
	return decision
}

func fallback(decision *Decision) *Decision {
	decision.Fallback = true
	return decision
}

type providerPayload struct {
	Route      string   `json:"route"`
	Hint       string   `json:"hint"`
	Confidence *float64 `json:"confidence"`
}

// parseDecision extracts a decision from the provider response, tolerating
// malformed or empty payloads.
func parseDecision(response *llms.ContentResponse) *Decision {
	if response == nil || len(response.Choices) == 0 {
		return nil
	}
	content := strings.TrimSpace(response.Choices[0].Content)
	if content == "" {
		return nil
	}
	var payload providerPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		// Not strict JSON: scan for a bare route label.
		lowered := strings.ToLower(content)
		for _, route := range []core.Route{core.RouteKnowledge, core.RouteSupport, core.RouteHandoff, core.RouteCustom} {
			if strings.Contains(lowered, string(route)) {
				return &Decision{Route: route, Rationale: "label_scan"}
			}
		}
		return nil
	}
	route, known := core.ParseRoute(payload.Route)
	rationale := payload.Hint
	if !known && rationale == "" {
		rationale = "unsupported_route"
	}
	confidence := payload.Confidence
	if confidence != nil && (*confidence < 0 || *confidence > 1) {
		confidence = nil
	}
	return &Decision{Route: route, Confidence: confidence, Rationale: rationale}
}
