package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/paylane/concierge/engine/core"
	"github.com/paylane/concierge/engine/knowledge"
	"github.com/paylane/concierge/pkg/config"
	"github.com/paylane/concierge/pkg/logger"
)

const knowledgeSystemPrompt = "You answer customer questions using only the provided context." +
	" Respond in 2 to 5 sentences and cite the supporting sources by name." +
	" If the context does not cover the request, say so explicitly."

// KnowledgeAgent grounds generated answers in retrieved chunks. A nil model
// composes the answer deterministically from the top chunk.
type KnowledgeAgent struct {
	cfg       config.KnowledgeConfig
	retriever *knowledge.Service
	model     llms.Model
	timeout   time.Duration
}

func NewKnowledgeAgent(cfg config.KnowledgeConfig, retriever *knowledge.Service, model llms.Model) *KnowledgeAgent {
	return &KnowledgeAgent{cfg: cfg, retriever: retriever, model: model, timeout: cfg.ProviderTimeout}
}

func (a *KnowledgeAgent) Handle(ctx context.Context, query string) *core.AgentResponse {
	result, err := a.retriever.Retrieve(ctx, query)
	if err != nil {
		logger.FromContext(ctx).Error("Retrieval failed", "error", err)
		result = &knowledge.Result{FallbackUsed: true}
	}

	response := core.NewAgentResponse(string(core.RouteKnowledge), "")
	response.Citations = knowledge.BuildCitations(result.Chunks, result.WebResults, a.cfg.FallbackURL)
	response.Meta["rag_used"] = !result.FallbackUsed
	response.Meta["cache_hit"] = result.CacheHit
	response.Meta["fallback_used"] = result.FallbackUsed
	response.Meta["web_search_used"] = result.WebUsed
	response.Meta["top_k_selected"] = len(result.Chunks)
	response.Meta["avg_score"] = result.AvgScore

	if result.FallbackUsed {
		response.Content = "Ainda nao encontrei informacoes suficientes na base de conhecimento " +
			"para responder com precisao. Pode compartilhar mais detalhes? Estou aqui para ajudar!"
		return response
	}

	response.Content = a.compose(ctx, query, result)
	return response
}

// compose asks the generation model for a grounded answer, falling back to a
// deterministic summary of the best chunk.
func (a *KnowledgeAgent) compose(ctx context.Context, query string, result *knowledge.Result) string {
	if a.model != nil {
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		prompt := "User question: " + query + "\n\nSupport context:\n" + result.Context +
			"\n\nInstruction: deliver a concise answer and cite the supporting sources by name."
		content := []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, knowledgeSystemPrompt),
			llms.TextParts(llms.ChatMessageTypeHuman, prompt),
		}
		generated, err := a.model.GenerateContent(callCtx, content, llms.WithTemperature(0.2))
		if err == nil && len(generated.Choices) > 0 {
			if answer := strings.TrimSpace(generated.Choices[0].Content); answer != "" {
				return answer
			}
		}
		if err != nil {
			logger.FromContext(ctx).Warn("Answer generation failed, composing from context", "error", err)
		}
	}

	top := result.Chunks[0]
	answer := strings.TrimSpace(top.Text)
	if runes := []rune(answer); len(runes) > 600 {
		answer = strings.TrimRight(string(runes[:597]), " ") + "..."
	}
	if top.Title != "" {
		return answer + " (fonte: " + top.Title + ")"
	}
	return answer
}
