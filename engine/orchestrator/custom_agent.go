package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/paylane/concierge/engine/core"
	"github.com/paylane/concierge/pkg/logger"
)

const customSystemPrompt = "You are a friendly assistant for a payments company." +
	" Keep answers short and polite. For product facts point the user to the" +
	" knowledge base; for account issues point them to support."

const customFallbackContent = "Ainda nao entendi como posso ajudar. Reformule a pergunta" +
	" escolhendo se deseja informacoes sobre o produto ou suporte tecnico."

// CustomAgent handles small talk and anything without a better route. A nil
// or failing model yields the deterministic canned reply.
type CustomAgent struct {
	model   llms.Model
	timeout time.Duration
}

func NewCustomAgent(model llms.Model, timeout time.Duration) *CustomAgent {
	return &CustomAgent{model: model, timeout: timeout}
}

func (a *CustomAgent) Handle(ctx context.Context, message string) *core.AgentResponse {
	response := core.NewAgentResponse(string(core.RouteCustom), customFallbackContent)
	if a.model == nil {
		return response
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, customSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, message),
	}
	generated, err := a.model.GenerateContent(callCtx, content, llms.WithTemperature(0.2))
	if err != nil {
		logger.FromContext(ctx).Warn("Custom agent generation failed, using canned reply", "error", err)
		return response
	}
	if len(generated.Choices) > 0 {
		if answer := strings.TrimSpace(generated.Choices[0].Content); answer != "" {
			response.Content = answer
		}
	}
	return response
}
