// Command concierge runs the customer support agent core.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/paylane/concierge/engine/guardrail"
	"github.com/paylane/concierge/engine/handoff"
	"github.com/paylane/concierge/engine/infra/server"
	"github.com/paylane/concierge/engine/knowledge"
	"github.com/paylane/concierge/engine/knowledge/embedder"
	"github.com/paylane/concierge/engine/knowledge/index"
	"github.com/paylane/concierge/engine/orchestrator"
	"github.com/paylane/concierge/engine/router"
	"github.com/paylane/concierge/engine/support"
	"github.com/paylane/concierge/pkg/config"
	"github.com/paylane/concierge/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "concierge",
		Short:         "Customer support agent core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.NewLogger(&logger.Config{
		Level: logger.LogLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	})

	model, err := router.NewOpenAIModel(cfg.Router)
	if err != nil {
		return fmt.Errorf("failed to create provider model: %w", err)
	}
	if model == nil {
		log.Warn("No provider API key configured, running on deterministic fallbacks")
	}

	var queryEmbedder embedder.Embedder = embedder.Disabled{}
	if cfg.Router.APIKey != "" {
		adapter, embErr := embedder.NewOpenAI(cfg.Router.APIKey, cfg.Knowledge.EmbeddingModel)
		if embErr != nil {
			return fmt.Errorf("failed to create embedder: %w", embErr)
		}
		queryEmbedder = adapter
	}

	cache, err := knowledge.NewQueryCache(cfg.Knowledge.Cache)
	if err != nil {
		return err
	}
	var web knowledge.WebSearchClient
	if cfg.Knowledge.WebSearchEnabled && cfg.Knowledge.WebSearchURL != "" {
		web = knowledge.NewHTTPWebSearchClient(cfg.Knowledge.WebSearchURL)
	}

	guard := guardrail.NewService(cfg.Guardrails)
	routerSvc := router.NewService(model, cfg.Router)
	retriever := knowledge.NewService(
		cfg.Knowledge, queryEmbedder, index.NewMemoryStore(), cache, web, guard)
	supportSvc := support.NewService(cfg.Support, support.NewTicketStore(), guard)

	var delivery handoff.DeliveryClient
	if cfg.Handoff.WebhookURL != "" {
		delivery = handoff.NewWebhookClient(
			cfg.Handoff.WebhookURL, cfg.Handoff.DeliveryTimeout, cfg.Handoff.MaxRetries)
	} else {
		log.Warn("No handoff webhook configured, escalations use the mock transport")
	}
	handoffSvc := handoff.NewService(cfg.Handoff, delivery, guard)

	orchestratorSvc := orchestrator.NewService(
		cfg, guard, routerSvc, retriever, supportSvc, handoffSvc, model)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.ContextWithLogger(ctx, log)

	return server.NewServer(server.Dependencies{
		Config:       cfg,
		Log:          log,
		Orchestrator: orchestratorSvc,
		Guardrails:   guard,
		Support:      supportSvc,
		Handoff:      handoffSvc,
	}).Run(ctx)
}
