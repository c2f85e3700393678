package config

import (
	"time"
)

// Config is the root configuration for the concierge service. Defaults come
// from Default(); environment variables prefixed with CONCIERGE_ override
// individual keys (CONCIERGE_GUARDRAILS_MAX_INPUT_CHARS=2000).
type Config struct {
	Server     ServerConfig     `koanf:"server"     validate:"required"`
	Log        LogConfig        `koanf:"log"`
	Guardrails GuardrailsConfig `koanf:"guardrails" validate:"required"`
	Router     RouterConfig     `koanf:"router"     validate:"required"`
	Knowledge  KnowledgeConfig  `koanf:"knowledge"  validate:"required"`
	Support    SupportConfig    `koanf:"support"`
	Handoff    HandoffConfig    `koanf:"handoff"    validate:"required"`
	Redirect   RedirectConfig   `koanf:"redirect"`
}

type ServerConfig struct {
	Host                string `koanf:"host"`
	Port                int    `koanf:"port"                  validate:"gt=0,lte=65535"`
	CorrelationIDHeader string `koanf:"correlation_id_header"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `koanf:"json"`
}

type GuardrailsConfig struct {
	Enabled              bool   `koanf:"enabled"`
	Mode                 string `koanf:"mode" validate:"oneof=strict balanced off"`
	MaxInputChars        int    `koanf:"max_input_chars"  validate:"gt=0"`
	MaxOutputChars       int    `koanf:"max_output_chars" validate:"gte=4"`
	RemoveAccents        bool   `koanf:"remove_accents"`
	StripSymbols         string `koanf:"strip_symbols"`
	AntiInjectionEnabled bool   `koanf:"anti_injection_enabled"`
	InjectionPatterns    string `koanf:"injection_patterns"`
	ModerationEnabled    bool   `koanf:"moderation_enabled"`
	BlocklistTerms       string `koanf:"blocklist_terms"`
	PIIMaskingEnabled    bool   `koanf:"pii_masking_enabled"`
	DiagnosticsEnabled   bool   `koanf:"diagnostics_enabled"`
}

type RouterConfig struct {
	Provider string        `koanf:"provider"`
	Model    string        `koanf:"model"`
	APIKey   string        `koanf:"api_key"`
	Timeout  time.Duration `koanf:"timeout" validate:"gt=0"`
}

type KnowledgeConfig struct {
	Enabled         bool          `koanf:"enabled"`
	TopK            int           `koanf:"top_k"             validate:"gt=0"`
	MinScore        float64       `koanf:"min_score"`
	MaxContextChars int           `koanf:"max_context_chars" validate:"gt=0"`
	EmbeddingModel  string        `koanf:"embedding_model"`
	ProviderTimeout time.Duration `koanf:"provider_timeout"  validate:"gt=0"`

	Rerank RerankConfig `koanf:"rerank"`
	Cache  CacheConfig  `koanf:"cache"`

	WebSearchEnabled bool   `koanf:"web_search_enabled"`
	WebSearchURL     string `koanf:"web_search_url"`
	FallbackURL      string `koanf:"fallback_url"`
}

// RerankConfig holds the heuristic weights applied on top of base similarity
// scores. Injected at construction time, never read ad hoc during scoring.
type RerankConfig struct {
	TitleBoost     float64 `koanf:"title_boost"`
	ExactTermBoost float64 `koanf:"exact_term_boost"`
	LengthPenalty  float64 `koanf:"length_penalty"`
}

type CacheConfig struct {
	TTL      time.Duration `koanf:"ttl"`
	MaxItems int           `koanf:"max_items" validate:"gt=0"`
	// Backend selects the cache implementation: memory or redis.
	Backend  string `koanf:"backend" validate:"oneof=memory redis"`
	RedisURL string `koanf:"redis_url"`
}

type SupportConfig struct {
	FAQEnabled        bool    `koanf:"faq_enabled"`
	FAQScoreThreshold float64 `koanf:"faq_score_threshold"`
	MaxResponseChars  int     `koanf:"max_response_chars" validate:"gt=0"`
}

type HandoffConfig struct {
	Enabled         bool          `koanf:"enabled"`
	ConfirmTTL      time.Duration `koanf:"confirm_ttl" validate:"gt=0"`
	SummaryMaxChars int           `koanf:"summary_max_chars" validate:"gte=4"`
	DetailsMaxChars int           `koanf:"details_max_chars" validate:"gte=4"`

	Channel         string        `koanf:"channel"`
	WebhookURL      string        `koanf:"webhook_url"`
	DeliveryTimeout time.Duration `koanf:"delivery_timeout" validate:"gt=0"`
	MaxRetries      int           `koanf:"max_retries"      validate:"gte=0"`
}

type RedirectConfig struct {
	Enabled             bool    `koanf:"enabled"`
	ConfidenceThreshold float64 `koanf:"confidence_threshold" validate:"gte=0,lte=1"`
}

// Default returns the built-in configuration, mirroring the defaults of the
// original deployment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8000,
			CorrelationIDHeader: "X-Correlation-ID",
		},
		Log: LogConfig{Level: "info", JSON: true},
		Guardrails: GuardrailsConfig{
			Enabled:              true,
			Mode:                 "balanced",
			MaxInputChars:        4000,
			MaxOutputChars:       3000,
			RemoveAccents:        true,
			StripSymbols:         "~,^,´,¸,`,\\",
			AntiInjectionEnabled: true,
			ModerationEnabled:    true,
			PIIMaskingEnabled:    true,
		},
		Router: RouterConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Timeout:  10 * time.Second,
		},
		Knowledge: KnowledgeConfig{
			Enabled:         true,
			TopK:            5,
			MinScore:        0.5,
			MaxContextChars: 8000,
			EmbeddingModel:  "text-embedding-3-small",
			ProviderTimeout: 10 * time.Second,
			Rerank: RerankConfig{
				TitleBoost:     0.1,
				ExactTermBoost: 0.2,
				LengthPenalty:  0.1,
			},
			Cache: CacheConfig{
				TTL:      5 * time.Minute,
				MaxItems: 1024,
				Backend:  "memory",
			},
			FallbackURL: "https://www.infinitepay.io",
		},
		Support: SupportConfig{
			FAQEnabled:        true,
			FAQScoreThreshold: 0.65,
			MaxResponseChars:  1200,
		},
		Handoff: HandoffConfig{
			Enabled:         true,
			ConfirmTTL:      5 * time.Minute,
			SummaryMaxChars: 280,
			DetailsMaxChars: 1200,
			Channel:         "#support-escalations",
			DeliveryTimeout: 10 * time.Second,
			MaxRetries:      2,
		},
		Redirect: RedirectConfig{
			Enabled:             true,
			ConfidenceThreshold: 0.3,
		},
	}
}
