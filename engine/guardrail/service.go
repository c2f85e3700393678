package guardrail

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/paylane/concierge/engine/core"
	"github.com/paylane/concierge/pkg/config"
	"github.com/paylane/concierge/pkg/logger"
)

// PreprocessResult is the outcome of input sanitization. Message carries the
// text downstream components may see; MaskedForLog is the only form allowed
// to leave the pipeline (logs, previews).
type PreprocessResult struct {
	Message            string
	MaskedForLog       string
	AccentsStripped    bool
	InjectionDetected  bool
	PIIMasked          bool
	DetectedInjections []string
	LatencyMS          float64
}

// MaskedPreview returns the first limit characters of the masked text.
func (r *PreprocessResult) MaskedPreview(limit int) string {
	runes := []rune(r.MaskedForLog)
	if limit <= 0 || len(runes) <= limit {
		return r.MaskedForLog
	}
	return string(runes[:limit])
}

// PostprocessResult is the outcome of output sanitization.
type PostprocessResult struct {
	Content           string
	ModerationBlocked bool
	ModerationReason  *ModerationReason
	OutputTruncated   bool
	PIIMaskedResponse bool
	LatencyMS         float64
}

// Service is the guardrail pipeline. It has no dependencies on other core
// components and owns its own counters.
type Service struct {
	cfg        config.GuardrailsConfig
	normalizer *Normalizer
	injection  *InjectionFilter
	masker     *Masker
	moderator  *Moderator
	metrics    *Metrics
}

func NewService(cfg config.GuardrailsConfig) *Service {
	return &Service{
		cfg:        cfg,
		normalizer: NewNormalizer(cfg.RemoveAccents, cfg.StripSymbols),
		injection:  NewInjectionFilter(cfg.InjectionPatterns),
		masker:     NewMasker(cfg.PIIMaskingEnabled),
		moderator:  NewModerator(cfg.ModerationEnabled, cfg.Mode, cfg.BlocklistTerms),
		metrics:    NewMetrics(),
	}
}

// Metrics exposes the pipeline counters for registration and diagnostics.
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// Preprocess validates and sanitizes one inbound message. Validation failures
// reject the request before any downstream component runs; detections are
// flags, not errors.
func (s *Service) Preprocess(ctx context.Context, message string) (*PreprocessResult, error) {
	start := time.Now()
	if strings.TrimSpace(message) == "" {
		return nil, core.NewInvalidInput("field 'message' must be a non-empty string")
	}
	if utf8.RuneCountInString(message) > s.cfg.MaxInputChars {
		return nil, core.NewInvalidInput(
			fmt.Sprintf("field 'message' exceeds the %d character limit", s.cfg.MaxInputChars))
	}
	s.metrics.inputs.Add(1)

	result := &PreprocessResult{Message: message}
	if s.cfg.Enabled {
		normalized, stripped := s.normalizer.Normalize(result.Message)
		result.Message = normalized
		result.AccentsStripped = stripped
		if stripped {
			s.metrics.accentsStripped.Add(1)
		}
		if s.cfg.AntiInjectionEnabled {
			cleaned, detected, matches := s.injection.Cleanse(result.Message)
			result.Message = cleaned
			result.InjectionDetected = detected
			result.DetectedInjections = matches
			if detected {
				s.metrics.injectionDetected.Add(1)
				logger.FromContext(ctx).Warn("Injection patterns removed from input",
					"patterns", len(matches))
			}
		}
	} else {
		result.Message = strings.TrimSpace(result.Message)
	}

	masked, flagged, _ := s.masker.Mask(result.Message)
	result.MaskedForLog = strings.TrimSpace(masked)
	if flagged {
		result.PIIMasked = true
		s.metrics.piiMasked.Add(1)
	}
	result.LatencyMS = float64(time.Since(start).Microseconds()) / 1000.0
	return result, nil
}

// Postprocess moderates, masks and truncates generated output. A moderation
// block swaps in the fixed safe response; the caller still returns success
// with an explicit flag.
func (s *Service) Postprocess(_ context.Context, content string) *PostprocessResult {
	start := time.Now()
	result := &PostprocessResult{Content: content}

	if s.cfg.Enabled {
		moderated, blocked, reason := s.moderator.Moderate(result.Content)
		if blocked {
			result.Content = moderated
			result.ModerationBlocked = true
			result.ModerationReason = reason
			s.metrics.moderationBlocked.Add(1)
		}
	}

	masked, flagged, _ := s.masker.Mask(result.Content)
	if flagged {
		result.PIIMaskedResponse = true
		s.metrics.piiMasked.Add(1)
	}
	result.Content = masked

	if truncated, cut := truncateChars(result.Content, s.cfg.MaxOutputChars); cut {
		result.Content = truncated
		result.OutputTruncated = true
		s.metrics.outputsTruncated.Add(1)
	}
	result.LatencyMS = float64(time.Since(start).Microseconds()) / 1000.0
	return result
}

// truncateChars cuts text to at most limit characters, trading the tail for an
// ellipsis when the limit leaves room for one. Cuts land on rune boundaries.
func truncateChars(text string, limit int) (string, bool) {
	if limit <= 0 {
		return text, false
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text, false
	}
	if limit <= 3 {
		return string(runes[:limit]), true
	}
	return strings.TrimRight(string(runes[:limit-3]), " ") + "...", true
}

// ShouldFilterContext reports whether a retrieved chunk must be kept away
// from generation because its text trips an injection pattern.
func (s *Service) ShouldFilterContext(text string) bool {
	if !s.cfg.Enabled || !s.cfg.AntiInjectionEnabled {
		return false
	}
	if s.injection.Detect(text) {
		s.metrics.contextFiltered.Add(1)
		return true
	}
	return false
}

// MaskForExposure masks PII in an arbitrary string regardless of the outcome
// flags; used by handoff payloads and ticket fields.
func (s *Service) MaskForExposure(text string) string {
	masked, _, _ := s.masker.Mask(text)
	return masked
}

// Diagnostics runs the preprocess stage against a probe query and returns the
// masked view plus a counter snapshot.
func (s *Service) Diagnostics(ctx context.Context, query string) (map[string]any, error) {
	pre, err := s.Preprocess(ctx, query)
	if err != nil {
		return nil, err
	}
	maskedNormalized, _, _ := s.masker.Mask(pre.Message)
	return map[string]any{
		"normalized_text":     maskedNormalized,
		"masked_preview":      pre.MaskedPreview(200),
		"injection_detected":  pre.InjectionDetected,
		"detected_injections": pre.DetectedInjections,
		"pii_masked":          pre.PIIMasked,
		"mode":                s.cfg.Mode,
		"metrics":             s.metrics.Snapshot(),
	}, nil
}
