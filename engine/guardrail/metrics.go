package guardrail

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's monotonic counters. An instance is owned by
// one Service so tests can run isolated pipelines; it also implements
// prometheus.Collector for /metrics export.
type Metrics struct {
	inputs            atomic.Int64
	accentsStripped   atomic.Int64
	injectionDetected atomic.Int64
	piiMasked         atomic.Int64
	moderationBlocked atomic.Int64
	outputsTruncated  atomic.Int64
	contextFiltered   atomic.Int64

	descInputs            *prometheus.Desc
	descAccentsStripped   *prometheus.Desc
	descInjectionDetected *prometheus.Desc
	descPIIMasked         *prometheus.Desc
	descModerationBlocked *prometheus.Desc
	descOutputsTruncated  *prometheus.Desc
	descContextFiltered   *prometheus.Desc
}

func NewMetrics() *Metrics {
	return &Metrics{
		descInputs: prometheus.NewDesc(
			"guardrails_inputs_total", "Messages seen by the preprocess stage.", nil, nil),
		descAccentsStripped: prometheus.NewDesc(
			"guardrails_accents_stripped_total", "Inputs changed by normalization.", nil, nil),
		descInjectionDetected: prometheus.NewDesc(
			"guardrails_injection_detected_total", "Inputs with removed injection spans.", nil, nil),
		descPIIMasked: prometheus.NewDesc(
			"guardrails_pii_masked_total", "Texts with redacted PII.", nil, nil),
		descModerationBlocked: prometheus.NewDesc(
			"guardrails_moderation_blocked_total", "Outputs replaced by the safe response.", nil, nil),
		descOutputsTruncated: prometheus.NewDesc(
			"guardrails_outputs_truncated_total", "Outputs cut at the character cap.", nil, nil),
		descContextFiltered: prometheus.NewDesc(
			"guardrails_context_filtered_total", "Retrieved chunks dropped by the injection filter.", nil, nil),
	}
}

// Snapshot returns a point-in-time view of every counter.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"inputs_total":             m.inputs.Load(),
		"accents_stripped_total":   m.accentsStripped.Load(),
		"injection_detected_total": m.injectionDetected.Load(),
		"pii_masked_total":         m.piiMasked.Load(),
		"moderation_blocked_total": m.moderationBlocked.Load(),
		"outputs_truncated_total":  m.outputsTruncated.Load(),
		"context_filtered_total":   m.contextFiltered.Load(),
	}
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.descInputs
	ch <- m.descAccentsStripped
	ch <- m.descInjectionDetected
	ch <- m.descPIIMasked
	ch <- m.descModerationBlocked
	ch <- m.descOutputsTruncated
	ch <- m.descContextFiltered
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	counter := func(desc *prometheus.Desc, value int64) prometheus.Metric {
		return prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(value))
	}
	ch <- counter(m.descInputs, m.inputs.Load())
	ch <- counter(m.descAccentsStripped, m.accentsStripped.Load())
	ch <- counter(m.descInjectionDetected, m.injectionDetected.Load())
	ch <- counter(m.descPIIMasked, m.piiMasked.Load())
	ch <- counter(m.descModerationBlocked, m.moderationBlocked.Load())
	ch <- counter(m.descOutputsTruncated, m.outputsTruncated.Load())
	ch <- counter(m.descContextFiltered, m.contextFiltered.Load())
}
