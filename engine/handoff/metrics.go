package handoff

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const latencySampleCap = 2000

// Metrics tracks delivery outcomes plus a bounded latency sample ring for
// average and p95; implements prometheus.Collector.
type Metrics struct {
	attempts atomic.Int64
	success  atomic.Int64
	failed   atomic.Int64

	mu        sync.Mutex
	latencies []float64

	descAttempts *prometheus.Desc
	descSuccess  *prometheus.Desc
	descFailed   *prometheus.Desc
	descAvg      *prometheus.Desc
	descP95      *prometheus.Desc
}

func NewMetrics() *Metrics {
	return &Metrics{
		descAttempts: prometheus.NewDesc(
			"handoff_delivery_attempts_total", "Escalation delivery attempts.", nil, nil),
		descSuccess: prometheus.NewDesc(
			"handoff_delivery_success_total", "Escalations delivered to the operator channel.", nil, nil),
		descFailed: prometheus.NewDesc(
			"handoff_delivery_failed_total", "Escalations that exhausted the retry budget.", nil, nil),
		descAvg: prometheus.NewDesc(
			"handoff_delivery_latency_avg_ms", "Average delivery latency over the sample window.", nil, nil),
		descP95: prometheus.NewDesc(
			"handoff_delivery_latency_p95_ms", "P95 delivery latency over the sample window.", nil, nil),
	}
}

func (m *Metrics) RecordAttempt() {
	m.attempts.Add(1)
}

func (m *Metrics) RecordOutcome(ok bool, latencyMS float64) {
	if ok {
		m.success.Add(1)
	} else {
		m.failed.Add(1)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, latencyMS)
	if len(m.latencies) > latencySampleCap {
		m.latencies = m.latencies[len(m.latencies)-latencySampleCap:]
	}
}

// AverageLatencyMS returns the mean over the retained samples.
func (m *Metrics) AverageLatencyMS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.latencies) == 0 {
		return 0
	}
	total := 0.0
	for _, sample := range m.latencies {
		total += sample
	}
	return total / float64(len(m.latencies))
}

// P95LatencyMS returns the 95th percentile over the retained samples.
func (m *Metrics) P95LatencyMS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.latencies) == 0 {
		return 0
	}
	ordered := make([]float64, len(m.latencies))
	copy(ordered, m.latencies)
	sort.Float64s(ordered)
	index := int(float64(len(ordered))*0.95) - 1
	if index < 0 {
		index = 0
	}
	return ordered[index]
}

func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"attempts_total": m.attempts.Load(),
		"success_total":  m.success.Load(),
		"failed_total":   m.failed.Load(),
		"avg_latency_ms": m.AverageLatencyMS(),
		"p95_latency_ms": m.P95LatencyMS(),
	}
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.descAttempts
	ch <- m.descSuccess
	ch <- m.descFailed
	ch <- m.descAvg
	ch <- m.descP95
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(m.descAttempts, prometheus.CounterValue, float64(m.attempts.Load()))
	ch <- prometheus.MustNewConstMetric(m.descSuccess, prometheus.CounterValue, float64(m.success.Load()))
	ch <- prometheus.MustNewConstMetric(m.descFailed, prometheus.CounterValue, float64(m.failed.Load()))
	ch <- prometheus.MustNewConstMetric(m.descAvg, prometheus.GaugeValue, m.AverageLatencyMS())
	ch <- prometheus.MustNewConstMetric(m.descP95, prometheus.GaugeValue, m.P95LatencyMS())
}
