package support

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts support outcomes; implements prometheus.Collector.
type Metrics struct {
	requests       atomic.Int64
	faqHits        atomic.Int64
	ticketsCreated atomic.Int64
	escalations    atomic.Int64

	descRequests       *prometheus.Desc
	descFAQHits        *prometheus.Desc
	descTicketsCreated *prometheus.Desc
	descEscalations    *prometheus.Desc
}

func NewMetrics() *Metrics {
	return &Metrics{
		descRequests: prometheus.NewDesc(
			"support_requests_total", "Requests routed to the support handler.", nil, nil),
		descFAQHits: prometheus.NewDesc(
			"support_faq_hits_total", "Requests answered directly from the FAQ set.", nil, nil),
		descTicketsCreated: prometheus.NewDesc(
			"support_tickets_created_total", "Tickets opened by the support handler.", nil, nil),
		descEscalations: prometheus.NewDesc(
			"support_escalations_total", "Tickets created already escalated.", nil, nil),
	}
}

func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"requests_total":        m.requests.Load(),
		"faq_hits_total":        m.faqHits.Load(),
		"tickets_created_total": m.ticketsCreated.Load(),
		"escalations_total":     m.escalations.Load(),
	}
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.descRequests
	ch <- m.descFAQHits
	ch <- m.descTicketsCreated
	ch <- m.descEscalations
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	counter := func(desc *prometheus.Desc, value int64) prometheus.Metric {
		return prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(value))
	}
	ch <- counter(m.descRequests, m.requests.Load())
	ch <- counter(m.descFAQHits, m.faqHits.Load())
	ch <- counter(m.descTicketsCreated, m.ticketsCreated.Load())
	ch <- counter(m.descEscalations, m.escalations.Load())
}
