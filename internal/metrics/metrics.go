package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors exported by the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	ticketsMinted   *prometheus.CounterVec
	mintRejected    *prometheus.CounterVec
	verifications   *prometheus.CounterVec
	soldDrift       *prometheus.GaugeVec
	outboxPublished *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		ticketsMinted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tixledger_tickets_minted_total",
			Help: "Tickets minted, by authorization kind.",
		}, []string{"authorization"}),
		mintRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tixledger_mint_rejected_total",
			Help: "Rejected mint attempts, by reason.",
		}, []string{"reason"}),
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tixledger_verification_attempts_total",
			Help: "Check, verify, use and scan attempts, by outcome.",
		}, []string{"action", "outcome"}),
		soldDrift: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tixledger_event_sold_drift",
			Help: "Difference between the sold counter and the ticket count per event.",
		}, []string{"event_id"}),
		outboxPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tixledger_outbox_published_total",
			Help: "Outbox messages delivered to the broker, by type.",
		}, []string{"type"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tixledger_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.3, 0.6, 1, 3},
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) TicketMinted(authorization string) {
	if m == nil {
		return
	}
	m.ticketsMinted.WithLabelValues(authorization).Inc()
}

func (m *Metrics) MintRejected(reason string) {
	if m == nil {
		return
	}
	m.mintRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Verification(action, outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(action, outcome).Inc()
}

// SetSoldDrift replaces the drift gauge with the latest reconciliation result.
func (m *Metrics) SetSoldDrift(drift map[int64]int64) {
	if m == nil {
		return
	}
	m.soldDrift.Reset()
	for id, d := range drift {
		m.soldDrift.WithLabelValues(strconv.FormatInt(id, 10)).Set(float64(d))
	}
}

func (m *Metrics) OutboxPublished(msgType string, n int) {
	if m == nil {
		return
	}
	m.outboxPublished.WithLabelValues(msgType).Add(float64(n))
}

func (m *Metrics) ObserveHTTP(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(seconds)
}
