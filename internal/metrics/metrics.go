package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns one registry. A nil *Metrics is valid and records nothing, so
// tests and tools that do not serve metrics can pass nil.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive      *prometheus.GaugeVec
	SessionsTotal       *prometheus.CounterVec
	NegotiationSeconds  prometheus.Histogram
	NegotiationTimeouts prometheus.Counter
	Transfers           *prometheus.CounterVec
	TransferBytes       *prometheus.CounterVec
	XmodemRetries       *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry:            reg,
		SessionsActive:      f.NewGaugeVec(prometheus.GaugeOpts{Name: "samizdat_sessions_active", Help: "Sessions currently connected"}, []string{"transport"}),
		SessionsTotal:       f.NewCounterVec(prometheus.CounterOpts{Name: "samizdat_sessions_total", Help: "Sessions accepted"}, []string{"transport"}),
		NegotiationSeconds:  f.NewHistogram(prometheus.HistogramOpts{Name: "samizdat_negotiation_seconds", Help: "Telnet option negotiation time", Buckets: prometheus.ExponentialBuckets(0.01, 2, 10)}),
		NegotiationTimeouts: f.NewCounter(prometheus.CounterOpts{Name: "samizdat_negotiation_timeouts_total", Help: "Negotiations that hit the ceiling"}),
		Transfers:           f.NewCounterVec(prometheus.CounterOpts{Name: "samizdat_transfers_total", Help: "File transfers by outcome"}, []string{"protocol", "direction", "result"}),
		TransferBytes:       f.NewCounterVec(prometheus.CounterOpts{Name: "samizdat_transfer_bytes_total", Help: "Payload bytes moved by completed transfers"}, []string{"protocol", "direction"}),
		XmodemRetries:       f.NewCounterVec(prometheus.CounterOpts{Name: "samizdat_xmodem_retries_total", Help: "XMODEM blocks retried"}, []string{"direction"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionOpened(transport string) {
	if m == nil {
		return
	}
	m.SessionsActive.WithLabelValues(transport).Inc()
	m.SessionsTotal.WithLabelValues(transport).Inc()
}

func (m *Metrics) SessionClosed(transport string) {
	if m == nil {
		return
	}
	m.SessionsActive.WithLabelValues(transport).Dec()
}

func (m *Metrics) Negotiated(elapsed time.Duration, timedOut bool) {
	if m == nil {
		return
	}
	m.NegotiationSeconds.Observe(elapsed.Seconds())
	if timedOut {
		m.NegotiationTimeouts.Inc()
	}
}

// Transfer records one finished transfer. Bytes only count on success.
func (m *Metrics) Transfer(protocol, direction string, err error, bytes int64) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.Transfers.WithLabelValues(protocol, direction, result).Inc()
	if err == nil && bytes > 0 {
		m.TransferBytes.WithLabelValues(protocol, direction).Add(float64(bytes))
	}
}

func (m *Metrics) XmodemRetry(direction string) {
	if m == nil {
		return
	}
	m.XmodemRetries.WithLabelValues(direction).Inc()
}
