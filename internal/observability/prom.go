// Package observability exports monitoring activity as Prometheus metrics.
package observability

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/and161185/biasmeter/internal/monitor"
	"github.com/and161185/biasmeter/model"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromObs is a monitor.Observer backed by Prometheus collectors.
type PromObs struct {
	gatherer prometheus.Gatherer

	ticks    prometheus.Counter
	alerts   *prometheus.CounterVec
	fairness *prometheus.GaugeVec
	samples  *prometheus.GaugeVec
	latency  *prometheus.HistogramVec
}

// NewPromObs registers the collectors on reg. A nil reg uses a fresh registry.
func NewPromObs(reg *prometheus.Registry) *PromObs {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	p := &PromObs{
		gatherer: reg,
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "biasmeter_ticks_total",
			Help: "Samples ingested by all monitoring sessions.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "biasmeter_alerts_total",
			Help: "Alerts raised, by severity.",
		}, []string{"severity"}),
		fairness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "biasmeter_fairness_score",
			Help: "Latest fairness score of a session.",
		}, []string{"session"}),
		samples: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "biasmeter_buffer_samples",
			Help: "Samples retained in a session window.",
		}, []string{"session"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "biasmeter_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(p.ticks, p.alerts, p.fairness, p.samples, p.latency)
	return p
}

// OnTick records a processed sample.
func (p *PromObs) OnTick(_ context.Context, sessionID string, res monitor.TickResult) {
	p.ticks.Inc()
	p.fairness.WithLabelValues(sessionID).Set(res.Sample.Value)
	p.samples.WithLabelValues(sessionID).Set(float64(res.Stats.Count))
}

// OnAlert counts an alert.
func (p *PromObs) OnAlert(_ context.Context, _ string, ev model.AlertEvent) {
	p.alerts.WithLabelValues(string(ev.Severity)).Inc()
}

// Forget drops the per-session series of a stopped session.
func (p *PromObs) Forget(sessionID string) {
	p.fairness.DeleteLabelValues(sessionID)
	p.samples.DeleteLabelValues(sessionID)
}

// Handler serves the registry in the Prometheus text format.
func (p *PromObs) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

// Middleware observes request latency labelled by the chi route pattern.
func (p *PromObs) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		p.latency.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

var _ monitor.Observer = (*PromObs)(nil)
