// Package metrics exposes Prometheus instrumentation for the reasoning gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Phase names an upstream call within one request.
type Phase string

const (
	PhaseReasoning Phase = "reasoning"
	PhaseAnswer    Phase = "answer"
)

const (
	OutcomeOK = "ok"

	ModeDirect = "direct"
	ModeStream = "stream"

	TokensPrompt    = "prompt"
	TokensReasoning = "reasoning"
	TokensAnswer    = "answer"
)

// Collector owns the gateway's metrics on a private registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	tokens           *prometheus.CounterVec
	answerSkipped    *prometheus.CounterVec
	reasoningCutoff  *prometheus.CounterVec
}

// NewCollector registers every metric under namespace on a fresh registry, together with
// the Go runtime and process collectors.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "adaptive_reasoner"
	}
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Chat completion requests by logical model, mode and outcome.",
		}, []string{"model", "mode", "outcome"}),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream calls by phase and outcome.",
		}, []string{"phase", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_latency_seconds",
			Help:      "Time from sending an upstream call until its response is fully consumed.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"phase"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens reported by upstreams, by logical model and kind.",
		}, []string{"model", "kind"}),
		answerSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answer_skipped_total",
			Help:      "Requests whose reasoning used up the whole completion allowance.",
		}, []string{"model"}),
		reasoningCutoff: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reasoning_cutoff_total",
			Help:      "Requests whose reasoning phase stopped at its budget.",
		}, []string{"model"}),
	}

	registry.MustRegister(
		c.requests,
		c.upstreamRequests,
		c.upstreamLatency,
		c.tokens,
		c.answerSkipped,
		c.reasoningCutoff,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// RecordRequest counts one finished client request. outcome is OutcomeOK or an error kind.
func (c *Collector) RecordRequest(model, mode, outcome string) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(model, mode, outcome).Inc()
}

// RecordUpstream counts one upstream call and observes its duration.
func (c *Collector) RecordUpstream(phase Phase, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.upstreamRequests.WithLabelValues(string(phase), outcome).Inc()
	c.upstreamLatency.WithLabelValues(string(phase)).Observe(elapsed.Seconds())
}

// RecordTokens adds the merged token counts of one request.
func (c *Collector) RecordTokens(model string, prompt, reasoning, answer int) {
	if c == nil {
		return
	}
	c.tokens.WithLabelValues(model, TokensPrompt).Add(float64(max(prompt, 0)))
	c.tokens.WithLabelValues(model, TokensReasoning).Add(float64(max(reasoning, 0)))
	c.tokens.WithLabelValues(model, TokensAnswer).Add(float64(max(answer, 0)))
}

// RecordAnswerSkipped counts a request answered without an answer phase.
func (c *Collector) RecordAnswerSkipped(model string) {
	if c == nil {
		return
	}
	c.answerSkipped.WithLabelValues(model).Inc()
}

// RecordReasoningCutoff counts a reasoning phase that hit its budget.
func (c *Collector) RecordReasoningCutoff(model string) {
	if c == nil {
		return
	}
	c.reasoningCutoff.WithLabelValues(model).Inc()
}
