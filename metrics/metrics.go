// Package metrics exposes Prometheus collectors for generator calls and
// action dispatch outcomes.
//
// A Collector is fed explicitly (RecordGeneratorCall, RecordResponse) and
// by observing events (Observe), which turns dispatch events into counters
// and latency histograms. Feed each event once: either hand the collector to
// the runtime or drain a subscription yourself, not both.
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewCollector(reg)
//	for ev := range ch.Subscribe() {
//	    m.Observe(ev.Type)
//	}
//
// All methods are safe on a nil *Collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/actionmesh/core"
)

// Action outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomeInvalid = "invalid"
)

// Response label values.
const (
	ResponseValid   = "valid"
	ResponseEmpty   = "empty"
	ResponseInvalid = "invalid"
)

// Collector groups the actionmesh collectors.
type Collector struct {
	// GeneratorRequests counts generator calls.
	// Labels: provider, status (success|error)
	GeneratorRequests *prometheus.CounterVec

	// GeneratorDuration measures generator call latency in seconds.
	// Labels: provider
	GeneratorDuration *prometheus.HistogramVec

	// Tokens counts consumed tokens.
	// Labels: provider, type (input|output)
	Tokens *prometheus.CounterVec

	// Responses counts generator responses by classification.
	// Labels: kind (valid|empty|invalid)
	Responses *prometheus.CounterVec

	// Actions counts dispatched invocations.
	// Labels: action, outcome (success|error|timeout|invalid)
	Actions *prometheus.CounterVec

	// ActionDuration measures action execution time in seconds.
	// Labels: action
	ActionDuration *prometheus.HistogramVec

	// Sleeps counts rate-limit waits.
	Sleeps prometheus.Counter
}

// NewCollector creates the collectors and registers them with reg. A nil reg
// creates unregistered collectors.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		GeneratorRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "actionmesh_generator_requests_total",
			Help: "Total number of generator calls by provider and status",
		}, []string{"provider", "status"}),

		GeneratorDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "actionmesh_generator_request_duration_seconds",
			Help:    "Duration of generator calls in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),

		Tokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "actionmesh_generator_tokens_total",
			Help: "Total number of tokens by provider and type",
		}, []string{"provider", "type"}),

		Responses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "actionmesh_responses_total",
			Help: "Total number of generator responses by kind",
		}, []string{"kind"}),

		Actions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "actionmesh_actions_total",
			Help: "Total number of dispatched invocations by action and outcome",
		}, []string{"action", "outcome"}),

		ActionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "actionmesh_action_duration_seconds",
			Help:    "Duration of action executions in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"action"}),

		Sleeps: f.NewCounter(prometheus.CounterOpts{
			Name: "actionmesh_ratelimit_sleeps_total",
			Help: "Total number of rate-limit waits",
		}),
	}
}

// RecordGeneratorCall records one generator call.
func (c *Collector) RecordGeneratorCall(provider string, d time.Duration, usage *core.Usage, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.GeneratorRequests.WithLabelValues(provider, status).Inc()
	c.GeneratorDuration.WithLabelValues(provider).Observe(d.Seconds())
	if usage == nil {
		return
	}
	if usage.InputTokens > 0 {
		c.Tokens.WithLabelValues(provider, "input").Add(float64(usage.InputTokens))
	}
	if usage.OutputTokens > 0 {
		c.Tokens.WithLabelValues(provider, "output").Add(float64(usage.OutputTokens))
	}
}

// RecordResponse counts a classified generator response.
func (c *Collector) RecordResponse(kind string) {
	if c == nil {
		return
	}
	c.Responses.WithLabelValues(kind).Inc()
}

// RecordAction counts a dispatch outcome. Elapsed is observed for executed
// and timed out actions only.
func (c *Collector) RecordAction(action, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Actions.WithLabelValues(action, outcome).Inc()
	if outcome != OutcomeInvalid {
		c.ActionDuration.WithLabelValues(action).Observe(elapsed.Seconds())
	}
}

// Observe updates the collectors from a dispatch or generator event. Events
// without a metric are ignored.
func (c *Collector) Observe(t core.EventType) {
	if c == nil {
		return
	}
	switch ev := t.(type) {
	case core.ActionExecuted:
		outcome := OutcomeSuccess
		if ev.Error != "" {
			outcome = OutcomeError
		}
		c.RecordAction(ev.Invocation.Action, outcome, ev.Elapsed)
	case core.ActionTimeout:
		c.RecordAction(ev.Invocation.Action, OutcomeTimeout, ev.Elapsed)
	case core.InvalidAction:
		c.RecordAction(ev.Invocation.Action, OutcomeInvalid, 0)
	case core.EmptyResponse:
		c.RecordResponse(ResponseEmpty)
	case core.InvalidResponse:
		c.RecordResponse(ResponseInvalid)
	case core.Sleeping:
		c.Sleeps.Inc()
	}
}
