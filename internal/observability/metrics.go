package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the agent/daemon.
type Metrics struct {
	registry      *prometheus.Registry
	Queries       *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	ToolCalls     *prometheus.CounterVec
	SandboxRuns   *prometheus.CounterVec
	SandboxTime   *prometheus.HistogramVec
	ModelRequests *prometheus.CounterVec
	ModelFailures *prometheus.CounterVec
	ModelTokens   *prometheus.CounterVec
	ActiveStreams *prometheus.GaugeVec
	TransportErrs *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry with agent collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	queries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "finagent_queries_total",
		Help: "Agent queries by agent and outcome",
	}, []string{"agent", "outcome"})

	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "finagent_query_duration_seconds",
		Help:    "Agent query duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"agent", "outcome"})

	toolCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "finagent_tool_calls_total",
		Help: "Tool invocations by tool name and result status",
	}, []string{"tool", "status"})

	sandboxRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "finagent_sandbox_runs_total",
		Help: "Sandboxed script executions by status",
	}, []string{"status"})

	sandboxTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "finagent_sandbox_duration_seconds",
		Help:    "Sandboxed script execution duration in seconds, install included",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"status"})

	modelRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "finagent_model_requests_total",
		Help: "Model exchanges by provider and model",
	}, []string{"provider", "model"})

	modelFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "finagent_model_failures_total",
		Help: "Model failures by provider and model",
	}, []string{"provider", "model"})

	modelTokens := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "finagent_model_tokens_total",
		Help: "Token usage reported by the model, by model and direction",
	}, []string{"model", "direction"})

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "finagent_active_streams",
		Help: "Active streaming sessions by transport",
	}, []string{"transport"})

	trErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "finagent_transport_errors_total",
		Help: "Transport-level errors (handler/streaming) by transport and reason",
	}, []string{"transport", "reason"})

	reg.MustRegister(queries, durs, toolCalls, sandboxRuns, sandboxTime,
		modelRequests, modelFailures, modelTokens, active, trErrors)

	return &Metrics{
		registry:      reg,
		Queries:       queries,
		QueryDuration: durs,
		ToolCalls:     toolCalls,
		SandboxRuns:   sandboxRuns,
		SandboxTime:   sandboxTime,
		ModelRequests: modelRequests,
		ModelFailures: modelFailures,
		ModelTokens:   modelTokens,
		ActiveStreams: active,
		TransportErrs: trErrors,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordQuery records one completed agent query with its outcome.
func (m *Metrics) RecordQuery(agent, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if agent == "" {
		agent = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.Queries.WithLabelValues(agent, outcome).Inc()
	m.QueryDuration.WithLabelValues(agent, outcome).Observe(duration.Seconds())
}

// RecordToolCall records one tool invocation and its result status.
func (m *Metrics) RecordToolCall(tool, status string) {
	if m == nil {
		return
	}
	if tool == "" {
		tool = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.ToolCalls.WithLabelValues(tool, status).Inc()
}

// RecordSandboxRun records one sandboxed script execution.
func (m *Metrics) RecordSandboxRun(status string, duration time.Duration) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.SandboxRuns.WithLabelValues(status).Inc()
	m.SandboxTime.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordModelRequest increments the exchange counter for a provider/model.
func (m *Metrics) RecordModelRequest(provider, model string) {
	if m == nil {
		return
	}
	if provider == "" {
		provider = "unknown"
	}
	if model == "" {
		model = "unknown"
	}
	m.ModelRequests.WithLabelValues(provider, model).Inc()
}

// RecordModelFailure increments the failure counter for a provider/model.
func (m *Metrics) RecordModelFailure(provider, model string) {
	if m == nil {
		return
	}
	if provider == "" {
		provider = "unknown"
	}
	if model == "" {
		model = "unknown"
	}
	m.ModelFailures.WithLabelValues(provider, model).Inc()
}

// AddModelTokens records token usage reported by a model response.
func (m *Metrics) AddModelTokens(model string, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	if model == "" {
		model = "unknown"
	}
	if inputTokens > 0 {
		m.ModelTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.ModelTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// IncActiveStreams increments the active stream gauge.
func (m *Metrics) IncActiveStreams(transport string) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(transport).Inc()
}

// DecActiveStreams decrements the active stream gauge.
func (m *Metrics) DecActiveStreams(transport string) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(transport).Dec()
}

// RecordTransportError records a transport-level error.
func (m *Metrics) RecordTransportError(transport, reason string) {
	if m == nil {
		return
	}
	if transport == "" {
		transport = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	m.TransportErrs.WithLabelValues(transport, reason).Inc()
}
