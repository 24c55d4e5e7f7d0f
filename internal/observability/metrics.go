package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the daemon's process-level gauges and counters,
// exposed on a loopback-only /metrics endpoint.
type Metrics struct {
	// ConnectionsActive is 1 when a client is connected, 0 otherwise
	// (spec.md §3: exactly one connection at a time).
	ConnectionsActive prometheus.Gauge

	// ToolCallsInFlight tracks the dispatcher's currently-executing calls.
	ToolCallsInFlight prometheus.Gauge

	// ToolCallsTotal counts completed tool calls by name and outcome.
	// Labels: tool, outcome (success|error)
	ToolCallsTotal *prometheus.CounterVec

	// ToolCallDuration measures wall-clock tool execution time.
	// Labels: tool
	ToolCallDuration *prometheus.HistogramVec

	// ProviderRequestDuration measures upstream LLM stream latency to
	// first byte. Labels: provider, model
	ProviderRequestDuration *prometheus.HistogramVec

	// ProviderRequestsTotal counts provider stream attempts.
	// Labels: provider, status (success|error)
	ProviderRequestsTotal *prometheus.CounterVec

	// VaultLocked is 1 when the vault is locked, 0 when unlocked.
	VaultLocked prometheus.Gauge

	// AuthFailuresTotal counts failed TOTP verification attempts.
	AuthFailuresTotal prometheus.Counter
}

// NewMetrics registers and returns a fresh Metrics set against the
// default Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentgateway",
			Name:      "connections_active",
			Help:      "1 if a client is currently connected, else 0.",
		}),
		ToolCallsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentgateway",
			Name:      "tool_calls_in_flight",
			Help:      "Number of tool calls currently executing.",
		}),
		ToolCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgateway",
			Name:      "tool_calls_total",
			Help:      "Completed tool calls by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		ToolCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentgateway",
			Name:      "tool_call_duration_seconds",
			Help:      "Tool execution wall-clock duration.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool"}),
		ProviderRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentgateway",
			Name:      "provider_request_duration_seconds",
			Help:      "Time to the first streamed event from a provider request.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),
		ProviderRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgateway",
			Name:      "provider_requests_total",
			Help:      "Provider stream attempts by provider and outcome.",
		}, []string{"provider", "status"}),
		VaultLocked: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentgateway",
			Name:      "vault_locked",
			Help:      "1 if the vault is locked, else 0.",
		}),
		AuthFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "agentgateway",
			Name:      "auth_failures_total",
			Help:      "Failed TOTP verification attempts across all sessions.",
		}),
	}
}

func (m *Metrics) RecordToolCall(tool, outcome string, duration time.Duration) {
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func (m *Metrics) RecordProviderRequest(provider, model, status string, duration time.Duration) {
	m.ProviderRequestsTotal.WithLabelValues(provider, status).Inc()
	if status == "success" {
		m.ProviderRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	}
}
