// Package metrics declares the Prometheus collectors for query handling.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coursebot_queries_total",
		Help: "Total number of answered queries by outcome",
	}, []string{"status"})

	queryLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coursebot_query_duration_seconds",
		Help:    "End-to-end query latency in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
	})

	toolRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coursebot_tool_rounds",
		Help:    "Tool-use rounds executed per query",
		Buckets: []float64{0, 1, 2, 3, 4},
	})

	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coursebot_tool_calls_total",
		Help: "Total number of tool executions",
	}, []string{"tool", "status"})

	llmRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coursebot_llm_requests_total",
		Help: "Total number of LLM requests",
	}, []string{"provider", "status"})

	llmLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coursebot_llm_latency_seconds",
		Help:    "LLM request latency in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"provider"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coursebot_errors_total",
		Help: "Total number of failed queries by origin",
	}, []string{"component", "kind"})
)

// RecordQuery records a finished query.
func RecordQuery(success bool, elapsed time.Duration) {
	queriesTotal.WithLabelValues(status(success)).Inc()
	queryLatency.Observe(elapsed.Seconds())
}

// RecordRounds records the number of tool rounds a query used.
func RecordRounds(rounds int) {
	toolRounds.Observe(float64(rounds))
}

// RecordToolCall records one tool execution.
func RecordToolCall(tool string, success bool) {
	toolCalls.WithLabelValues(tool, status(success)).Inc()
}

// RecordLLMRequest records one model call.
func RecordLLMRequest(provider string, success bool, elapsed time.Duration) {
	llmRequests.WithLabelValues(provider, status(success)).Inc()
	llmLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordError records a failed query by originating component.
func RecordError(component, kind string) {
	errorsTotal.WithLabelValues(component, kind).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
