package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kliq_messages_sent_total",
		Help: "Messages persisted, by kind.",
	}, []string{"kind"})

	JobsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kliq_jobs_dispatched_total",
		Help: "Background jobs handed to the worker queue, by kind and result.",
	}, []string{"kind", "result"})

	JobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kliq_jobs_completed_total",
		Help: "Background jobs run by workers, by kind and outcome.",
	}, []string{"kind", "outcome"})

	JobQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kliq_job_queue_depth",
		Help: "Jobs waiting in the in-memory queue.",
	})

	LLMCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kliq_llm_calls_total",
		Help: "Model provider calls, by operation and outcome.",
	}, []string{"op", "outcome"})

	LLMLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kliq_llm_latency_seconds",
		Help:    "Model provider call latency.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"op"})

	ArtifactsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kliq_ai_artifacts_written_total",
		Help: "AI artifacts persisted, by type.",
	}, []string{"type"})

	AISkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kliq_ai_requests_skipped_total",
		Help: "AI requests skipped before calling the model, by reason.",
	}, []string{"reason"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kliq_http_requests_total",
		Help: "HTTP requests, by method and status code.",
	}, []string{"method", "code"})

	LiveWaiters = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kliq_live_waiters",
		Help: "Long-poll requests currently waiting for an invalidation.",
	})

	OperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kliq_operation_duration_seconds",
		Help:    "Duration of traced operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(
		MessagesSent,
		JobsDispatched,
		JobsCompleted,
		JobQueueDepth,
		LLMCalls,
		LLMLatency,
		ArtifactsWritten,
		AISkipped,
		HTTPRequests,
		LiveWaiters,
		OperationDuration,
	)
}
