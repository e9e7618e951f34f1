package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PrefilterVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ideas_prefilter_verdicts_total",
		Help: "Prefilter verdicts by reason (none means the message continued)",
	}, []string{"reason"})

	MessagesParsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ideas_messages_parsed_total",
		Help: "Messages that reached a final parse status, by path and status",
	}, []string{"path", "status"})

	ChunksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ideas_chunks_processed_total",
		Help: "Soft chunks processed by outcome",
	}, []string{"path", "outcome"})

	Escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ideas_escalations_total",
		Help: "Chunks rerouted to the escalation model, by trigger",
	}, []string{"trigger"})

	ParseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ideas_parse_failures_total",
		Help: "Chunks whose structured output stayed invalid after retry and escalation",
	})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ideas_llm_request_duration_seconds",
		Help:    "Duration of model requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model", "task"})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ideas_llm_requests_total",
		Help: "Model requests by task and status",
	}, []string{"model", "task", "status"})

	LLMTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ideas_llm_tokens_total",
		Help: "Tokens consumed by model",
	}, []string{"model"})

	LLMCircuitOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ideas_llm_circuit_open",
		Help: "1 when the model circuit breaker is open",
	})

	RetryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ideas_retry_attempts_total",
		Help: "Retried attempts by policy",
	}, []string{"policy"})

	RetryGiveUps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ideas_retry_giveups_total",
		Help: "Retry loops that gave up, by policy and reason",
	}, []string{"policy", "reason"})

	IdeasCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ideas_committed_total",
		Help: "Idea rows deleted and inserted by commit",
	}, []string{"op"})

	CommitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ideas_commit_duration_seconds",
		Help:    "Duration of the locked delete+insert transaction",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	PendingBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ideas_pending_backlog",
		Help: "Messages waiting for a parse attempt",
	})

	BatchJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ideas_batch_jobs_total",
		Help: "Batch jobs by terminal status",
	}, []string{"status"})

	BatchPolls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ideas_batch_polls_total",
		Help: "Batch status polls",
	})

	BatchLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ideas_batch_lines_total",
		Help: "Batch output lines by outcome",
	}, []string{"outcome"})
)
