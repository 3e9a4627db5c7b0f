package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"path", "method", "status"})

	HttpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30, 90},
	}, []string{"route", "method"})

	PanicsRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "http_panics_recovered_total",
		Help: "Handler panics turned into 500 responses",
	})

	AnswersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rag_answers_total",
		Help: "Total number of answered questions",
	}, []string{"status"})

	AnswerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rag_answer_seconds",
		Help:    "Time taken by each step of the answer pipeline",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"step"})

	RetrievedDocuments = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rag_retrieved_documents",
		Help:    "Number of documents supplied as grounding context",
		Buckets: []float64{0, 1, 2, 3, 5, 10},
	})

	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "task_processing_seconds",
		Help: "Time taken to process pooled tasks",
	}, []string{"pool", "status"})

	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasks_processed_total",
		Help: "Total number of processed pooled tasks",
	}, []string{"pool", "status"})

	Retries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retries_total",
		Help: "Total number of backoff retries",
	}, []string{"operation"})

	DocumentsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "documents_ingested_total",
		Help: "Total number of documents handled by the ingestion jobs",
	}, []string{"job", "outcome"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "job_processing_seconds",
		Help: "Time taken to process queued jobs",
	}, []string{"type", "status"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "job_queue_depth",
		Help: "Number of jobs waiting in the in-memory queue",
	})

	DeadLetterJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "job_dead_letters",
		Help: "Number of jobs held in the dead letter queue",
	})

	OutboundRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_client_requests_total",
		Help: "Outbound HTTP requests by client and status class",
	}, []string{"client", "status"})

	ProviderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_request_duration_seconds",
		Help:    "Duration of embedding and chat completion calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"operation", "model", "status"})

	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_errors_total",
		Help: "Failed embedding and chat completion calls by error class",
	}, []string{"operation", "model", "class"})

	ProviderTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Tokens billed by the model provider",
	}, []string{"operation", "model", "kind"})
)
