package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReviewsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviews_created_total",
		Help: "Total number of reviews created",
	})

	ReviewsUpdatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviews_updated_total",
		Help: "Total number of reviews edited",
	})

	ReviewsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviews_deleted_total",
		Help: "Total number of reviews deleted",
	})

	ReviewsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviews_rejected_total",
		Help: "Total number of review mutations rejected",
	}, []string{"reason"})

	ReviewsReplayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviews_replayed_total",
		Help: "Total number of review submissions answered from an idempotency key",
	})

	ReviewMutationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "review_mutation_latency_seconds",
		Help:    "Latency of committed review mutations including persistence",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	SummaryCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "summary_cache_hits_total",
		Help: "Total number of summary reads served from cache",
	})

	SummaryCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "summary_cache_misses_total",
		Help: "Total number of summary reads that needed regeneration",
	})

	SummarizerLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "summarizer_latency_seconds",
		Help:    "Latency of external summarizer calls",
		Buckets: prometheus.DefBuckets,
	})

	SummarizerFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "summarizer_failures_total",
		Help: "Total number of failed summarizer calls",
	}, []string{"reason"})

	EventsPublishFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "review_events_publish_failed_total",
		Help: "Total number of review events that could not be published",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
