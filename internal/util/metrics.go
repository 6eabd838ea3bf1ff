package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders that reached paid status",
	})

	WebhooksSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_sent_total",
		Help: "Total number of webhook events sent",
	}, []string{"event_type"})

	JobsEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_enqueued_total",
		Help: "Total number of background jobs enqueued",
	}, []string{"name"})

	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_processed_total",
		Help: "Total number of background jobs processed",
	}, []string{"name", "status"})

	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlements_total",
		Help: "Total number of order balance settlements",
	}, []string{"outcome"})

	InvoicesGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoices_generated_total",
		Help: "Total number of invoice documents generated",
	})

	MeterResetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meter_resets_total",
		Help: "Total number of meter reset events recorded",
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
