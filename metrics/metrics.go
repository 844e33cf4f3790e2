// Package metrics provides Prometheus metrics for bucketfs operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketfs_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bucketfs_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Backend operation metrics
	BackendOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketfs_backend_ops_total",
			Help: "Total number of backend operations",
		},
		[]string{"backend_type", "operation", "status"}, // status: "success", "not_found", "precondition_failed", "error"
	)

	BackendOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bucketfs_backend_op_duration_seconds",
			Help:    "Backend operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend_type", "operation"},
	)

	// Retries of transient single-object failures
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketfs_retry_attempts_total",
			Help: "Total number of retried backend calls",
		},
		[]string{"operation"},
	)

	// Bytes moved by streaming transfers
	TransferBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketfs_transfer_bytes_total",
			Help: "Total number of bytes transferred",
		},
		[]string{"direction"}, // "upload", "download"
	)

	// Keys processed by batched deletes
	BatchDeleteKeysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketfs_batch_delete_keys_total",
			Help: "Total number of keys processed by recursive deletes",
		},
		[]string{"outcome"}, // "succeeded", "failed", "pending"
	)

	// Conditional access outcomes
	PreconditionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketfs_precondition_failures_total",
			Help: "Total number of version token mismatches",
		},
		[]string{"operation"}, // "read", "write"
	)

	// Lock manager metrics
	LockOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketfs_lock_operations_total",
			Help: "Total number of lock operations",
		},
		[]string{"operation", "status"}, // operation: "acquire", "release"; status: "success", "contended", "failure"
	)

	// File operations metrics
	FileOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketfs_file_operations_total",
			Help: "Total number of file store operations",
		},
		[]string{"operation"},
	)

	// Download link metrics
	LinkGenerationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bucketfs_link_generations_total",
			Help: "Total number of download links generated",
		},
	)

	LinkConsumptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketfs_link_consumptions_total",
			Help: "Total number of download link validations",
		},
		[]string{"result"}, // "success", "expired", "invalid"
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketfs_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)
)
