package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OutboxDeliveries tracks every delivery outcome of the sweep
	// status: sent, retry, failed, cancelled, released
	OutboxDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_deliveries_total",
		Help: "Total number of outbox delivery attempts by outcome",
	}, []string{"status", "event_type"})

	// BatchDuration measures how long it takes to process an entire batch
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_batch_duration_seconds",
		Help:    "Duration of batch processing in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// BatchSize tracks the number of rows actually claimed in each batch
	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_batch_size",
		Help:    "Number of outbox rows claimed per batch",
		Buckets: []float64{1, 10, 50, 100, 500, 1000},
	})

	// SendDuration is the latency of a single transport call
	SendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_send_duration_seconds",
		Help:    "Time spent in the mail transport per row",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 15},
	}, []string{"status"})

	// BrokerReconnections counts how many times the relay had to restore the broker link
	BrokerReconnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_broker_reconnections_total",
		Help: "Total number of broker reconnection attempts",
	})

	// HealthStatus: 1 = broker link up, 0 = down
	HealthStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_healthy",
		Help: "Current health status of the relay (1 for healthy, 0 for unhealthy)",
	})

	// OutboxBacklog is the number of pending rows; the primary lag indicator
	OutboxBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_backlog",
		Help: "Current number of pending rows in the outbox",
	})

	// OutboxFailed counts rows that exhausted retries or failed permanently.
	// Growth here needs an operator.
	OutboxFailed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_failed",
		Help: "Current number of failed rows in the outbox",
	})
)
