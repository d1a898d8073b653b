package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MailerDuration is the end-to-end latency of one delivery inside the mailer,
	// from reception to the SMTP reply
	MailerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailer_delivery_duration_seconds",
		Help:    "Time taken to deliver a message from reception to the SMTP reply",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"status"}) // status: delivered, dead, requeued

	// MailerMessages tracks the throughput and result of mail consumption
	MailerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailer_messages_total",
		Help: "Total number of messages processed by the mailer",
	}, []string{"status", "event_type"})
)
