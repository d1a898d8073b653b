package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BookingOperations tracks lifecycle calls by result
	// operation: create, reschedule, cancel; result: ok, noop, slot_taken, blocked, invalid, error
	BookingOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_operations_total",
		Help: "Booking lifecycle operations by outcome",
	}, []string{"operation", "result"})

	// RemindersGenerated counts new reminder rows; duplicates absorbed by the key are not counted
	RemindersGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reminders_generated_total",
		Help: "Number of day-ahead reminder rows inserted",
	})
)
