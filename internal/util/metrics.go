package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_created_total",
		Help: "Total number of reservations created",
	})

	ReservationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservations_failed_total",
		Help: "Total number of rejected reservation attempts",
	}, []string{"reason"})

	ReservationsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_cancelled_total",
		Help: "Total number of cancelled reservations",
	})

	PortReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "port_reserve_latency_seconds",
		Help:    "Latency of port reservation operations",
		Buckets: prometheus.DefBuckets,
	})

	PaymentAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Total number of settlement attempts",
	})

	PaymentSuccessTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_success_total",
		Help: "Total number of settled reservations",
	})

	PaymentFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_failed_total",
		Help: "Total number of rejected settlements",
	}, []string{"reason"})

	PaymentProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_processing_latency_seconds",
		Help:    "Latency of settlement processing",
		Buckets: prometheus.DefBuckets,
	})

	SettlementPartialFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_partial_failures_total",
		Help: "Settlement steps that failed after the transaction was recorded",
	}, []string{"step"})

	StationAvailablePorts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "station_available_ports",
		Help: "Available ports per station as observed by the reconciler",
	}, []string{"station_id"})

	StationPortDrift = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "station_port_drift",
		Help: "available_ports minus (total_ports - pending reservations); zero when consistent",
	}, []string{"station_id"})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "charging_events_consumed_total",
		Help: "Total number of lifecycle events consumed by the audit worker",
	}, []string{"event_type"})

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
