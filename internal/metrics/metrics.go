// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector the service updates.
type Metrics struct {
	// HTTP requests by method, route and status code
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP latency by method and route
	HTTPRequestDuration *prometheus.HistogramVec
	// seat lock operations (op: acquire/release/lapse/reap, outcome: ok/held/not_owner/error)
	SeatLockOps *prometheus.CounterVec
	// round trip time of lock store calls by op
	LockStoreDuration *prometheus.HistogramVec
	// room broadcasts by event name
	Broadcasts *prometheus.CounterVec
	// booking attempts (outcome: created/conflict/invalid/error/cancelled)
	BookingsTotal *prometheus.CounterVec
	// live websocket connections currently inside a room
	RoomMembers prometheus.Gauge
}

// New registers the collectors on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg.  Tests pass a fresh
// prometheus.NewRegistry() so that repeated construction does not panic.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		SeatLockOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_lock_operations_total",
				Help: "Seat lock operations by kind and outcome",
			},
			[]string{"op", "outcome"},
		),
		LockStoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seat_lock_store_duration_seconds",
				Help:    "Time spent in lock store round trips",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"op"},
		),
		Broadcasts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "room_broadcasts_total",
				Help: "Room broadcasts by event",
			},
			[]string{"event"},
		),
		BookingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookings_total",
				Help: "Booking requests by outcome",
			},
			[]string{"outcome"},
		),
		RoomMembers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "room_members",
				Help: "Connections currently joined to a show room",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SeatLockOps,
		m.LockStoreDuration,
		m.Broadcasts,
		m.BookingsTotal,
		m.RoomMembers,
	)
	return m
}

// Discard returns collectors registered on a private registry.
func Discard() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}
