// Package metrics exposes the service's Prometheus collectors. Collectors
// register on the default registry; /metrics serves them via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReservationOps counts reservation engine operations by outcome.
	ReservationOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snackstore_reservations_total",
		Help: "Reservation engine operations by operation and result.",
	}, []string{"operation", "result"})

	// InsufficientStock counts reservations rejected by the stock guard.
	InsufficientStock = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snackstore_insufficient_stock_total",
		Help: "Reservations rejected because available stock was exceeded.",
	})

	// Broadcasts counts stock snapshots fanned out to subscribers.
	Broadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snackstore_broadcasts_total",
		Help: "Stock update broadcasts delivered to the fan-out loop.",
	})

	// ConnectedClients tracks live stock channel connections.
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snackstore_ws_clients",
		Help: "Currently connected stock channel clients.",
	})

	// Subscriptions tracks live (client, product) subscription pairs.
	Subscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snackstore_subscriptions",
		Help: "Currently active product subscriptions.",
	})

	// CleanupRuns counts sweeper runs by outcome.
	CleanupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snackstore_cleanup_runs_total",
		Help: "Expiry sweeper runs by result.",
	}, []string{"result"})

	// CleanupSessions counts sessions reclaimed by the sweeper.
	CleanupSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snackstore_cleanup_sessions_total",
		Help: "Cart sessions reclaimed by the expiry sweeper.",
	})
)

// RecordReservation records one engine operation outcome.
func RecordReservation(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	ReservationOps.WithLabelValues(operation, result).Inc()
}
