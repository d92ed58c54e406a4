// Package metrics exposes Prometheus instrumentation for leader transactions.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Transaction outcomes used as the result label.
const (
	ResultOK        = "ok"
	ResultNotOpen   = "not_open"
	ResultAddress   = "invalid_address"
	ResultTransport = "transport_error"
	ResultShort     = "frame_too_short"
	ResultChecksum  = "checksum_mismatch"
)

var (
	registerOnce sync.Once

	transactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crumbs",
			Subsystem: "transport",
			Name:      "transactions_total",
			Help:      "Leader send/request calls by outcome.",
		},
		[]string{"op", "result"},
	)
	transactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crumbs",
			Subsystem: "transport",
			Name:      "transaction_duration_seconds",
			Help:      "Duration of bus transactions issued by the leader.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"op"},
	)
	openBuses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "crumbs",
			Subsystem: "transport",
			Name:      "open_buses",
			Help:      "Number of transports currently holding an open bus.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(transactions, transactionDuration, openBuses)
	})
}

// RecordTransaction counts one send/request call. The duration is only
// observed for calls that reached the bus.
func RecordTransaction(op, result string, duration time.Duration) {
	RegisterMetrics()
	transactions.WithLabelValues(op, result).Inc()
	if duration > 0 {
		transactionDuration.WithLabelValues(op).Observe(duration.Seconds())
	}
}

func BusOpened() {
	RegisterMetrics()
	openBuses.Inc()
}

func BusClosed() {
	RegisterMetrics()
	openBuses.Dec()
}

// Transactions returns the counter for tests and diagnostics.
func Transactions() *prometheus.CounterVec {
	return transactions
}

// OpenBuses returns the open-bus gauge.
func OpenBuses() prometheus.Gauge {
	return openBuses
}
