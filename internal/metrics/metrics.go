package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tracks rows consumed by the enrichment pipeline.
	TradeRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enricher_trade_rows_total",
			Help: "Total number of trade rows consumed (by outcome: emitted, dropped).",
		},
		[]string{"outcome"},
	)

	// Per-row recoverable conditions that never abort the stream.
	RowObservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enricher_row_observations_total",
			Help: "Row-level observations (invalid_date, unmapped_id, price_fallback).",
		},
		[]string{"kind"},
	)

	// Measures duration of full enrichment runs.
	EnrichDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enricher_run_duration_seconds",
			Help:    "Duration of enrichment runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15), // 10ms up to ~164s
		},
	)

	ProductOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enricher_product_ops_total",
			Help: "Product registry operations (by op and status).",
		},
		[]string{"op", "status"},
	)

	RegistryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "enricher_registry_entries",
			Help: "Number of entries in the published product mapping.",
		},
	)

	NATSPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_publish_errors_total",
			Help: "Number of NATS publish failures",
		},
		[]string{"subject"},
	)
)

func IncRowObservation(kind string) {
	RowObservationsTotal.WithLabelValues(kind).Inc()
}

func IncProductOp(op, status string) {
	ProductOpsTotal.WithLabelValues(op, status).Inc()
}

func SetRegistryEntries(n int) {
	RegistryEntries.Set(float64(n))
}

// ObserveRun records a completed enrichment run.
func ObserveRun(start time.Time, emitted, dropped int64) {
	EnrichDuration.Observe(time.Since(start).Seconds())
	TradeRowsTotal.WithLabelValues("emitted").Add(float64(emitted))
	TradeRowsTotal.WithLabelValues("dropped").Add(float64(dropped))
}

func StartServer(addr string) {
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		http.ListenAndServe(addr, nil) //nolint:errcheck
	}()
}
