// README: Prometheus collectors for orders, dispatch and HTTP traffic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fitdash_orders_created_total",
		Help: "Orders committed by createOrder.",
	})

	// OperationErrors counts failed callable operations by operation and error kind.
	OperationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fitdash_operation_errors_total",
		Help: "Failed operations by operation and error kind.",
	}, []string{"operation", "kind"})

	// DispatchResults counts assignment attempts by outcome
	// (assigned, no_driver, skipped, error).
	DispatchResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fitdash_dispatch_results_total",
		Help: "Driver assignment attempts by outcome.",
	}, []string{"result"})

	DispatchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fitdash_dispatch_retry_pending",
		Help: "Orders waiting in the dispatch retry set at the last promotion tick.",
	})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fitdash_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
