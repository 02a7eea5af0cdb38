package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unilib_api_requests_total",
			Help: "Total number of API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unilib_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Circulation metrics
	LoansCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "unilib_loans_created_total",
			Help: "Total number of loans created",
		},
	)

	LoansReturned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "unilib_loans_returned_total",
			Help: "Total number of confirmed returns",
		},
	)

	FinesIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unilib_fines_issued_total",
			Help: "Total number of fines issued by source",
		},
		[]string{"source"},
	)

	// Cache metrics
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unilib_cache_lookups_total",
			Help: "Cache lookups by key and result (hit, miss, error)",
		},
		[]string{"key", "result"},
	)

	// Realtime metrics
	RealtimeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "unilib_realtime_connections",
			Help: "Open websocket connections",
		},
	)

	RealtimeEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "unilib_realtime_events_dropped_total",
			Help: "Events dropped because a client buffer was full",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(LoansCreated)
	prometheus.MustRegister(LoansReturned)
	prometheus.MustRegister(FinesIssued)
	prometheus.MustRegister(CacheLookups)
	prometheus.MustRegister(RealtimeConnections)
	prometheus.MustRegister(RealtimeEventsDropped)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		APIRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		APIRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
