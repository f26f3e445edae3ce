package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lookup results recorded by ObserveLookup
const (
	ResultSuccess        = "success"
	ResultFail           = "fail"
	ResultTransportError = "transport_error"
	ResultFormatError    = "format_error"
)

// Metrics holds the Prometheus collectors for lookups and the HTTP front end.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	LookupsTotal        *prometheus.CounterVec
	LookupDuration      prometheus.Histogram
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors with reg and serves them from gatherer
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		LookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geolocator_lookups_total",
				Help: "Total number of geolocation lookups by result",
			},
			[]string{"result"},
		),

		LookupDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "geolocator_lookup_duration_seconds",
				Help:    "Geolocation service round trip latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geolocator_http_requests_total",
				Help: "Total number of HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "geolocator_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		gatherer: gatherer,
	}
}

// ObserveLookup records the outcome and duration of one service call
func (m *Metrics) ObserveLookup(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(result).Inc()
	m.LookupDuration.Observe(duration.Seconds())
}

// ObserveHTTP records one served HTTP request
func (m *Metrics) ObserveHTTP(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler exposes the registered collectors in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
