package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns its registry so several can coexist in one process.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	BookingsTotal    *prometheus.CounterVec
	TransitionsTotal *prometheus.CounterVec
	SlotQueries      *prometheus.CounterVec
	LockWait         prometheus.Histogram

	WeatherRequestsTotal *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		BookingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking and reschedule attempts by operation and outcome.",
		}, []string{"operation", "outcome"}),

		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "transitions_total",
			Help:      "Status transitions by action and outcome.",
		}, []string{"action", "outcome"}),

		SlotQueries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "slot_queries_total",
			Help:      "Available-slot queries, split by whether a workshift was found.",
		}, []string{"shift"}),

		LockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring subject locks.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5},
		}),

		WeatherRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "weather",
			Name:      "requests_total",
			Help:      "Weather lookups by source (cache, upstream) and outcome.",
		}, []string{"source", "outcome"}),
	}
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) ObserveRequest(method, route string, status int, seconds float64) {
	if c == nil {
		return
	}
	c.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(seconds)
}

func (c *Collector) ObserveBooking(operation, outcome string) {
	if c == nil {
		return
	}
	c.BookingsTotal.WithLabelValues(operation, outcome).Inc()
}

func (c *Collector) ObserveTransition(action, outcome string) {
	if c == nil {
		return
	}
	c.TransitionsTotal.WithLabelValues(action, outcome).Inc()
}

func (c *Collector) ObserveSlotQuery(found bool) {
	if c == nil {
		return
	}
	label := "none"
	if found {
		label = "found"
	}
	c.SlotQueries.WithLabelValues(label).Inc()
}

func (c *Collector) ObserveLockWait(seconds float64) {
	if c == nil {
		return
	}
	c.LockWait.Observe(seconds)
}

func (c *Collector) ObserveWeather(source, outcome string) {
	if c == nil {
		return
	}
	c.WeatherRequestsTotal.WithLabelValues(source, outcome).Inc()
}
