package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mockenv"

// DefaultBuckets are the request duration buckets in seconds. Mock
// latencies are usually configured in the tens to thousands of ms.
var DefaultBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Unmatched is the route label of requests no route served.
const Unmatched = "unmatched"

// Collector holds every metric of a server.
type Collector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	selections      *prometheus.CounterVec
	templateErrors  *prometheus.CounterVec
	proxyRequests   *prometheus.CounterVec
	callbacks       *prometheus.CounterVec
	wsConnections   *prometheus.GaugeVec
	restarts        prometheus.Counter
}

// New creates a collector with a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of served requests.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of served requests in seconds, latency included.",
			Buckets:   DefaultBuckets,
		}, []string{"method", "route"}),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Response selections by outcome.",
		}, []string{"outcome"}),
		templateErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "template_errors_total",
			Help:      "Template render failures by source.",
		}, []string{"source"}),
		proxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_requests_total",
			Help:      "Proxied requests by upstream status.",
		}, []string{"status"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "Fired callbacks by result.",
		}, []string{"result"}),
		wsConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Open WebSocket connections.",
		}, []string{"route"}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_restarts_total",
			Help:      "Number of run restarts.",
		}),
	}
	reg.MustRegister(
		c.requests, c.requestDuration, c.selections, c.templateErrors,
		c.proxyRequests, c.callbacks, c.wsConnections, c.restarts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// The recording methods are nil-safe so components can run without
// metrics.

// ObserveRequest records a served request. route is the route uuid or
// Unmatched.
func (c *Collector) ObserveRequest(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Selection counts a response selection outcome.
func (c *Collector) Selection(outcome string) {
	if c == nil {
		return
	}
	c.selections.WithLabelValues(outcome).Inc()
}

// TemplateError counts a render failure. source is header, body,
// callback or websocket.
func (c *Collector) TemplateError(source string) {
	if c == nil {
		return
	}
	c.templateErrors.WithLabelValues(source).Inc()
}

// ProxyRequest counts a proxied request by the status sent back.
func (c *Collector) ProxyRequest(status int) {
	if c == nil {
		return
	}
	c.proxyRequests.WithLabelValues(strconv.Itoa(status)).Inc()
}

// Callback counts a fired callback. result is ok or error.
func (c *Collector) Callback(result string) {
	if c == nil {
		return
	}
	c.callbacks.WithLabelValues(result).Inc()
}

// WebSocketOpened and WebSocketClosed track open connections.
func (c *Collector) WebSocketOpened(route string) {
	if c == nil {
		return
	}
	c.wsConnections.WithLabelValues(route).Inc()
}

func (c *Collector) WebSocketClosed(route string) {
	if c == nil {
		return
	}
	c.wsConnections.WithLabelValues(route).Dec()
}

// Restart counts a run restart.
func (c *Collector) Restart() {
	if c == nil {
		return
	}
	c.restarts.Inc()
}
