package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	// Probe metrics
	probesTotal   *prometheus.CounterVec
	probesSuccess prometheus.Counter
	probesFailure prometheus.Counter
	probeDuration prometheus.Histogram

	// Per-endpoint failure breakdown
	endpointFailures *prometheus.CounterVec

	// Run state
	workingProxies prometheus.Gauge
	failedProxies  prometheus.Gauge

	// API metrics
	apiRequests *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
}

func NewCollector(namespace string) *Collector {
	c := &Collector{
		probesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_total",
				Help:      "Total number of proxy probes by result",
			},
			[]string{"result"},
		),
		probesSuccess: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_success_total",
				Help:      "Total number of successful proxy probes",
			},
		),
		probesFailure: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_failure_total",
				Help:      "Total number of failed proxy probes",
			},
		),
		probeDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Proxy probe duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		endpointFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "endpoint_failures_total",
				Help:      "Failed endpoint attempts by endpoint and reason",
			},
			[]string{"endpoint", "reason"},
		),
		workingProxies: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "working_proxies",
				Help:      "Current number of working proxies in this run",
			},
		),
		failedProxies: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "failed_proxies",
				Help:      "Current number of failed proxies in this run",
			},
		),
		apiRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		apiDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}

	return c
}

func (c *Collector) RecordProbeSuccess() {
	c.probesTotal.WithLabelValues("success").Inc()
	c.probesSuccess.Inc()
}

func (c *Collector) RecordProbeFailure(reason string) {
	c.probesTotal.WithLabelValues(reason).Inc()
	c.probesFailure.Inc()
}

func (c *Collector) RecordProbeDuration(seconds float64) {
	c.probeDuration.Observe(seconds)
}

func (c *Collector) RecordEndpointFailure(endpoint, reason string) {
	c.endpointFailures.WithLabelValues(endpoint, reason).Inc()
}

func (c *Collector) SetWorkingProxies(count int) {
	c.workingProxies.Set(float64(count))
}

func (c *Collector) SetFailedProxies(count int) {
	c.failedProxies.Set(float64(count))
}

func (c *Collector) RecordAPIRequest(method, endpoint, status string) {
	c.apiRequests.WithLabelValues(method, endpoint, status).Inc()
}

func (c *Collector) RecordAPIDuration(method, endpoint string, seconds float64) {
	c.apiDuration.WithLabelValues(method, endpoint).Observe(seconds)
}
