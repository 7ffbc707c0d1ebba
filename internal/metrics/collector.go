// Package metrics collects operation metrics for the container engine and
// exposes them through a Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Namespace: "containerfs",
	}
}

// Collector records per-operation counters, durations and byte sizes. A
// disabled collector is a no-op so callers never branch.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationSize     *prometheus.HistogramVec
	errorCounter      *prometheus.CounterVec
	usageGauge        *prometheus.GaugeVec
}

// NewCollector creates a new metrics collector.
func NewCollector(config *Config) *Collector {
	if config == nil {
		config = DefaultConfig()
	}

	c := &Collector{config: config}
	if !config.Enabled {
		return c
	}

	c.registry = prometheus.NewRegistry()

	c.operationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "operations_total",
		Help:      "Total number of filesystem operations by status",
	}, []string{"operation", "status"})

	c.operationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "operation_duration_seconds",
		Help:      "Duration of filesystem operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	c.operationSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "operation_bytes",
		Help:      "Payload size of filesystem operations",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
	}, []string{"operation"})

	c.errorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "errors_total",
		Help:      "Total number of failed operations by error kind",
	}, []string{"operation", "kind"})

	c.usageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "resource_usage",
		Help:      "Current container resource usage by dimension",
	}, []string{"dimension"})

	c.registry.MustRegister(
		c.operationCounter,
		c.operationDuration,
		c.operationSize,
		c.errorCounter,
		c.usageGauge,
	)

	return c
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordOperation records one operation outcome.
func (c *Collector) RecordOperation(operation string, duration time.Duration, size int64, success bool) {
	if !c.Enabled() {
		return
	}

	status := "success"
	if !success {
		status = "error"
	}
	c.operationCounter.WithLabelValues(operation, status).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if size > 0 {
		c.operationSize.WithLabelValues(operation).Observe(float64(size))
	}
}

// RecordError records a failed operation by error kind.
func (c *Collector) RecordError(operation, kind string) {
	if !c.Enabled() {
		return
	}
	c.errorCounter.WithLabelValues(operation, kind).Inc()
}

// SetUsage publishes the container's current resource usage.
func (c *Collector) SetUsage(storage, memory, files, directories uint64) {
	if !c.Enabled() {
		return
	}
	c.usageGauge.WithLabelValues("storage_bytes").Set(float64(storage))
	c.usageGauge.WithLabelValues("memory_bytes").Set(float64(memory))
	c.usageGauge.WithLabelValues("files").Set(float64(files))
	c.usageGauge.WithLabelValues("directories").Set(float64(directories))
}

// Handler returns an HTTP handler serving the registry in Prometheus
// exposition format, or nil when disabled.
func (c *Collector) Handler() http.Handler {
	if !c.Enabled() {
		return nil
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for callers that aggregate
// several collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
