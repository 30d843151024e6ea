package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tabledash/internal/domain"
)

// Collector holds all Prometheus metrics for tabledash.
type Collector struct {
	registry      *prometheus.Registry
	storeDuration *prometheus.HistogramVec
	storeErrors   *prometheus.CounterVec
	saves         *prometheus.CounterVec
	sessionsOpen  prometheus.Gauge
}

// New creates the metrics on a registry of their own, plus the Go and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(reg)
}

// NewWithRegistry creates and registers all metrics on reg.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	c := &Collector{
		registry: reg,
		storeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tabledash_store_op_duration_seconds",
				Help:    "Duration of record store calls in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"op"},
		),
		storeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabledash_store_errors_total",
				Help: "Failed record store calls by operation and error kind",
			},
			[]string{"op", "kind"},
		),
		saves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabledash_saves_total",
				Help: "Table saves by outcome",
			},
			[]string{"status"},
		),
		sessionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tabledash_sessions_open",
				Help: "Number of open editing sessions",
			},
		),
	}

	reg.MustRegister(c.storeDuration, c.storeErrors, c.saves, c.sessionsOpen)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveStoreOp records one record store call.
func (c *Collector) ObserveStoreOp(op string, d time.Duration, err error) {
	c.storeDuration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		c.storeErrors.WithLabelValues(op, domain.KindName(err)).Inc()
	}
}

// SaveFinished counts a save by its journal status.
func (c *Collector) SaveFinished(status domain.SaveStatus) {
	c.saves.WithLabelValues(string(status)).Inc()
}

// SessionsOpen sets the open session gauge.
func (c *Collector) SessionsOpen(n int) {
	c.sessionsOpen.Set(float64(n))
}
