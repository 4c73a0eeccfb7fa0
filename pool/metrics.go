package pool

import "github.com/prometheus/client_golang/prometheus"

var metrics struct {
	active       prometheus.Gauge
	idle         prometheus.Gauge
	created      prometheus.Counter
	disposed     prometheus.Counter
	connectFails prometheus.Counter
}

func init() {
	metrics.active = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hacomm",
		Subsystem: "pool",
		Name:      "active_connections",
		Help:      "number of connections currently live (borrowed or idle)",
	})
	metrics.idle = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hacomm",
		Subsystem: "pool",
		Name:      "idle_connections",
		Help:      "number of connections currently sitting in the idle set",
	})
	metrics.created = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hacomm",
		Subsystem: "pool",
		Name:      "connections_created_total",
		Help:      "number of connections successfully dialed",
	})
	metrics.disposed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hacomm",
		Subsystem: "pool",
		Name:      "connections_disposed_total",
		Help:      "number of connections torn down",
	})
	metrics.connectFails = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hacomm",
		Subsystem: "pool",
		Name:      "connect_failures_total",
		Help:      "number of failed dial attempts",
	})
}

// RegisterMetrics registers the pool's connection-lifecycle metrics with
// r. It is safe to call at most once per registerer.
func RegisterMetrics(r prometheus.Registerer) {
	r.MustRegister(metrics.active, metrics.idle, metrics.created, metrics.disposed, metrics.connectFails)
}
