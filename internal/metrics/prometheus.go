package metrics

import "github.com/prometheus/client_golang/prometheus"

// PrometheusCollector reports session activity through the standard
// Prometheus client library. Callers register Registry() with whatever
// HTTP handler exposes /metrics.
type PrometheusCollector struct {
	registry *prometheus.Registry

	commandsFlushed prometheus.Counter
	groupSizes      prometheus.Histogram
	bytesWritten    prometheus.Counter
	bytesRead       prometheus.Counter
	authAttempts    *prometheus.CounterVec
}

// NewPrometheusCollector creates a Collector backed by reg. If reg is
// nil, a fresh private registry is created so the caller can still read
// NewPrometheusCollector(nil).Registry() without a global registry.
func NewPrometheusCollector(reg *prometheus.Registry) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &PrometheusCollector{
		registry: reg,
		commandsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pop3c",
			Name:      "commands_flushed_total",
			Help:      "Total number of POP3 commands written to the wire.",
		}),
		groupSizes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pop3c",
			Name:      "pipeline_group_size",
			Help:      "Number of commands batched into a single pipelined write.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 100},
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pop3c",
			Name:      "bytes_written_total",
			Help:      "Total bytes written to POP3 connections.",
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pop3c",
			Name:      "bytes_read_total",
			Help:      "Total bytes read from POP3 connections.",
		}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pop3c",
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by mechanism and outcome.",
		}, []string{"mechanism", "outcome"}),
	}

	reg.MustRegister(c.commandsFlushed, c.groupSizes, c.bytesWritten, c.bytesRead, c.authAttempts)
	return c
}

// Registry returns the Prometheus registry backing this collector.
func (c *PrometheusCollector) Registry() *prometheus.Registry { return c.registry }

func (c *PrometheusCollector) CommandsFlushed(n int) {
	c.commandsFlushed.Add(float64(n))
	c.groupSizes.Observe(float64(n))
}

func (c *PrometheusCollector) BytesWritten(n int) { c.bytesWritten.Add(float64(n)) }
func (c *PrometheusCollector) BytesRead(n int)    { c.bytesRead.Add(float64(n)) }

func (c *PrometheusCollector) AuthAttempt(mechanism string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.authAttempts.WithLabelValues(mechanism, outcome).Inc()
}

var _ Collector = (*PrometheusCollector)(nil)
