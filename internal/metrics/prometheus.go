package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fieldstock/internal/core"
)

// PrometheusCollector implements core.MetricsCollector backed by Prometheus.
// Collectors are registered lazily on first use.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	ledgerOps    *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	alerts       *prometheus.GaugeVec
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

var (
	_ core.MetricsCollector = (*PrometheusCollector)(nil)
	_ HTTPObserver          = (*PrometheusCollector)(nil)
)

// NewPrometheus creates a collector registering on reg (prometheus.DefaultRegisterer
// if nil) under namespace ("fieldstock" if empty).
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "fieldstock"
	}
	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.ledgerOps = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger movements by kind and outcome (OK or error code).",
		}, []string{"kind", "outcome"})

		p.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Workflow status transitions.",
		}, []string{"workflow", "from", "to"})

		p.alerts = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "stock",
			Name:      "alerts",
			Help:      "Low-stock alerts per criticality tier at the last computation.",
		}, []string{"criticality"})

		p.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route pattern and status.",
		}, []string{"method", "route", "status"})

		p.httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms .. ~2.5s
		}, []string{"route"})

		p.reg.MustRegister(p.ledgerOps)
		p.reg.MustRegister(p.transitions)
		p.reg.MustRegister(p.alerts)
		p.reg.MustRegister(p.httpRequests)
		p.reg.MustRegister(p.httpLatency)
	})
}

func (p *PrometheusCollector) RecordLedgerOperation(kind core.MovementKind, outcome string) {
	p.ensureRegistered()
	p.ledgerOps.WithLabelValues(string(kind), outcome).Inc()
}

func (p *PrometheusCollector) RecordTransition(workflow, from, to string) {
	p.ensureRegistered()
	if from == "" {
		from = "NEW"
	}
	p.transitions.WithLabelValues(workflow, from, to).Inc()
}

func (p *PrometheusCollector) RecordAlerts(c core.AlertCounts) {
	p.ensureRegistered()
	p.alerts.WithLabelValues(string(core.CriticalityCritical)).Set(float64(c.Critical))
	p.alerts.WithLabelValues(string(core.CriticalityWarning)).Set(float64(c.Warning))
	p.alerts.WithLabelValues(string(core.CriticalityLow)).Set(float64(c.Low))
}

func (p *PrometheusCollector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	p.ensureRegistered()
	if route == "" {
		route = "unmatched"
	}
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpLatency.WithLabelValues(route).Observe(elapsed.Seconds())
}
