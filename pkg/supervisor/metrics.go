package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace used for Prometheus metrics.
const MetricNamespace = "liveserve"
const MetricSubsystem = "supervisor"

var (
	startsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricNamespace,
			Subsystem: MetricSubsystem,
			Name:      "starts_total",
			Help:      "The number of site servers launched.",
		},
	)
	failuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricNamespace,
			Subsystem: MetricSubsystem,
			Name:      "failures_total",
			Help:      "The number of site server failures, by reason.",
		},
		[]string{"reason"},
	)
	serversGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricNamespace,
			Subsystem: MetricSubsystem,
			Name:      "servers",
			Help:      "The number of records currently tracked.",
		},
	)
)

// Failure reasons
const (
	reasonNoPort     = "no_port"
	reasonPortBind   = "port_bind"
	reasonRoot       = "root_unreadable"
	reasonSpawn      = "spawn"
	reasonEarlyExit  = "exited_early"
	reasonUnexpected = "unexpected_exit"
)
