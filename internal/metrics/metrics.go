package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OWSRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openkmi_ows_requests_total",
			Help: "Total requests sent to the RMI OGC web services",
		},
		[]string{"service", "request", "status"},
	)

	OWSRequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openkmi_ows_request_latency_seconds",
			Help:    "OGC web service request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "request"},
	)

	OWSRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openkmi_ows_retries_total",
			Help: "Total retried OGC web service requests",
		},
		[]string{"service", "request"},
	)

	TableRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openkmi_table_rows_total",
			Help: "Total rows materialised into observation and forecast tables",
		},
		[]string{"layer"},
	)
)
