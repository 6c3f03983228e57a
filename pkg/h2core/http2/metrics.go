package http2

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	activeStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "h2core",
		Subsystem: "connection",
		Name:      "active_streams",
		Help:      "Number of live streams across all connections in this process.",
	})
	streamResets = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "h2core",
		Subsystem: "connection",
		Name:      "stream_resets_total",
		Help:      "Streams torn down by RST_STREAM, sent or received.",
	})
	goAways = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "h2core",
		Subsystem: "connection",
		Name:      "goaways_total",
		Help:      "GOAWAY frames processed, sent or received.",
	})
)

func init() {
	prometheus.MustRegister(activeStreams, streamResets, goAways)
}
