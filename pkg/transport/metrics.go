package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tee_attest_transport_connections_accepted_total",
		Help: "Total number of vsock connections accepted by a Listener.",
	})

	framesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tee_attest_transport_frames_written_total",
		Help: "Total number of framed replies written back to a connection.",
	})

	handlerLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tee_attest_transport_handler_latency_seconds",
		Help:    "Time a request handler takes to produce its reply, from frame read to reply send.",
		Buckets: prometheus.DefBuckets,
	})
)
