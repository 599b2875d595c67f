package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	directionToServer = "to_server"
	directionToClient = "to_client"
)

var (
	connectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stammer_connections_total",
		Help: "Client connections accepted",
	})

	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stammer_connections_active",
		Help: "Connections currently in the registry",
	})

	connectionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stammer_connection_failures_total",
		Help: "Connections torn down because of an I/O or connect error",
	})

	acceptErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stammer_accept_errors_total",
		Help: "Listener readiness events where accept failed",
	})

	bytesRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stammer_bytes_read_total",
		Help: "Bytes read into forwarder buffers",
	}, []string{"direction"})

	bytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stammer_bytes_written_total",
		Help: "Bytes accepted by destination sockets",
	}, []string{"direction"})

	chaosDelays = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stammer_chaos_delays_total",
		Help: "Partial writes that left bytes behind and paused the forwarder",
	}, []string{"direction"})

	chunkSizes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stammer_write_chunk_bytes",
		Help:    "Chunk sizes offered to destination sockets",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"direction"})
)
