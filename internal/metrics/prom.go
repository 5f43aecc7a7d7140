package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Message directions.
const (
	DirToRuntime  = "to_runtime"
	DirToFrontend = "to_frontend"
)

// Message outcomes.
const (
	OutcomeRelayed = "relayed"
	OutcomeIgnored = "ignored"
	OutcomeDropped = "dropped"
	OutcomeFailed  = "failed"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "devbridge_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "bridge"},
		},
		[]string{"date", "sha", "version"},
	)

	connections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "devbridge_connections",
			Help: "Open client connections per endpoint",
		},
		[]string{"endpoint"},
	)

	messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devbridge_messages_total",
			Help: "Messages handled by the bridge",
		},
		[]string{"direction", "outcome"},
	)

	decodeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "devbridge_decode_errors_total",
			Help: "Runtime frames that could not be decoded",
		},
	)

	outboundSeq = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "devbridge_outbound_seq",
			Help: "Last sequence number sent to the runtime",
		},
	)

	frameBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devbridge_frame_bytes",
			Help:    "Size of inbound frames",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10),
		},
		[]string{"endpoint"},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, connections, messages, decodeErrors, outboundSeq, frameBytes)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// SetConnections records the number of open connections on an endpoint.
func SetConnections(endpoint string, n int) {
	connections.WithLabelValues(endpoint).Set(float64(n))
}

// RecordMessage counts one message in the given direction.
func RecordMessage(direction, outcome string) {
	messages.WithLabelValues(direction, outcome).Inc()
}

// RecordDecodeError counts one undecodable runtime frame.
func RecordDecodeError() { decodeErrors.Inc() }

// SetOutboundSeq records the last sequence number sent.
func SetOutboundSeq(seq uint32) { outboundSeq.Set(float64(seq)) }

// ObserveFrame records the size of an inbound frame.
func ObserveFrame(endpoint string, n int) {
	frameBytes.WithLabelValues(endpoint).Observe(float64(n))
}
