package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "peerchat"

// Reject reasons used as the "reason" label.
const (
	ReasonTooLarge  = "too_large"
	ReasonDecrypt   = "decrypt"
	ReasonMalformed = "malformed"
	ReasonStore     = "store"
)

// Collector groups the session counters.
type Collector struct {
	FramesSent     *prometheus.CounterVec
	FramesReceived *prometheus.CounterVec
	FramesRejected *prometheus.CounterVec
	PayloadBytes   *prometheus.CounterVec
	Handshakes     *prometheus.CounterVec
	// HandshakeLatency records time from connection to Connected or failure.
	HandshakeLatency *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		FramesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to the peer.",
		}, []string{"type"}),
		FramesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames read from the peer and delivered.",
		}, []string{"type"}),
		FramesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rejected_total",
			Help:      "Frames drained and dropped without delivery.",
		}, []string{"type", "reason"}),
		PayloadBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_total",
			Help:      "Encrypted payload bytes on the wire.",
		}, []string{"direction"}),
		Handshakes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "Completed handshakes by role and outcome.",
		}, []string{"role", "outcome"}),
		HandshakeLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_seconds",
			Help:      "Handshake duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"role"}),
	}
}

func (c *Collector) Sent(frameType string, n int64) {
	if c == nil {
		return
	}
	c.FramesSent.WithLabelValues(frameType).Inc()
	c.PayloadBytes.WithLabelValues("out").Add(float64(n))
}

func (c *Collector) Received(frameType string, n int64) {
	if c == nil {
		return
	}
	c.FramesReceived.WithLabelValues(frameType).Inc()
	c.PayloadBytes.WithLabelValues("in").Add(float64(n))
}

func (c *Collector) Rejected(frameType, reason string, n int64) {
	if c == nil {
		return
	}
	c.FramesRejected.WithLabelValues(frameType, reason).Inc()
	c.PayloadBytes.WithLabelValues("in").Add(float64(n))
}

// Handshake records one handshake attempt. outcome is "ok", "rejected" or
// "error".
func (c *Collector) Handshake(role, outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.Handshakes.WithLabelValues(role, outcome).Inc()
	c.HandshakeLatency.WithLabelValues(role).Observe(took.Seconds())
}

// Handler serves g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
