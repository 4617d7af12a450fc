// Package metrics exposes a lockstep session's queue depths and
// retransmission activity as prometheus collectors.
//
// Grounded on pkg/metrics/messaging.go's NewMessagingMetrics (a small
// struct of promauto-registered collectors built per service), adapted
// from a single global registration to a per-session registry so tests
// constructing multiple sessions in one process don't collide on
// prometheus's default registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue kind labels for QueueDepth.
const (
	KindReceive  = "receive"
	KindTransmit = "transmit"
)

// Metrics holds the collectors one lockstep session reports through.
type Metrics struct {
	QueueDepth       *prometheus.GaugeVec
	RetransmitsTotal *prometheus.CounterVec
	FrameRTT         prometheus.Histogram
}

// New constructs and registers a session's collectors against registry.
// Pass prometheus.NewRegistry() in tests to avoid collisions; pass
// prometheus.DefaultRegisterer in a long-running process.
func New(registry prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of frames currently buffered per peer and queue kind.",
		}, []string{"peer", "kind"}),
		RetransmitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retransmits_total",
			Help:      "Total frames handed to the sender loop for retransmission.",
		}, []string{"peer"}),
		FrameRTT: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_rtt_seconds",
			Help:      "Time from a local frame's first send to its cumulative ACK.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ObserveRTT records the time between sendTime and the ACK that retired
// the frame.
func (m *Metrics) ObserveRTT(sendTime time.Time) {
	if m == nil {
		return
	}
	m.FrameRTT.Observe(time.Since(sendTime).Seconds())
}

// SetQueueDepth records the current depth of one peer's queue.
func (m *Metrics) SetQueueDepth(peer string, kind string, depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(peer, kind).Set(float64(depth))
}

// AddRetransmits increments the retransmit counter for one peer.
func (m *Metrics) AddRetransmits(peer string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.RetransmitsTotal.WithLabelValues(peer).Add(float64(n))
}
