package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skycoin/lockstep/pkg/lockstep"
	"github.com/skycoin/lockstep/pkg/lockstep/metrics"
	"github.com/skycoin/lockstep/pkg/wire"
)

// SenderLoop periodically drains a Session's AckBuffer, scans every
// TransmitQueue for frames due for (re)send, and emits a KeepAlive to any
// peer that has been quiet since the last KeepAliveInterval. It runs on
// its own ticker rather than being woken per-event, the same choice
// pkg/net/factory/udp_factory.go's GC makes for its own periodic sweep.
type SenderLoop struct {
	socket    *Socket
	session   *lockstep.Session
	peerAddrs map[lockstep.PeerID]*net.UDPAddr

	tickInterval      time.Duration
	keepAliveInterval time.Duration
	maxDatagram       int

	mu       sync.Mutex
	lastSent map[lockstep.PeerID]time.Time

	metrics *metrics.Metrics
	log     *logrus.Entry
}

// NewSenderLoop constructs a SenderLoop. tickInterval governs how often
// the ACK buffer and transmit queues are scanned; it should be well
// under the retransmission timeout so retransmits aren't delayed by a
// full extra tick.
func NewSenderLoop(
	socket *Socket,
	session *lockstep.Session,
	peerAddrs map[lockstep.PeerID]*net.UDPAddr,
	tickInterval, keepAliveInterval time.Duration,
	maxDatagram int,
	log *logrus.Entry,
) *SenderLoop {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SenderLoop{
		socket:            socket,
		session:           session,
		peerAddrs:         peerAddrs,
		tickInterval:      tickInterval,
		keepAliveInterval: keepAliveInterval,
		maxDatagram:       maxDatagram,
		lastSent:          make(map[lockstep.PeerID]time.Time, len(peerAddrs)),
		log:               log.WithField("worker", "senderloop"),
	}
}

// WithMetrics attaches a *metrics.Metrics instance the loop reports queue
// depth and retransmit counts through. Optional: a nil receiver on
// *metrics.Metrics absorbs every call, so SenderLoop works unmodified
// when metrics aren't wired up (e.g. in tests).
func (s *SenderLoop) WithMetrics(m *metrics.Metrics) *SenderLoop {
	s.metrics = m
	return s
}

// Run blocks until ctx is done, ticking flushAcks, flushRetransmissions
// and flushKeepAlives every tickInterval.
func (s *SenderLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.flushAcks()
			s.flushRetransmissions()
			s.flushKeepAlives()
			s.reportDepths()
		}
	}
}

func (s *SenderLoop) flushAcks() {
	for _, ack := range s.session.AckBuffer().DrainAll() {
		dest, ok := s.peerAddrs[ack.SenderID]
		if !ok {
			s.log.Warnf("no address for peer %s, dropping ack", ack.SenderID)
			continue
		}
		relabeled := s.session.RelabelForWire(ack)
		s.send(ack.SenderID, dest, wire.AckMessage{
			SenderID:      relabeled.SenderID,
			CumulativeAck: relabeled.CumulativeAck,
			SelectiveAcks: relabeled.SelectiveAcks,
		})
	}
}

func (s *SenderLoop) flushRetransmissions() {
	now := time.Now()
	rto := s.session.RetransmissionTimeout()
	for _, peer := range s.session.Peers() {
		tq, ok := s.session.TransmitQueue(peer)
		if !ok {
			continue
		}
		due := tq.DueForSend(now, rto)
		if len(due) == 0 {
			continue
		}
		dest, ok := s.peerAddrs[peer]
		if !ok {
			s.log.Warnf("no address for peer %s, dropping %d frames", peer, len(due))
			continue
		}
		s.send(peer, dest, wire.InputBatchMessage{SenderID: s.session.LocalID(), Frames: due})
		s.metrics.AddRetransmits(peer.String(), len(due))
	}
}

// reportDepths snapshots every peer's receive/transmit queue depth into
// the metrics gauges, for /metrics scraping between datagrams.
func (s *SenderLoop) reportDepths() {
	if s.metrics == nil {
		return
	}
	for _, peer := range s.session.Peers() {
		if rq, ok := s.session.ReceiveQueue(peer); ok {
			s.metrics.SetQueueDepth(peer.String(), metrics.KindReceive, rq.PendingLen())
		}
		if tq, ok := s.session.TransmitQueue(peer); ok {
			s.metrics.SetQueueDepth(peer.String(), metrics.KindTransmit, tq.UnackedLen())
		}
	}
}

func (s *SenderLoop) flushKeepAlives() {
	if s.keepAliveInterval <= 0 {
		return
	}
	now := time.Now()
	for peer, dest := range s.peerAddrs {
		s.mu.Lock()
		last, ok := s.lastSent[peer]
		s.mu.Unlock()
		if ok && now.Sub(last) < s.keepAliveInterval {
			continue
		}
		s.send(peer, dest, wire.KeepAliveMessage{SenderID: s.session.LocalID()})
	}
}

func (s *SenderLoop) send(peer lockstep.PeerID, dest *net.UDPAddr, v interface{}) {
	data, err := wire.Encode(v, s.maxDatagram)
	if err != nil {
		s.log.WithError(err).Errorf("encoding message for peer %s", peer)
		return
	}
	if _, err := s.socket.conn.WriteToUDP(data, dest); err != nil {
		s.log.WithError(err).Errorf("writing datagram to peer %s", peer)
		return
	}
	s.mu.Lock()
	s.lastSent[peer] = time.Now()
	s.mu.Unlock()
}
