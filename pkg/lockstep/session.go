package lockstep

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config is the session-wide configuration enumerated in spec §6.
type Config struct {
	// LocalID is this process's own peer id. It is never used as a map
	// key into ReceiveQueues/TransmitQueues (those are keyed by remote
	// peer), but it is what the session stamps onto outgoing FrameACKs
	// before wire emission, see Session.RelabelForWire.
	LocalID PeerID
	// InitialFrame is the first frame number, identical across all peers.
	InitialFrame int64
	// Peers is the fixed set of remote participants (excluding LocalID).
	Peers []PeerID
	// BufferSizeHint is advisory; see ReceiveQueue.
	BufferSizeHint int
	TickRateHz            int
	RetransmissionTimeout time.Duration
	SocketReadTimeout     time.Duration
}

// Session owns one ReceiveQueue and one TransmitQueue per remote peer,
// the barrier shared across all of them, and the coalescing ACK buffer.
// It is the in-memory orchestration layer; socket I/O lives in the
// sibling transport package.
//
// Grounded on pkg/net/factory/udp_factory.go's UDPFactory (a shared,
// mutex-guarded map from remote address to connection state, with
// lifecycle goroutines hung off NewUDPFactory) and on
// original_source/LockstepLibrary/LockstepReceiver.java's run()/
// messageSwitch() dispatch loop, whose instanceof checks are replaced by a
// type switch over the decoded wire message in transport.ReadLoop, which
// calls the Handle* methods below (spec §9).
type Session struct {
	id  uuid.UUID
	cfg Config
	log *logrus.Entry

	barrier        *Barrier
	receiveQueues  map[PeerID]*ReceiveQueue
	transmitQueues map[PeerID]*TransmitQueue
	ackBuffer      *AckBuffer

	mu       sync.RWMutex
	lastSeen map[PeerID]time.Time

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewSession constructs a Session with one ReceiveQueue/TransmitQueue
// pair per entry in cfg.Peers, sharing a single barrier sized to
// len(cfg.Peers).
func NewSession(cfg Config, log *logrus.Entry) *Session {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	id := uuid.New()
	log = log.WithField("session", id.String()).WithField("local_peer", cfg.LocalID)

	barrier := NewBarrier(len(cfg.Peers))

	s := &Session{
		id:             id,
		cfg:            cfg,
		log:            log,
		barrier:        barrier,
		receiveQueues:  make(map[PeerID]*ReceiveQueue, len(cfg.Peers)),
		transmitQueues: make(map[PeerID]*TransmitQueue, len(cfg.Peers)),
		ackBuffer:      NewAckBuffer(),
		lastSeen:       make(map[PeerID]time.Time, len(cfg.Peers)),
		stopped:        make(chan struct{}),
	}
	for _, p := range cfg.Peers {
		s.receiveQueues[p] = NewReceiveQueue(p, cfg.InitialFrame, barrier, cfg.BufferSizeHint, log)
		s.transmitQueues[p] = NewTransmitQueue(p, cfg.InitialFrame, log)
	}
	return s
}

// ID returns the session's run identifier, attached as the "session" log
// field so multiple sessions sharing a process (e.g. tests) can be told
// apart.
func (s *Session) ID() uuid.UUID { return s.id }

// LocalID returns this process's own peer id, as configured.
func (s *Session) LocalID() PeerID { return s.cfg.LocalID }

// RetransmissionTimeout returns the configured RTO, for the transport
// sender loop's retransmission scan.
func (s *Session) RetransmissionTimeout() time.Duration { return s.cfg.RetransmissionTimeout }

// Barrier returns the shared cyclic barrier the simulation thread awaits.
func (s *Session) Barrier() *Barrier { return s.barrier }

// AckBuffer returns the session's coalescing ACK buffer.
func (s *Session) AckBuffer() *AckBuffer { return s.ackBuffer }

// ReceiveQueue returns the reorder buffer for remote peer p.
func (s *Session) ReceiveQueue(p PeerID) (*ReceiveQueue, bool) {
	q, ok := s.receiveQueues[p]
	return q, ok
}

// TransmitQueue returns the retransmission store for remote peer p.
func (s *Session) TransmitQueue(p PeerID) (*TransmitQueue, bool) {
	q, ok := s.transmitQueues[p]
	return q, ok
}

// Peers returns the fixed peer set this session was configured with.
func (s *Session) Peers() []PeerID {
	out := make([]PeerID, len(s.cfg.Peers))
	copy(out, s.cfg.Peers)
	return out
}

// PopAll consumes one frame from every peer's ReceiveQueue in a fixed
// order, for use by the simulation thread right after Barrier.Await
// returns. It panics (an Invariant failure) if any queue's head is
// empty, since Barrier.Await having returned is the system's guarantee
// that every peer has a frame ready.
func (s *Session) PopAll() map[PeerID]FrameInput {
	out := make(map[PeerID]FrameInput, len(s.cfg.Peers))
	for _, p := range s.cfg.Peers {
		q := s.receiveQueues[p]
		f, ok := q.Pop()
		if !ok {
			panic(&InvariantError{Peer: p, Reason: "barrier released but peer's frame queue head is empty"})
		}
		out[p] = f
	}
	return out
}

// HandleInput applies one decoded frame from senderID and posts the
// resulting ACK to the coalescing buffer.
func (s *Session) HandleInput(senderID PeerID, frame FrameInput) error {
	return s.handleFrames(senderID, []FrameInput{frame})
}

// HandleInputBatch applies a batch of decoded frames from senderID.
func (s *Session) HandleInputBatch(senderID PeerID, frames []FrameInput) error {
	return s.handleFrames(senderID, frames)
}

func (s *Session) handleFrames(senderID PeerID, frames []FrameInput) error {
	rq, ok := s.receiveQueues[senderID]
	if !ok {
		return fmt.Errorf("lockstep: input from unknown peer %s", senderID)
	}
	ack := rq.Push(frames)
	s.ackBuffer.Post(ack)
	s.touch(senderID)
	return nil
}

// HandleAck applies an ACK whose wire-level SenderID has already been
// resolved (by the transport layer) to the remote peer that actually
// produced and sent the datagram, so it indexes directly into
// TransmitQueues.
func (s *Session) HandleAck(fromPeer PeerID, ack FrameACK) error {
	tq, ok := s.transmitQueues[fromPeer]
	if !ok {
		return fmt.Errorf("lockstep: ack from unknown peer %s", fromPeer)
	}
	if err := ack.Validate(); err != nil {
		return err
	}
	tq.ProcessACK(ack)
	s.touch(fromPeer)
	return nil
}

// HandleKeepAlive resets fromPeer's idle timer without touching any
// queue. Per original_source/LockstepLibrary's comment ("Socket
// connection timeout is reset at packet reception"), any received
// datagram does this — HandleInput/HandleInputBatch/HandleAck call touch
// too, so KeepAlive's only job is to reset the timer on an otherwise idle
// link.
func (s *Session) HandleKeepAlive(fromPeer PeerID) {
	s.touch(fromPeer)
}

func (s *Session) touch(peer PeerID) {
	s.mu.Lock()
	s.lastSeen[peer] = time.Now()
	s.mu.Unlock()
}

// LastSeen reports when a datagram from peer was last processed, for
// statusapi and host-app disconnect policy (spec §7's Unreachable
// handling is left to the host).
func (s *Session) LastSeen(peer PeerID) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lastSeen[peer]
	return t, ok
}

// RelabelForWire stamps ack with the session's own LocalID before it is
// handed to the transport layer for serialization, per spec §6: "the
// sending side labels the outgoing ACK with the remote's id before wire
// emission." ack.SenderID, as produced by ReceiveQueue.Push and stored in
// the AckBuffer, names the peer being acknowledged (used by the sender
// loop purely to pick a destination address); the wire format's SenderID
// field instead follows every other message's convention of naming the
// datagram's author, so it must read LocalID once it actually leaves
// this process.
func (s *Session) RelabelForWire(ack FrameACK) FrameACK {
	ack.SenderID = s.cfg.LocalID
	return ack
}

// Stop idempotently releases the barrier and marks the session stopped.
// The simulation thread's own loop is expected to observe Stopped() and
// return; no in-flight frame is required to reach any peer at shutdown
// (spec §5 Cancellation).
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		s.barrier.Reset()
	})
}

// Stopped reports whether Stop has been called.
func (s *Session) Stopped() <-chan struct{} {
	return s.stopped
}
