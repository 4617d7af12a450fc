package lockstep

import (
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/sirupsen/logrus"
)

// unackedEntry pairs a locally produced frame with the last time it was
// put on the wire, mirroring pkg/net/conn/pending_map.go's
// map[uint32]*msg.UDPMessage where the message itself tracks its own
// send/ack timestamps.
type unackedEntry struct {
	frame        FrameInput
	lastSendTime time.Time
}

// TransmitQueue is the per-receiver unacknowledged-frame retention store
// described in spec §4.4: it holds every locally produced frame the
// remote peer hasn't ACKed yet and decides, on request, which of them are
// due for (re)send.
//
// Grounded on pkg/net/conn/pending_map.go's UDPPendingMap: a map keyed by
// frame/sequence number plus a btree of the same keys, so "everything
// below a threshold" and "everything due for resend" can both be scanned
// in key order without sorting the map on every call.
type TransmitQueue struct {
	peer PeerID
	log  *logrus.Entry

	mu sync.Mutex

	nextFrameToSend          int64
	unacked                  map[int64]unackedEntry
	keys                     *btree.BTree
	highestCumulativeAckSeen int64
}

// NewTransmitQueue constructs the retransmission store for one remote
// peer. initialFrame must match the session-wide initialFrame so the
// first call to EnqueueLocal lines up with the expected sequence.
func NewTransmitQueue(peer PeerID, initialFrame int64, log *logrus.Entry) *TransmitQueue {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &TransmitQueue{
		peer:                     peer,
		log:                      log.WithField("peer", peer).WithField("component", "transmitqueue"),
		nextFrameToSend:          initialFrame,
		unacked:                  make(map[int64]unackedEntry),
		keys:                     btree.New(2),
		highestCumulativeAckSeen: initialFrame - 1,
	}
}

// EnqueueLocal appends a newly produced local input. input.FrameNumber
// must equal the queue's nextFrameToSend; the entry is stored with a zero
// lastSendTime so DueForSend picks it up immediately on the next call.
func (q *TransmitQueue) EnqueueLocal(f FrameInput) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if f.FrameNumber != q.nextFrameToSend {
		panic(&InvariantError{
			Peer:   q.peer,
			Reason: "EnqueueLocal frame number out of sequence",
		})
	}
	q.nextFrameToSend++
	q.unacked[f.FrameNumber] = unackedEntry{frame: f}
	q.keys.ReplaceOrInsert(frameKey(f.FrameNumber))
}

// ProcessACK applies an incoming acknowledgment: the cumulative field is
// applied monotonically (ACKs may themselves arrive reordered), and every
// selectively-acked frame number is removed unconditionally. Removing an
// already-removed key is a no-op, so a stale reordered ACK can never
// resurrect a frame that a newer ACK already cleared.
func (q *TransmitQueue) ProcessACK(ack FrameACK) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if ack.CumulativeAck > q.highestCumulativeAckSeen {
		q.highestCumulativeAckSeen = ack.CumulativeAck
	}

	for q.keys.Len() > 0 {
		min := q.keys.Min().(frameKey)
		if int64(min) > q.highestCumulativeAckSeen {
			break
		}
		q.keys.DeleteMin()
		delete(q.unacked, int64(min))
	}

	for _, k := range ack.SelectiveAcks {
		if _, ok := q.unacked[k]; ok {
			delete(q.unacked, k)
			q.keys.Delete(frameKey(k))
		}
	}
}

// DueForSend returns every unacked frame whose lastSendTime+rto<=now, in
// ascending frame order, and stamps each returned entry's lastSendTime to
// now so the next call won't return it again before another rto elapses.
func (q *TransmitQueue) DueForSend(now time.Time, rto time.Duration) []FrameInput {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []FrameInput
	q.keys.Ascend(func(i btree.Item) bool {
		k := int64(i.(frameKey))
		entry := q.unacked[k]
		if entry.lastSendTime.Add(rto).After(now) {
			return true
		}
		due = append(due, entry.frame)
		entry.lastSendTime = now
		q.unacked[k] = entry
		return true
	})
	return due
}

// UnackedLen reports how many frames are currently outstanding, for
// statusapi/metrics.
func (q *TransmitQueue) UnackedLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.unacked)
}

// HighestCumulativeAckSeen reports the highest cumulative ACK value ever
// observed from the remote peer.
func (q *TransmitQueue) HighestCumulativeAckSeen() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.highestCumulativeAckSeen
}
