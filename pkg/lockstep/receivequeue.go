package lockstep

import (
	"sync"

	"github.com/google/btree"
	"github.com/sirupsen/logrus"
)

// frameKey adapts an int64 frame number to btree.Item, following
// pkg/net/conn/pending_map.go's seq type.
type frameKey int64

func (a frameKey) Less(b btree.Item) bool {
	return a < b.(frameKey)
}

// ReceiveQueue is the per-sender reorder buffer and selective-ACK
// bookkeeper described in spec §4.3. One instance exists per remote
// peer; Push is called by the receiver worker, Pop and Head by the
// simulation thread.
//
// Grounded on pkg/net/conn/stream.go's fecStreamQueue (btree-backed
// reorder set behind a single mutex, cumulative sequence tracked inline)
// and on original_source/LockstepLibrary's ExecutionFrameQueue for the
// push/pop semantics themselves. The Java original splits bufferHead into
// an AtomicInteger and pending into a ConcurrentSkipListMap on the theory
// that producer and consumer never touch the same key; that optimization
// buys nothing here once lastInOrder and the selective set are factored
// in, since a push that completes the contiguous prefix up to bufferHead
// must still coordinate with countdownIssued. A single mutex, matching
// fecStreamQueue, keeps that coordination correct without hand-rolled
// lock-free bookkeeping (see DESIGN.md Open Question).
type ReceiveQueue struct {
	peer    PeerID
	barrier *Barrier
	log     *logrus.Entry

	mu sync.Mutex

	bufferHead  int64
	lastInOrder int64
	pending     map[int64]FrameInput
	selective   *btree.BTree

	// countdownIssued tracks whether CountDown has already been called
	// for the current bufferHead, so a push landing on bufferHead and a
	// pop revealing it already present never double-count. Reset to
	// false every time bufferHead advances. Resolves the double-count
	// hazard called out in spec §9.
	countdownIssued bool

	bufferSizeHint int
}

// NewReceiveQueue constructs the reorder buffer for one remote peer.
// bufferSizeHint is advisory only (spec §4.3 edge cases): frames
// arbitrarily far ahead of bufferHead are always accepted.
func NewReceiveQueue(peer PeerID, initialFrame int64, barrier *Barrier, bufferSizeHint int, log *logrus.Entry) *ReceiveQueue {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ReceiveQueue{
		peer:           peer,
		barrier:        barrier,
		log:            log.WithField("peer", peer).WithField("component", "receivequeue"),
		bufferHead:     initialFrame,
		lastInOrder:    initialFrame - 1,
		pending:        make(map[int64]FrameInput),
		selective:      btree.New(2),
		bufferSizeHint: bufferSizeHint,
	}
}

// Push ingests one or more frames from the remote peer, in any order,
// possibly with duplicates, and returns the ACK to send back. Safe to
// call concurrently with Pop/Head, but not with another Push on the same
// queue.
func (q *ReceiveQueue) Push(frames []FrameInput) FrameACK {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, f := range frames {
		q.pushOne(f)
	}

	return FrameACK{
		SenderID:      q.peer,
		CumulativeAck: q.lastInOrder,
		SelectiveAcks: q.selectiveSnapshot(),
	}
}

func (q *ReceiveQueue) pushOne(f FrameInput) {
	if f.FrameNumber < q.bufferHead {
		q.log.Debugf("frame %d below buffer head %d, discarding", f.FrameNumber, q.bufferHead)
		return
	}
	if _, exists := q.pending[f.FrameNumber]; exists {
		q.log.Debugf("duplicate frame %d, discarding", f.FrameNumber)
		return
	}

	q.pending[f.FrameNumber] = f

	if f.FrameNumber == q.lastInOrder+1 {
		q.lastInOrder++
		for q.selective.Len() > 0 {
			min := q.selective.Min().(frameKey)
			if int64(min) != q.lastInOrder+1 {
				break
			}
			q.selective.DeleteMin()
			q.lastInOrder++
		}
		if f.FrameNumber == q.bufferHead && !q.countdownIssued {
			q.countdownIssued = true
			q.barrier.CountDown()
		}
	} else {
		q.selective.ReplaceOrInsert(frameKey(f.FrameNumber))
	}
}

func (q *ReceiveQueue) selectiveSnapshot() []int64 {
	if q.selective.Len() == 0 {
		return nil
	}
	out := make([]int64, 0, q.selective.Len())
	q.selective.Ascend(func(i btree.Item) bool {
		out = append(out, int64(i.(frameKey)))
		return true
	})
	return out
}

// Pop returns the frame at bufferHead and advances bufferHead by one, or
// reports ok=false if that slot is still empty. Called only by the
// simulation thread.
func (q *ReceiveQueue) Pop() (frame FrameInput, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	frame, ok = q.pending[q.bufferHead]
	if !ok {
		return FrameInput{}, false
	}
	delete(q.pending, q.bufferHead)
	q.bufferHead++
	q.countdownIssued = false

	if _, already := q.pending[q.bufferHead]; already {
		q.countdownIssued = true
		q.barrier.CountDown()
	}
	return frame, true
}

// Head non-mutatingly peeks at the frame the simulation will next
// consume, if any.
func (q *ReceiveQueue) Head() (frame FrameInput, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	frame, ok = q.pending[q.bufferHead]
	return
}

// BufferHead reports the next frame number the simulation will consume.
func (q *ReceiveQueue) BufferHead() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bufferHead
}

// LastInOrder reports the highest frame number such that every frame
// from initialFrame through it has been received.
func (q *ReceiveQueue) LastInOrder() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastInOrder
}

// PendingLen reports the number of frames currently buffered, for
// statusapi/metrics.
func (q *ReceiveQueue) PendingLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
