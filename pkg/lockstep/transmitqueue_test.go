package lockstep

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameNumbers(fs []FrameInput) []int64 {
	out := make([]int64, len(fs))
	for i, f := range fs {
		out[i] = f.FrameNumber
	}
	return out
}

func TestTransmitQueue_EnqueueRequiresSequence(t *testing.T) {
	q := NewTransmitQueue(PeerID(1), 0, nil)
	q.EnqueueLocal(input(0))
	q.EnqueueLocal(input(1))
	assert.Equal(t, 2, q.UnackedLen())

	assert.Panics(t, func() { q.EnqueueLocal(input(5)) })
}

func TestTransmitQueue_ACKCollapsesUnacked(t *testing.T) {
	q := NewTransmitQueue(PeerID(1), 3, nil)
	for _, n := range []int64{3, 4, 5, 6, 7, 8} {
		q.EnqueueLocal(input(n))
	}
	// EnqueueLocal only accepts consecutive frames; an earlier selective
	// ACK of 6 leaves unacked = {3, 4, 5, 7, 8}.
	q.ProcessACK(FrameACK{CumulativeAck: 2, SelectiveAcks: []int64{6}})
	assert.Equal(t, 5, q.UnackedLen())

	q.ProcessACK(FrameACK{CumulativeAck: 5, SelectiveAcks: []int64{8}})

	due := q.DueForSend(time.Now(), 0)
	assert.ElementsMatch(t, []int64{7}, frameNumbers(due))
}

func TestTransmitQueue_ACKIsMonotonicCumulativeButUnconditionalSelective(t *testing.T) {
	q := NewTransmitQueue(PeerID(1), 0, nil)
	for _, n := range []int64{0, 1, 2, 3} {
		q.EnqueueLocal(input(n))
	}

	q.ProcessACK(FrameACK{CumulativeAck: 2})
	assert.Equal(t, int64(2), q.HighestCumulativeAckSeen())
	assert.Equal(t, 1, q.UnackedLen()) // only frame 3 remains

	// Stale reordered ACK with a lower cumulative must not resurrect
	// anything nor move the high-water mark backwards.
	q.ProcessACK(FrameACK{CumulativeAck: 0})
	assert.Equal(t, int64(2), q.HighestCumulativeAckSeen())
	assert.Equal(t, 1, q.UnackedLen())

	q.ProcessACK(FrameACK{CumulativeAck: 2, SelectiveAcks: []int64{3}})
	assert.Equal(t, 0, q.UnackedLen())

	// Removing an already-removed selective entry is a no-op.
	q.ProcessACK(FrameACK{CumulativeAck: 2, SelectiveAcks: []int64{3}})
	assert.Equal(t, 0, q.UnackedLen())
}

func TestTransmitQueue_Retransmission(t *testing.T) {
	q := NewTransmitQueue(PeerID(1), 4, nil)
	q.EnqueueLocal(input(4))

	rto := 50 * time.Millisecond
	t0 := time.Now()

	due := q.DueForSend(t0, rto)
	require.Len(t, due, 1)
	assert.EqualValues(t, 4, due[0].FrameNumber)

	due = q.DueForSend(t0.Add(rto-time.Millisecond), rto)
	assert.Empty(t, due, "not yet due before rto elapses")

	due = q.DueForSend(t0.Add(rto), rto)
	require.Len(t, due, 1, "due again exactly at rto")

	due = q.DueForSend(t0.Add(rto+time.Millisecond), rto)
	assert.Empty(t, due, "stamped lastSendTime resets the window")

	due = q.DueForSend(t0.Add(2*rto), rto)
	require.Len(t, due, 1, "due a second time after another full rto")
}

func TestTransmitQueue_DueForSendAscendingOrder(t *testing.T) {
	q := NewTransmitQueue(PeerID(1), 0, nil)
	for _, n := range []int64{0, 1, 2, 3, 4} {
		q.EnqueueLocal(input(n))
	}
	due := q.DueForSend(time.Now(), 0)
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, frameNumbers(due))
}
