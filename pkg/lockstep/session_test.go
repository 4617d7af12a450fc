package lockstep

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession(t *testing.T) *Session {
	t.Helper()
	return NewSession(Config{
		LocalID:        99,
		InitialFrame:   0,
		Peers:          []PeerID{1, 2},
		BufferSizeHint: 64,
	}, nil)
}

func TestSession_HandleInputPostsAck(t *testing.T) {
	s := testSession(t)

	require.NoError(t, s.HandleInput(1, NewFrameInput(0, []byte("a"))))

	ack, ok := s.AckBuffer().Take(1)
	require.True(t, ok)
	assert.EqualValues(t, 0, ack.CumulativeAck)
	assert.EqualValues(t, 1, ack.SenderID, "ack names the peer being acknowledged, not the local id")
}

func TestSession_HandleInputUnknownPeer(t *testing.T) {
	s := testSession(t)
	err := s.HandleInput(77, NewFrameInput(0, nil))
	assert.Error(t, err)
}

func TestSession_RelabelForWireUsesLocalID(t *testing.T) {
	s := testSession(t)
	require.NoError(t, s.HandleInput(1, NewFrameInput(0, nil)))

	ack, ok := s.AckBuffer().Take(1)
	require.True(t, ok)
	assert.EqualValues(t, 1, ack.SenderID)

	wire := s.RelabelForWire(ack)
	assert.EqualValues(t, 99, wire.SenderID, "outgoing ack must carry the local session's own id")
}

func TestSession_HandleAckAppliesToCorrectTransmitQueue(t *testing.T) {
	s := testSession(t)
	tq, ok := s.TransmitQueue(1)
	require.True(t, ok)
	tq.EnqueueLocal(NewFrameInput(0, []byte("x")))
	tq.EnqueueLocal(NewFrameInput(1, []byte("y")))
	require.Equal(t, 2, tq.UnackedLen())

	require.NoError(t, s.HandleAck(1, FrameACK{SenderID: 1, CumulativeAck: 0}))
	assert.Equal(t, 1, tq.UnackedLen())
}

func TestSession_HandleAckUnknownPeer(t *testing.T) {
	s := testSession(t)
	err := s.HandleAck(77, FrameACK{SenderID: 77, CumulativeAck: -1})
	assert.Error(t, err)
}

func TestSession_PopAllReleasesAfterBarrier(t *testing.T) {
	s := testSession(t)

	done := make(chan map[PeerID]FrameInput, 1)
	go func() {
		require.NoError(t, s.Barrier().Await(nil))
		done <- s.PopAll()
	}()

	require.NoError(t, s.HandleInput(1, NewFrameInput(0, []byte("p1"))))
	require.NoError(t, s.HandleInput(2, NewFrameInput(0, []byte("p2"))))

	select {
	case got := <-done:
		assert.Equal(t, []byte("p1"), got[1].Payload)
		assert.Equal(t, []byte("p2"), got[2].Payload)
	case <-time.After(time.Second):
		t.Fatal("barrier never released after both peers delivered frame 0")
	}
}

func TestSession_LastSeenTracksAnyMessageKind(t *testing.T) {
	s := testSession(t)
	_, ok := s.LastSeen(1)
	assert.False(t, ok)

	s.HandleKeepAlive(1)
	seen, ok := s.LastSeen(1)
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now(), seen, time.Second)
}

func TestSession_StopIsIdempotentAndReleasesBarrier(t *testing.T) {
	s := testSession(t)

	done := make(chan error, 1)
	go func() {
		done <- s.Barrier().Await(nil)
	}()
	time.Sleep(10 * time.Millisecond)

	s.Stop()
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not release a waiting Barrier.Await")
	}
	select {
	case <-s.Stopped():
	default:
		t.Fatal("Stopped channel not closed")
	}
}
