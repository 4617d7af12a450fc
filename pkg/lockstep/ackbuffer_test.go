package lockstep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAckBuffer_CoalescesPerPeer(t *testing.T) {
	b := NewAckBuffer()
	b.Post(FrameACK{SenderID: 1, CumulativeAck: 2})
	b.Post(FrameACK{SenderID: 1, CumulativeAck: 5})
	b.Post(FrameACK{SenderID: 2, CumulativeAck: 1})

	acks := b.DrainAll()
	require.Len(t, acks, 2)

	byPeer := map[PeerID]FrameACK{}
	for _, a := range acks {
		byPeer[a.SenderID] = a
	}
	assert.EqualValues(t, 5, byPeer[1].CumulativeAck)
	assert.EqualValues(t, 1, byPeer[2].CumulativeAck)

	assert.Empty(t, b.DrainAll(), "drained buffer has nothing left until the next Post")
}

func TestAckBuffer_Take(t *testing.T) {
	b := NewAckBuffer()
	_, ok := b.Take(1)
	assert.False(t, ok)

	b.Post(FrameACK{SenderID: 1, CumulativeAck: 9})
	ack, ok := b.Take(1)
	require.True(t, ok)
	assert.EqualValues(t, 9, ack.CumulativeAck)

	_, ok = b.Take(1)
	assert.False(t, ok)
}
